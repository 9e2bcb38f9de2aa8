// Package bot connects the analysis pipeline, the FAQ catalog, the denylist
// and the reaction role menu to Discord events.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/ryubing/robocop-go/internal/analyzer"
	"github.com/ryubing/robocop-go/internal/config"
	"github.com/ryubing/robocop-go/internal/denylist"
	"github.com/ryubing/robocop-go/internal/faq"
	"github.com/ryubing/robocop-go/internal/logging"
	"github.com/ryubing/robocop-go/internal/notification"
	"github.com/ryubing/robocop-go/internal/reactionroles"
)

// Chat is the part of the Discord API the message handlers reply through.
type Chat interface {
	Reply(ctx context.Context, channelID, content string) (string, error)
	ReplyEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error)
	// EditReply replaces the content of a message the bot posted. A nil
	// embed leaves only the text.
	EditReply(ctx context.Context, channelID, messageID, content string, embed *discordgo.MessageEmbed) error
}

// Bot handles Discord events for one guild.
type Bot struct {
	cfg      *config.Config
	chat     Chat
	pipeline *analyzer.Pipeline
	catalog  *faq.Catalog
	deny     *denylist.Store
	roles    *reactionroles.Manager
	log      *logging.SecureLogger
}

// Deps are the components a Bot dispatches to. Roles may be nil when no
// reaction role menu is configured.
type Deps struct {
	Chat     Chat
	Pipeline *analyzer.Pipeline
	Catalog  *faq.Catalog
	Denylist *denylist.Store
	Roles    *reactionroles.Manager
	Log      *logging.SecureLogger
}

// New creates a bot.
func New(cfg *config.Config, deps Deps) *Bot {
	log := deps.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Bot{
		cfg:      cfg,
		chat:     deps.Chat,
		pipeline: deps.Pipeline,
		catalog:  deps.Catalog,
		deny:     deps.Denylist,
		roles:    deps.Roles,
		log:      log.Component("bot"),
	}
}

// HandleMessage answers log uploads and prefix link commands.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if m.GuildID != "" && m.GuildID != b.cfg.DiscordGuildID {
		return
	}

	if len(m.Attachments) == 0 {
		b.handleLinkCommand(ctx, m)
		return
	}
	b.handleUpload(ctx, m)
}

func (b *Bot) handleLinkCommand(ctx context.Context, m *discordgo.Message) {
	name, ok := faq.ParseCommand(m.Content, b.cfg.CommandPrefixes)
	if !ok {
		return
	}
	text, ok := b.catalog.Link(name)
	if !ok {
		return
	}
	if _, err := b.chat.Reply(ctx, m.ChannelID, text); err != nil {
		b.log.Warn().Err(err).Str("command", name).Msg("Failed to answer link command")
	}
}

// handleUpload analyses the first attachment. Accepted uploads get a
// placeholder reply that is edited into the report or the error.
func (b *Bot) handleUpload(ctx context.Context, m *discordgo.Message) {
	att := m.Attachments[0]
	up := analyzer.Upload{
		GuildID:       m.GuildID,
		ChannelID:     m.ChannelID,
		MessageID:     m.ID,
		AuthorMention: m.Author.Mention(),
		AuthorName:    "@" + m.Author.Username,
		Filename:      att.Filename,
		URL:           att.URL,
		Size:          att.Size,
	}

	var placeholderID string
	out := b.pipeline.HandleAccepted(ctx, up, func() {
		id, err := b.chat.Reply(ctx, m.ChannelID, analyzer.ParsingMessage)
		if err != nil {
			b.log.Warn().Err(err).Str("channel_id", m.ChannelID).Msg("Failed to post placeholder")
			return
		}
		placeholderID = id
	})

	if err := b.respond(ctx, m.ChannelID, placeholderID, out); err != nil {
		b.log.Error().
			Err(err).
			Str("run_id", out.RunID).
			Str("channel_id", m.ChannelID).
			Msg("Failed to post analysis reply")
	}

	// sink failures are logged by the pipeline
	_ = b.pipeline.Publish(ctx, up, out)
}

func (b *Bot) respond(ctx context.Context, channelID, placeholderID string, out *analyzer.Outcome) error {
	if out.Silent {
		return nil
	}

	var embed *discordgo.MessageEmbed
	content := out.Reply
	if out.Succeeded() {
		embed = notification.ReportEmbed(out.Report)
		content = ""
	}

	if placeholderID != "" {
		if err := b.chat.EditReply(ctx, channelID, placeholderID, content, embed); err != nil {
			return fmt.Errorf("failed to edit placeholder: %w", err)
		}
		return nil
	}

	var err error
	if embed != nil {
		_, err = b.chat.ReplyEmbed(ctx, channelID, embed)
	} else {
		_, err = b.chat.Reply(ctx, channelID, content)
	}
	return err
}

// HandleReaction forwards reaction events to the role menu.
func (b *Bot) HandleReaction(ctx context.Context, r *discordgo.MessageReaction, added bool, fromBot bool) {
	if b.roles == nil || r == nil {
		return
	}
	ev := reactionroles.ReactionEvent{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
		Bot:       fromBot,
	}
	if err := b.roles.HandleReaction(ctx, ev, added); err != nil {
		b.log.Warn().
			Err(err).
			Str("user_id", r.UserID).
			Str("emoji", ev.Emoji).
			Bool("added", added).
			Msg("Failed to update reaction role")
	}
}

// SetupRoles posts or refreshes the role menu and reconciles roles.
func (b *Bot) SetupRoles(ctx context.Context) error {
	if b.roles == nil {
		return nil
	}
	if err := b.roles.Setup(ctx); err != nil {
		return fmt.Errorf("failed to set up reaction roles: %w", err)
	}
	b.log.Info().Str("message_id", b.roles.MessageID()).Msg("Reaction role menu ready")
	return nil
}
