package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/bwmarrin/discordgo"

	internalerrors "github.com/ryubing/robocop-go/internal/errors"
	"github.com/ryubing/robocop-go/internal/logging"
	"github.com/ryubing/robocop-go/internal/notification"
	"github.com/ryubing/robocop-go/internal/reactionroles"
)

const (
	reactionPageSize = 100
	memberPageSize   = 1000

	intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
)

var (
	_ Chat                   = (*Session)(nil)
	_ reactionroles.Platform = (*Session)(nil)
)

// Session is the Discord connection. It implements Chat for the bot and
// reactionroles.Platform for the role menu.
type Session struct {
	dg      *discordgo.Session
	guildID string
	log     *logging.SecureLogger
}

// NewSession creates a session for a bot token (without the "Bot " prefix).
func NewSession(token, guildID string, log *logging.SecureLogger) (*Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "failed to create Discord session")
	}
	dg.Identify.Intents = intents
	if log == nil {
		log = logging.Nop()
	}
	return &Session{dg: dg, guildID: guildID, log: log.Component("discord")}, nil
}

// Run connects, dispatches events to b and blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context, b *Bot) error {
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		s.onReady(ctx, b, r)
	})
	s.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		b.HandleMessage(ctx, m.Message)
	})
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		fromBot := r.UserID == s.selfID() || (r.Member != nil && r.Member.User != nil && r.Member.User.Bot)
		b.HandleReaction(ctx, r.MessageReaction, true, fromBot)
	})
	s.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
		b.HandleReaction(ctx, r.MessageReaction, false, r.UserID == s.selfID())
	})
	s.dg.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		resp := b.HandleInteraction(ctx, i.Interaction)
		if resp == nil {
			return
		}
		if err := s.dg.InteractionRespond(i.Interaction, resp, discordgo.WithContext(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to respond to interaction")
		}
	})

	if err := s.dg.Open(); err != nil {
		return internalerrors.Wrapf(err, "failed to connect to Discord")
	}
	s.log.Info().Str("guild_id", s.guildID).Msg("Connected to Discord")

	<-ctx.Done()

	if err := s.dg.Close(); err != nil {
		return fmt.Errorf("failed to close Discord session: %w", err)
	}
	s.log.Info().Msg("Disconnected from Discord")
	return nil
}

func (s *Session) onReady(ctx context.Context, b *Bot, r *discordgo.Ready) {
	s.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("Gateway ready")

	if r.Application != nil {
		cmds, err := s.dg.ApplicationCommandBulkOverwrite(r.Application.ID, s.guildID, b.Commands(), discordgo.WithContext(ctx))
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to register slash commands")
		} else {
			s.log.Info().Int("commands", len(cmds)).Msg("Slash commands registered")
		}
	}

	// Ready fires again after every reconnect; the menu setup is idempotent
	go func() {
		if err := b.SetupRoles(ctx); err != nil {
			s.log.Error().Err(err).Msg("Reaction role setup failed")
		}
	}()
}

func (s *Session) selfID() string {
	if s.dg.State == nil || s.dg.State.User == nil {
		return ""
	}
	return s.dg.State.User.ID
}

// Reply implements Chat.
func (s *Session) Reply(ctx context.Context, channelID, content string) (string, error) {
	m, err := s.dg.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return m.ID, nil
}

// ReplyEmbed implements Chat.
func (s *Session) ReplyEmbed(ctx context.Context, channelID string, embed *discordgo.MessageEmbed) (string, error) {
	m, err := s.dg.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send embed: %w", err)
	}
	return m.ID, nil
}

// EditReply implements Chat.
func (s *Session) EditReply(ctx context.Context, channelID, messageID, content string, embed *discordgo.MessageEmbed) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(content)
	if embed != nil {
		edit.SetEmbed(embed)
	} else {
		edit.SetEmbeds([]*discordgo.MessageEmbed{})
	}
	if _, err := s.dg.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

// Message implements reactionroles.Platform.
func (s *Session) Message(ctx context.Context, channelID, messageID string) (*reactionroles.Message, error) {
	m, err := s.dg.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, reactionroles.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	out := &reactionroles.Message{ID: m.ID}
	for _, r := range m.Reactions {
		if r.Emoji != nil {
			out.Reactions = append(out.Reactions, r.Emoji.APIName())
		}
	}
	return out, nil
}

// SendEmbed implements reactionroles.Platform.
func (s *Session) SendEmbed(ctx context.Context, channelID string, e reactionroles.Embed) (string, error) {
	return s.ReplyEmbed(ctx, channelID, notification.MenuEmbed(e))
}

// EditEmbed implements reactionroles.Platform.
func (s *Session) EditEmbed(ctx context.Context, channelID, messageID string, e reactionroles.Embed) error {
	_, err := s.dg.ChannelMessageEditEmbed(channelID, messageID, notification.MenuEmbed(e), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to edit menu: %w", err)
	}
	return nil
}

// AddReaction implements reactionroles.Platform.
func (s *Session) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return s.dg.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

// ClearReaction implements reactionroles.Platform.
func (s *Session) ClearReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return s.dg.MessageReactionsRemoveEmoji(channelID, messageID, emoji, discordgo.WithContext(ctx))
}

// RemoveUserReaction implements reactionroles.Platform.
func (s *Session) RemoveUserReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return s.dg.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx))
}

// ReactionUsers implements reactionroles.Platform.
func (s *Session) ReactionUsers(ctx context.Context, channelID, messageID, emoji string) ([]string, error) {
	var ids []string
	after := ""
	for {
		users, err := s.dg.MessageReactions(channelID, messageID, emoji, reactionPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list reactions: %w", err)
		}
		for _, u := range users {
			if !u.Bot {
				ids = append(ids, u.ID)
			}
		}
		if len(users) < reactionPageSize {
			return ids, nil
		}
		after = users[len(users)-1].ID
	}
}

// RoleIDByName implements reactionroles.Platform.
func (s *Session) RoleIDByName(ctx context.Context, guildID, name string) (string, error) {
	roles, err := s.dg.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", err)
	}
	for _, r := range roles {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("role %q not found", name)
}

// RoleMembers implements reactionroles.Platform.
func (s *Session) RoleMembers(ctx context.Context, guildID, roleID string) ([]string, error) {
	var ids []string
	after := ""
	for {
		members, err := s.dg.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", err)
		}
		for _, m := range members {
			if m.User != nil && slices.Contains(m.Roles, roleID) {
				ids = append(ids, m.User.ID)
			}
		}
		if len(members) < memberPageSize {
			return ids, nil
		}
		after = members[len(members)-1].User.ID
	}
}

// AddRole implements reactionroles.Platform.
func (s *Session) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return s.dg.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// RemoveRole implements reactionroles.Platform.
func (s *Session) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return s.dg.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
