package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/ryubing/robocop-go/internal/denylist"
	"github.com/ryubing/robocop-go/internal/notification"
)

const (
	denylistCommand = "denylist"

	kindApp   = "app"
	kindBuild = "build"

	subList   = "list"
	subCheck  = "check"
	subAdd    = "add"
	subRemove = "remove"

	notStaffMessage = "You need a staff role to use this command."
)

// Commands returns the slash commands registered in the guild: one per
// explanation plus the staff denylist command.
func (b *Bot) Commands() []*discordgo.ApplicationCommand {
	var cmds []*discordgo.ApplicationCommand
	for _, e := range b.catalog.Explanations() {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:        e.Name,
			Description: e.Title,
		})
	}

	kind := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "kind",
		Description: "Kind of id",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "application id", Value: kindApp},
			{Name: "build id", Value: kindBuild},
		},
	}
	id := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "id",
		Description: "Application id (16 characters) or build id (32 to 64 characters)",
		Required:    true,
	}
	note := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "note",
		Description: "Why the id is disabled",
	}

	cmds = append(cmds, &discordgo.ApplicationCommand{
		Name:        denylistCommand,
		Description: "Manage disabled application and build ids",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subList, Description: "List disabled ids"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subCheck, Description: "Check whether an id is disabled",
				Options: []*discordgo.ApplicationCommandOption{kind, id}},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subAdd, Description: "Disable an id",
				Options: []*discordgo.ApplicationCommandOption{kind, id, note}},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: subRemove, Description: "Re-enable an id",
				Options: []*discordgo.ApplicationCommandOption{kind, id}},
		},
	})
	return cmds
}

// HandleInteraction answers a slash command. It returns nil for interactions
// the bot does not own.
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}
	data := i.ApplicationCommandData()

	if e, ok := b.catalog.Explain(data.Name); ok {
		return embedResponse(notification.ExplanationEmbed(e))
	}
	if data.Name != denylistCommand {
		return nil
	}

	if i.Member == nil || !b.cfg.IsStaff(i.Member.Roles) {
		return ephemeral(notStaffMessage)
	}
	if len(data.Options) == 0 {
		return ephemeral("Missing subcommand.")
	}

	sub := data.Options[0]
	opts := optionMap(sub.Options)
	user := ""
	if i.Member.User != nil {
		user = i.Member.User.ID
	}
	log := b.log.With("user_id", user)

	text, err := b.runDenylist(sub.Name, opts["kind"], opts["id"], opts["note"])
	if err != nil {
		log.Error().Err(err).Str("subcommand", sub.Name).Msg("Denylist command failed")
		return ephemeral("Something went wrong while updating the denylist.")
	}
	if sub.Name == subAdd || sub.Name == subRemove {
		log.Info().
			Str("subcommand", sub.Name).
			Str("kind", opts["kind"]).
			Str("id", opts["id"]).
			Msg("Denylist updated")
	}
	return ephemeral(text)
}

// runDenylist executes a denylist subcommand and returns the reply. Invalid
// ids are answered, not returned as errors.
func (b *Bot) runDenylist(sub, kind, id, note string) (string, error) {
	label := "Application id"
	if kind == kindBuild {
		label = "Build id"
	}

	switch sub {
	case subList:
		set, err := b.deny.List()
		if err != nil {
			return "", err
		}
		return formatDenylist(set), nil

	case subCheck:
		var disabled bool
		var err error
		if kind == kindBuild {
			disabled, err = b.deny.IsBuildIDDisabled(id)
		} else {
			disabled, err = b.deny.IsAppIDDisabled(id)
		}
		if err != nil {
			return "", err
		}
		if disabled {
			return fmt.Sprintf("%s `%s` is disabled.", label, id), nil
		}
		return fmt.Sprintf("%s `%s` is not disabled.", label, id), nil

	case subAdd, subRemove:
		var changed bool
		var err error
		switch {
		case sub == subAdd && kind == kindBuild:
			changed, err = b.deny.AddBuildID(id, note)
		case sub == subAdd:
			changed, err = b.deny.AddAppID(id, note)
		case kind == kindBuild:
			changed, err = b.deny.RemoveBuildID(id)
		default:
			changed, err = b.deny.RemoveAppID(id)
		}
		if errors.Is(err, denylist.ErrInvalidAppID) || errors.Is(err, denylist.ErrInvalidBuildID) {
			return fmt.Sprintf("Invalid id: %v.", err), nil
		}
		if err != nil {
			return "", err
		}
		switch {
		case sub == subAdd && changed:
			return fmt.Sprintf("%s `%s` is now disabled.", label, id), nil
		case sub == subAdd:
			return fmt.Sprintf("%s `%s` was already disabled.", label, id), nil
		case changed:
			return fmt.Sprintf("%s `%s` is now enabled.", label, id), nil
		default:
			return fmt.Sprintf("%s `%s` was not disabled.", label, id), nil
		}
	}
	return fmt.Sprintf("Unknown subcommand %q.", sub), nil
}

func formatDenylist(set *denylist.Set) string {
	if len(set.AppIDs) == 0 && len(set.BuildIDs) == 0 {
		return "No ids are disabled."
	}
	var b strings.Builder
	writeIDs(&b, "Application ids", set.AppIDs)
	writeIDs(&b, "Build ids", set.BuildIDs)
	return strings.TrimSpace(b.String())
}

func writeIDs(b *strings.Builder, title string, ids map[string]string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(b, "**%s:**\n", title)
	for _, k := range keys {
		if note := ids[k]; note != "" {
			fmt.Fprintf(b, "- `%s`: %s\n", k, note)
		} else {
			fmt.Fprintf(b, "- `%s`\n", k)
		}
	}
	b.WriteString("\n")
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		if o.Type == discordgo.ApplicationCommandOptionString {
			m[o.Name] = o.StringValue()
		}
	}
	return m
}

func embedResponse(embed *discordgo.MessageEmbed) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	}
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}
