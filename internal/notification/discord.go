package notification

import (
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/ryubing/robocop-go/internal/faq"
	"github.com/ryubing/robocop-go/internal/logfile"
	"github.com/ryubing/robocop-go/internal/reactionroles"
)

// Discord embed limits, in characters.
const (
	maxEmbedTitle       = 256
	maxEmbedDescription = 4096
	maxEmbedFieldName   = 256
	maxEmbedFieldValue  = 1024
	maxEmbedFooter      = 2048
	maxEmbedFields      = 25
)

const ellipsis = "…"

// ReportEmbed renders an analysis report as a Discord embed.
func ReportEmbed(r *logfile.Report) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: truncate(r.Title, maxEmbedTitle),
		Color: r.Color,
	}
	for i, s := range r.Sections {
		if i == maxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   truncate(s.Name, maxEmbedFieldName),
			Value:  fieldValue(s.Value),
			Inline: s.Inline,
		})
	}
	if r.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: truncate(r.Footer, maxEmbedFooter)}
	}
	return embed
}

// ExplanationEmbed renders a canned explanation.
func ExplanationEmbed(e faq.Explanation) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       truncate(e.Title, maxEmbedTitle),
		Description: truncate(e.Description, maxEmbedDescription),
		Color:       faq.ExplanationColor,
	}
}

// MenuEmbed renders the reaction role menu.
func MenuEmbed(e reactionroles.Embed) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       truncate(e.Title, maxEmbedTitle),
		Description: truncate(e.Description, maxEmbedDescription),
		Color:       e.Color,
		Footer:      &discordgo.MessageEmbedFooter{Text: truncate(e.Footer, maxEmbedFooter)},
	}
}

// fieldValue truncates a section value, keeping a code block closed.
func fieldValue(v string) string {
	if utf8.RuneCountInString(v) <= maxEmbedFieldValue {
		return v
	}
	const fence = "```"
	if len(v) >= 2*len(fence) && v[:len(fence)] == fence && v[len(v)-len(fence):] == fence {
		inner := v[len(fence) : len(v)-len(fence)]
		return fence + truncate(inner, maxEmbedFieldValue-2*len(fence)) + fence
	}
	return truncate(v, maxEmbedFieldValue)
}

// truncate shortens s to at most limit characters, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + ellipsis
}
