package discord

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/dispatch"
	"github.com/MrWong99/kojo/internal/moderation"
)

// Embed sidebar colors by severity.
const (
	colorCritical = 0xff0033
	colorHigh     = 0xff6600
	colorMedium   = 0xffcc00
	colorLow      = 0x00cc66
)

// previewLimit caps the content preview in runes.
const previewLimit = 400

// AuditLog posts moderation events as embeds to the moderators' channel.
type AuditLog struct {
	api       API
	channelID string
}

var _ dispatch.Auditor = (*AuditLog)(nil)

// NewAuditLog returns an AuditLog posting to channelID. An empty channelID
// disables posting.
func NewAuditLog(api API, channelID string) *AuditLog {
	return &AuditLog{api: api, channelID: channelID}
}

// Post implements [dispatch.Auditor].
func (a *AuditLog) Post(ctx context.Context, e dispatch.Event) error {
	if a.channelID == "" {
		return nil
	}
	if _, err := a.api.ChannelMessageSendEmbed(a.channelID, AuditEmbed(e), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post audit event %s: %w", e.ID, err)
	}
	return nil
}

// AuditEmbed renders e.
func AuditEmbed(e dispatch.Event) *discordgo.MessageEmbed {
	s := e.Subject
	fields := []*discordgo.MessageEmbedField{
		{Name: "User", Value: userField(s.UserTag, s.UserID)},
		{Name: "Channel", Value: channelField(s.ChannelID), Inline: true},
		{Name: "Category", Value: orNA(string(e.Verdict.Category)), Inline: true},
		{Name: "Severity", Value: orNA(e.Decision.Severity.String()), Inline: true},
		{Name: "Action", Value: orNA(string(e.Decision.Action)), Inline: true},
		{Name: "Confidence", Value: strconv.FormatFloat(e.Verdict.Confidence, 'f', -1, 64), Inline: true},
		{Name: "Rationale", Value: orNA(e.Verdict.Rationale)},
	}
	if e.Result.Note != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Enforcement Note", Value: e.Result.Note})
	}
	if s.Content != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Content (preview)",
			Value: "```" + truncate(s.Content, previewLimit) + "```",
		})
	}
	if s.Link != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Link", Value: s.Link})
	}

	embed := &discordgo.MessageEmbed{
		Title:  "Kojo Moderation Event",
		Color:  severityColor(e.Decision.Severity),
		Fields: fields,
	}
	if e.ID != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Event " + e.ID}
	}
	if !e.At.IsZero() {
		embed.Timestamp = e.At.UTC().Format(time.RFC3339)
	}
	return embed
}

func severityColor(s moderation.Severity) int {
	switch s {
	case moderation.SeverityCritical:
		return colorCritical
	case moderation.SeverityHigh:
		return colorHigh
	case moderation.SeverityMedium:
		return colorMedium
	default:
		return colorLow
	}
}

func userField(tag, id string) string {
	switch {
	case tag != "":
		return fmt.Sprintf("%s (%s)", tag, id)
	case id != "":
		return id
	default:
		return "Unknown"
	}
}

func channelField(id string) string {
	if id == "" {
		return "Unknown"
	}
	return "<#" + id + ">"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
