package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/dispatch"
)

// MessageFrom translates a gateway message. The author's member, when the
// gateway delivered it, is adapted through g so enforcement skips the
// lookup.
func MessageFrom(g *Guilds, m *discordgo.Message) dispatch.Message {
	out := dispatch.Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
		Link:      messageLink(m),
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorTag = m.Author.String()
		out.AuthorBot = m.Author.Bot
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, dispatch.Attachment{
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
		})
	}
	if m.Member != nil && m.GuildID != "" && m.Author != nil && g != nil {
		member := *m.Member
		member.User = m.Author
		member.GuildID = m.GuildID
		out.Member = g.adapt(m.GuildID, &member)
	}
	return out
}

func messageLink(m *discordgo.Message) string {
	if m.ID == "" || m.ChannelID == "" {
		return ""
	}
	guild := m.GuildID
	if guild == "" {
		guild = "@me"
	}
	return "https://discord.com/channels/" + guild + "/" + m.ChannelID + "/" + m.ID
}
