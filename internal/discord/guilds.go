package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/internal/dispatch"
	"github.com/MrWong99/kojo/internal/enforce"
	"github.com/MrWong99/kojo/internal/voice"
)

// API is the subset of the Discord REST API Kojo uses. *discordgo.Session
// implements it.
type API interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID, userID string, until *time.Time, options ...discordgo.RequestOption) error
}

// Guilds answers guild questions from the gateway state cache, falling back
// to REST for members the cache does not hold.
type Guilds struct {
	state *discordgo.State
	api   API
}

var (
	_ dispatch.Platform = (*Guilds)(nil)
	_ voice.Directory   = (*Guilds)(nil)
	_ voice.Members     = (*Guilds)(nil)
)

// NewGuilds returns a Guilds backed by state and api.
func NewGuilds(state *discordgo.State, api API) *Guilds {
	return &Guilds{state: state, api: api}
}

// DeleteMessage implements [dispatch.Platform].
func (g *Guilds) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := g.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message %s: %w", messageID, err)
	}
	return nil
}

// Member implements [dispatch.Platform].
func (g *Guilds) Member(ctx context.Context, guildID, userID string) (enforce.Member, error) {
	m, err := g.lookup(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	return g.adapt(guildID, m), nil
}

// IsHuman implements [voice.Members].
func (g *Guilds) IsHuman(ctx context.Context, guildID, userID string) (bool, error) {
	m, err := g.lookup(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	return !m.User.Bot, nil
}

// VoiceChannelExists implements [voice.Directory].
func (g *Guilds) VoiceChannelExists(guildID, channelID string) bool {
	c, err := g.state.Channel(channelID)
	if err != nil {
		return false
	}
	return c.GuildID == guildID && isVoice(c.Type)
}

// FindVoiceChannel implements [voice.Directory].
func (g *Guilds) FindVoiceChannel(guildID, name string) (string, bool) {
	guild, err := g.state.Guild(guildID)
	if err != nil {
		return "", false
	}
	g.state.RLock()
	defer g.state.RUnlock()
	for _, c := range guild.Channels {
		if c.Type == discordgo.ChannelTypeGuildVoice && strings.EqualFold(c.Name, name) {
			return c.ID, true
		}
	}
	return "", false
}

// Humans implements [voice.Directory]. Members missing from the cache count
// as humans.
func (g *Guilds) Humans(guildID, channelID string) int {
	guild, err := g.state.Guild(guildID)
	if err != nil {
		return 0
	}

	var users []string
	g.state.RLock()
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
			continue
		}
		users = append(users, vs.UserID)
	}
	g.state.RUnlock()

	n := 0
	for _, id := range users {
		if m, err := g.state.Member(guildID, id); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		n++
	}
	return n
}

// VoiceChannelOf returns the voice channel userID is connected to in
// guildID, or "".
func (g *Guilds) VoiceChannelOf(guildID, userID string) string {
	guild, err := g.state.Guild(guildID)
	if err != nil {
		return ""
	}
	g.state.RLock()
	defer g.state.RUnlock()
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// lookup returns the member from the state cache or, failing that, from
// REST. REST results are added to the cache.
func (g *Guilds) lookup(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := g.state.Member(guildID, userID); err == nil && m.User != nil {
		return m, nil
	}
	m, err := g.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetch member %s: %w", userID, err)
	}
	if m.User == nil {
		return nil, fmt.Errorf("discord: fetch member %s: no user in response", userID)
	}
	m.GuildID = guildID
	_ = g.state.MemberAdd(m)
	return m, nil
}

// adapt wraps m as an [enforce.Member] with capabilities computed from the
// cached guild and the bot's own member.
func (g *Guilds) adapt(guildID string, m *discordgo.Member) *Member {
	out := &Member{api: g.api, guildID: guildID, userID: m.User.ID}

	guild, err := g.state.Guild(guildID)
	if err != nil {
		return out
	}
	bot, err := g.state.Member(guildID, g.botUserID())
	if err != nil {
		return out
	}

	g.state.RLock()
	out.caps = capabilities(guild, bot, m)
	g.state.RUnlock()
	return out
}

func (g *Guilds) botUserID() string {
	g.state.RLock()
	defer g.state.RUnlock()
	if g.state.User == nil {
		return ""
	}
	return g.state.User.ID
}

func isVoice(t discordgo.ChannelType) bool {
	return t == discordgo.ChannelTypeGuildVoice || t == discordgo.ChannelTypeGuildStageVoice
}
