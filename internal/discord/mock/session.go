// Package mock provides test doubles for the Discord REST surface.
//
// InteractionResponder implements discord.Responder and API implements
// discord.API. Both record every call for assertions and are safe for
// concurrent use.
package mock

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	mu sync.Mutex

	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// Err is returned by InteractionRespond and FollowupMessageCreate
	// when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *InteractionResponder) LastFollowUp() *discordgo.WebhookParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// Call records one REST call made through API.
type Call struct {
	// Method is the discordgo method name, e.g. "GuildBanCreateWithReason".
	Method    string
	GuildID   string
	ChannelID string
	UserID    string
	MessageID string
	Reason    string
	Content   string
	Embed     *discordgo.MessageEmbed
	Until     *time.Time
}

// API is a mock of the REST calls Kojo makes.
type API struct {
	mu sync.Mutex

	// Members is returned by GuildMember, keyed by user ID.
	Members map[string]*discordgo.Member

	// Err is returned by every call when non-nil.
	Err error

	calls []Call
}

func (a *API) record(c Call) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, c)
	return a.Err
}

// Calls returns a copy of the recorded calls.
func (a *API) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallsTo returns the recorded calls of one method.
func (a *API) CallsTo(method string) []Call {
	var out []Call
	for _, c := range a.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ChannelMessageSendEmbed records the embed.
func (a *API) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := a.record(Call{Method: "ChannelMessageSendEmbed", ChannelID: channelID, Embed: embed}); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "mock-embed", ChannelID: channelID}, nil
}

// ChannelMessageSendReply records the reply.
func (a *API) ChannelMessageSendReply(channelID, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	c := Call{Method: "ChannelMessageSendReply", ChannelID: channelID, Content: content}
	if ref != nil {
		c.MessageID = ref.MessageID
	}
	if err := a.record(c); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "mock-reply", ChannelID: channelID}, nil
}

// ChannelMessageDelete records the deletion.
func (a *API) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	return a.record(Call{Method: "ChannelMessageDelete", ChannelID: channelID, MessageID: messageID})
}

// GuildMember returns Members[userID], or discordgo.ErrStateNotFound.
func (a *API) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if err := a.record(Call{Method: "GuildMember", GuildID: guildID, UserID: userID}); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.Members[userID]
	if !ok {
		return nil, discordgo.ErrStateNotFound
	}
	cp := *m
	return &cp, nil
}

// GuildBanCreateWithReason records the ban.
func (a *API) GuildBanCreateWithReason(guildID, userID, reason string, _ int, _ ...discordgo.RequestOption) error {
	return a.record(Call{Method: "GuildBanCreateWithReason", GuildID: guildID, UserID: userID, Reason: reason})
}

// GuildMemberDeleteWithReason records the kick.
func (a *API) GuildMemberDeleteWithReason(guildID, userID, reason string, _ ...discordgo.RequestOption) error {
	return a.record(Call{Method: "GuildMemberDeleteWithReason", GuildID: guildID, UserID: userID, Reason: reason})
}

// GuildMemberTimeout records the timeout. The audit reason travels as a
// request option and is not captured.
func (a *API) GuildMemberTimeout(guildID, userID string, until *time.Time, _ ...discordgo.RequestOption) error {
	return a.record(Call{Method: "GuildMemberTimeout", GuildID: guildID, UserID: userID, Until: until})
}
