// Package voicecmd implements the moderator voice controls: the prefixed
// text commands (!joinvoice, !leavevoice) and the /voice slash command. Both
// drive the same session registry that auto join uses.
package voicecmd

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/MrWong99/kojo/internal/discord"
	"github.com/MrWong99/kojo/internal/voice"
)

// Replies sent back to the invoking member.
const (
	ReplyNotInVoice = "Join a voice channel first."
	ReplyJoined     = "🎧 Joined voice channel. Listening…"
	ReplyLeft       = "👋 Left the voice channel."
	ReplyNotJoined  = "I’m not in a voice channel."
	ReplyJoinFailed = "Couldn’t join voice: "
)

// Sessions is the voice session registry. [*voice.Manager] implements it.
type Sessions interface {
	Join(ctx context.Context, guildID, channelID string, mode voice.Mode) (*voice.Session, error)
	Leave(guildID string) bool
}

// Pattern pairs a compiled regex with the action run when a message
// matches it.
type Pattern struct {
	// Name is a human-readable label for logging.
	Name  string
	Regex *regexp.Regexp

	// Action returns the reply for inv.
	Action func(ctx context.Context, s Sessions, inv discord.Invocation) string
}

// Filter matches guild messages against the text command patterns.
//
// Filter is stateless and safe for concurrent use.
type Filter struct {
	patterns []Pattern
	sessions Sessions
}

var _ discord.TextCommands = (*Filter)(nil)

// New creates a Filter for commands starting with prefix (e.g. "!").
func New(prefix string, sessions Sessions) *Filter {
	return &Filter{
		patterns: defaultPatterns(prefix),
		sessions: sessions,
	}
}

// Check implements [discord.TextCommands]. Commands match on the start of
// the message, so "!joinvoice please" joins as well.
func (f *Filter) Check(ctx context.Context, inv discord.Invocation) (string, bool) {
	text := strings.TrimSpace(inv.Content)
	if text == "" || inv.GuildID == "" {
		return "", false
	}

	for _, p := range f.patterns {
		if !p.Regex.MatchString(text) {
			continue
		}
		reply := p.Action(ctx, f.sessions, inv)
		slog.Info("voicecmd: command executed",
			"pattern", p.Name,
			"guild_id", inv.GuildID,
			"user_id", inv.UserID,
			"result", reply,
		)
		return reply, true
	}
	return "", false
}

func defaultPatterns(prefix string) []Pattern {
	return []Pattern{
		{
			Name:  "joinvoice",
			Regex: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix+"joinvoice")),
			Action: func(ctx context.Context, s Sessions, inv discord.Invocation) string {
				return Join(ctx, s, inv.GuildID, inv.VoiceChannelID)
			},
		},
		{
			Name:  "leavevoice",
			Regex: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix+"leavevoice")),
			Action: func(_ context.Context, s Sessions, inv discord.Invocation) string {
				return Leave(s, inv.GuildID)
			},
		},
	}
}

// Join opens a manual session in channelID and returns the reply for the
// invoking member. An empty channelID means the member is not in voice.
func Join(ctx context.Context, s Sessions, guildID, channelID string) string {
	if channelID == "" {
		return ReplyNotInVoice
	}
	if _, err := s.Join(ctx, guildID, channelID, voice.ModeManual); err != nil {
		slog.Warn("voicecmd: join failed", "guild_id", guildID, "channel_id", channelID, "err", err)
		return ReplyJoinFailed + err.Error()
	}
	return ReplyJoined
}

// Leave closes the guild's session and returns the reply.
func Leave(s Sessions, guildID string) string {
	if s.Leave(guildID) {
		return ReplyLeft
	}
	return ReplyNotJoined
}
