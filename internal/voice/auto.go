package voice

import (
	"context"
	"errors"
	"log/slog"
)

// Target names the auto-join voice channel. ChannelID wins over
// ChannelName; the name is matched case-insensitively.
type Target struct {
	ChannelID   string
	ChannelName string
}

// Configured reports whether any target is set.
func (t Target) Configured() bool { return t.ChannelID != "" || t.ChannelName != "" }

// Directory answers questions about the current guild state, normally from
// the gateway cache.
type Directory interface {
	// VoiceChannelExists reports whether channelID is a voice channel of
	// guildID.
	VoiceChannelExists(guildID, channelID string) bool

	// FindVoiceChannel returns the ID of the voice channel called name,
	// compared case-insensitively.
	FindVoiceChannel(guildID, name string) (string, bool)

	// Humans returns the number of non-bot members connected to channelID.
	Humans(guildID, channelID string) int
}

// StateChange is a member's voice channel transition. Before and After are
// channel IDs; empty means not connected.
type StateChange struct {
	GuildID string
	UserID  string
	Bot     bool
	Before  string
	After   string
}

// ResolveTarget returns the target channel ID in guildID.
func (m *Manager) ResolveTarget(guildID string) (string, error) {
	t := m.cfg.Target
	if m.cfg.Directory == nil || !t.Configured() {
		return "", ErrNoTarget
	}
	if t.ChannelID != "" {
		if !m.cfg.Directory.VoiceChannelExists(guildID, t.ChannelID) {
			return "", ErrNoTarget
		}
		return t.ChannelID, nil
	}
	id, ok := m.cfg.Directory.FindVoiceChannel(guildID, t.ChannelName)
	if !ok {
		return "", ErrNoTarget
	}
	return id, nil
}

// HandleStateChange joins the target channel when a human enters it and
// leaves a channel that no human occupies any more.
func (m *Manager) HandleStateChange(ctx context.Context, c StateChange) {
	entered := c.After != "" && c.After != c.Before
	if entered && !c.Bot {
		m.ensureJoined(ctx, c.GuildID, c.After)
		if c.Before == "" {
			return
		}
	}
	m.leaveIfEmpty(c.GuildID)
}

func (m *Manager) ensureJoined(ctx context.Context, guildID, channelID string) {
	target, err := m.ResolveTarget(guildID)
	if err != nil {
		slog.Info("voice: no target voice channel resolved", "guild_id", guildID)
		return
	}
	if channelID != target {
		return
	}
	if _, err := m.Join(ctx, guildID, target, ModeAuto); err != nil {
		if errors.Is(err, ErrSessionActive) {
			slog.Debug("voice: already listening elsewhere", "guild_id", guildID)
			return
		}
		slog.Error("voice: auto join failed", "guild_id", guildID, "channel_id", target, "err", err)
	}
}

// leaveIfEmpty tears the guild's session down when its channel is gone or
// has no human left in it.
func (m *Manager) leaveIfEmpty(guildID string) {
	s, ok := m.Session(guildID)
	if !ok || m.cfg.Directory == nil {
		return
	}

	reason := ""
	switch {
	case !m.cfg.Directory.VoiceChannelExists(guildID, s.ChannelID):
		reason = "channel missing"
	case m.cfg.Directory.Humans(guildID, s.ChannelID) == 0:
		reason = "no humans"
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[guildID]; ok && cur == s {
		m.teardownLocked(s, reason)
	}
}
