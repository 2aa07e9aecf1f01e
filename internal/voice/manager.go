// Package voice keeps at most one listening session per guild and turns the
// speech heard in it into moderated transcripts.
//
// A [Manager] owns the per-guild session registry. Sessions are opened either
// automatically, when a human enters the configured target channel, or by a
// moderator command. Each session debounces speech-start events per speaker
// and hands accepted ones to a [Capturer], which records, transcribes and
// classifies the utterance.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/pkg/audio"
)

var (
	// ErrNoTarget is returned when no auto-join channel is configured or the
	// configured one cannot be found.
	ErrNoTarget = errors.New("voice: no target voice channel")

	// ErrSessionActive is returned by an automatic join while the bot is
	// already listening in another channel of the same guild.
	ErrSessionActive = errors.New("voice: a session is already active in this guild")
)

// Mode records how a session was opened.
type Mode int

const (
	// ModeAuto sessions follow the target channel's occupancy.
	ModeAuto Mode = iota
	// ModeManual sessions were opened by a moderator command.
	ModeManual
)

// String returns the mode name used in logs.
func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Session is one joined voice channel.
type Session struct {
	GuildID   string
	ChannelID string
	Mode      Mode
	StartedAt time.Time

	// Silence ends an utterance in this session.
	Silence time.Duration

	Conn      audio.Connection
	Debouncer *Debouncer

	closed atomic.Bool
}

// Closed reports whether the session has been torn down. Captures that
// finish after teardown discard their result.
func (s *Session) Closed() bool { return s.closed.Load() }

// Config holds the dependencies and tuning of a [Manager].
type Config struct {
	Platform audio.Platform
	Capturer *Capturer

	// Target is the auto-join channel.
	Target Target

	// Directory answers guild-state questions for auto join and leave.
	Directory Directory

	Debounce      time.Duration
	Silence       time.Duration
	ManualSilence time.Duration

	// BaseContext is the parent of every capture. Captures are not tied to
	// the session, so leaving a channel lets running captures finish.
	BaseContext context.Context

	Metrics *observe.Metrics
	Now     func() time.Time
}

// Manager is the per-guild voice session registry. All methods are safe
// for concurrent use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg Config
}

// NewManager returns a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// Join connects to channelID in guildID. An existing session in the same
// channel is returned as is. An existing session in another channel is
// replaced for [ModeManual] and reported as [ErrSessionActive] for
// [ModeAuto].
func (m *Manager) Join(ctx context.Context, guildID, channelID string, mode Mode) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.sessions[guildID]; ok {
		if cur.ChannelID == channelID {
			return cur, nil
		}
		if mode == ModeAuto {
			return cur, ErrSessionActive
		}
		m.teardownLocked(cur, "moved")
	}

	conn, err := m.cfg.Platform.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("voice: connect: %w", err)
	}

	silence := m.cfg.Silence
	if mode == ModeManual {
		silence = m.cfg.ManualSilence
	}
	s := &Session{
		GuildID:   guildID,
		ChannelID: channelID,
		Mode:      mode,
		StartedAt: m.cfg.Now(),
		Silence:   silence,
		Conn:      conn,
		Debouncer: NewDebouncer(m.cfg.Debounce, m.cfg.Now),
	}
	conn.OnSpeechStart(func(userID string) {
		if m.cfg.Capturer != nil {
			m.cfg.Capturer.Capture(m.cfg.BaseContext, s, userID)
		}
	})
	m.sessions[guildID] = s
	m.cfg.Metrics.ActiveVoiceSessions.Add(ctx, 1)

	slog.Info("voice: joined",
		"guild_id", guildID,
		"channel_id", channelID,
		"mode", mode.String(),
	)
	return s, nil
}

// Leave disconnects the session in guildID. It reports whether there was
// one.
func (m *Manager) Leave(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[guildID]
	if !ok {
		return false
	}
	m.teardownLocked(s, "requested")
	return true
}

// Session returns the active session in guildID, if any.
func (m *Manager) Session(guildID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close leaves every channel.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		m.teardownLocked(s, "shutdown")
	}
}

func (m *Manager) teardownLocked(s *Session, why string) {
	delete(m.sessions, s.GuildID)
	s.closed.Store(true)
	if err := s.Conn.Disconnect(); err != nil {
		slog.Warn("voice: disconnect failed", "guild_id", s.GuildID, "err", err)
	}
	m.cfg.Metrics.ActiveVoiceSessions.Add(context.Background(), -1)
	slog.Info("voice: left",
		"guild_id", s.GuildID,
		"channel_id", s.ChannelID,
		"reason", why,
		"duration", m.cfg.Now().Sub(s.StartedAt).Round(time.Second),
	)
}
