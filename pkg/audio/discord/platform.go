// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It turns the
// Opus packets Discord relays into per-speaker PCM subscriptions.
//
// The platform requires an active *discordgo.Session owned by the bot layer.
// Each call to [Platform.Connect] joins a voice channel self-muted and
// returns a listen-only [Connection].
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// DefaultMaxUtterance caps a single subscription regardless of silence.
const DefaultMaxUtterance = 30 * time.Second

// Option configures a Platform.
type Option func(*Platform)

// WithMaxUtterance overrides [DefaultMaxUtterance].
func WithMaxUtterance(d time.Duration) Option {
	return func(p *Platform) { p.maxUtterance = d }
}

// Platform implements [audio.Platform] using discordgo voice connections.
//
// Platform is safe for concurrent use.
type Platform struct {
	session      *discordgo.Session
	maxUtterance time.Duration
}

// New creates a Platform for the given session.
func New(session *discordgo.Session, opts ...Option) *Platform {
	p := &Platform{session: session, maxUtterance: DefaultMaxUtterance}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect joins the voice channel. The bot joins self-muted and undeafened so
// that it receives audio without transmitting any.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}
	vc, err := p.session.ChannelVoiceJoin(guildID, channelID, true, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	c := newConnection(vc, guildID, channelID, p.maxUtterance)
	vc.AddHandler(c.handleSpeaking)
	go c.recvLoop()
	return c, nil
}
