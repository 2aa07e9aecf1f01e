// Package audio defines the interfaces and helpers for receiving speech from
// voice channels.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice channel and returns a [Connection].
//   - [Connection] reports when a participant starts speaking and hands out
//     per-participant PCM subscriptions that end after a silence window.
//
// Kojo only listens, so a Connection has no output side. Platform adapters
// live in sub-packages (e.g., audio/discord).
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrSubscribed is returned by [Connection.Subscribe] when a capture for the
// same participant is still running.
var ErrSubscribed = errors.New("audio: participant already subscribed")

// ErrClosed is returned by [Connection.Subscribe] after Disconnect.
var ErrClosed = errors.New("audio: connection closed")

// Connection represents an active, listen-only session on a voice channel.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// GuildID returns the guild the voice channel belongs to.
	GuildID() string

	// ChannelID returns the voice channel this connection is joined to.
	ChannelID() string

	// OnSpeechStart registers cb to be called whenever a participant begins a
	// new utterance. Only one callback may be registered; later calls replace
	// it. The callback runs on its own goroutine.
	OnSpeechStart(cb func(userID string))

	// Subscribe returns a channel of decoded PCM frames spoken by userID. The
	// channel is closed once no audio has arrived for the silence window, when
	// the connection's maximum utterance length is reached, or on Disconnect.
	Subscribe(userID string, silence time.Duration) (<-chan AudioFrame, error)

	// Disconnect leaves the voice channel and closes every open subscription.
	// It is safe to call more than once.
	Disconnect() error
}

// Platform joins voice channels.
type Platform interface {
	// Connect joins channelID in guildID. ctx bounds the join handshake only.
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}
