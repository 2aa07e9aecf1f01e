// Package mock provides in-memory mock implementations of the [audio.Platform]
// and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := mock.NewConnection("guild-1", "vc-1")
//	platform := &mock.Platform{ConnectResult: conn}
//	got, _ := platform.Connect(ctx, "guild-1", "vc-1")
//	conn.Speak("user-1", frame) // fires the speech callback, queues the frame
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kojo/pkg/audio"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// SubscribeCall records one Subscribe invocation.
type SubscribeCall struct {
	UserID  string
	Silence time.Duration
}

// Connection is a mock implementation of [audio.Connection].
//
// Frames queued with [Connection.Speak] are delivered to the next
// subscription for that user, after which the subscription channel is closed
// as if the silence window had elapsed.
type Connection struct {
	mu sync.Mutex

	Guild   string
	Channel string

	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error

	// DisconnectError is returned by Disconnect.
	DisconnectError error

	SubscribeCalls      []SubscribeCall
	CallCountDisconnect int

	speechCb func(userID string)
	pending  map[string][]audio.AudioFrame
}

// NewConnection returns a Connection for the given IDs.
func NewConnection(guildID, channelID string) *Connection {
	return &Connection{Guild: guildID, Channel: channelID}
}

// GuildID implements [audio.Connection].
func (c *Connection) GuildID() string { return c.Guild }

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string { return c.Channel }

// OnSpeechStart implements [audio.Connection].
func (c *Connection) OnSpeechStart(cb func(userID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speechCb = cb
}

// Subscribe implements [audio.Connection]. The returned channel yields any
// frames queued for userID and is then closed.
func (c *Connection) Subscribe(userID string, silence time.Duration) (<-chan audio.AudioFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SubscribeCalls = append(c.SubscribeCalls, SubscribeCall{UserID: userID, Silence: silence})
	if c.SubscribeError != nil {
		return nil, c.SubscribeError
	}
	frames := c.pending[userID]
	delete(c.pending, userID)

	ch := make(chan audio.AudioFrame, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return ch, nil
}

// Disconnect implements [audio.Connection].
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// Queue stores frames for the next subscription of userID without firing
// the speech callback.
func (c *Connection) Queue(userID string, frames ...audio.AudioFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		c.pending = make(map[string][]audio.AudioFrame)
	}
	c.pending[userID] = append(c.pending[userID], frames...)
}

// Speak queues frames for userID and invokes the speech callback
// synchronously, so the caller observes its effects on return.
func (c *Connection) Speak(userID string, frames ...audio.AudioFrame) {
	c.Queue(userID, frames...)
	c.mu.Lock()
	cb := c.speechCb
	c.mu.Unlock()
	if cb != nil {
		cb(userID)
	}
}

// Subscribes returns a snapshot of the recorded Subscribe calls.
func (c *Connection) Subscribes() []SubscribeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SubscribeCall, len(c.SubscribeCalls))
	copy(out, c.SubscribeCalls)
	return out
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

var _ audio.Connection = (*Connection)(nil)

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records one Connect invocation.
type ConnectCall struct {
	GuildID   string
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by Connect. When nil, a fresh Connection for
	// the requested IDs is created.
	ConnectResult audio.Connection

	// ConnectError, if set, is returned by Connect.
	ConnectError error

	ConnectCalls []ConnectCall

	// Created holds the connections made when ConnectResult is nil.
	Created []*Connection
}

// Connect implements [audio.Platform].
func (p *Platform) Connect(_ context.Context, guildID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{GuildID: guildID, ChannelID: channelID})
	if p.ConnectError != nil {
		return nil, p.ConnectError
	}
	if p.ConnectResult != nil {
		return p.ConnectResult, nil
	}
	c := NewConnection(guildID, channelID)
	p.Created = append(p.Created, c)
	return c, nil
}

// Connects returns a snapshot of the recorded Connect calls.
func (p *Platform) Connects() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnectCall, len(p.ConnectCalls))
	copy(out, p.ConnectCalls)
	return out
}

var _ audio.Platform = (*Platform)(nil)
