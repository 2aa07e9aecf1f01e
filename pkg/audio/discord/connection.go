package discord

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/kojo/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

const (
	subscriptionBuffer = 256

	// speechGap is the packet gap after which the next voiced packet from the
	// same SSRC counts as a new utterance.
	speechGap = 250 * time.Millisecond
)

// subscription is one in-flight capture for a single speaker.
type subscription struct {
	ch      chan audio.AudioFrame
	silence time.Duration
	idle    *time.Timer
	limit   *time.Timer
	closed  bool
}

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. Opus packets are attributed to users through
// the SSRC announced in speaking updates and decoded only while that user
// has an open subscription.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc           *discordgo.VoiceConnection
	guildID      string
	channelID    string
	maxUtterance time.Duration

	mu         sync.Mutex
	ssrcUser   map[uint32]string
	lastPacket map[uint32]time.Time
	subs       map[string]*subscription
	speechCb   func(userID string)

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the voice connection. Overridden in tests.
	disconnectVC func() error
	now          func() time.Time
}

func newConnection(vc *discordgo.VoiceConnection, guildID, channelID string, maxUtterance time.Duration) *Connection {
	return &Connection{
		vc:           vc,
		guildID:      guildID,
		channelID:    channelID,
		maxUtterance: maxUtterance,
		ssrcUser:     make(map[uint32]string),
		lastPacket:   make(map[uint32]time.Time),
		subs:         make(map[string]*subscription),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
		now:          time.Now,
	}
}

// GuildID implements [audio.Connection].
func (c *Connection) GuildID() string { return c.guildID }

// ChannelID implements [audio.Connection].
func (c *Connection) ChannelID() string { return c.channelID }

// OnSpeechStart implements [audio.Connection].
func (c *Connection) OnSpeechStart(cb func(userID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speechCb = cb
}

// Subscribe implements [audio.Connection]. Frames are 48 kHz stereo PCM.
func (c *Connection) Subscribe(userID string, silence time.Duration) (<-chan audio.AudioFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return nil, audio.ErrClosed
	default:
	}
	if _, ok := c.subs[userID]; ok {
		return nil, audio.ErrSubscribed
	}

	s := &subscription{
		ch:      make(chan audio.AudioFrame, subscriptionBuffer),
		silence: silence,
	}
	s.idle = time.AfterFunc(silence, func() { c.endSubscription(userID, s) })
	if c.maxUtterance > 0 {
		s.limit = time.AfterFunc(c.maxUtterance, func() { c.endSubscription(userID, s) })
	}
	c.subs[userID] = s
	return s.ch, nil
}

// Disconnect implements [audio.Connection].
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		for userID, s := range c.subs {
			c.closeLocked(userID, s)
		}
		c.mu.Unlock()

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// handleSpeaking records the SSRC of each speaker so packets can be
// attributed to a user ID.
func (c *Connection) handleSpeaking(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
	if vs == nil || vs.UserID == "" {
		return
	}
	c.mu.Lock()
	c.ssrcUser[uint32(vs.SSRC)] = vs.UserID
	c.mu.Unlock()
}

// recvLoop reads Opus packets until the connection is closed.
func (c *Connection) recvLoop() {
	decoders := make(map[uint32]*opusDecoder)
	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt != nil {
				c.handlePacket(pkt, decoders)
			}
		}
	}
}

func (c *Connection) handlePacket(pkt *discordgo.Packet, decoders map[uint32]*opusDecoder) {
	silent := isSilence(pkt.Opus)

	c.mu.Lock()
	userID, known := c.ssrcUser[pkt.SSRC]
	if !known {
		c.mu.Unlock()
		return
	}
	started := false
	if !silent {
		now := c.now()
		last, seen := c.lastPacket[pkt.SSRC]
		started = !seen || now.Sub(last) > speechGap
		c.lastPacket[pkt.SSRC] = now
	}
	sub := c.subs[userID]
	cb := c.speechCb
	c.mu.Unlock()

	if started && cb != nil {
		go cb(userID)
	}
	if sub == nil || silent {
		return
	}

	dec, ok := decoders[pkt.SSRC]
	if !ok {
		var err error
		if dec, err = newOpusDecoder(); err != nil {
			slog.Error("discord: failed to create opus decoder", "user_id", userID, "error", err)
			return
		}
		decoders[pkt.SSRC] = dec
	}
	pcm, err := dec.decode(pkt.Opus)
	if err != nil {
		slog.Warn("discord: opus decode error", "user_id", userID, "error", err)
		return
	}

	frame := audio.AudioFrame{
		Data:       pcm,
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		Timestamp:  time.Duration(pkt.Timestamp) * time.Second / time.Duration(opusSampleRate),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if sub.closed {
		return
	}
	select {
	case sub.ch <- frame:
	default:
		// Subscriber fell behind; drop rather than stall the receive loop.
	}
	sub.idle.Reset(sub.silence)
}

func (c *Connection) endSubscription(userID string, s *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked(userID, s)
}

// closeLocked must be called with c.mu held.
func (c *Connection) closeLocked(userID string, s *subscription) {
	if s.closed {
		return
	}
	s.closed = true
	s.idle.Stop()
	if s.limit != nil {
		s.limit.Stop()
	}
	close(s.ch)
	if c.subs[userID] == s {
		delete(c.subs, userID)
	}
}
