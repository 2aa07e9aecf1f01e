package discord

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/MrWong99/kojo/pkg/audio"
)

// ─── test helpers ─────────────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// newTestConnection creates a Connection without a real Discord voice
// connection. Packets are fed directly through handlePacket.
func newTestConnection(t *testing.T, maxUtterance time.Duration) (*Connection, *fakeClock) {
	t.Helper()
	vc := &discordgo.VoiceConnection{OpusRecv: make(chan *discordgo.Packet, 16)}
	c := newConnection(vc, "guild-1", "vc-1", maxUtterance)
	c.disconnectVC = func() error { return nil }
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c.now = clk.Now
	t.Cleanup(func() { _ = c.Disconnect() })
	return c, clk
}

// voicedPacket returns a real Opus packet that is not the silence marker.
func voicedPacket(t *testing.T) []byte {
	t.Helper()
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Voip)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	pcm := make([]int16, opusFrameSize*opusChannels)
	for i := range pcm {
		pcm[i] = int16((i % 64) * 400)
	}
	pkt, err := enc.Encode(pcm, opusFrameSize, 4000)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return pkt
}

func recvStart(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for speech start")
		return ""
	}
}

func expectNoStart(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case id := <-ch:
		t.Fatalf("unexpected speech start for %q", id)
	case <-time.After(50 * time.Millisecond):
	}
}

// ─── Platform tests ──────────────────────────────────────────────────────────

func TestNewPlatform(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{}
	p := New(s)
	if p.session != s {
		t.Error("session not stored correctly")
	}
	if p.maxUtterance != DefaultMaxUtterance {
		t.Errorf("maxUtterance = %v, want %v", p.maxUtterance, DefaultMaxUtterance)
	}
	if got := New(s, WithMaxUtterance(time.Second)).maxUtterance; got != time.Second {
		t.Errorf("WithMaxUtterance: got %v", got)
	}
}

// ─── Connection tests ─────────────────────────────────────────────────────────

func TestConnection_IDs(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 0)
	if c.GuildID() != "guild-1" || c.ChannelID() != "vc-1" {
		t.Errorf("ids = %q/%q", c.GuildID(), c.ChannelID())
	}
}

func TestConnection_SpeechStart(t *testing.T) {
	t.Parallel()

	c, clk := newTestConnection(t, 0)
	starts := make(chan string, 8)
	c.OnSpeechStart(func(userID string) { starts <- userID })

	voiced := voicedPacket(t)
	decoders := map[uint32]*opusDecoder{}

	// Unknown SSRC: dropped.
	c.handlePacket(&discordgo.Packet{SSRC: 7, Opus: voiced}, decoders)
	expectNoStart(t, starts)

	c.handleSpeaking(nil, &discordgo.VoiceSpeakingUpdate{UserID: "alice", SSRC: 7, Speaking: true})

	c.handlePacket(&discordgo.Packet{SSRC: 7, Opus: voiced}, decoders)
	if got := recvStart(t, starts); got != "alice" {
		t.Errorf("start user = %q, want alice", got)
	}

	// Continuous speech does not re-trigger.
	clk.Advance(20 * time.Millisecond)
	c.handlePacket(&discordgo.Packet{SSRC: 7, Opus: voiced}, decoders)
	expectNoStart(t, starts)

	// Silence frames never count as speech.
	clk.Advance(time.Second)
	c.handlePacket(&discordgo.Packet{SSRC: 7, Opus: silenceFrame}, decoders)
	expectNoStart(t, starts)

	// A voiced packet after a gap is a new utterance.
	c.handlePacket(&discordgo.Packet{SSRC: 7, Opus: voiced}, decoders)
	if got := recvStart(t, starts); got != "alice" {
		t.Errorf("second start user = %q, want alice", got)
	}
}

func TestConnection_SubscribeDeliversAndEndsOnSilence(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 0)
	c.handleSpeaking(nil, &discordgo.VoiceSpeakingUpdate{UserID: "bob", SSRC: 9})

	frames, err := c.Subscribe("bob", 60*time.Millisecond)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	decoders := map[uint32]*opusDecoder{}
	voiced := voicedPacket(t)
	for range 3 {
		c.handlePacket(&discordgo.Packet{SSRC: 9, Opus: voiced}, decoders)
	}

	var got []audio.AudioFrame
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case f, ok := <-frames:
			if !ok {
				done = true
				break
			}
			got = append(got, f)
		case <-timeout:
			t.Fatal("subscription did not close after silence window")
		}
	}
	if len(got) != 3 {
		t.Fatalf("frames = %d, want 3", len(got))
	}
	for _, f := range got {
		if f.SampleRate != opusSampleRate || f.Channels != opusChannels {
			t.Errorf("format = %d/%d", f.SampleRate, f.Channels)
		}
		if len(f.Data) != opusFrameSize*opusChannels*2 {
			t.Errorf("frame bytes = %d", len(f.Data))
		}
	}

	// The user can be subscribed again once the previous capture ended.
	if _, err := c.Subscribe("bob", time.Minute); err != nil {
		t.Errorf("re-subscribe: %v", err)
	}
}

func TestConnection_SubscribeTwice(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 0)
	if _, err := c.Subscribe("carol", time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Subscribe("carol", time.Minute); !errors.Is(err, audio.ErrSubscribed) {
		t.Errorf("err = %v, want ErrSubscribed", err)
	}
}

func TestConnection_MaxUtterance(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 40*time.Millisecond)
	frames, err := c.Subscribe("dave", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case _, ok := <-frames:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("max utterance did not end the subscription")
	}
}

func TestConnection_DisconnectClosesSubscriptions(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 0)
	frames, err := c.Subscribe("erin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := <-frames; ok {
		t.Error("subscription channel should be closed")
	}
	if _, err := c.Subscribe("erin", time.Hour); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Subscribe after Disconnect: err = %v, want ErrClosed", err)
	}
}

// TestConnection_ConcurrentDisconnect exercises Disconnect from multiple
// goroutines to verify thread safety (run with -race).
func TestConnection_ConcurrentDisconnect(t *testing.T) {
	t.Parallel()

	c, _ := newTestConnection(t, 0)
	go c.recvLoop()
	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			_ = c.Disconnect()
		})
	}
	wg.Wait()
}
