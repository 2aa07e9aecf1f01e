package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/pkg/audio"
	"github.com/MrWong99/kojo/pkg/provider/stt"
)

// minTranscriptLen is the length a trimmed transcript must exceed to be
// classified. Shorter ones are treated as nothing said.
const minTranscriptLen = 2

// captureFormat is used when a subscription delivers no format information.
var captureFormat = audio.Format{SampleRate: 48000, Channels: 2}

// Capture outcomes, recorded as the "status" metric attribute.
const (
	StatusDebounced = "debounced"
	StatusSkipped   = "skipped"
	StatusBusy      = "busy"
	StatusEmpty     = "empty"
	StatusFailed    = "failed"
	StatusSilent    = "silent"
	StatusClean     = "clean"
	StatusDiscarded = "discarded"
	StatusFlagged   = "flagged"
)

// Utterance is a transcribed capture.
type Utterance struct {
	GuildID   string
	ChannelID string
	UserID    string
	Text      string
}

// TextClassifier classifies a transcript.
type TextClassifier interface {
	Text(ctx context.Context, text, origin string) moderation.Verdict
}

// Members tells humans from bots.
type Members interface {
	// IsHuman reports whether userID is a non-bot member of guildID. An
	// error means the member could not be resolved.
	IsHuman(ctx context.Context, guildID, userID string) (bool, error)
}

// Moderator acts on a flagged utterance.
type Moderator interface {
	ModerateUtterance(ctx context.Context, u Utterance, v moderation.Verdict)
}

// Capturer records one utterance per accepted speech start, transcribes it
// and moderates the transcript.
type Capturer struct {
	Transcriber stt.Transcriber
	Classifier  TextClassifier
	Members     Members
	Moderator   Moderator

	// TempDir holds the WAV files while they are transcribed. Empty uses
	// [os.TempDir].
	TempDir string

	Metrics *observe.Metrics
}

// Capture handles a speech start by userID in s. It blocks until the
// utterance has been processed and returns the outcome.
func (c *Capturer) Capture(ctx context.Context, s *Session, userID string) string {
	status := c.capture(ctx, s, userID)
	c.metrics().RecordVoiceCapture(ctx, status)
	return status
}

func (c *Capturer) capture(ctx context.Context, s *Session, userID string) string {
	if !s.Debouncer.Allow(userID) {
		return StatusDebounced
	}
	log := observe.Logger(ctx).With("guild_id", s.GuildID, "user_id", userID)

	if c.Members != nil {
		human, err := c.Members.IsHuman(ctx, s.GuildID, userID)
		if err != nil {
			log.Debug("voice: speaker not resolvable", "err", err)
			return StatusSkipped
		}
		if !human {
			return StatusSkipped
		}
	}

	frames, err := s.Conn.Subscribe(userID, s.Silence)
	if err != nil {
		if errors.Is(err, audio.ErrSubscribed) {
			return StatusBusy
		}
		log.Warn("voice: subscribe failed", "err", err)
		return StatusFailed
	}

	pcm, format := collect(frames)
	if len(pcm) == 0 {
		return StatusEmpty
	}

	text, err := c.transcribe(ctx, s, userID, pcm, format)
	if err != nil {
		log.Error("voice: transcription failed", "err", err)
		return StatusFailed
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= minTranscriptLen {
		return StatusSilent
	}

	v := c.Classifier.Text(ctx, text, "voice_channel="+s.ChannelID)
	if !v.Flagged() {
		return StatusClean
	}
	if s.Closed() {
		log.Info("voice: session ended during capture, discarding result", "category", string(v.Category))
		return StatusDiscarded
	}
	c.Moderator.ModerateUtterance(ctx, Utterance{
		GuildID:   s.GuildID,
		ChannelID: s.ChannelID,
		UserID:    userID,
		Text:      text,
	}, v)
	return StatusFlagged
}

// transcribe writes pcm to a temporary WAV file, transcribes it and removes
// the file.
func (c *Capturer) transcribe(ctx context.Context, s *Session, userID string, pcm []byte, f audio.Format) (string, error) {
	tmp, err := os.CreateTemp(c.TempDir, fmt.Sprintf("kojo_vc_%s_%s_*.wav", s.GuildID, userID))
	if err != nil {
		return "", fmt.Errorf("voice: temp file: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := audio.WriteWAV(path, pcm, f); err != nil {
		return "", fmt.Errorf("voice: write wav: %w", err)
	}

	start := time.Now()
	text, err := c.Transcriber.Transcribe(ctx, path)
	c.metrics().TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	return text, err
}

func (c *Capturer) metrics() *observe.Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return observe.DefaultMetrics()
}

// collect drains frames into one PCM buffer. The format of the first frame
// applies to the whole utterance.
func collect(frames <-chan audio.AudioFrame) ([]byte, audio.Format) {
	var pcm []byte
	format := captureFormat
	first := true
	for fr := range frames {
		if first && fr.SampleRate > 0 && fr.Channels > 0 {
			format = audio.Format{SampleRate: fr.SampleRate, Channels: fr.Channels}
		}
		first = false
		pcm = append(pcm, fr.Data...)
	}
	return pcm, format
}
