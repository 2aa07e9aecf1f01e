// Package mock provides a test double for the stt.Transcriber interface.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "what's your address"}
//	text, _ := tr.Transcribe(ctx, "/tmp/utt.wav")
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/kojo/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// WavPath is the file passed to Transcribe.
	WavPath string
	// Existed reports whether the file was present at call time.
	Existed bool
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns Text, Err.
func (t *Transcriber) Transcribe(_ context.Context, wavPath string) (string, error) {
	_, statErr := os.Stat(wavPath)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{WavPath: wavPath, Existed: statErr == nil})
	return t.Text, t.Err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Snapshot returns a copy of the recorded calls. Thread-safe.
func (t *Transcriber) Snapshot() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TranscribeCall, len(t.Calls))
	copy(out, t.Calls)
	return out
}
