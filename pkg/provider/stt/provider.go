// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Kojo transcribes whole utterances: the voice capturer writes each
// utterance to a WAV file and hands the path to a Transcriber. Backends that
// stream (Deepgram) replay the file over their streaming API and collect the
// final results.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"strings"
)

// Transcriber converts a recorded utterance to text.
type Transcriber interface {
	// Transcribe returns the text spoken in the WAV file at wavPath. An empty
	// string with a nil error means nothing intelligible was said.
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// JoinSegments concatenates recognised segments with single spaces, dropping
// empty ones.
func JoinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
