package audio

import "time"

// AudioFrame is one chunk of 16-bit little-endian PCM captured from a speaker.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (48000 for Discord Opus).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the RTP timestamp converted to a duration.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM byte rate for 16-bit samples.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}
