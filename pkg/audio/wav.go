package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// ErrNotWAV is returned when a stream is not 16-bit PCM RIFF/WAVE.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM wav stream")

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, f Format) []byte {
	buf := make([]byte, wavHeaderSize+len(pcm))

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(f.Channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// WriteWAV writes pcm to path as a WAV file.
func WriteWAV(path string, pcm []byte, f Format) error {
	if err := os.WriteFile(path, EncodeWAV(pcm, f), 0o600); err != nil {
		return fmt.Errorf("audio: write wav %q: %w", path, err)
	}
	return nil
}

// ReadWAV reads a 16-bit PCM WAV file and returns its samples and format.
func ReadWAV(path string) ([]byte, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("audio: read wav: %w", err)
	}
	return DecodeWAV(bytes.NewReader(data))
}

// DecodeWAV parses a RIFF/WAVE stream. Chunks other than "fmt " and "data"
// are skipped.
func DecodeWAV(r io.Reader) ([]byte, Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, Format{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f      Format
		hasFmt bool
		hdr    [8]byte
	)
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, Format{}, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil || size < 16 {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if binary.LittleEndian.Uint16(body[0:2]) != 1 || binary.LittleEndian.Uint16(body[14:16]) != 16 {
				return nil, Format{}, ErrNotWAV
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, Format{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			pcm, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, Format{}, fmt.Errorf("audio: read wav data: %w", err)
			}
			return pcm, f, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, Format{}, fmt.Errorf("%w: truncated %q chunk", ErrNotWAV, id)
			}
		}
	}
}
