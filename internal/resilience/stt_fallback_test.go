package resilience

import (
	"context"
	"errors"
	"testing"

	sttmock "github.com/MrWong99/kojo/pkg/provider/stt/mock"
)

func TestTranscriberFallback_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Transcriber{Text: "hello"}
	secondary := &sttmock.Transcriber{Text: "other"}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{})
	fb.AddFallback("secondary", secondary)

	text, err := fb.Transcribe(context.Background(), "/tmp/clip.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q, want hello", text)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestTranscriberFallback_Failover(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("whisper down")}
	secondary := &sttmock.Transcriber{Text: "from openai"}

	fb := NewTranscriberFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	text, err := fb.Transcribe(context.Background(), "/tmp/clip.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "from openai" {
		t.Fatalf("text = %q, want 'from openai'", text)
	}
	calls := secondary.Snapshot()
	if len(calls) != 1 || calls[0].WavPath != "/tmp/clip.wav" {
		t.Fatalf("secondary calls = %+v", calls)
	}
}

func TestTranscriberFallback_AllFail(t *testing.T) {
	fb := NewTranscriberFallback(&sttmock.Transcriber{Err: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &sttmock.Transcriber{Err: errors.New("b")})

	_, err := fb.Transcribe(context.Background(), "/tmp/clip.wav")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriberFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &sttmock.Transcriber{Err: errors.New("down")}
	secondary := &sttmock.Transcriber{Text: "ok"}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	for i := 0; i < 3; i++ {
		if _, err := fb.Transcribe(context.Background(), "/tmp/clip.wav"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1 before its breaker opened", primary.CallCount())
	}
	if got := fb.Breakers()[0].State(); got != StateOpen {
		t.Fatalf("primary breaker = %v, want open", got)
	}
}
