// Package mock provides a test double for the enforce.Member interface.
//
// Capabilities default to false; set the Can* fields to grant them. Every
// sanction is recorded in Calls so tests can assert which rung of a fallback
// chain ran.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/kojo/internal/enforce"
)

// Call records one sanction applied to the member.
type Call struct {
	// Kind is "ban", "kick" or "timeout".
	Kind     string
	Reason   string
	Duration time.Duration
}

// Member is a mock implementation of enforce.Member.
type Member struct {
	mu sync.Mutex

	UserID     string
	CanBan     bool
	CanKick    bool
	CanTimeout bool

	// BanErr, KickErr and TimeoutErr are returned by the matching method.
	BanErr     error
	KickErr    error
	TimeoutErr error

	calls []Call
}

var _ enforce.Member = (*Member)(nil)

// ID implements enforce.Member.
func (m *Member) ID() string { return m.UserID }

// Can implements enforce.Member.
func (m *Member) Can(c enforce.Capability) bool {
	switch c {
	case enforce.CapBan:
		return m.CanBan
	case enforce.CapKick:
		return m.CanKick
	case enforce.CapTimeout:
		return m.CanTimeout
	}
	return false
}

// Ban implements enforce.Member.
func (m *Member) Ban(_ context.Context, reason string) error {
	m.record(Call{Kind: "ban", Reason: reason})
	return m.BanErr
}

// Kick implements enforce.Member.
func (m *Member) Kick(_ context.Context, reason string) error {
	m.record(Call{Kind: "kick", Reason: reason})
	return m.KickErr
}

// Timeout implements enforce.Member.
func (m *Member) Timeout(_ context.Context, d time.Duration, reason string) error {
	m.record(Call{Kind: "timeout", Reason: reason, Duration: d})
	return m.TimeoutErr
}

func (m *Member) record(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns a copy of the recorded sanctions.
func (m *Member) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
