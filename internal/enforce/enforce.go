// Package enforce applies a decided [moderation.Action] to a guild member.
//
// Each punitive action is an ordered list of steps. A step names the
// capability it needs and the sanction it performs; the [Executor] runs the
// first step whose capability the member allows and reports which fallback,
// if any, was taken. Platform errors never escape: they are reported as an
// unapplied [Result] with the error text as its note.
package enforce

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/kojo/internal/moderation"
)

// ReasonPrefix is prepended to every reason sent to the platform.
const ReasonPrefix = "Kojo: "

// Capability is a sanction the bot may or may not be able to apply to a
// given member, e.g. because of role hierarchy.
type Capability int

const (
	CapBan Capability = iota
	CapKick
	CapTimeout
)

// String returns the capability name used in logs.
func (c Capability) String() string {
	switch c {
	case CapBan:
		return "ban"
	case CapKick:
		return "kick"
	case CapTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Member is the platform-side target of enforcement.
type Member interface {
	// ID returns the platform user ID.
	ID() string

	// Can reports whether the bot is able to apply the sanction.
	Can(c Capability) bool

	Ban(ctx context.Context, reason string) error
	Kick(ctx context.Context, reason string) error
	Timeout(ctx context.Context, d time.Duration, reason string) error
}

// Result records whether a sanction took effect.
type Result struct {
	Applied bool
	// Note explains a fallback, or why nothing was applied.
	Note string
}

// Step is one rung of a fallback chain.
type Step struct {
	Needs Capability
	// Note is reported when this step is the one that applied. Empty for
	// the primary step.
	Note  string
	Apply func(ctx context.Context, m Member, reason string) error
}

// Chain is the ordered list of steps for one action plus the note reported
// when no step is possible.
type Chain struct {
	Steps      []Step
	Impossible string
}

func ban(ctx context.Context, m Member, reason string) error  { return m.Ban(ctx, reason) }
func kick(ctx context.Context, m Member, reason string) error { return m.Kick(ctx, reason) }

func timeout(d time.Duration) func(context.Context, Member, string) error {
	return func(ctx context.Context, m Member, reason string) error {
		return m.Timeout(ctx, d, reason)
	}
}

// DefaultChains returns the fallback chains for each punitive action.
func DefaultChains() map[moderation.Action]Chain {
	return map[moderation.Action]Chain{
		moderation.ActionBan: {
			Steps: []Step{
				{Needs: CapBan, Apply: ban},
				{Needs: CapKick, Note: "kick fallback", Apply: kick},
				{Needs: CapTimeout, Note: "timeout fallback", Apply: timeout(time.Hour)},
			},
			Impossible: "not bannable/kickable/moderatable",
		},
		moderation.ActionKick: {
			Steps: []Step{
				{Needs: CapKick, Apply: kick},
				{Needs: CapTimeout, Note: "timeout fallback", Apply: timeout(time.Hour)},
			},
			Impossible: "not kickable/moderatable",
		},
		moderation.ActionTimeout1h: {
			Steps:      []Step{{Needs: CapTimeout, Apply: timeout(time.Hour)}},
			Impossible: "not moderatable",
		},
		moderation.ActionTimeout10m: {
			Steps:      []Step{{Needs: CapTimeout, Apply: timeout(10 * time.Minute)}},
			Impossible: "not moderatable",
		},
	}
}

// Option configures an [Executor].
type Option func(*Executor)

// WithChain replaces the chain used for one action.
func WithChain(a moderation.Action, c Chain) Option {
	return func(e *Executor) { e.chains[a] = c }
}

// WithObserver registers a callback invoked after every enforcement attempt,
// e.g. to record metrics.
func WithObserver(fn func(action moderation.Action, r Result)) Option {
	return func(e *Executor) { e.observe = fn }
}

// Executor runs fallback chains. It is safe for concurrent use.
type Executor struct {
	chains  map[moderation.Action]Chain
	observe func(moderation.Action, Result)
}

// NewExecutor returns an Executor using [DefaultChains].
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{chains: DefaultChains()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Enforce applies action to m. Actions without a chain (delete, warn, allow)
// need nothing from the member and are always reported as applied. A nil
// member cannot satisfy any capability.
func (e *Executor) Enforce(ctx context.Context, m Member, action moderation.Action, reason string) Result {
	r := e.enforce(ctx, m, action, reason)
	if e.observe != nil {
		e.observe(action, r)
	}
	return r
}

func (e *Executor) enforce(ctx context.Context, m Member, action moderation.Action, reason string) Result {
	chain, ok := e.chains[action]
	if !ok {
		return Result{Applied: true}
	}
	if m == nil {
		return Result{Applied: false, Note: chain.Impossible}
	}

	full := ReasonPrefix + reason
	for _, step := range chain.Steps {
		if !m.Can(step.Needs) {
			continue
		}
		if err := step.Apply(ctx, m, full); err != nil {
			slog.Warn("enforce: sanction failed",
				"user_id", m.ID(),
				"action", string(action),
				"capability", step.Needs.String(),
				"err", err,
			)
			return Result{Applied: false, Note: err.Error()}
		}
		slog.Info("enforce: sanction applied",
			"user_id", m.ID(),
			"action", string(action),
			"capability", step.Needs.String(),
			"note", step.Note,
		)
		return Result{Applied: true, Note: step.Note}
	}
	return Result{Applied: false, Note: chain.Impossible}
}
