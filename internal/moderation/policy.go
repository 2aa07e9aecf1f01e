package moderation

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// DefaultLowConfidenceThreshold is the confidence below which a verdict that
// claims the content is safe is overridden to a delete.
const DefaultLowConfidenceThreshold = 0.55

// ReasonLowConfidence is the [Decision.Reason] set by the low-confidence
// override.
const ReasonLowConfidence = "low_confidence"

// Decision is the authoritative outcome of resolving a [Verdict] against a
// [Policy].
type Decision struct {
	Severity Severity
	Action   Action
	// Reason is only set by the low-confidence override.
	Reason string
}

// PolicyEntry is the consequence configured for one category.
type PolicyEntry struct {
	Severity Severity `yaml:"severity"`
	Action   Action   `yaml:"action"`
}

// defaultEntries is the built-in policy table.
var defaultEntries = map[Category]PolicyEntry{
	CategoryGrooming:                 {SeverityCritical, ActionBan},
	CategoryPersonalInfoSolicitation: {SeverityHigh, ActionBan},
	CategorySexualContent:            {SeverityHigh, ActionKick},
	CategoryHateHarassment:           {SeverityHigh, ActionKick},
	CategoryViolentContent:           {SeverityHigh, ActionKick},
	CategoryScamsMalware:             {SeverityHigh, ActionKick},
	CategorySelfHarm:                 {SeverityHigh, ActionTimeout1h},
	CategoryDrugsAlcoholGambling:     {SeverityMedium, ActionDelete},
	CategoryDangerousActs:            {SeverityMedium, ActionDelete},
	CategoryProfanity:                {SeverityLow, ActionWarn},
	CategoryOther:                    {SeverityMedium, ActionDelete},
	// An unsafe verdict labelled "none" is contradictory; it is handled
	// like other.
	CategoryNone: {SeverityMedium, ActionDelete},
}

// Policy maps categories to enforcement consequences. A Policy is immutable
// after construction and safe for concurrent use.
type Policy struct {
	entries       map[Category]PolicyEntry
	lowConfidence float64
}

var defaultPolicy = mustPolicy(nil, DefaultLowConfidenceThreshold)

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy { return defaultPolicy }

// NewPolicy builds a policy from the built-in table with the given
// per-category overrides applied. A threshold of zero selects
// [DefaultLowConfidenceThreshold].
func NewPolicy(overrides map[Category]PolicyEntry, lowConfidence float64) (*Policy, error) {
	if lowConfidence == 0 {
		lowConfidence = DefaultLowConfidenceThreshold
	}
	var errs []error
	if lowConfidence < 0 || lowConfidence > 1 {
		errs = append(errs, fmt.Errorf("low confidence threshold %v outside [0,1]", lowConfidence))
	}
	entries := make(map[Category]PolicyEntry, len(defaultEntries))
	for c, e := range defaultEntries {
		entries[c] = e
	}
	for c, e := range overrides {
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("unknown category %q", c))
			continue
		}
		if !e.Action.Valid() {
			errs = append(errs, fmt.Errorf("category %q: unknown action %q", c, e.Action))
			continue
		}
		if e.Severity < SeverityLow || e.Severity > SeverityCritical {
			errs = append(errs, fmt.Errorf("category %q: invalid severity %d", c, int(e.Severity)))
			continue
		}
		entries[c] = e
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("moderation: invalid policy: %w", err)
	}
	return &Policy{entries: entries, lowConfidence: lowConfidence}, nil
}

func mustPolicy(overrides map[Category]PolicyEntry, lowConfidence float64) *Policy {
	p, err := NewPolicy(overrides, lowConfidence)
	if err != nil {
		panic(err)
	}
	return p
}

// Entry returns the consequence for c, falling back to the entry for
// [CategoryOther] when c is unknown.
func (p *Policy) Entry(c Category) PolicyEntry {
	if e, ok := p.entries[c]; ok {
		return e
	}
	return p.entries[CategoryOther]
}

// LowConfidenceThreshold returns the threshold used by the override.
func (p *Policy) LowConfidenceThreshold() float64 { return p.lowConfidence }

// Decide resolves a verdict. The classifier's own severity and suggested
// action are ignored: a safe verdict below the confidence threshold becomes a
// delete, an unsafe verdict takes the category's entry, and everything else
// is allowed.
func (p *Policy) Decide(v Verdict) Decision {
	if v.Safe && v.Confidence < p.lowConfidence {
		return Decision{Severity: SeverityMedium, Action: ActionDelete, Reason: ReasonLowConfidence}
	}
	if !v.Safe {
		e := p.Entry(v.Category)
		return Decision{Severity: e.Severity, Action: e.Action}
	}
	return Decision{Severity: SeverityLow, Action: ActionAllow}
}

// Decide resolves v against the built-in policy.
func Decide(v Verdict) Decision { return defaultPolicy.Decide(v) }

// Resolver holds the active [Policy] and lets it be swapped while decisions
// are being made, e.g. on config reload.
type Resolver struct {
	p atomic.Pointer[Policy]
}

// NewResolver returns a Resolver serving p, or the default policy when p is
// nil.
func NewResolver(p *Policy) *Resolver {
	if p == nil {
		p = defaultPolicy
	}
	r := &Resolver{}
	r.p.Store(p)
	return r
}

// Policy returns the active policy.
func (r *Resolver) Policy() *Policy { return r.p.Load() }

// Swap installs p as the active policy and returns the previous one.
func (r *Resolver) Swap(p *Policy) *Policy { return r.p.Swap(p) }

// Decide resolves v against the active policy.
func (r *Resolver) Decide(v Verdict) Decision { return r.p.Load().Decide(v) }
