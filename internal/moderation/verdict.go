// Package moderation holds the decision core of Kojo: the closed verdict
// vocabulary, the normalizer that turns untrusted classifier output into a
// complete [Verdict], and the [Policy] that maps a verdict to the action that
// is actually enforced.
//
// Classifier output is treated as adversarial input. [Normalize] never fails;
// when a field is missing or malformed it falls back to the conservative
// default, so every consumer downstream sees a fully populated verdict.
package moderation

import (
	"fmt"
	"strings"
)

// SchemaVersion is the verdict schema version assumed when the classifier
// omits one.
const SchemaVersion = "1.0"

// Category is the policy category a piece of content was classified into.
type Category string

const (
	CategoryNone                     Category = "none"
	CategoryProfanity                Category = "profanity"
	CategorySexualContent            Category = "sexual_content"
	CategoryGrooming                 Category = "grooming"
	CategorySelfHarm                 Category = "self_harm"
	CategoryHateHarassment           Category = "hate_harassment"
	CategoryViolentContent           Category = "violent_content"
	CategoryPersonalInfoSolicitation Category = "personal_info_solicitation"
	CategoryScamsMalware             Category = "scams_malware"
	CategoryDangerousActs            Category = "dangerous_acts"
	CategoryDrugsAlcoholGambling     Category = "drugs_alcohol_gambling"
	CategoryOther                    Category = "other"
)

// Categories lists every category in declaration order.
var Categories = []Category{
	CategoryNone,
	CategoryProfanity,
	CategorySexualContent,
	CategoryGrooming,
	CategorySelfHarm,
	CategoryHateHarassment,
	CategoryViolentContent,
	CategoryPersonalInfoSolicitation,
	CategoryScamsMalware,
	CategoryDangerousActs,
	CategoryDrugsAlcoholGambling,
	CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory parses a category name case-insensitively. The boolean is
// false for unknown names.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Severity is the ordered risk level of a verdict. The zero value is
// [SeverityLow].
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the wire name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Rank returns the aggregation rank: critical=3, high=2, medium=1, low=0.
// Out-of-range values rank as low.
func (s Severity) Rank() int {
	if s < SeverityLow || s > SeverityCritical {
		return 0
	}
	return int(s)
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, true
	case "medium":
		return SeverityMedium, true
	case "high":
		return SeverityHigh, true
	case "critical":
		return SeverityCritical, true
	}
	return SeverityLow, false
}

// MarshalText implements [encoding.TextMarshaler].
func (s Severity) MarshalText() ([]byte, error) {
	if s < SeverityLow || s > SeverityCritical {
		return nil, fmt.Errorf("moderation: invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("moderation: unknown severity %q", string(b))
	}
	*s = v
	return nil
}

// Action is an enforcement action, either suggested by a classifier or
// decided by the [Policy].
type Action string

const (
	ActionAllow      Action = "allow"
	ActionWarn       Action = "warn"
	ActionDelete     Action = "delete"
	ActionTimeout10m Action = "timeout_10m"
	ActionTimeout1h  Action = "timeout_1h"
	ActionKick       Action = "kick"
	ActionBan        Action = "ban"
)

// Actions lists every action from least to most severe.
var Actions = []Action{
	ActionAllow,
	ActionWarn,
	ActionDelete,
	ActionTimeout10m,
	ActionTimeout1h,
	ActionKick,
	ActionBan,
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	for _, k := range Actions {
		if a == k {
			return true
		}
	}
	return false
}

// ParseAction parses an action name case-insensitively.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// Punitive reports whether the action targets the member rather than only
// the content.
func (a Action) Punitive() bool {
	switch a {
	case ActionTimeout10m, ActionTimeout1h, ActionKick, ActionBan:
		return true
	}
	return false
}

// Verdict is the normalized result of one classification call. Values
// produced by [Normalize] or [NormalizeMap] always have every field set.
type Verdict struct {
	SchemaVersion   string   `json:"version"`
	Safe            bool     `json:"safe"`
	Confidence      float64  `json:"confidence"`
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	SuggestedAction Action   `json:"suggested_action"`
	Rationale       string   `json:"rationale"`
}

// Flagged reports whether the verdict stops the per-message pipeline: the
// content is unsafe or carries more than low severity.
func (v Verdict) Flagged() bool {
	return !v.Safe || v.Severity != SeverityLow
}
