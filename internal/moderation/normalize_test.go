package moderation_test

import (
	"testing"

	"github.com/MrWong99/kojo/internal/moderation"
)

func TestNormalize_Total(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want moderation.Verdict
	}{
		{
			name: "empty string",
			raw:  "",
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Safe:            false,
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "null",
			raw:  "null",
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "not json",
			raw:  "I cannot help with that.",
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "empty object",
			raw:  "{}",
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "safe only",
			raw:  `{"safe": true}`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Safe:            true,
				Confidence:      0.6,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityLow,
				SuggestedAction: moderation.ActionAllow,
				Rationale:       "normalized",
			},
		},
		{
			name: "wrong types",
			raw:  `{"safe": "yes", "confidence": "high", "category": 7, "severity": false, "rationale": 3}`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "wrapped in code fence",
			raw: "Here you go:\n```json\n{\"version\":\"1.0\",\"safe\":false,\"confidence\":0.9,\"category\":\"grooming\"," +
				"\"severity\":\"critical\",\"suggested_action\":\"ban\",\"rationale\":\"asks for {private} chat\"}\n```\nDone.",
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.9,
				Category:        moderation.CategoryGrooming,
				Severity:        moderation.SeverityCritical,
				SuggestedAction: moderation.ActionBan,
				Rationale:       "asks for {private} chat",
			},
		},
		{
			name: "camel case action drives severity",
			raw:  `{"safe": false, "suggestedAction": "kick"}`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityHigh,
				SuggestedAction: moderation.ActionKick,
				Rationale:       "normalized",
			},
		},
		{
			name: "unknown category and action",
			raw:  `{"safe": false, "category": "spam", "suggested_action": "mute"}`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Confidence:      0.85,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityMedium,
				SuggestedAction: moderation.ActionDelete,
				Rationale:       "normalized",
			},
		},
		{
			name: "confidence clamped",
			raw:  `{"safe": true, "confidence": 4}`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Safe:            true,
				Confidence:      1,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityLow,
				SuggestedAction: moderation.ActionAllow,
				Rationale:       "normalized",
			},
		},
		{
			name: "array is not an object",
			raw:  `[{"safe": true}]`,
			want: moderation.Verdict{
				SchemaVersion:   "1.0",
				Safe:            true,
				Confidence:      0.6,
				Category:        moderation.CategoryOther,
				Severity:        moderation.SeverityLow,
				SuggestedAction: moderation.ActionAllow,
				Rationale:       "normalized",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := moderation.Normalize(tt.raw)
			if got != tt.want {
				t.Errorf("Normalize(%q)\n got  %+v\n want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeMap_Nil(t *testing.T) {
	t.Parallel()

	got := moderation.NormalizeMap(nil)
	if got.Safe {
		t.Error("Safe = true, want false")
	}
	if got.SchemaVersion == "" || got.Rationale == "" || !got.Category.Valid() || !got.SuggestedAction.Valid() {
		t.Errorf("incomplete verdict: %+v", got)
	}
}

func TestSeverityForAction(t *testing.T) {
	t.Parallel()

	want := map[moderation.Action]moderation.Severity{
		moderation.ActionBan:        moderation.SeverityCritical,
		moderation.ActionKick:       moderation.SeverityHigh,
		moderation.ActionTimeout1h:  moderation.SeverityHigh,
		moderation.ActionTimeout10m: moderation.SeverityMedium,
		moderation.ActionDelete:     moderation.SeverityMedium,
		moderation.ActionWarn:       moderation.SeverityLow,
		moderation.ActionAllow:      moderation.SeverityLow,
	}
	for _, a := range moderation.Actions {
		for _, safe := range []bool{true, false} {
			if got := moderation.SeverityForAction(a, safe); got != want[a] {
				t.Errorf("SeverityForAction(%s, %v) = %s, want %s", a, safe, got, want[a])
			}
			// Same input twice must give the same answer.
			if x, y := moderation.SeverityForAction(a, safe), moderation.SeverityForAction(a, safe); x != y {
				t.Errorf("SeverityForAction not deterministic: %s vs %s", x, y)
			}
		}
	}
	if got := moderation.SeverityForAction("mute", true); got != moderation.SeverityLow {
		t.Errorf("unknown safe action = %s, want low", got)
	}
	if got := moderation.SeverityForAction("mute", false); got != moderation.SeverityMedium {
		t.Errorf("unknown unsafe action = %s, want medium", got)
	}
}

func TestFirstObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{`x {"a":{"b":2}} y {"c":3}`, `{"a":{"b":2}}`},
		{`{"s":"}"}`, `{"s":"}"}`},
		{`{"s":"\"}"}`, `{"s":"\"}"}`},
		{`{"open":`, ""},
		{"no braces", ""},
	}
	for _, tt := range tests {
		if got := moderation.FirstObject(tt.in); got != tt.want {
			t.Errorf("FirstObject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	t.Parallel()

	var s moderation.Severity
	if err := s.UnmarshalText([]byte("HIGH")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if s != moderation.SeverityHigh {
		t.Errorf("got %s, want high", s)
	}
	if err := s.UnmarshalText([]byte("extreme")); err == nil {
		t.Error("expected error for unknown severity")
	}
	if _, err := moderation.Severity(9).MarshalText(); err == nil {
		t.Error("expected error for out-of-range severity")
	}
}
