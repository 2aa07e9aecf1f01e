package moderation

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	defaultRationale      = "normalized"
	defaultSafeConfidence = 0.6
	defaultRiskConfidence = 0.85
)

// severityByAction is the default severity for a suggested action when the
// classifier did not provide one.
var severityByAction = map[Action]Severity{
	ActionBan:        SeverityCritical,
	ActionKick:       SeverityHigh,
	ActionTimeout1h:  SeverityHigh,
	ActionTimeout10m: SeverityMedium,
	ActionDelete:     SeverityMedium,
	ActionWarn:       SeverityLow,
	ActionAllow:      SeverityLow,
}

// SeverityForAction returns the default severity implied by a suggested
// action. Unknown actions map to low when safe and medium otherwise.
func SeverityForAction(a Action, safe bool) Severity {
	if s, ok := severityByAction[a]; ok {
		return s
	}
	if safe {
		return SeverityLow
	}
	return SeverityMedium
}

// Normalize extracts the first balanced JSON object from raw classifier text
// (prose and code fences around it are ignored) and normalizes it. Anything
// that does not decode to an object is treated as an empty object.
func Normalize(raw string) Verdict {
	var obj map[string]any
	if span := FirstObject(raw); span != "" {
		if err := json.Unmarshal([]byte(span), &obj); err != nil {
			obj = nil
		}
	}
	return NormalizeMap(obj)
}

// NormalizeMap fills every missing or mistyped field of an already decoded
// object. Defaults are applied in a fixed order because the later ones
// depend on the earlier ones: safe, version, category, suggested action,
// severity, confidence, rationale.
func NormalizeMap(obj map[string]any) Verdict {
	var v Verdict

	v.Safe, _ = obj["safe"].(bool)

	v.SchemaVersion = SchemaVersion
	switch ver := obj["version"].(type) {
	case string:
		if ver != "" {
			v.SchemaVersion = ver
		}
	case float64:
		v.SchemaVersion = strconv.FormatFloat(ver, 'f', -1, 64)
	}

	v.Category = CategoryOther
	if s, ok := obj["category"].(string); ok {
		if c, ok := ParseCategory(s); ok {
			v.Category = c
		}
	}

	v.SuggestedAction = ActionDelete
	if v.Safe {
		v.SuggestedAction = ActionAllow
	}
	if a, ok := parseActionField(obj); ok {
		v.SuggestedAction = a
	}

	v.Severity = SeverityForAction(v.SuggestedAction, v.Safe)
	if s, ok := obj["severity"].(string); ok {
		if sev, ok := ParseSeverity(s); ok {
			v.Severity = sev
		}
	}

	v.Confidence = defaultRiskConfidence
	if v.Safe {
		v.Confidence = defaultSafeConfidence
	}
	if c, ok := number(obj["confidence"]); ok {
		v.Confidence = min(max(c, 0), 1)
	}

	v.Rationale = defaultRationale
	if r, ok := obj["rationale"].(string); ok && strings.TrimSpace(r) != "" {
		v.Rationale = r
	}

	return v
}

// parseActionField reads the suggested action under its snake_case or
// camelCase key.
func parseActionField(obj map[string]any) (Action, bool) {
	for _, key := range []string{"suggested_action", "suggestedAction"} {
		if s, ok := obj[key].(string); ok {
			if a, ok := ParseAction(s); ok {
				return a, true
			}
		}
	}
	return "", false
}

func number(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, n == n
	case float32:
		return float64(n), n == n
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// FirstObject returns the first balanced {...} span in s, skipping braces
// that appear inside JSON string literals. It returns "" when s contains no
// complete object.
func FirstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
