package moderation

// Rationale markers used by the degraded paths.
const (
	RationaleUnavailable      = "analysis_unavailable"
	RationaleImageUnavailable = "image_analysis_unavailable"
	RationaleVideoUnavailable = "video_analysis_unavailable"
	RationalePIIHeuristic     = "fallback_pii_heuristic"
)

// Unavailable is the fail-closed verdict used when the classifier could not
// be reached. rationale records which path degraded.
func Unavailable(rationale string) Verdict {
	return NormalizeMap(map[string]any{
		"safe":             false,
		"category":         string(CategoryOther),
		"severity":         SeverityMedium.String(),
		"suggested_action": string(ActionDelete),
		"rationale":        rationale,
	})
}

// EmptyContent is the fail-open verdict for blank input, which never reaches
// the classifier.
func EmptyContent() Verdict {
	return NormalizeMap(map[string]any{
		"safe":             true,
		"suggested_action": string(ActionAllow),
		"category":         string(CategoryOther),
		"confidence":       0.95,
	})
}

// PersonalInfoFallback is the verdict produced when the classifier is down
// but the text matched the personal-information heuristic.
func PersonalInfoFallback() Verdict {
	return NormalizeMap(map[string]any{
		"safe":             false,
		"category":         string(CategoryPersonalInfoSolicitation),
		"severity":         SeverityHigh.String(),
		"suggested_action": string(ActionBan),
		"rationale":        RationalePIIHeuristic,
	})
}

// IsDegraded reports whether v came from a fallback path rather than from
// the classifier. Degraded verdicts must not be cached.
func IsDegraded(v Verdict) bool {
	switch v.Rationale {
	case RationaleUnavailable, RationaleImageUnavailable, RationaleVideoUnavailable, RationalePIIHeuristic:
		return true
	}
	return false
}
