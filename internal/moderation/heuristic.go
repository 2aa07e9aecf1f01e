package moderation

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// personalInfoPhrases are the phrases that mark a message as soliciting
// personal information when the classifier is unavailable.
var personalInfoPhrases = []string{
	"home address",
	"address",
	"phone number",
	"whatsapp",
	"snapchat",
	"telegram",
	"send pics",
	"nudes",
	"meet up",
	"where do you live",
	"what school",
	"which school",
	"class schedule",
	"come to my",
	"dm me privately",
	"move to",
}

// PIIMatcher detects solicitation of personal information with a keyword
// list. Matching is on Unicode-folded, lower-cased text. When a fuzzy
// threshold is set, phrases are also compared against word windows of the
// input with Jaro-Winkler similarity, which catches speech-to-text splits
// such as "snap chat". A PIIMatcher is read-only and safe for concurrent use.
type PIIMatcher struct {
	phrases []string
	fuzzy   float64
}

// PIIOption configures a [PIIMatcher].
type PIIOption func(*PIIMatcher)

// WithFuzzyThreshold enables fuzzy matching with the given minimum
// Jaro-Winkler score. Zero disables it.
func WithFuzzyThreshold(t float64) PIIOption {
	return func(m *PIIMatcher) { m.fuzzy = t }
}

// WithPhrases replaces the built-in phrase list.
func WithPhrases(phrases ...string) PIIOption {
	return func(m *PIIMatcher) {
		m.phrases = make([]string, 0, len(phrases))
		for _, p := range phrases {
			if p = fold(p); p != "" {
				m.phrases = append(m.phrases, p)
			}
		}
	}
}

// NewPIIMatcher returns a matcher over the built-in phrase list.
func NewPIIMatcher(opts ...PIIOption) *PIIMatcher {
	m := &PIIMatcher{phrases: personalInfoPhrases}
	for _, o := range opts {
		o(m)
	}
	return m
}

var exactMatcher = NewPIIMatcher()

// SolicitsPersonalInfo reports whether text contains one of the built-in
// phrases.
func SolicitsPersonalInfo(text string) bool { return exactMatcher.Match(text) }

// Match reports whether text solicits personal information.
func (m *PIIMatcher) Match(text string) bool {
	t := fold(text)
	if t == "" {
		return false
	}
	for _, p := range m.phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	if m.fuzzy <= 0 {
		return false
	}
	words := strings.FieldsFunc(t, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, p := range m.phrases {
		if m.fuzzyContains(words, p) {
			return true
		}
	}
	return false
}

// fuzzyContains compares the space-less phrase against every window of n and
// n+1 words, where n is the phrase's word count.
func (m *PIIMatcher) fuzzyContains(words []string, phrase string) bool {
	target := strings.ReplaceAll(phrase, " ", "")
	n := len(strings.Fields(phrase))
	for size := n; size <= n+1; size++ {
		for i := 0; i+size <= len(words); i++ {
			window := strings.Join(words[i:i+size], "")
			if matchr.JaroWinkler(window, target, false) >= m.fuzzy {
				return true
			}
		}
	}
	return false
}

// fold lower-cases s and strips combining marks so that "Áddress" and
// "address" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}
