// Package dispatch routes inbound chat messages through classification and
// applies the resulting decisions.
//
// The [Orchestrator] checks a message's text, then its first link, then each
// attachment, and stops at the first flagged verdict. The [Moderator] turns
// a flagged verdict into a deleted message, a member sanction and an audit
// event. Voice transcripts enter through [Moderator.ModerateUtterance].
package dispatch

import (
	"context"
	"strings"

	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
)

// Classifier classifies the parts of a message.
type Classifier interface {
	Text(ctx context.Context, text, origin string) moderation.Verdict
	URL(ctx context.Context, rawURL, origin string) moderation.Verdict
	Image(ctx context.Context, imageURL string) moderation.Verdict
}

// VideoAnalyzer classifies a video attachment.
type VideoAnalyzer interface {
	Aggregate(ctx context.Context, url, filename string) moderation.Verdict
}

// Applier acts on a flagged verdict. [*Moderator] is the production
// implementation.
type Applier interface {
	Apply(ctx context.Context, s Subject, v moderation.Verdict) Outcome
}

// Orchestrator runs the per-message moderation pipeline.
type Orchestrator struct {
	classifier Classifier
	video      VideoAnalyzer
	applier    Applier
}

// NewOrchestrator returns an Orchestrator.
func NewOrchestrator(c Classifier, v VideoAnalyzer, a Applier) *Orchestrator {
	return &Orchestrator{classifier: c, video: v, applier: a}
}

// Handle moderates m. It reports the outcome of the first flagged part, or
// false when the message was allowed or skipped.
func (o *Orchestrator) Handle(ctx context.Context, m Message) (Outcome, bool) {
	if m.AuthorBot {
		return Outcome{}, false
	}
	ctx, span := observe.StartSpan(ctx, "dispatch.handle")
	defer span.End()

	origin := m.Origin()

	if strings.TrimSpace(m.Content) != "" {
		if v := o.classifier.Text(ctx, m.Content, origin); v.Flagged() {
			return o.applier.Apply(ctx, m.Subject(), v), true
		}
	}

	if u, ok := FirstURL(m.Content); ok {
		if v := o.classifier.URL(ctx, u, origin); v.Flagged() {
			return o.applier.Apply(ctx, m.Subject(), v), true
		}
	}

	for _, a := range m.Attachments {
		var v moderation.Verdict
		switch DetectKind(a) {
		case MediaImage:
			v = o.classifier.Image(ctx, a.URL)
		case MediaVideo:
			v = o.video.Aggregate(ctx, a.URL, a.Filename)
		default:
			continue
		}
		if v.Flagged() {
			return o.applier.Apply(ctx, m.Subject(), v), true
		}
	}
	return Outcome{}, false
}
