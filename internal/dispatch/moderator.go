package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/kojo/internal/enforce"
	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/internal/voice"
)

// Subject is whatever is being moderated: a chat message or a voice
// utterance. MessageID is empty for voice.
type Subject struct {
	GuildID   string
	ChannelID string
	MessageID string

	UserID  string
	UserTag string

	Content string

	// Member is used for enforcement when set; otherwise it is looked up.
	Member enforce.Member

	Link string
}

// Platform performs the chat-side effects of a decision.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	Member(ctx context.Context, guildID, userID string) (enforce.Member, error)
}

// Event is one moderation decision as recorded in the audit log.
type Event struct {
	ID       string
	At       time.Time
	Subject  Subject
	Verdict  moderation.Verdict
	Decision moderation.Decision
	Result   enforce.Result
}

// Auditor publishes moderation events.
type Auditor interface {
	Post(ctx context.Context, e Event) error
}

// Outcome is what [Moderator.Apply] did.
type Outcome struct {
	EventID  string
	Decision moderation.Decision
	Result   enforce.Result
}

// ModeratorConfig holds the dependencies of a [Moderator].
type ModeratorConfig struct {
	Resolver *moderation.Resolver
	Executor *enforce.Executor
	Platform Platform

	// Auditor may be nil to disable the audit log.
	Auditor Auditor

	Metrics *observe.Metrics
	Now     func() time.Time
}

// Moderator turns a verdict into actions against a subject.
type Moderator struct {
	cfg ModeratorConfig
}

var _ voice.Moderator = (*Moderator)(nil)

// NewModerator returns a Moderator.
func NewModerator(cfg ModeratorConfig) *Moderator {
	if cfg.Resolver == nil {
		cfg.Resolver = moderation.NewResolver(moderation.DefaultPolicy())
	}
	if cfg.Executor == nil {
		cfg.Executor = enforce.NewExecutor()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Moderator{cfg: cfg}
}

// Apply decides what to do about v, deletes the offending message, sanctions
// the member and posts the audit event. Platform failures are logged and
// never returned.
func (m *Moderator) Apply(ctx context.Context, s Subject, v moderation.Verdict) Outcome {
	ctx, span := observe.StartSpan(ctx, "dispatch.apply")
	defer span.End()

	d := m.cfg.Resolver.Decide(v)
	out := Outcome{EventID: uuid.NewString(), Decision: d}
	log := observe.Logger(ctx).With(
		"event_id", out.EventID,
		"guild_id", s.GuildID,
		"user_id", s.UserID,
		"category", string(v.Category),
		"action", string(d.Action),
	)

	if d.Action != moderation.ActionAllow && s.MessageID != "" && m.cfg.Platform != nil {
		if err := m.cfg.Platform.DeleteMessage(ctx, s.ChannelID, s.MessageID); err != nil {
			log.Warn("dispatch: delete message failed", "err", err)
		}
	}

	member := s.Member
	if member == nil && s.GuildID != "" && m.cfg.Platform != nil {
		var err error
		if member, err = m.cfg.Platform.Member(ctx, s.GuildID, s.UserID); err != nil {
			log.Debug("dispatch: member lookup failed", "err", err)
			member = nil
		}
	}
	out.Result = m.cfg.Executor.Enforce(ctx, member, d.Action, string(v.Category))
	m.cfg.Metrics.RecordEnforcement(ctx, string(d.Action), enforcementOutcome(d.Action, out.Result))

	log.Info("dispatch: moderation applied",
		"severity", d.Severity.String(),
		"reason", d.Reason,
		"applied", out.Result.Applied,
		"note", out.Result.Note,
	)

	if m.cfg.Auditor != nil {
		ev := Event{
			ID:       out.EventID,
			At:       m.cfg.Now(),
			Subject:  s,
			Verdict:  v,
			Decision: d,
			Result:   out.Result,
		}
		if err := m.cfg.Auditor.Post(ctx, ev); err != nil {
			log.Warn("dispatch: audit post failed", "err", err)
		}
	}
	return out
}

// ModerateUtterance implements [voice.Moderator]. The voice channel is the
// subject's channel and there is no message to delete.
func (m *Moderator) ModerateUtterance(ctx context.Context, u voice.Utterance, v moderation.Verdict) {
	m.Apply(ctx, Subject{
		GuildID:   u.GuildID,
		ChannelID: u.ChannelID,
		UserID:    u.UserID,
		Content:   u.Text,
	}, v)
}

func enforcementOutcome(a moderation.Action, r enforce.Result) string {
	switch {
	case !r.Applied:
		return "error"
	case a.Punitive():
		return "ok"
	default:
		return "skipped"
	}
}
