// Package classify turns user content into normalized moderation verdicts by
// asking a language model.
//
// Every method of [Service] returns a fully populated [moderation.Verdict]
// and never an error. When the model cannot be reached the verdict is
// fail-closed (unsafe, delete) with a rationale naming the degraded path;
// blank text is fail-open and never reaches the model.
package classify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/MrWong99/kojo/internal/cachestore"
	"github.com/MrWong99/kojo/internal/moderation"
	"github.com/MrWong99/kojo/internal/observe"
	"github.com/MrWong99/kojo/pkg/provider/llm"
)

// Content kinds, used as cache namespaces and metric attributes.
const (
	KindText      = "text"
	KindURL       = "url"
	KindImage     = "image"
	KindVideoMeta = "video_meta"
)

const (
	maxTokens    = 180
	maxTokensURL = 160

	// DefaultRedirectTimeout bounds link redirect resolution.
	DefaultRedirectTimeout = 5 * time.Second
)

// Service classifies text, links, images and video metadata. It is safe for
// concurrent use.
type Service struct {
	provider     llm.Provider
	providerName string
	cache        *cachestore.Verdicts
	limiter      *rate.Limiter
	pii          *moderation.PIIMatcher
	redirects    *http.Client
	metrics      *observe.Metrics
}

// Option configures a [Service].
type Option func(*Service)

// WithCache reuses verdicts for identical inputs.
func WithCache(c *cachestore.Verdicts) Option {
	return func(s *Service) { s.cache = c }
}

// WithRateLimit caps classifier calls at rps per second with the given
// burst. rps <= 0 means unlimited.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) { s.SetRateLimit(rps, burst) }
}

// WithPIIMatcher replaces the keyword matcher used when the classifier is
// down.
func WithPIIMatcher(m *moderation.PIIMatcher) Option {
	return func(s *Service) { s.pii = m }
}

// WithRedirectClient replaces the client used to resolve link redirects.
func WithRedirectClient(c *http.Client) Option {
	return func(s *Service) { s.redirects = c }
}

// WithMetrics records classifier metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithProviderName sets the provider label used in metrics.
func WithProviderName(name string) Option {
	return func(s *Service) { s.providerName = name }
}

// New returns a Service backed by p.
func New(p llm.Provider, opts ...Option) *Service {
	s := &Service{
		provider:     p,
		providerName: "classifier",
		limiter:      rate.NewLimiter(rate.Inf, 1),
		pii:          moderation.NewPIIMatcher(),
		redirects:    NewRedirectClient(DefaultRedirectTimeout),
		metrics:      observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetRateLimit changes the classifier rate limit. Safe to call while
// requests are in flight.
func (s *Service) SetRateLimit(rps float64, burst int) {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	s.limiter.SetLimit(limit)
	s.limiter.SetBurst(burst)
}

// Text classifies a chat message or transcript. origin is a short
// free-form description of where the text came from ("" becomes N/A).
func (s *Service) Text(ctx context.Context, text, origin string) moderation.Verdict {
	if strings.TrimSpace(text) == "" {
		return moderation.EmptyContent()
	}
	user := fmt.Sprintf("Context: %s\nMessage: %s", orNA(origin), text)
	v, err := s.classify(ctx, KindText, text+"\x00"+origin, textPrompt, llm.UserMessage(user), maxTokens)
	if err == nil {
		return v
	}
	if s.pii.Match(text) {
		return moderation.PersonalInfoFallback()
	}
	return moderation.Unavailable(moderation.RationaleUnavailable)
}

// URL classifies a link. One redirect is followed to find the final
// address; resolution failures are ignored.
func (s *Service) URL(ctx context.Context, rawURL, origin string) moderation.Verdict {
	final := s.resolve(ctx, rawURL)
	user := fmt.Sprintf("Context: %s\nURL: %s", orNA(origin), final)
	v, err := s.classify(ctx, KindURL, final+"\x00"+origin, urlPrompt, llm.UserMessage(user), maxTokensURL)
	if err != nil {
		return moderation.Unavailable(moderation.RationaleUnavailable)
	}
	return v
}

// Image classifies an image given as an http(s) URL or a data URL.
func (s *Service) Image(ctx context.Context, imageURL string) moderation.Verdict {
	key := imageURL
	if strings.HasPrefix(imageURL, "data:") {
		// Extracted video frames are never seen twice.
		key = ""
	}
	v, err := s.classify(ctx, KindImage, key, imagePrompt, llm.UserMessage(imageInstruction, imageURL), maxTokens)
	if err != nil {
		return moderation.Unavailable(moderation.RationaleImageUnavailable)
	}
	return v
}

// VideoMeta classifies a video from its URL and filename alone. It is the
// fallback when frames cannot be extracted.
func (s *Service) VideoMeta(ctx context.Context, videoURL, filename string) moderation.Verdict {
	user := fmt.Sprintf("Video URL: %s\nFilename: %s\nContext: Discord attachment.\nClassify risk.", videoURL, orNA(filename))
	v, err := s.classify(ctx, KindVideoMeta, "", videoPrompt, llm.UserMessage(user), maxTokens)
	if err != nil {
		return moderation.Unavailable(moderation.RationaleVideoUnavailable)
	}
	return v
}

// classify runs one model call. cacheKey "" disables caching for the call.
func (s *Service) classify(ctx context.Context, kind, cacheKey, system string, msg llm.Message, maxTok int) (v moderation.Verdict, err error) {
	ctx, span := observe.StartSpan(ctx, "classify."+kind)
	defer func() { observe.EndSpan(span, err) }()
	log := observe.Logger(ctx)

	if cacheKey != "" && s.cache != nil {
		cached, ok, cerr := s.cache.Get(ctx, kind, cacheKey)
		if cerr != nil {
			log.Warn("classify: cache lookup failed", "kind", kind, "err", cerr)
		}
		s.metrics.RecordCacheLookup(ctx, ok)
		if ok {
			s.metrics.RecordVerdict(ctx, kind, string(cached.Category), string(cached.SuggestedAction))
			return cached, nil
		}
	}

	if err = s.limiter.Wait(ctx); err != nil {
		log.Warn("classify: rate limiter", "kind", kind, "err", err)
		return moderation.Verdict{}, err
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{msg},
		Temperature:  llm.Temperature(0),
		MaxTokens:    maxTok,
	})
	s.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("kind", kind)))
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.providerName, kind, "error")
		s.metrics.RecordProviderError(ctx, s.providerName, kind)
		log.Error("classify: model call failed", "kind", kind, "err", err)
		return moderation.Verdict{}, err
	}
	s.metrics.RecordProviderRequest(ctx, s.providerName, kind, "ok")

	var raw string
	if resp != nil {
		raw = resp.Content
	}
	v = moderation.Normalize(raw)
	s.metrics.RecordVerdict(ctx, kind, string(v.Category), string(v.SuggestedAction))

	if cacheKey != "" && s.cache != nil {
		if cerr := s.cache.Set(ctx, kind, cacheKey, v); cerr != nil {
			log.Warn("classify: cache store failed", "kind", kind, "err", cerr)
		}
	}
	return v, nil
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
