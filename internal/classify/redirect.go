package classify

import (
	"context"
	"net/http"
	"time"

	"github.com/MrWong99/kojo/internal/observe"
)

// NewRedirectClient returns the client used to find where a link points.
// It follows at most one redirect and gives up after timeout.
func NewRedirectClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: observe.Transport(nil),
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) > 1 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// resolve returns the address rawURL lands on after at most one redirect,
// or rawURL itself when the request fails.
func (s *Service) resolve(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL
	}
	resp, err := s.redirects.Do(req)
	if err != nil {
		observe.Logger(ctx).Debug("classify: redirect resolution failed", "url", rawURL, "err", err)
		return rawURL
	}
	resp.Body.Close()
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return rawURL
}
