package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/MrWong99/kojo/internal/observe"
)

// leveledSlog adapts slog to retryablehttp's logger. Intermediate failures
// are retried, so errors are logged as warnings.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Debug(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

// NewDownloadClient returns the client used to fetch attachments. It retries
// connection errors and 5xx responses (except 501) up to three times with
// backoff between 1s and 10s. The caller bounds the total time through the
// request context.
func NewDownloadClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Transport = observe.Transport(nil)
	rc.RetryMax = 3
	rc.RetryWaitMin = 1 * time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("subsystem", "media-download")})
	rc.CheckRetry = retryPolicy
	return rc.StandardClient()
}

// retryPolicy does not retry 429 so that a rate-limited CDN fails fast and
// the caller falls back to metadata classification.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// download writes the body at url to dst, refusing bodies larger than
// maxBytes (0 disables the cap).
func download(ctx context.Context, client *http.Client, url string, dst *os.File, maxBytes int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("media: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("media: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("media: download: unexpected status %s", resp.Status)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := io.Copy(dst, body)
	if err != nil {
		return fmt.Errorf("media: download: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}
	return nil
}
