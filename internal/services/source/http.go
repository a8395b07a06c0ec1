package source

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/skinwatch/pkg/retrier"
)

const userAgent = "skinwatch/1.0 (+price-tracker)"

// jsonGetter performs GET requests with a per-call timeout covering all retries.
type jsonGetter struct {
	client  *http.Client
	retrier *retrier.Retrier
	timeout time.Duration
}

func newJSONGetter(client *http.Client, timeout time.Duration, r *retrier.Retrier) *jsonGetter {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if r == nil {
		r = retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(250*time.Millisecond))
	}
	return &jsonGetter{client: client, retrier: r, timeout: timeout}
}

// get decodes the JSON body at url into out. Network errors, 429 and 5xx are retried
// until the timeout; other statuses and malformed bodies fail at once.
func (g *jsonGetter) get(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retrier.Permanent(errors.Wrap(err, "build request"))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := g.client.Do(req)
		if err != nil {
			return errors.Wrap(err, "request")
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
			return errors.Errorf("transient status %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retrier.Permanent(errors.Errorf("unexpected status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retrier.Permanent(errors.Wrap(err, "decode response"))
		}
		return nil
	})
}
