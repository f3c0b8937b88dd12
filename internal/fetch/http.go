package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 15 * time.Second

// HTTPFetcher downloads over HTTP(S). Only status 200 counts as success.
type HTTPFetcher struct {
	client  *resty.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewHTTPFetcher creates a fetcher with the given timeout (DefaultTimeout when
// timeout <= 0). The resty client is shared across requests.
func NewHTTPFetcher(timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "receipt-validator/1.0")

	return &HTTPFetcher{client: client, metrics: m, log: log}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	start := time.Now()

	resp, err := f.client.R().SetContext(ctx).Get(location)
	if err != nil {
		f.metrics.ObserveFetch(schemeOf(location), 0, time.Since(start))
		f.log.Warn().Err(err).Str("url", redact(location)).Msg("Receipt download failed")
		return nil, errs.Fetch("HTTPFetcher.Fetch", fmt.Errorf("download: %w", err))
	}

	f.metrics.ObserveFetch(schemeOf(location), resp.StatusCode(), time.Since(start))

	if resp.StatusCode() != http.StatusOK {
		f.log.Warn().
			Int("status", resp.StatusCode()).
			Str("url", redact(location)).
			Msg("Receipt download returned non-200 status")
		return nil, errs.Fetch("HTTPFetcher.Fetch", fmt.Errorf("download failed: status %d", resp.StatusCode()))
	}

	f.log.Debug().
		Int("bytes", len(resp.Body())).
		Dur("duration", time.Since(start)).
		Msg("Receipt downloaded")

	return resp.Body(), nil
}

// redact drops the query string, which for storage download URLs carries an
// access token.
func redact(location string) string {
	if i := strings.IndexByte(location, '?'); i >= 0 {
		return location[:i]
	}
	return location
}

var _ Fetcher = (*HTTPFetcher)(nil)
