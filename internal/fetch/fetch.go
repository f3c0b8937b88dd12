// Package fetch downloads receipt files from the location given by the caller.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/familiaschurch/receipt-validator/internal/errs"
)

// Fetcher downloads the bytes stored at a location.
// Failures are reported as errs.KindFetch errors.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Router dispatches on the location scheme: http(s) URLs go to HTTP,
// gs://bucket/object URIs go to GCS.
type Router struct {
	HTTP Fetcher
	GCS  Fetcher
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, location string) ([]byte, error) {
	scheme := schemeOf(location)

	switch scheme {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP.Fetch(ctx, location)
		}
	case "gs":
		if r.GCS != nil {
			return r.GCS.Fetch(ctx, location)
		}
	case "":
		return nil, errs.Fetch("Router.Fetch", fmt.Errorf("invalid location %q", location))
	}

	return nil, errs.Fetch("Router.Fetch", fmt.Errorf("unsupported location scheme %q", scheme))
}

func schemeOf(location string) string {
	u, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

var _ Fetcher = (*Router)(nil)
