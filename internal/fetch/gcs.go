package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
)

// GCSFetcher reads receipts uploaded to Cloud Storage, addressed as
// gs://bucket/path/to/file.
type GCSFetcher struct {
	client  *storage.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewGCSFetcher wraps a shared storage client.
func NewGCSFetcher(client *storage.Client, timeout time.Duration, m *metrics.Metrics) *GCSFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GCSFetcher{client: client, timeout: timeout, metrics: m}
}

// Fetch implements Fetcher.
func (f *GCSFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(location)
	if err != nil {
		return nil, errs.Fetch("GCSFetcher.Fetch", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	data, status, err := f.read(ctx, bucket, object)
	f.metrics.ObserveFetch("gs", status, time.Since(start))
	if err != nil {
		return nil, errs.Fetch("GCSFetcher.Fetch", err)
	}

	return data, nil
}

func (f *GCSFetcher) read(ctx context.Context, bucket, object string) ([]byte, int, error) {
	rc, err := f.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, 404, fmt.Errorf("download failed: object %s/%s does not exist", bucket, object)
		}
		return nil, 0, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, 0, fmt.Errorf("reading bytes: %w", err)
	}

	return data, 200, nil
}

// ParseGCSURI splits "gs://bucket/path/to/file.pdf" into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

var _ Fetcher = (*GCSFetcher)(nil)
