package fetch

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader stages receipt files in a bucket so they can be validated by
// gs:// location.
type Uploader struct {
	client  *storage.Client
	timeout time.Duration
}

// NewUploader wraps a shared storage client.
func NewUploader(client *storage.Client, timeout time.Duration) *Uploader {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Uploader{client: client, timeout: timeout}
}

// Upload writes r to bucket/object and returns the gs:// URI.
func (u *Uploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) (string, error) {
	if bucket == "" || object == "" {
		return "", fmt.Errorf("Uploader.Upload: bucket and object are required")
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	w := u.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Uploader.Upload: copy to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Uploader.Upload: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}
