package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	FetchFunc func(ctx context.Context, location string) ([]byte, error)
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	f.calls = append(f.calls, location)
	if f.FetchFunc != nil {
		return f.FetchFunc(ctx, location)
	}
	return []byte("ok"), nil
}

func TestHTTPFetcher_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("%PDF-1.4 receipt"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	data, err := f.Fetch(context.Background(), srv.URL+"/recibo.pdf?token=abc")

	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 receipt", string(data))
}

func TestHTTPFetcher_NonOKStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusNoContent, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()

			f := NewHTTPFetcher(time.Second, nil, zerolog.Nop())

			_, err := f.Fetch(context.Background(), srv.URL)

			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindFetch))
			assert.Contains(t, err.Error(), "download failed")
		})
	}
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewHTTPFetcher(50*time.Millisecond, nil, zerolog.Nop())

	_, err := f.Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindFetch))
}

func TestHTTPFetcher_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f := NewHTTPFetcher(time.Second, nil, zerolog.Nop())

	_, err := f.Fetch(context.Background(), url)

	assert.True(t, errs.Is(err, errs.KindFetch))
}

func TestRouter_Dispatch(t *testing.T) {
	httpF := &fakeFetcher{}
	gcsF := &fakeFetcher{}
	r := &Router{HTTP: httpF, GCS: gcsF}

	_, err := r.Fetch(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), "HTTP://cdn.example.com/b.jpg")
	require.NoError(t, err)
	_, err = r.Fetch(context.Background(), "gs://bucket/c.pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://cdn.example.com/a.jpg", "HTTP://cdn.example.com/b.jpg"}, httpF.calls)
	assert.Equal(t, []string{"gs://bucket/c.pdf"}, gcsF.calls)
}

func TestRouter_Unsupported(t *testing.T) {
	r := &Router{HTTP: &fakeFetcher{}}

	tests := []string{"gs://bucket/c.pdf", "ftp://host/file", "", "not a url"}
	for _, loc := range tests {
		t.Run(loc, func(t *testing.T) {
			_, err := r.Fetch(context.Background(), loc)
			assert.True(t, errs.Is(err, errs.KindFetch))
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := ParseGCSURI("gs://receipts/2025/03/recibo.pdf")
	require.NoError(t, err)
	assert.Equal(t, "receipts", bucket)
	assert.Equal(t, "2025/03/recibo.pdf", object)

	for _, bad := range []string{"https://x/y", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, err := ParseGCSURI(bad)
		assert.Errorf(t, err, "ParseGCSURI(%q)", bad)
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://host/o/file.pdf", redact("https://host/o/file.pdf?alt=media&token=secret"))
	assert.Equal(t, "https://host/a.jpg", redact("https://host/a.jpg"))
}
