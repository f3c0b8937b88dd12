package validation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/extract"
	"github.com/familiaschurch/receipt-validator/internal/fetch"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/familiaschurch/receipt-validator/internal/receipt"
	"github.com/familiaschurch/receipt-validator/internal/records"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvedReceipt = "Comprovante de transferência Pix\nFavorecido: Famílias Church\nCNPJ 33.206.513/0001-02\nVALOR: R$ 150,00\nData 12/03/2025"

type stubPDF struct {
	text string
	err  error
}

func (s stubPDF) Text(data []byte) (string, error) { return s.text, s.err }

type stubOCR struct {
	text  string
	err   error
	calls int
}

func (s *stubOCR) DetectText(ctx context.Context, image []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

type recordingReconciler struct {
	mu       sync.Mutex
	calls    int
	recordID string
	verdict  records.Verdict
	err      error
}

func (r *recordingReconciler) Reconcile(ctx context.Context, recordID string, v records.Verdict, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.recordID = recordID
	r.verdict = v
	return r.err
}

func receiptServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOrchestrator(t *testing.T, ocr extract.OCRBackend, pdfText string, rec RecordReconciler, m *metrics.Metrics, opts ...Option) *Orchestrator {
	t.Helper()
	matcher, err := receipt.NewBeneficiaryMatcher(receipt.DefaultBeneficiaryID)
	require.NoError(t, err)

	return NewOrchestrator(
		&fetch.Router{HTTP: fetch.NewHTTPFetcher(time.Second, m, zerolog.Nop())},
		extract.NewExtractor(ocr, stubPDF{text: pdfText}, zerolog.Nop()),
		matcher,
		rec,
		m,
		opts...,
	)
}

// cancellingOCR cancels the caller's context while the receipt is being read.
type cancellingOCR struct {
	cancel context.CancelFunc
	text   string
}

func (c cancellingOCR) DetectText(ctx context.Context, image []byte) (string, error) {
	c.cancel()
	return c.text, nil
}

// blockingOCR never answers until released.
type blockingOCR struct {
	release chan struct{}
}

func (b blockingOCR) DetectText(ctx context.Context, image []byte) (string, error) {
	<-b.release
	return "", nil
}

// ctxStore fails writes whose context is already done, like a real
// network-backed store.
type ctxStore struct {
	*records.MemoryStore
	wait bool
}

func (s ctxStore) Update(ctx context.Context, recordID string, u records.Update) error {
	if s.wait {
		<-ctx.Done()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Update(ctx, recordID, u)
}

func (s ctxStore) Delete(ctx context.Context, recordID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MemoryStore.Delete(ctx, recordID)
}

func TestValidate_ApprovedPDFUpdatesRecord(t *testing.T) {
	ctx := context.Background()
	srv := receiptServer(t, http.StatusOK, "%PDF-1.4")
	store := records.NewMemoryStore()
	require.NoError(t, store.Put(ctx, records.Record{ID: "reg-1"}))
	ocr := &stubOCR{}
	o := newOrchestrator(t, ocr, approvedReceipt, records.NewReconciler(store, 0, nil, zerolog.Nop()), nil)

	out := o.Validate(ctx, Request{DownloadURL: srv.URL + "/comprovante.PDF?alt=media&token=x", RecordID: "reg-1"})

	require.NoError(t, out.Failure)
	require.NoError(t, out.StoreErr)
	assert.True(t, out.Approved)
	assert.True(t, out.AmountFound)
	assert.True(t, out.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, 0, ocr.calls)

	rec, err := store.Get(ctx, "reg-1")
	require.NoError(t, err)
	assert.Equal(t, records.StatusApproved, rec.Status)
	assert.True(t, rec.LastReadAmount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, approvedReceipt, rec.OCRExcerpt)

	resp := out.Response()
	assert.True(t, resp.Data.Success)
	require.NotNil(t, resp.Data.Valor)
	assert.Equal(t, 150.0, *resp.Data.Valor)
}

func TestValidate_MissingBeneficiaryDeletesRecord(t *testing.T) {
	ctx := context.Background()
	srv := receiptServer(t, http.StatusOK, "jpeg bytes")
	store := records.NewMemoryStore()
	require.NoError(t, store.Put(ctx, records.Record{ID: "reg-2"}))
	ocr := &stubOCR{text: "Pix enviado\nCNPJ 11.222.333/0001-81\nTOTAL: 20,00"}
	o := newOrchestrator(t, ocr, "", records.NewReconciler(store, 0, nil, zerolog.Nop()), nil)

	out := o.Validate(ctx, Request{DownloadURL: srv.URL + "/comprovante.jpg", RecordID: "reg-2"})

	require.NoError(t, out.Failure)
	assert.False(t, out.Approved)
	assert.Equal(t, "20.00", out.Amount.StringFixed(2))
	assert.Equal(t, 1, ocr.calls)

	_, err := store.Get(ctx, "reg-2")
	assert.ErrorIs(t, err, records.ErrNotFound)

	resp := out.Response()
	assert.False(t, resp.Data.Success)
	require.NotNil(t, resp.Data.Valor)
	assert.Equal(t, 20.0, *resp.Data.Valor)
	assert.Empty(t, resp.Data.Error)
}

func TestValidate_DeleteIgnoresAmount(t *testing.T) {
	for _, text := range []string{"nothing here", "VALOR 1.500,00", "R$ 0,01"} {
		rec := &recordingReconciler{}
		srv := receiptServer(t, http.StatusOK, "img")
		o := newOrchestrator(t, &stubOCR{text: text}, "", rec, nil)

		out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/a.png", RecordID: "r"})

		require.NoError(t, out.Failure)
		assert.Equal(t, 1, rec.calls)
		assert.False(t, rec.verdict.Approved)
	}
}

func TestValidate_FetchFailureSkipsStore(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		srv := receiptServer(t, status, "")
		rec := &recordingReconciler{}
		o := newOrchestrator(t, &stubOCR{text: approvedReceipt}, "", rec, nil)

		out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/x.jpg", RecordID: "reg-3"})

		require.Error(t, out.Failure)
		assert.True(t, errs.Is(out.Failure, errs.KindFetch))
		assert.False(t, out.Approved)
		assert.True(t, out.Amount.IsZero())
		assert.Equal(t, 0, rec.calls)

		resp := out.Response()
		assert.False(t, resp.Data.Success)
		assert.Nil(t, resp.Data.Valor)
		assert.Contains(t, resp.Data.Error, "download failed")
		assert.Equal(t, "fetch", resp.Data.ErrorKind)
	}
}

func TestValidate_ExtractionFailureSkipsStore(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "img")
	rec := &recordingReconciler{}
	o := newOrchestrator(t, &stubOCR{err: errors.New("quota exceeded")}, "", rec, nil)

	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/x.jpg", RecordID: "reg-4"})

	assert.True(t, errs.Is(out.Failure, errs.KindExtraction))
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, "extraction", out.Response().Data.ErrorKind)
}

func TestValidate_StoreFailureKeepsVerdict(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "%PDF")
	rec := &recordingReconciler{err: errs.Store("Reconciler.Reconcile", errors.New("unavailable"))}
	o := newOrchestrator(t, nil, approvedReceipt, rec, nil)

	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/r.pdf", RecordID: "reg-5"})

	require.NoError(t, out.Failure)
	assert.True(t, errs.Is(out.StoreErr, errs.KindStore))
	assert.True(t, out.Approved)
	assert.Equal(t, "150", out.Amount.String())

	resp := out.Response()
	assert.True(t, resp.Data.Success)
	assert.Empty(t, resp.Data.Error)
}

func TestValidate_NoRecordID(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "%PDF")
	rec := &recordingReconciler{}
	o := newOrchestrator(t, nil, approvedReceipt, rec, nil)

	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/r.pdf"})

	require.NoError(t, out.Failure)
	assert.True(t, out.Approved)
	assert.Equal(t, 0, rec.calls)
}

func TestValidate_UnaddressableRecordKeepsVerdict(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "%PDF")
	store := records.NewMemoryStore()
	o := newOrchestrator(t, nil, approvedReceipt, records.NewReconciler(store, 0, nil, zerolog.Nop()), nil)

	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/r.pdf", RecordID: "a/b"})

	require.NoError(t, out.Failure)
	assert.True(t, errs.Is(out.StoreErr, errs.KindStore))
	assert.ErrorIs(t, out.StoreErr, records.ErrInvalidID)
	assert.True(t, out.Approved)

	resp := out.Response()
	assert.True(t, resp.Data.Success)
	require.NotNil(t, resp.Data.Valor)
	assert.Equal(t, 150.0, *resp.Data.Valor)
}

func TestValidate_CallerCancelDoesNotAbortReconcile(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "jpeg bytes")
	store := ctxStore{MemoryStore: records.NewMemoryStore()}
	require.NoError(t, store.Put(context.Background(), records.Record{ID: "reg-6"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o := newOrchestrator(t, cancellingOCR{cancel: cancel, text: approvedReceipt}, "",
		records.NewReconciler(store, 0, nil, zerolog.Nop()), nil)

	out := o.Validate(ctx, Request{DownloadURL: srv.URL + "/r.jpg", RecordID: "reg-6"})

	require.Error(t, ctx.Err())
	require.NoError(t, out.Failure)
	require.NoError(t, out.StoreErr)
	assert.True(t, out.Approved)

	rec, err := store.Get(context.Background(), "reg-6")
	require.NoError(t, err)
	assert.Equal(t, records.StatusApproved, rec.Status)
}

func TestValidate_CancelledBeforeFetchStillRuns(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "%PDF")
	store := ctxStore{MemoryStore: records.NewMemoryStore()}
	require.NoError(t, store.Put(context.Background(), records.Record{ID: "reg-7"}))
	o := newOrchestrator(t, nil, "sem favorecido", records.NewReconciler(store, 0, nil, zerolog.Nop()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := o.Validate(ctx, Request{DownloadURL: srv.URL + "/r.pdf", RecordID: "reg-7"})

	require.NoError(t, out.Failure)
	require.NoError(t, out.StoreErr)
	assert.False(t, out.Approved)

	_, err := store.Get(context.Background(), "reg-7")
	assert.ErrorIs(t, err, records.ErrNotFound)
}

func TestValidate_ExtractTimeout(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "jpeg bytes")
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	rec := &recordingReconciler{}
	o := newOrchestrator(t, blockingOCR{release: release}, "", rec, nil, WithExtractTimeout(20*time.Millisecond))

	start := time.Now()
	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/r.jpg", RecordID: "reg-8"})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, errs.Is(out.Failure, errs.KindExtraction))
	assert.ErrorIs(t, out.Failure, context.DeadlineExceeded)
	assert.Equal(t, 0, rec.calls)
	assert.Equal(t, "extraction", out.Response().Data.ErrorKind)
}

func TestValidate_StoreTimeoutKeepsVerdict(t *testing.T) {
	srv := receiptServer(t, http.StatusOK, "%PDF")
	store := ctxStore{MemoryStore: records.NewMemoryStore(), wait: true}
	require.NoError(t, store.Put(context.Background(), records.Record{ID: "reg-9"}))
	o := newOrchestrator(t, nil, approvedReceipt, records.NewReconciler(store, 0, nil, zerolog.Nop()), nil,
		WithStoreTimeout(20*time.Millisecond))

	out := o.Validate(context.Background(), Request{DownloadURL: srv.URL + "/r.pdf", RecordID: "reg-9"})

	require.NoError(t, out.Failure)
	assert.True(t, errs.Is(out.StoreErr, errs.KindStore))
	assert.ErrorIs(t, out.StoreErr, context.DeadlineExceeded)
	assert.True(t, out.Approved)
	assert.True(t, out.Response().Data.Success)
}

func TestValidate_InvalidRequest(t *testing.T) {
	rec := &recordingReconciler{}
	o := newOrchestrator(t, nil, "", rec, nil)

	out := o.Validate(context.Background(), Request{RecordID: "reg"})

	assert.True(t, errs.Is(out.Failure, errs.KindInvalidRequest))
	assert.Equal(t, 0, rec.calls)
}

func TestValidate_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ok := receiptServer(t, http.StatusOK, "%PDF")
	missing := receiptServer(t, http.StatusNotFound, "")
	o := newOrchestrator(t, nil, approvedReceipt, nil, m)

	o.Validate(context.Background(), Request{DownloadURL: ok.URL + "/r.pdf"})
	o.Validate(context.Background(), Request{DownloadURL: missing.URL + "/r.pdf"})

	expected := `
# HELP receipt_validations_total Receipt validations by result.
# TYPE receipt_validations_total counter
receipt_validations_total{result="approved"} 1
receipt_validations_total{result="failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "receipt_validations_total"))
}

func TestDecodeRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Request
	}{
		{
			name: "top level",
			body: `{"downloadUrl":"https://x/a.pdf","registroId":"abc"}`,
			want: Request{DownloadURL: "https://x/a.pdf", RecordID: "abc"},
		},
		{
			name: "nested under data",
			body: `{"data":{"downloadUrl":"https://x/a.jpg","registroId":"r1"}}`,
			want: Request{DownloadURL: "https://x/a.jpg", RecordID: "r1"},
		},
		{
			name: "record id optional",
			body: `{"data":{"downloadUrl":"https://x/a.jpg"}}`,
			want: Request{DownloadURL: "https://x/a.jpg"},
		},
		{
			name: "record id is opaque",
			body: `{"downloadUrl":"https://x/a.pdf","registroId":"a/b"}`,
			want: Request{DownloadURL: "https://x/a.pdf", RecordID: "a/b"},
		},
		{
			name: "null data falls back to top level",
			body: `{"data":null,"downloadUrl":"https://x/a.jpg"}`,
			want: Request{DownloadURL: "https://x/a.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRequest(strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty", "", "empty body"},
		{"not json", "downloadUrl=x", "decoding body"},
		{"missing url", `{"registroId":"abc"}`, "downloadUrl is required"},
		{"data shadows top level", `{"data":{"registroId":"abc"},"downloadUrl":"https://x"}`, "downloadUrl is required"},
		{"wrong type", `{"downloadUrl":42}`, "decoding payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindInvalidRequest))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse(errors.New("boom"))

	assert.False(t, resp.Data.Success)
	assert.Equal(t, "boom", resp.Data.Error)
	assert.Equal(t, "unknown", resp.Data.ErrorKind)
	assert.Nil(t, resp.Data.Valor)
}
