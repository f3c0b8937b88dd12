package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	outcome validation.Outcome
	got     validation.Request
}

func (f *fakeValidator) Validate(ctx context.Context, req validation.Request) validation.Outcome {
	f.got = req
	return f.outcome
}

func TestValidationHandler_Approved(t *testing.T) {
	v := &fakeValidator{outcome: validation.Outcome{Approved: true, Amount: decimal.RequireFromString("267.80"), AmountFound: true}}
	job := &ValidateReceiptJob{JobID: "j1", DownloadURL: "https://x/r.pdf", RecordID: "reg-1"}

	err := ValidationHandler(v)(context.Background(), job)

	require.NoError(t, err)
	assert.Equal(t, validation.Request{DownloadURL: "https://x/r.pdf", RecordID: "reg-1"}, v.got)
	require.NotNil(t, job.Result)
	assert.True(t, job.Result.Success)
	assert.Equal(t, 267.8, *job.Result.Valor)
}

func TestValidationHandler_RejectedCompletes(t *testing.T) {
	v := &fakeValidator{outcome: validation.Outcome{Approved: false}}
	job := &ValidateReceiptJob{JobID: "j2", DownloadURL: "https://x/r.jpg"}

	err := ValidationHandler(v)(context.Background(), job)

	require.NoError(t, err)
	assert.False(t, job.Result.Success)
	assert.Equal(t, 0.0, *job.Result.Valor)
}

func TestValidationHandler_StoreErrorCompletes(t *testing.T) {
	v := &fakeValidator{outcome: validation.Outcome{
		Approved: true,
		Amount:   decimal.NewFromInt(5),
		StoreErr: errs.Store("Reconciler.Reconcile", errors.New("unavailable")),
	}}
	job := &ValidateReceiptJob{JobID: "j3", DownloadURL: "https://x/r.jpg", RecordID: "r"}

	err := ValidationHandler(v)(context.Background(), job)

	require.NoError(t, err)
	assert.True(t, job.Result.Success)
}

func TestValidationHandler_FailureFailsJob(t *testing.T) {
	failure := errs.Fetch("HTTPFetcher.Fetch", errors.New("download failed: status 404"))
	v := &fakeValidator{outcome: validation.Failed(failure)}
	job := &ValidateReceiptJob{JobID: "j4", DownloadURL: "https://x/r.jpg"}

	err := ValidationHandler(v)(context.Background(), job)

	assert.ErrorIs(t, err, failure)
	require.NotNil(t, job.Result)
	assert.False(t, job.Result.Success)
	assert.Equal(t, "fetch", job.Result.ErrorKind)
	assert.Nil(t, job.Result.Valor)
}
