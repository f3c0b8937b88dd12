package validation

import (
	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/familiaschurch/receipt-validator/internal/metrics"
	"github.com/shopspring/decimal"
)

// Outcome is the result of one validation.
//
// Failure is set when fetch, extraction or request decoding failed; Approved
// is then false and Amount is zero. StoreErr records a reconciliation failure
// and never changes Approved or Amount.
type Outcome struct {
	Approved    bool
	Amount      decimal.Decimal
	AmountFound bool
	Failure     error
	StoreErr    error
}

// Failed builds the outcome of a short-circuited validation.
func Failed(err error) Outcome {
	return Outcome{Failure: err}
}

// Result is the metrics label for the outcome.
func (o Outcome) Result() string {
	switch {
	case o.Failure != nil:
		return metrics.ResultFailed
	case o.Approved:
		return metrics.ResultApproved
	default:
		return metrics.ResultRejected
	}
}

// ResponseData is the body of an inbound call's response.
type ResponseData struct {
	Success   bool     `json:"success"`
	Valor     *float64 `json:"valor,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"errorKind,omitempty"`
}

// Response wraps ResponseData under "data".
type Response struct {
	Data ResponseData `json:"data"`
}

// Response renders the outcome in wire form.
func (o Outcome) Response() Response {
	if o.Failure != nil {
		return ErrorResponse(o.Failure)
	}
	valor := o.Amount.InexactFloat64()
	return Response{Data: ResponseData{Success: o.Approved, Valor: &valor}}
}

// ErrorResponse renders err as a failure body.
func ErrorResponse(err error) Response {
	return Response{Data: ResponseData{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: string(errs.KindOf(err)),
	}}
}
