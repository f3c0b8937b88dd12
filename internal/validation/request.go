// Package validation drives a receipt through fetch, extraction, analysis and
// record reconciliation.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/familiaschurch/receipt-validator/internal/errs"
	"github.com/go-playground/validator/v10"
)

// Request asks for one receipt to be validated. RecordID is opaque here; an
// identifier the record store cannot address fails at reconciliation and
// leaves the verdict intact.
type Request struct {
	DownloadURL string `json:"downloadUrl" validate:"required"`
	RecordID    string `json:"registroId,omitempty"`
}

var validate = validator.New()

// DecodeRequest reads a request body. Fields may sit at the top level or
// under a "data" object; when "data" is present it is used exclusively.
func DecodeRequest(r io.Reader) (Request, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return Request{}, errs.InvalidRequest("DecodeRequest", fmt.Errorf("reading body: %w", err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return Request{}, errs.InvalidRequest("DecodeRequest", fmt.Errorf("empty body"))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Request{}, errs.InvalidRequest("DecodeRequest", fmt.Errorf("decoding body: %w", err))
	}

	payload := body
	if len(envelope.Data) > 0 && !bytes.Equal(bytes.TrimSpace(envelope.Data), []byte("null")) {
		payload = envelope.Data
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, errs.InvalidRequest("DecodeRequest", fmt.Errorf("decoding payload: %w", err))
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// Validate checks the request fields.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return errs.InvalidRequest("Request.Validate", describe(err))
	}
	return nil
}

func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := fe.Field()
	if fe.StructField() == "DownloadURL" {
		name = "downloadUrl"
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	default:
		return fmt.Errorf("%s failed %s validation", name, fe.Tag())
	}
}
