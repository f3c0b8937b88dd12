package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"fetch", Fetch("Fetch", base), KindFetch},
		{"extraction", Extraction("Extract", base), KindExtraction},
		{"store", Store("Delete", base), KindStore},
		{"invalid request", InvalidRequest("Decode", base), KindInvalidRequest},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Fetch("Fetch", base)), KindFetch},
		{"untagged", base, KindUnknown},
		{"nil", nil, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	base := errors.New("status 404")
	err := Fetch("HTTPFetcher.Fetch", base)

	assert.Equal(t, "HTTPFetcher.Fetch: status 404", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, Is(err, KindFetch))
	assert.False(t, Is(err, KindStore))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Store("Update", nil))
}
