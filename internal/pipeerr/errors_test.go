package pipeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferUnderrunDetails(t *testing.T) {
	err := NewBufferUnderrun(56, 12)

	assert.Equal(t, KindDecode, err.Kind)
	assert.Equal(t, "BUFFER_UNDERRUN", err.Code)
	assert.Equal(t, 56, err.Details["expected"])
	assert.Equal(t, 12, err.Details["actual"])
	assert.Contains(t, err.Error(), "expected 56 bytes")
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStorageError("postgres", "insert_batch", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "storage error", err: NewStorageError("clickhouse", "insert", errors.New("timeout")), want: true},
		{name: "wrapped storage error", err: fmt.Errorf("persist: %w", NewStorageError("qdrant", "upsert", errors.New("503"))), want: true},
		{name: "decode error", err: NewBufferUnderrun(10, 2), want: false},
		{name: "extraction error", err: NewMissingData("yaw"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("decode frame: %w", NewInvalidFormat("unknown command tag 42"))
	assert.Equal(t, KindInput, KindOf(err))
	assert.Equal(t, "INVALID_FORMAT", CodeOf(err))
}
