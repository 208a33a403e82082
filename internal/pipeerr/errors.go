// Package pipeerr provides the structured error taxonomy shared across the
// demo ingest pipeline and the policy server.
package pipeerr

import (
	"errors"
	"fmt"
)

// Kind classifies where in the pipeline an error originates
type Kind string

const (
	// KindInput represents file access and format recognition failures
	KindInput Kind = "input"
	// KindDecode represents framed stream decoding failures
	KindDecode Kind = "decode"
	// KindExtraction represents feature extraction failures
	KindExtraction Kind = "extraction"
	// KindStorage represents failures from any of the three stores
	KindStorage Kind = "storage"
	// KindWire represents policy socket framing failures
	KindWire Kind = "wire"
	// KindConfig represents configuration failures
	KindConfig Kind = "config"
)

// Error is a categorized pipeline error with a structured detail payload
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewInvalidFormat creates an error for an unrecognized signature or
// unknown command tag
func NewInvalidFormat(detail string) *Error {
	return &Error{
		Kind:    KindInput,
		Code:    "INVALID_FORMAT",
		Message: detail,
	}
}

// NewUnsupportedVersion creates an error for a demo outside the supported
// protocol range
func NewUnsupportedVersion(field string, got, min, max uint32) *Error {
	return &Error{
		Kind:    KindInput,
		Code:    "UNSUPPORTED_VERSION",
		Message: fmt.Sprintf("%s %d outside supported range [%d, %d]", field, got, min, max),
		Details: map[string]interface{}{
			"field": field,
			"got":   got,
			"min":   min,
			"max":   max,
		},
	}
}

// NewBufferUnderrun creates an error for a read crossing end-of-stream
func NewBufferUnderrun(expected, actual int) *Error {
	return &Error{
		Kind:    KindDecode,
		Code:    "BUFFER_UNDERRUN",
		Message: fmt.Sprintf("expected %d bytes, only %d available", expected, actual),
		Details: map[string]interface{}{
			"expected": expected,
			"actual":   actual,
		},
	}
}

// NewMalformedPacket creates an error for a corrupt frame payload
func NewMalformedPacket(packetType string, details string) *Error {
	return &Error{
		Kind:    KindExtraction,
		Code:    "MALFORMED_PACKET",
		Message: fmt.Sprintf("malformed %s packet: %s", packetType, details),
		Details: map[string]interface{}{
			"packetType": packetType,
			"details":    details,
		},
	}
}

// NewMissingData creates an error for a property required by an enabled
// feature but absent from the stream
func NewMissingData(name string) *Error {
	return &Error{
		Kind:    KindExtraction,
		Code:    "MISSING_DATA",
		Message: fmt.Sprintf("missing required property %q", name),
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// NewStorageError creates an error for a store operation failure
func NewStorageError(store string, operation string, cause error) *Error {
	return &Error{
		Kind:    KindStorage,
		Code:    "STORAGE_ERROR",
		Message: fmt.Sprintf("%s error during %s", store, operation),
		Cause:   cause,
		Details: map[string]interface{}{
			"store":     store,
			"operation": operation,
		},
	}
}

// NewMalformedFrame creates an error for a wire record of the wrong length
func NewMalformedFrame(expected, got int) *Error {
	return &Error{
		Kind:    KindWire,
		Code:    "MALFORMED_FRAME",
		Message: fmt.Sprintf("wire record must be %d bytes, got %d", expected, got),
		Details: map[string]interface{}{
			"expected": expected,
			"got":      got,
		},
	}
}

// NewConfigError creates an error for an invalid configuration
func NewConfigError(detail string) *Error {
	return &Error{
		Kind:    KindConfig,
		Code:    "CONFIG_ERROR",
		Message: detail,
	}
}

// NewInputError creates an error for an unreadable or missing demo file
func NewInputError(path string, cause error) *Error {
	return &Error{
		Kind:    KindInput,
		Code:    "INPUT_ERROR",
		Message: fmt.Sprintf("cannot read demo file %s", path),
		Cause:   cause,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// KindOf returns the Kind of err, or an empty Kind for uncategorized errors
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// IsRetryable reports whether the coordinator should retry the operation
// with backoff. Only storage failures are retryable; decode and extraction
// failures are deterministic and fail the match immediately.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStorage
}

// CodeOf returns the error code of err, or "UNKNOWN" for uncategorized
// errors
func CodeOf(err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return "UNKNOWN"
}
