// Package apperrors defines the machine-readable error codes surfaced by the
// API, both in JSON envelopes and in terminal stream events.
package apperrors

import (
	"errors"
	"net/http"
)

type Code string

const (
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeValidationFailed         Code = "VALIDATION_FAILED"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeJDSnapshotRequired       Code = "JD_SNAPSHOT_REQUIRED"
	CodeConfirmedMappingRequired Code = "CONFIRMED_MAPPING_REQUIRED"
	CodeAIProviderNotConfigured  Code = "AI_PROVIDER_NOT_CONFIGURED"
	CodeAIProviderError          Code = "AI_PROVIDER_ERROR"
	CodePersistFailed            Code = "PERSIST_FAILED"
	CodeGenerationFailed         Code = "GENERATION_FAILED"
	CodeUpdateFailed             Code = "UPDATE_FAILED"
	CodeInsertFailed             Code = "INSERT_FAILED"
	CodeUnknown                  Code = "UNKNOWN_ERROR"
)

// Error is a coded error. Message is safe to show to the caller; Err carries
// the underlying cause for logs only.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from err, defaulting to UNKNOWN_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// MessageOf extracts the caller-safe message from err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus maps a code to the status used on non-stream responses. Stream
// failures never reach this path; they ride in-band on an already-committed
// 200.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeValidationFailed, CodeJDSnapshotRequired, CodeConfirmedMappingRequired:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAIProviderNotConfigured, CodeAIProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
