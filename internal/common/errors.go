package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrCancelled    = errors.New("cancelled")
)

// Normalization failures. Extraction and category resolution never fail.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNoTextDetected    = errors.New("no text detected")
	ErrOCRUnavailable    = errors.New("ocr unavailable")
	ErrMalformedDocument = errors.New("malformed document")
)

// Stable error codes reported to clients.
const (
	CodeUnsupportedFormat = "UnsupportedFormat"
	CodeNoTextDetected    = "NoTextDetected"
	CodeOCRUnavailable    = "OcrUnavailable"
	CodeMalformedDocument = "MalformedDocument"
	CodeCancelled         = "Cancelled"
	CodeInvalidInput      = "InvalidInput"
	CodeInternal          = "Internal"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func UnsupportedFormat(format string, args ...any) error {
	return NewAppError(CodeUnsupportedFormat, fmt.Sprintf(format, args...), ErrUnsupportedFormat)
}

func NoTextDetected(format string, args ...any) error {
	return NewAppError(CodeNoTextDetected, fmt.Sprintf(format, args...), ErrNoTextDetected)
}

// OCRUnavailable keeps cause reachable through errors.Is alongside ErrOCRUnavailable.
func OCRUnavailable(cause error, format string, args ...any) error {
	return NewAppError(CodeOCRUnavailable, fmt.Sprintf(format, args...), join(ErrOCRUnavailable, cause))
}

func MalformedDocument(cause error, format string, args ...any) error {
	return NewAppError(CodeMalformedDocument, fmt.Sprintf(format, args...), join(ErrMalformedDocument, cause))
}

func Cancelled(cause error, format string, args ...any) error {
	return NewAppError(CodeCancelled, fmt.Sprintf(format, args...), join(ErrCancelled, cause))
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Kind returns the stable code for err, or CodeInternal for anything unclassified.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ErrNoTextDetected):
		return CodeNoTextDetected
	case errors.Is(err, ErrOCRUnavailable):
		return CodeOCRUnavailable
	case errors.Is(err, ErrMalformedDocument):
		return CodeMalformedDocument
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return CodeInvalidInput
	}
	return CodeInternal
}

// Retryable reports whether a later attempt on the same input may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrOCRUnavailable)
}

// HTTPStatus maps an error to the response status used by the API.
func HTTPStatus(err error) int {
	return StatusForKind(Kind(err))
}

// StatusForKind maps a stable error code to an HTTP status.
func StatusForKind(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case CodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case CodeNoTextDetected, CodeMalformedDocument:
		return http.StatusUnprocessableEntity
	case CodeOCRUnavailable:
		return http.StatusServiceUnavailable
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeCancelled:
		return 499
	}
	return http.StatusInternalServerError
}
