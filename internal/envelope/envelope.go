// Package envelope defines the uniform success/error result wrapper and the
// error taxonomy shared by every service in the data-access layer. An Envelope
// is the only shape that crosses the boundary to the presentation layer.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind tags a classified failure domain.
type Kind string

// Known failure kinds. Anything else is reported as unexpected.
const (
	KindConnection    Kind = "ConnectionError"
	KindTableOp       Kind = "TableOperationError"
	KindValidation    Kind = "ValidationError"
	KindEmbedding     Kind = "EmbeddingError"
	KindModelNotFound Kind = "ModelNotFoundError"
)

// Error is a classified failure with an optional details payload.
// All components raise *Error internally; Wrap converts it at the boundary.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates a classified error.
func New(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Connectionf creates a ConnectionError.
func Connectionf(format string, args ...any) *Error {
	return &Error{Kind: KindConnection, Message: fmt.Sprintf(format, args...)}
}

// TableOpf creates a TableOperationError.
func TableOpf(format string, args ...any) *Error {
	return &Error{Kind: KindTableOp, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a ValidationError with a details payload.
func Validation(message string, details map[string]any) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

// Embeddingf creates an EmbeddingError.
func Embeddingf(format string, args ...any) *Error {
	return &Error{Kind: KindEmbedding, Message: fmt.Sprintf(format, args...)}
}

// ModelNotFoundf creates a ModelNotFoundError.
func ModelNotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindModelNotFound, Message: fmt.Sprintf(format, args...)}
}

// ErrorBody is the wire representation of a failure.
type ErrorBody struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Envelope is the uniform result wrapper. Exactly one of Data/Err is
// meaningful, discriminated by Success.
type Envelope[T any] struct {
	Success bool
	Data    T
	Err     *ErrorBody
}

// Ok wraps a successful payload.
func Ok[T any](data T) Envelope[T] {
	return Envelope[T]{Success: true, Data: data}
}

// MarshalJSON emits the wire shape: {"success":true,"data":...} or
// {"success":false,"error":{...}}.
func (e Envelope[T]) MarshalJSON() ([]byte, error) {
	if e.Success {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Data    any  `json:"data"`
		}{true, e.Data})
	}
	return json.Marshal(struct {
		Success bool       `json:"success"`
		Error   *ErrorBody `json:"error"`
	}{false, e.Err})
}

// Wrap executes op and always returns a fully-formed envelope. Classified
// (*Error) failures pass through as expected control flow; anything else is
// logged with a stack trace and reported with its runtime type name and
// details.unexpected = true.
func Wrap[T any](logger *zap.Logger, op func() (T, error)) Envelope[T] {
	data, err := op()
	if err == nil {
		return Ok(data)
	}
	return Envelope[T]{Err: FromError(logger, err)}
}

// FromError converts any error into an ErrorBody, logging unexpected ones.
func FromError(logger *zap.Logger, err error) *ErrorBody {
	var known *Error
	if errors.As(err, &known) {
		return &ErrorBody{
			Type:    string(known.Kind),
			Message: known.Message,
			Details: known.Details,
		}
	}

	if logger != nil {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("error_type", fmt.Sprintf("%T", err)),
			zap.Stack("stacktrace"),
		)
	}
	return &ErrorBody{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Details: map[string]any{"unexpected": true},
	}
}
