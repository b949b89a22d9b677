package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	// Envelope code the backend uses for success
	CodeSuccess = 1000

	DefaultFailureMessage = "Operation failed"
	GenericFailureMessage = "An unexpected error occurred"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Error is the one failure shape every caller sees, whatever went wrong: the network,
// an HTTP error status, or a business failure reported inside a 200 envelope.
// Message is always safe to show to the operator.
type Error struct {
	Status  int             `json:"status"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result,omitempty"`

	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error (status %d, code %d): %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets callers match on the HTTP status without caring how the error was built.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// Business reports whether the backend answered 2xx but refused the operation in its envelope.
func (e *Error) Business() bool {
	return e.Status >= 200 && e.Status < 300
}

// NewError builds an error carrying cause for errors.Is/As.
func NewError(status, code int, message string, cause error) *Error {
	if message == "" {
		message = GenericFailureMessage
	}
	return &Error{Status: status, Code: code, Message: message, cause: cause}
}

// AsError normalizes any error into *Error, so UI code only ever deals with one shape.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewError(http.StatusInternalServerError, http.StatusInternalServerError, GenericFailureMessage, err)
}
