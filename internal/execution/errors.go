package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrAPI matches every failure reported by the execution backend.
	ErrAPI = errors.New("execution api error")

	// ErrInvalidContentType indicates a reply that is not a JSON document.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrInvalidStatus indicates a reply with a non-200 status.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNoOutput indicates a reply without a run stage output.
	ErrNoOutput = errors.New("no output")

	// ErrNoSource is returned for requests without source code; no call is made.
	ErrNoSource = errors.New("no source code")
)

const apiErrorMessageFormat = "%s: %s"

// APIError describes a backend failure. Kind is one of ErrInvalidContentType, ErrInvalidStatus or
// ErrNoOutput; Message is the detail shown to users.
type APIError struct {
	Kind    error
	Message string
}

func (apiError *APIError) Error() string {
	return fmt.Sprintf(apiErrorMessageFormat, apiError.Kind, apiError.Message)
}

// Unwrap exposes the failure kind.
func (apiError *APIError) Unwrap() error {
	return apiError.Kind
}

// Is reports true for ErrAPI so callers can detect any backend failure.
func (apiError *APIError) Is(target error) bool {
	return target == ErrAPI
}

func newAPIError(kind error, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}
