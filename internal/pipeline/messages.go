package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/temirov/runbot/internal/execution"
)

const (
	apiErrorMessageFormat = "API Error `%s` - Please try again later"
	apiTimeoutMessage     = "API Timeout - Please try again later"
	genericFailureMessage = "Sorry, something went wrong. We will look into it."
)

// UserMessage renders an error returned by Run for the person who issued the command. Details
// beyond the backend message stay in the logs.
func UserMessage(err error) string {
	var apiError *execution.APIError
	if errors.As(err, &apiError) {
		return fmt.Sprintf(apiErrorMessageFormat, apiError.Message)
	}
	if IsTimeout(err) {
		return apiTimeoutMessage
	}
	return genericFailureMessage
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var networkError net.Error
	return errors.As(err, &networkError) && networkError.Timeout()
}
