package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sensorvision/pilot/pkg/llm"
)

// statusError represents an HTTP error response from the OpenAI API.
type statusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("openai: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

// mapError translates OpenAI and network errors into typed llm.Error values.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return llm.NewError(llm.ErrCodeTimeout, "openai request timed out or cancelled", err)
	}

	var se *statusError
	if errors.As(err, &se) {
		return llm.NewError(llm.ErrCodeProviderUnavailable, se.Message, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "dial tcp") {
		return llm.NewError(llm.ErrCodeProviderUnavailable, "openai server unreachable", err)
	}
	if strings.Contains(msg, "Client.Timeout") {
		return llm.NewError(llm.ErrCodeTimeout, "openai request timed out", err)
	}

	return llm.NewError(llm.ErrCodeProviderUnavailable, "openai error", err)
}
