package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// UpstreamError is a failure reported by, or while talking to, a provider.
type UpstreamError struct {
	Provider string
	Message  string
	// Code is the upstream HTTP status, or 0 when no response was received.
	Code int
	Err  error
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream error"
	}
	if e.Code > 0 {
		return fmt.Sprintf("%s: upstream %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewUpstreamError wraps err for provider. An UpstreamError already in the
// chain is returned as a copy tagged with provider; err itself is not modified.
func NewUpstreamError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		cp := *ue
		if cp.Provider == "" {
			cp.Provider = provider
		}
		return &cp
	}
	return &UpstreamError{Provider: provider, Message: err.Error(), Err: err}
}

// StatusError builds an UpstreamError for a non-2xx provider reply.
func StatusError(provider string, status int, message string) *UpstreamError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &UpstreamError{Provider: provider, Message: message, Code: status}
}

// IsCanceled reports whether err stems from context cancellation.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
