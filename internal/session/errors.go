package session

import (
	"errors"
	"fmt"

	"studybuddy-backend/internal/model"
)

var (
	// ErrMissingCredential is the cause inside a ConfigError when no API key
	// was configured for the provider.
	ErrMissingCredential = model.ErrMissingAPIKey

	ErrSessionBusy  = errors.New("session already has a request in flight")
	ErrStreamClosed = errors.New("stream closed before completion")
)

// ConfigError reports a provider that cannot be used at all. It is returned
// by the first send of every session built by a misconfigured Factory.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("model provider %q is not usable: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// SendFailure wraps a transport or remote error raised before or during a
// streamed response.
type SendFailure struct {
	SessionID string
	Err       error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send failed in session %s: %v", e.SessionID, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
