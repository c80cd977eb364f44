package mixer

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConfiguration classifies failures that no other provider could fix.
// Both [ErrDisabled] and [ErrNoEnabledProviders] wrap it.
var ErrConfiguration = errors.New("mixer configuration error")

var (
	// ErrDisabled is returned by [Mixer.Call] when the global switch is off.
	ErrDisabled = fmt.Errorf("%w: model mixer is disabled", ErrConfiguration)

	// ErrNoEnabledProviders is returned when no provider is enabled.
	ErrNoEnabledProviders = fmt.Errorf("%w: no enabled providers available", ErrConfiguration)
)

// ErrAllFailed is matched by an [*ExhaustedError].
var ErrAllFailed = errors.New("all providers failed")

// ErrImport is matched by an [*ImportError].
var ErrImport = errors.New("config import failed")

// ProviderError describes one failed attempt against one provider.
type ProviderError struct {
	ProviderID   string
	ProviderName string

	// StatusCode is the HTTP status for non-2xx responses, zero otherwise.
	StatusCode int

	// Timeout is set when the per-provider deadline expired.
	Timeout bool

	Err error
}

func (e *ProviderError) Error() string {
	name := e.ProviderName
	if name == "" {
		name = e.ProviderID
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider %s: HTTP %d: %s", name, e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err == nil {
		return fmt.Sprintf("provider %s: request failed", name)
	}
	return fmt.Sprintf("provider %s: %v", name, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Reason returns a short label for metrics: "http", "timeout" or "network".
func (e *ProviderError) Reason() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.StatusCode != 0:
		return "http"
	default:
		return "network"
	}
}

// ExhaustedError is returned when more than one provider was attempted and
// all of them failed. Err is the error surfaced to the caller: the last
// attempt's error for failover, the originally selected provider's error for
// every other strategy.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v (%d providers attempted): %v", ErrAllFailed, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrAllFailed }

// ImportError reports a malformed configuration document.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%v: %v", ErrImport, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func (e *ImportError) Is(target error) bool { return target == ErrImport }
