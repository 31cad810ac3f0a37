package ai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrProviderAuth is returned when the provider rejects the org's credential (401/403)
	ErrProviderAuth = errors.New("ai: provider rejected credential")

	// ErrProviderRateLimited is returned on 429 responses
	ErrProviderRateLimited = errors.New("ai: provider rate limited")

	// ErrProviderBadRequest is returned when the provider rejects the request (400/422)
	ErrProviderBadRequest = errors.New("ai: provider rejected request")

	// ErrTransientNetwork covers transport failures, timeouts and 5xx responses
	ErrTransientNetwork = errors.New("ai: transient provider failure")

	// ErrEmptyCompletion is returned when the completion has no visible text
	ErrEmptyCompletion = errors.New("ai: provider returned empty completion")

	// ErrUnsupportedProvider is returned for unknown provider names
	ErrUnsupportedProvider = errors.New("ai: unsupported provider")

	// ErrSettingsNotFound is returned when an org has no AI settings row
	ErrSettingsNotFound = errors.New("ai: settings not found")

	// ErrInvalidJob is returned for jobs missing org or conversation
	ErrInvalidJob = errors.New("ai: job requires org and conversation")
)

// ProviderError is a classified LLM provider failure. errors.Is matches
// both the kind sentinel and the underlying cause.
type ProviderError struct {
	Provider   ProviderName
	StatusCode int
	Kind       error
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Kind, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrProviderAuth
	case status == http.StatusTooManyRequests:
		return ErrProviderRateLimited
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return ErrProviderBadRequest
	case status >= 500:
		return ErrTransientNetwork
	case status >= 400:
		return ErrProviderBadRequest
	default:
		return ErrTransientNetwork
	}
}

// classify wraps err as a ProviderError. status is 0 when the request never
// produced an HTTP response.
func classify(provider ProviderName, status int, err error) error {
	if err == nil {
		return nil
	}
	var already *ProviderError
	if errors.As(err, &already) {
		return err
	}
	if status > 0 {
		return &ProviderError{Provider: provider, StatusCode: status, Kind: kindForStatus(status), Err: err}
	}
	// no response: timeouts, cancellation and dial/DNS failures are all transient
	return &ProviderError{Provider: provider, Kind: ErrTransientNetwork, Err: err}
}
