package providers

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrProviderNotFound is returned when the provider name is absent from the registry.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrProviderDisabled is returned when the provider is disabled in the registry.
	ErrProviderDisabled = errors.New("provider disabled")
	// ErrProviderConnect is returned when the transport cannot be established or initialized.
	ErrProviderConnect = errors.New("provider connect failed")
	// ErrProviderNoTools is returned when the provider reports an empty tool catalogue.
	ErrProviderNoTools = errors.New("provider has no tools")
)

// ProviderError reports a failure of a single provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NotFoundError carries the names that are available in the registry.
type NotFoundError struct {
	Requested string
	Available []string
}

func (e *NotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("provider %q not found, registry is empty", e.Requested)
	}
	return fmt.Sprintf("provider %q not found, available: %s", e.Requested, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrProviderNotFound
}

// Reason returns a short metric tag for the error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return "not_found"
	case errors.Is(err, ErrProviderDisabled):
		return "disabled"
	case errors.Is(err, ErrProviderNoTools):
		return "no_tools"
	case errors.Is(err, ErrProviderConnect):
		return "connect"
	default:
		return "other"
	}
}

// connectError marks err as ErrProviderConnect, keeping its message.
func connectError(err error, stage string) error {
	return errors.Mark(errors.Wrapf(err, "unable to %s", stage), ErrProviderConnect)
}
