package domain

import "errors"

var (
	// ErrValidation signals a malformed inbound request.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing document, slug or variant.
	ErrNotFound = errors.New("not found")
	// ErrProviderTimeout signals an external provider call that hit the
	// hard deadline.
	ErrProviderTimeout = errors.New("provider timeout")
	// ErrProviderError signals a non-success or invalid response from an
	// external provider.
	ErrProviderError = errors.New("provider error")
	// ErrParse signals malformed generation output.
	ErrParse = errors.New("parse error")
)
