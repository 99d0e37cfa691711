package payments

import "errors"

var (
	// ErrInvalidSignature means the webhook payload could not be authenticated.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent means a verified event is missing required fields.
	ErrMalformedEvent = errors.New("malformed webhook event")

	// ErrProviderUnavailable wraps payment provider call failures.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrUnknownPackage is returned for a checkout against a package id that
	// is not in the catalog.
	ErrUnknownPackage = errors.New("unknown token package")
)
