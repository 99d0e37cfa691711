package fax

import "errors"

var (
	// ErrInvalidRecipient means the destination number is not a plausible
	// E.164 number. Never retried; surfaced to the user.
	ErrInvalidRecipient = errors.New("invalid recipient number")

	// ErrProviderUnavailable wraps fax provider call failures. When this is
	// returned from a send, the consumed token has NOT been refunded; see
	// the SendFax doc comment.
	ErrProviderUnavailable = errors.New("fax provider unavailable")

	// ErrMalformedEvent means an inbound provider event has no usable shape.
	ErrMalformedEvent = errors.New("malformed fax event")

	// ErrNotFound is returned when a fax record does not exist.
	ErrNotFound = errors.New("fax record not found")
)
