package ledger

import "errors"

var (
	// ErrInsufficientTokens is returned when fewer grants are available than
	// requested. No grants are consumed in that case.
	ErrInsufficientTokens = errors.New("insufficient tokens")

	// ErrStorageUnavailable wraps storage-layer failures so callers can tell
	// them apart from an actual zero balance.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")
)
