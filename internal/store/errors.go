package store

import "errors"

var (
	// ErrRepeaterNotFound indicates no repeater exists with the given id.
	ErrRepeaterNotFound = errors.New("store: repeater not found")

	// ErrDuplicatePublicKey indicates another repeater already monitors
	// the same node public key.
	ErrDuplicatePublicKey = errors.New("store: public key already registered")
)
