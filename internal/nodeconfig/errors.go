package nodeconfig

import "errors"

var (
	// ErrInvalid is wrapped by every Validate failure.
	ErrInvalid = errors.New("invalid node config")

	// ErrLocked is returned by Save when another writer holds the config lock.
	ErrLocked = errors.New("node config is locked by another writer")

	// ErrIncomplete is returned by Decode when a field is absent or null.
	ErrIncomplete = errors.New("node config is missing fields")
)
