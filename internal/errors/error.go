package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrAccountNotSet    = errors.New("account is not set")
	ErrInvalidMessageID = errors.New("message has no resolvable identity")

	// collaborator errors
	ErrWorkerUnavailable = errors.New("background sync worker unavailable")
	ErrRemoteUnavailable = errors.New("remote API unavailable")

	// decrypt errors
	ErrNoKeysConfigured = errors.New("no PGP keys configured")
	ErrKeyLocked        = errors.New("PGP key is locked")
	ErrPromptDismissed  = errors.New("passphrase prompt dismissed")

	// cache errors
	ErrCacheCorrupted = errors.New("cache entry is corrupted")
	ErrQuotaExceeded  = errors.New("storage quota exceeded")
)
