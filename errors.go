package develop

import "github.com/rawforge/develop/errkind"

// Sentinel errors re-exported from errkind so callers of the root package
// can write errors.Is(err, develop.ErrOperatorFailure) without importing
// the errkind subpackage directly (§7 Error Taxonomy).
var (
	ErrTransientCacheMiss = errkind.ErrTransientCacheMiss
	ErrResourceExhausted  = errkind.ErrResourceExhausted
	ErrAbortedByShutdown  = errkind.ErrAbortedByShutdown
	ErrOperatorFailure    = errkind.ErrOperatorFailure
	ErrInputUnavailable   = errkind.ErrInputUnavailable
	ErrIntegrityViolation = errkind.ErrIntegrityViolation
	ErrPersistenceFailure = errkind.ErrPersistenceFailure
)
