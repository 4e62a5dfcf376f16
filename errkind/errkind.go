// Package errkind defines the sentinel error kinds a develop pipeline run
// can resolve to (§7 Error Handling Design). Callers use errors.Is against
// these sentinels rather than matching on error strings; concrete errors
// returned by pipeline/metacache/pixelcache wrap one of these with
// fmt.Errorf("...: %w") at the point of origin.
package errkind

import "errors"

var (
	// ErrTransientCacheMiss means the requested data is being loaded;
	// the caller may retry or block, its choice.
	ErrTransientCacheMiss = errors.New("errkind: transient cache miss")

	// ErrResourceExhausted means the pixel cache could not allocate even
	// after evicting every evictable entry.
	ErrResourceExhausted = errors.New("errkind: resource exhausted")

	// ErrAbortedByShutdown means the kill-switch fired mid-run; the
	// iteration is discarded with no diagnostic.
	ErrAbortedByShutdown = errors.New("errkind: aborted by shutdown")

	// ErrOperatorFailure means an operator returned Failed; the owning
	// pipeline's status becomes INVALID and a pipe-finished-with-error
	// signal is published.
	ErrOperatorFailure = errors.New("errkind: operator failure")

	// ErrInputUnavailable means the source buffer was missing or
	// degenerate; the iteration is skipped silently, no finished signal.
	ErrInputUnavailable = errors.New("errkind: input unavailable")

	// ErrIntegrityViolation means a raster mask reference was missing
	// mid-pipeline. The executor handles a missed mask lookup as a
	// re-entry, and every re-entry pass flushes that pipeline type's pixel
	// cache entries; there is no further escalation after repeated
	// re-entries, and no code path in this module returns this sentinel.
	ErrIntegrityViolation = errors.New("errkind: integrity violation")

	// ErrPersistenceFailure means a metadata or sidecar write-back
	// failed; it is logged and retried at the next eviction.
	ErrPersistenceFailure = errors.New("errkind: persistence failure")
)
