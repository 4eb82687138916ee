// Package boterr holds the sentinel errors shared across the turn pipeline.
package boterr

import "errors"

var (
	// ErrNoMatch is the normal "this source found nothing" outcome.
	ErrNoMatch = errors.New("no match")
	// ErrAmbiguousMatch means an entity matched but the requested attribute
	// could not be narrowed down.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrDisclosureDenied is reported to callers exactly like ErrNoMatch so a
	// filtered record's existence never leaks.
	ErrDisclosureDenied = errors.New("disclosure denied")

	ErrBackendUnavailable = errors.New("generative backend unavailable")
	ErrDeliveryFailed     = errors.New("message delivery failed")
	ErrSendFailed         = errors.New("email send failed")

	// ErrSessionCorrupt marks an internal invariant violation; the session is
	// reset to idle and the current turn aborted.
	ErrSessionCorrupt = errors.New("session state corrupt")
)
