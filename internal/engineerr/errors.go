// Package engineerr defines the error-kind taxonomy used across the engine
// so every component classifies failures the same way instead of inventing
// its own sentinel per package.
package engineerr

import "fmt"

// Kind is one of the five error classes recognized by the engine.
type Kind string

const (
	// TransientIO is a network or otherwise transient exchange error.
	// Retried locally (cancels only, up to three times); placements are
	// not retried, the strategy re-signals next cycle.
	TransientIO Kind = "TRANSIENT_IO"

	// AuthRequired means the exchange rejected a request as unauthorized.
	// Nothing in this repository constructs this kind: the exchange client
	// returns 401/403 responses as unclassified errors, and a failed scan
	// skips the whole cycle rather than a single asset.
	AuthRequired Kind = "AUTH_REQUIRED"

	// Duplicate means a pair or order with this identity already exists.
	// Treated as success for the caller (idempotent insert).
	Duplicate Kind = "DUPLICATE"

	// BrokenInvariant means the Ledger is in a state the engine never
	// expects (a pair without two legs, a missing order). The affected
	// pair is skipped for this cycle and an error event is appended.
	BrokenInvariant Kind = "BROKEN_INVARIANT"

	// Fatal means the engine cannot continue (Ledger unavailable,
	// configuration malformed). The engine cancels open orders and exits.
	Fatal Kind = "FATAL"
)

// Error wraps an underlying cause with a recognized Kind so callers can
// branch on classification via errors.As while still seeing the original
// error via Unwrap/errors.Is.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "ledger.insert_pair"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given Kind, so call sites can
// write `engineerr.Is(err, engineerr.Duplicate)` without a type assertion.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

// as walks err's single-error Unwrap chain by hand looking for an *Error.
// It does not use errors.As, and it does not follow errors that unwrap to
// several errors (Unwrap() []error).
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
