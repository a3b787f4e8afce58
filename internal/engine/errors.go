// Package engine implements the claim/lease state machine for wishlist
// items.  Every mutating operation runs as a single atomic transaction
// against the item store; preconditions are re-checked inside the
// transaction, never trusted from an earlier read.  These sentinel errors
// form the complete failure taxonomy surfaced to callers; transient store
// write conflicts are retried inside the store and never appear here.
package engine

import "errors"

// ErrNotFound is returned when the target item does not exist, including
// when it is deleted while the operation's transaction is in flight.  The
// engine never retries it.
var ErrNotFound = errors.New("item not found")

// ErrAlreadyClaimed is returned when a claim finds the item held under a
// different token with an unexpired lease.  Retrying with the same token
// will not succeed until the lease expires or is released.
var ErrAlreadyClaimed = errors.New("item already claimed")

// ErrNotAllowed is returned when a release presents neither the holder's
// token nor force, and the lease has not expired.
var ErrNotAllowed = errors.New("release not allowed")

// ErrTitleRequired is returned when a create or update supplies a title
// that is blank after trimming.  It fails fast, before any store
// round-trip.
var ErrTitleRequired = errors.New("title required")
