package model

import "time"

// LeaseState classifies an item's claim fields at a point in time.  It is
// derived on every read and never persisted, so it cannot drift from the
// authoritative (IsClaimed, ClaimToken, ClaimExpiresAt) triple.
type LeaseState string

const (
	LeaseFree    LeaseState = "FREE"    // no active claim
	LeaseHeld    LeaseState = "HELD"    // claimed and not yet expired
	LeaseExpired LeaseState = "EXPIRED" // claimed but past expiry, reclaimable
)

// Lease returns the lease state of the item at the given instant.  Expiry
// is inclusive of the boundary: an item whose lease expires exactly now is
// already reclaimable.  A held item without an expiry never expires.
func (w WishlistItem) Lease(now time.Time) LeaseState {
	if !w.IsClaimed || w.ClaimToken == nil {
		return LeaseFree
	}
	if w.ClaimExpiresAt != nil && !w.ClaimExpiresAt.After(now) {
		return LeaseExpired
	}
	return LeaseHeld
}

// HeldBy reports whether the item is currently held (not expired) under
// the given token.
func (w WishlistItem) HeldBy(token string, now time.Time) bool {
	return w.Lease(now) == LeaseHeld && *w.ClaimToken == token
}
