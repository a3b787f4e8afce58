package model

import "time"

// WishlistItem is a claimable entry in the gift registry.  Guests are
// anonymous, so a claim is represented by an opaque token stored on the
// item itself; possession of the exact token is the only proof of
// ownership.  Optional descriptive fields are nil when absent – the
// store never holds empty strings for them.
//
// Fields:
//  ID             – opaque identifier assigned by the store on creation.
//  Title          – display title, never empty after creation.
//  Description    – optional free-form description.
//  Link           – optional URL to the product page.
//  ImageURL       – optional URL to a product image.
//  PriceRange     – optional human-readable price indication.
//  Category       – optional grouping label.
//  IsClaimed      – true while a lease is held, including expired leases
//                   that have not been reclaimed yet.
//  ClaimToken     – secret set by the claimant, nil when free.
//  ClaimExpiresAt – absolute lease expiry, nil for a non-expiring claim.
//  LastClaimedAt  – when the item was last claimed; survives release as
//                   a historical record, nil if never claimed.
//  CreatedAt      – store-assigned creation timestamp.
//  UpdatedAt      – store-assigned last-write timestamp.
type WishlistItem struct {
	ID             string     // wishlist_items.id
	Title          string     // wishlist_items.title
	Description    *string    // wishlist_items.description (nullable)
	Link           *string    // wishlist_items.link (nullable)
	ImageURL       *string    // wishlist_items.image_url (nullable)
	PriceRange     *string    // wishlist_items.price_range (nullable)
	Category       *string    // wishlist_items.category (nullable)
	IsClaimed      bool       // wishlist_items.is_claimed
	ClaimToken     *string    // wishlist_items.claim_token (nullable)
	ClaimExpiresAt *time.Time // wishlist_items.claim_expires_at (nullable)
	LastClaimedAt  *time.Time // wishlist_items.last_claimed_at (nullable)
	CreatedAt      time.Time  // wishlist_items.created_at
	UpdatedAt      time.Time  // wishlist_items.updated_at
}

// Clone returns a deep copy of the item.  Mutating transactions operate
// on copies so that a rejected write never leaks a half-modified item
// back to the caller.
func (w WishlistItem) Clone() WishlistItem {
	out := w
	out.Description = clonePtr(w.Description)
	out.Link = clonePtr(w.Link)
	out.ImageURL = clonePtr(w.ImageURL)
	out.PriceRange = clonePtr(w.PriceRange)
	out.Category = clonePtr(w.Category)
	out.ClaimToken = clonePtr(w.ClaimToken)
	if w.ClaimExpiresAt != nil {
		t := *w.ClaimExpiresAt
		out.ClaimExpiresAt = &t
	}
	if w.LastClaimedAt != nil {
		t := *w.LastClaimedAt
		out.LastClaimedAt = &t
	}
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
