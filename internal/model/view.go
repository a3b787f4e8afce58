package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ItemView is the representation of an item returned to API clients.  The
// claim token itself is never exposed; only a fingerprint is included so
// that a claimant can recognise its own claims in the feed without the
// secret ever leaving its process.
type ItemView struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	Link             *string    `json:"link,omitempty"`
	ImageURL         *string    `json:"image_url,omitempty"`
	PriceRange       *string    `json:"price_range,omitempty"`
	Category         *string    `json:"category,omitempty"`
	IsClaimed        bool       `json:"is_claimed"`
	Lease            LeaseState `json:"lease"`
	ClaimFingerprint string     `json:"claim_fingerprint,omitempty"`
	ClaimExpiresAt   *time.Time `json:"claim_expires_at,omitempty"`
	LastClaimedAt    *time.Time `json:"last_claimed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TokenFingerprint returns the hex SHA-256 digest of a claim token.  Items
// carry the fingerprint of their current token in API responses; clients
// compare it against digests of locally held tokens.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// View projects the item into its client-facing shape at the given instant.
func (w WishlistItem) View(now time.Time) ItemView {
	v := ItemView{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Link:        w.Link,
		ImageURL:    w.ImageURL,
		PriceRange:  w.PriceRange,
		Category:    w.Category,
		IsClaimed:   w.IsClaimed,
		Lease:       w.Lease(now),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	if w.ClaimToken != nil {
		v.ClaimFingerprint = TokenFingerprint(*w.ClaimToken)
	}
	if w.ClaimExpiresAt != nil {
		t := w.ClaimExpiresAt.UTC()
		v.ClaimExpiresAt = &t
	}
	if w.LastClaimedAt != nil {
		t := w.LastClaimedAt.UTC()
		v.LastClaimedAt = &t
	}
	return v
}

// Views projects a full snapshot, preserving order.
func Views(items []WishlistItem, now time.Time) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		out = append(out, it.View(now))
	}
	return out
}
