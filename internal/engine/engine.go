package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/akarels/giftregistry/internal/model"
	"github.com/akarels/giftregistry/internal/store"
)

// DefaultGraceMinutes is the lease duration applied when configuration
// supplies nothing usable.
const DefaultGraceMinutes = 30

// Store is the transactional surface the engine needs from the item store.
// Both the MySQL-backed store and the in-memory store satisfy it.
type Store interface {
	Insert(ctx context.Context, item *model.WishlistItem) (*model.WishlistItem, error)
	Mutate(ctx context.Context, id string, fn store.MutateFunc) (*model.WishlistItem, error)
	Delete(ctx context.Context, id string) error
}

// ItemInput carries the fields an administrator supplies when creating an
// item.  Optional fields may be blank; they are trimmed and stored as
// absent when empty.
type ItemInput struct {
	Title       string
	Description string
	Link        string
	ImageURL    string
	PriceRange  string
	Category    string
}

// ItemUpdate carries a partial update.  Nil fields are left untouched; a
// provided-but-blank optional field clears the stored value.  Claim fields
// are never part of an update.
type ItemUpdate struct {
	Title       *string
	Description *string
	Link        *string
	ImageURL    *string
	PriceRange  *string
	Category    *string
}

// Engine owns the joint transitions of the claim fields (is_claimed,
// claim_token, claim_expires_at).  Item identity and content belong to
// administrative operations; the engine only validates them.
type Engine struct {
	store        Store
	graceMinutes int
	now          func() time.Time
}

// New returns an Engine using the given default grace period in minutes.
// Non-positive values fall back to DefaultGraceMinutes.
func New(st Store, graceMinutes int) *Engine {
	if graceMinutes <= 0 {
		graceMinutes = DefaultGraceMinutes
	}
	return &Engine{store: st, graceMinutes: graceMinutes, now: time.Now}
}

// Create validates and persists a new item with empty claim fields.
func (e *Engine) Create(ctx context.Context, in ItemInput) (*model.WishlistItem, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	item := model.WishlistItem{
		Title:       title,
		Description: store.Sanitize(&in.Description),
		Link:        store.Sanitize(&in.Link),
		ImageURL:    store.Sanitize(&in.ImageURL),
		PriceRange:  store.Sanitize(&in.PriceRange),
		Category:    store.Sanitize(&in.Category),
	}
	return e.store.Insert(ctx, &item)
}

// Update merges the provided fields into the item.  Claim fields pass
// through the transaction unchanged, so an update can never race a claim
// into a lost lease.
func (e *Engine) Update(ctx context.Context, id string, upd ItemUpdate) (*model.WishlistItem, error) {
	var title string
	if upd.Title != nil {
		title = strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}
	}
	item, err := e.store.Mutate(ctx, id, func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		next := cur.Clone()
		if upd.Title != nil {
			next.Title = title
		}
		if upd.Description != nil {
			next.Description = store.Sanitize(upd.Description)
		}
		if upd.Link != nil {
			next.Link = store.Sanitize(upd.Link)
		}
		if upd.ImageURL != nil {
			next.ImageURL = store.Sanitize(upd.ImageURL)
		}
		if upd.PriceRange != nil {
			next.PriceRange = store.Sanitize(upd.PriceRange)
		}
		if upd.Category != nil {
			next.Category = store.Sanitize(upd.Category)
		}
		return &next, nil
	})
	return item, e.mapErr(err)
}

// Delete removes an item permanently.  A missing item is a silent
// success; deletion may run concurrently with claim transactions, which
// then observe ErrNotFound from their own read.
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.store.Delete(ctx, id)
}

// Claim acquires or re-affirms a lease on the item for the given token.
// graceMinutes is floored to whole minutes with a minimum of 1; values
// below 1 select the configured default.  The precondition is evaluated
// inside the transaction: a lease held under a different, unexpired token
// rejects the claim; a free or expired lease (or the caller's own lease)
// is claimable, and the expiry is refreshed.  Claiming with one's own
// token therefore never errors, which makes Claim idempotent under
// client retry.
func (e *Engine) Claim(ctx context.Context, id, token string, graceMinutes int) (*model.WishlistItem, error) {
	if graceMinutes < 1 {
		graceMinutes = e.graceMinutes
	}
	item, err := e.store.Mutate(ctx, id, func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		now := e.now().UTC()
		if cur.Lease(now) == model.LeaseHeld && *cur.ClaimToken != token {
			return nil, ErrAlreadyClaimed
		}
		next := cur.Clone()
		expires := now.Add(time.Duration(graceMinutes) * time.Minute)
		next.IsClaimed = true
		next.ClaimToken = &token
		next.ClaimExpiresAt = &expires
		next.LastClaimedAt = &now
		return &next, nil
	})
	return item, e.mapErr(err)
}

// Release clears the claim fields.  An already-free item is cleaned up
// without error (idempotent release).  A held lease is released when the
// caller forces it, when the lease has expired, or when the token matches
// the holder's; otherwise ErrNotAllowed.  The forced path backs both
// administrative release and expiry reclamation and never needs a token.
func (e *Engine) Release(ctx context.Context, id, token string, force bool) (*model.WishlistItem, error) {
	item, err := e.store.Mutate(ctx, id, func(cur *model.WishlistItem) (*model.WishlistItem, error) {
		now := e.now().UTC()
		next := cur.Clone()
		if cur.Lease(now) == model.LeaseHeld && !force && *cur.ClaimToken != token {
			return nil, ErrNotAllowed
		}
		next.IsClaimed = false
		next.ClaimToken = nil
		next.ClaimExpiresAt = nil
		return &next, nil
	})
	return item, e.mapErr(err)
}

func (e *Engine) mapErr(err error) error {
	if errors.Is(err, store.ErrNoSuchItem) {
		return ErrNotFound
	}
	return err
}
