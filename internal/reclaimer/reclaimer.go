// Package reclaimer watches the live catalog feed and force-releases
// leases that have passed their expiry.  It is a passive observer: it
// never polls the store, and it is advisory: the read-side lease
// classification already treats expired items as claimable whether or not
// reclamation has physically run.
package reclaimer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/akarels/giftregistry/internal/model"
)

// Releaser is the forced-release path of the claim engine.
type Releaser interface {
	Release(ctx context.Context, id, token string, force bool) (*model.WishlistItem, error)
}

// Subscriber is the live feed contract the reclaimer consumes.
type Subscriber interface {
	Subscribe(onItems func([]model.WishlistItem), onError func(error)) (unsubscribe func())
}

// Reclaimer issues at most one in-flight forced release per expired item.
// The in-flight set is cleared on completion, success or failure, so an
// item still expired on the next feed delivery is retried.
type Reclaimer struct {
	releaser Releaser
	feed     Subscriber
	now      func() time.Time

	// OnReclaimed, when set, is invoked after each successful forced
	// release with the released item.  Used to emit domain events.
	OnReclaimed func(item *model.WishlistItem)

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New returns a Reclaimer over the given engine and feed.
func New(releaser Releaser, feed Subscriber) *Reclaimer {
	return &Reclaimer{
		releaser: releaser,
		feed:     feed,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// Run subscribes to the feed and reclaims expired leases until ctx is
// cancelled.  Feed errors are logged; the subscription itself handles
// reconnection, so the reclaimer just keeps listening.
func (r *Reclaimer) Run(ctx context.Context) {
	unsubscribe := r.feed.Subscribe(
		func(items []model.WishlistItem) { r.sweep(ctx, items) },
		func(err error) { log.Printf("reclaimer: feed error: %v", err) },
	)
	<-ctx.Done()
	unsubscribe()
}

// sweep launches a forced release for every observed expired item that is
// not already being reclaimed by this process.
func (r *Reclaimer) sweep(ctx context.Context, items []model.WishlistItem) {
	now := r.now()
	for _, it := range items {
		if it.Lease(now) != model.LeaseExpired {
			continue
		}
		if !r.begin(it.ID) {
			continue // reclamation already outstanding for this item
		}
		go func(id string) {
			defer r.finish(id)
			item, err := r.releaser.Release(ctx, id, "", true)
			if err != nil {
				log.Printf("reclaimer: release %s failed: %v", id, err)
				return
			}
			if r.OnReclaimed != nil {
				r.OnReclaimed(item)
			}
		}(it.ID)
	}
}

func (r *Reclaimer) begin(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Reclaimer) finish(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}
