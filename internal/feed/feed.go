// Package feed maintains the live, push-based view of the full item
// collection.  Subscribers receive complete snapshots (never diffs) in
// stable order: one immediately on subscribe and one after every observed
// store change.  All subscriptions share a single store watcher; the first
// subscribe starts it, the last unsubscribe stops it.
package feed

import (
	"context"
	"sync"

	"github.com/akarels/giftregistry/internal/model"
	"github.com/akarels/giftregistry/internal/store"
)

// Lister is the read side of the item store.
type Lister interface {
	List(ctx context.Context) ([]model.WishlistItem, error)
}

// Feed fans out collection snapshots to subscribers.
type Feed struct {
	lister   Lister
	notifier *store.Notifier

	mu      sync.Mutex
	subs    map[int]*subscription
	nextID  int
	signal  chan struct{}
	quit    chan struct{}
	cancelN func() // detaches from the notifier
	running bool
}

// subscription gates callback delivery.  Its mutex guarantees that an
// in-flight delivery either completes before unsubscribe returns or is
// fully suppressed; nothing is ever delivered after teardown.  Change
// deliveries are held back until the initial snapshot is out, so the
// subscriber's view never rolls backwards to an older listing.
type subscription struct {
	mu      sync.Mutex
	closed  bool
	ready   bool // initial snapshot delivered
	missed  bool // a delivery was suppressed while not ready
	onItems func([]model.WishlistItem)
	onError func(error)
}

func (s *subscription) deliver(items []model.WishlistItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.ready {
		s.missed = true
		return
	}
	s.onItems(items)
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.ready {
		s.missed = true
		return
	}
	s.onError(err)
}

// New returns a Feed over the given lister and change notifier.
func New(lister Lister, notifier *store.Notifier) *Feed {
	return &Feed{
		lister: lister, notifier: notifier,
		subs: make(map[int]*subscription),
	}
}

// Subscribe delivers the current snapshot synchronously, then a fresh
// snapshot after every store change, until the returned unsubscribe is
// called.  A transport failure is delivered once per failure through
// onError; snapshot delivery resumes automatically once the store answers
// again.  unsubscribe is idempotent and safe to call concurrently with
// deliveries.
func (f *Feed) Subscribe(onItems func([]model.WishlistItem), onError func(error)) (unsubscribe func()) {
	sub := &subscription{onItems: onItems, onError: onError}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	if !f.running {
		f.startWatcher()
	}
	f.mu.Unlock()

	// Initial snapshot.  The subscription stays not-ready until the
	// snapshot is delivered, suppressing any change-driven delivery the
	// watcher produces meanwhile; the listing below runs after
	// registration, so it already covers whatever change was suppressed.
	// A suppressed delivery still requests one fresh pass afterwards, in
	// case the change landed after this listing completed.
	items, err := f.lister.List(context.Background())
	sub.mu.Lock()
	if !sub.closed {
		if err != nil {
			sub.onError(err)
		} else {
			sub.onItems(items)
		}
	}
	sub.ready = true
	missed := sub.missed
	sub.mu.Unlock()
	if missed {
		f.refresh()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.mu.Lock()
			sub.closed = true
			sub.mu.Unlock()

			f.mu.Lock()
			delete(f.subs, id)
			if len(f.subs) == 0 && f.running {
				f.stopWatcherLocked()
			}
			f.mu.Unlock()
		})
	}
}

// refresh requests one more snapshot pass from the watcher, if running.
func (f *Feed) refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// startWatcher attaches to the notifier and starts the snapshot loop.
// Caller holds f.mu.
func (f *Feed) startWatcher() {
	f.signal = make(chan struct{}, 1)
	f.quit = make(chan struct{})
	signal := f.signal
	f.cancelN = f.notifier.Subscribe(func() {
		select {
		case signal <- struct{}{}:
		default: // a refresh is already pending; snapshots coalesce
		}
	})
	f.running = true
	go f.watch(signal, f.quit)
}

// stopWatcherLocked detaches from the notifier and stops the loop.  The
// signal channel is never closed: a broadcast in flight may have copied
// the notifier callback out before cancelN took effect and can still
// send into it, so the loop exits through quit instead.  Caller holds
// f.mu.
func (f *Feed) stopWatcherLocked() {
	f.cancelN()
	close(f.quit)
	f.running = false
	f.cancelN = nil
	f.signal = nil
	f.quit = nil
}

func (f *Feed) watch(signal, quit chan struct{}) {
	// Deliver at most one error per consecutive failure run.
	failed := false
	for {
		select {
		case <-quit:
			return
		case <-signal:
		}
		items, err := f.lister.List(context.Background())
		if err != nil {
			if !failed {
				failed = true
				for _, sub := range f.snapshotSubs() {
					sub.fail(err)
				}
			}
			continue
		}
		failed = false
		for _, sub := range f.snapshotSubs() {
			sub.deliver(items)
		}
	}
}

func (f *Feed) snapshotSubs() []*subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*subscription, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out
}
