package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarels/giftregistry/internal/model"
	"github.com/akarels/giftregistry/internal/store"
)

// fakeLister serves canned snapshots and can be switched into a failing
// state mid-test.
type fakeLister struct {
	mu    sync.Mutex
	items []model.WishlistItem
	err   error
}

func (f *fakeLister) List(ctx context.Context) ([]model.WishlistItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.WishlistItem, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeLister) set(items []model.WishlistItem, err error) {
	f.mu.Lock()
	f.items, f.err = items, err
	f.mu.Unlock()
}

func waitSnapshot(t *testing.T, ch <-chan []model.WishlistItem) []model.WishlistItem {
	t.Helper()
	select {
	case items := <-ch:
		return items
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func waitError(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a feed error")
		return nil
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	lister := &fakeLister{items: []model.WishlistItem{{ID: "id-1", Title: "Crib"}}}
	f := New(lister, store.NewNotifier(nil))

	snaps := make(chan []model.WishlistItem, 4)
	unsubscribe := f.Subscribe(
		func(items []model.WishlistItem) { snaps <- items },
		func(err error) { t.Errorf("unexpected feed error: %v", err) },
	)
	defer unsubscribe()

	items := waitSnapshot(t, snaps)
	require.Len(t, items, 1)
	assert.Equal(t, "Crib", items[0].Title)
}

func TestChangeTriggersFreshSnapshot(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &fakeLister{}
	f := New(lister, notifier)

	snaps := make(chan []model.WishlistItem, 4)
	unsubscribe := f.Subscribe(
		func(items []model.WishlistItem) { snaps <- items },
		func(err error) { t.Errorf("unexpected feed error: %v", err) },
	)
	defer unsubscribe()

	assert.Empty(t, waitSnapshot(t, snaps))

	lister.set([]model.WishlistItem{{ID: "id-1", Title: "Stroller"}}, nil)
	notifier.Broadcast(context.Background())

	items := waitSnapshot(t, snaps)
	require.Len(t, items, 1)
	assert.Equal(t, "Stroller", items[0].Title)
}

func TestUnsubscribeStopsDeliveries(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &fakeLister{}
	f := New(lister, notifier)

	snaps := make(chan []model.WishlistItem, 4)
	unsubscribe := f.Subscribe(
		func(items []model.WishlistItem) { snaps <- items },
		func(err error) {},
	)
	waitSnapshot(t, snaps)

	unsubscribe()
	unsubscribe() // idempotent

	notifier.Broadcast(context.Background())
	select {
	case <-snaps:
		t.Fatal("snapshot delivered after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStoreFailureReportedOncePerRun(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &fakeLister{}
	f := New(lister, notifier)

	snaps := make(chan []model.WishlistItem, 8)
	errs := make(chan error, 8)
	unsubscribe := f.Subscribe(
		func(items []model.WishlistItem) { snaps <- items },
		func(err error) { errs <- err },
	)
	defer unsubscribe()
	waitSnapshot(t, snaps)

	boom := errors.New("store down")
	lister.set(nil, boom)
	notifier.Broadcast(context.Background())
	assert.ErrorIs(t, waitError(t, errs), boom)

	// A second failing refresh stays silent.
	notifier.Broadcast(context.Background())
	time.Sleep(100 * time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("duplicate error for the same failure run: %v", err)
	default:
	}

	// Recovery resumes snapshots without any action from the subscriber.
	lister.set([]model.WishlistItem{{ID: "id-1", Title: "Crib"}}, nil)
	notifier.Broadcast(context.Background())
	items := waitSnapshot(t, snaps)
	require.Len(t, items, 1)

	// A later failure is reported again.
	lister.set(nil, boom)
	notifier.Broadcast(context.Background())
	assert.ErrorIs(t, waitError(t, errs), boom)
}

// TestBroadcastRacingFinalUnsubscribe hammers broadcasts against a
// subscribe/unsubscribe churn.  A broadcast can copy the watcher's
// notifier callback out just before the last unsubscribe tears the
// watcher down, so the callback's signal send must stay safe after
// teardown.
func TestBroadcastRacingFinalUnsubscribe(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &fakeLister{}
	f := New(lister, notifier)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					notifier.Broadcast(context.Background())
				}
			}
		}()
	}

	for i := 0; i < 300; i++ {
		unsubscribe := f.Subscribe(func([]model.WishlistItem) {}, func(error) {})
		unsubscribe()
	}

	close(done)
	wg.Wait()
}

// sequencedLister blocks its first listing until gate is closed and
// serves newer content on every later call, so a test can force a
// change-driven delivery to overlap the initial snapshot.
type sequencedLister struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	first []model.WishlistItem
	rest  []model.WishlistItem
}

func (l *sequencedLister) List(ctx context.Context) ([]model.WishlistItem, error) {
	l.mu.Lock()
	l.calls++
	n := l.calls
	l.mu.Unlock()
	if n == 1 {
		<-l.gate
		return l.first, nil
	}
	return l.rest, nil
}

func (l *sequencedLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestInitialSnapshotNeverOvertaken(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &sequencedLister{
		gate:  make(chan struct{}),
		first: []model.WishlistItem{{ID: "id-1", Title: "Crib"}},
		rest: []model.WishlistItem{
			{ID: "id-1", Title: "Crib"},
			{ID: "id-2", Title: "Stroller"},
		},
	}
	f := New(lister, notifier)

	snaps := make(chan []model.WishlistItem, 8)
	var unsubscribe func()
	subscribed := make(chan struct{})
	go func() {
		unsubscribe = f.Subscribe(
			func(items []model.WishlistItem) { snaps <- items },
			func(err error) { t.Errorf("unexpected feed error: %v", err) },
		)
		close(subscribed)
	}()

	// The initial listing is stuck behind the gate; let a change-driven
	// delivery with newer content race past it.
	require.Eventually(t, func() bool { return lister.callCount() >= 1 }, 2*time.Second, 10*time.Millisecond)
	notifier.Broadcast(context.Background())
	require.Eventually(t, func() bool { return lister.callCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	select {
	case items := <-snaps:
		t.Fatalf("delivery before the initial snapshot: %d item(s)", len(items))
	default:
	}

	close(lister.gate)
	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return")
	}
	defer unsubscribe()

	// The initial snapshot comes first; the suppressed change follows as
	// a fresh listing.
	assert.Len(t, waitSnapshot(t, snaps), 1)
	assert.Len(t, waitSnapshot(t, snaps), 2)
}

func TestSecondSubscriberSharesWatcher(t *testing.T) {
	notifier := store.NewNotifier(nil)
	lister := &fakeLister{}
	f := New(lister, notifier)

	a := make(chan []model.WishlistItem, 4)
	b := make(chan []model.WishlistItem, 4)
	unsubA := f.Subscribe(func(items []model.WishlistItem) { a <- items }, func(error) {})
	unsubB := f.Subscribe(func(items []model.WishlistItem) { b <- items }, func(error) {})
	defer unsubA()
	defer unsubB()
	waitSnapshot(t, a)
	waitSnapshot(t, b)

	lister.set([]model.WishlistItem{{ID: "id-1", Title: "Crib"}}, nil)
	notifier.Broadcast(context.Background())
	require.Len(t, waitSnapshot(t, a), 1)
	require.Len(t, waitSnapshot(t, b), 1)

	// Dropping one subscriber leaves the other live.
	unsubA()
	lister.set([]model.WishlistItem{}, nil)
	notifier.Broadcast(context.Background())
	assert.Empty(t, waitSnapshot(t, b))
}
