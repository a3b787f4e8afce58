package reclaimer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarels/giftregistry/internal/model"
)

type releaseCall struct {
	id    string
	token string
	force bool
}

// fakeReleaser records forced-release calls.  A non-nil gate blocks each
// call until the gate channel is closed, letting tests hold a release
// in flight.
type fakeReleaser struct {
	mu    sync.Mutex
	calls []releaseCall
	gate  chan struct{}
	err   error
}

func (f *fakeReleaser) Release(ctx context.Context, id, token string, force bool) (*model.WishlistItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, releaseCall{id: id, token: token, force: force})
	gate := f.gate
	err := f.err
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &model.WishlistItem{ID: id}, nil
}

func (f *fakeReleaser) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeFeed hands the reclaimer's callbacks to the test so it can inject
// snapshots directly.
type fakeFeed struct {
	onItems      func([]model.WishlistItem)
	unsubscribed bool
}

func (f *fakeFeed) Subscribe(onItems func([]model.WishlistItem), onError func(error)) func() {
	f.onItems = onItems
	return func() { f.unsubscribed = true }
}

func expiredItem(id string, now time.Time) model.WishlistItem {
	tok := "tok-" + id
	exp := now.Add(-time.Minute)
	return model.WishlistItem{ID: id, Title: id, IsClaimed: true, ClaimToken: &tok, ClaimExpiresAt: &exp}
}

func heldItem(id string, now time.Time) model.WishlistItem {
	tok := "tok-" + id
	exp := now.Add(time.Hour)
	return model.WishlistItem{ID: id, Title: id, IsClaimed: true, ClaimToken: &tok, ClaimExpiresAt: &exp}
}

func TestSweepReleasesOnlyExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rel := &fakeReleaser{}
	r := New(rel, &fakeFeed{})
	r.now = func() time.Time { return now }

	var reclaimed []string
	var mu sync.Mutex
	r.OnReclaimed = func(item *model.WishlistItem) {
		mu.Lock()
		reclaimed = append(reclaimed, item.ID)
		mu.Unlock()
	}

	r.sweep(context.Background(), []model.WishlistItem{
		{ID: "free", Title: "free"},
		heldItem("held", now),
		expiredItem("stale", now),
	})

	require.Eventually(t, func() bool { return rel.callCount() == 1 }, time.Second, 10*time.Millisecond)
	rel.mu.Lock()
	call := rel.calls[0]
	rel.mu.Unlock()
	assert.Equal(t, "stale", call.id)
	assert.Empty(t, call.token, "reclamation needs no token")
	assert.True(t, call.force)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reclaimed) == 1 && reclaimed[0] == "stale"
	}, time.Second, 10*time.Millisecond)
}

func TestSweepDeduplicatesInflight(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gate := make(chan struct{})
	rel := &fakeReleaser{gate: gate}
	r := New(rel, &fakeFeed{})
	r.now = func() time.Time { return now }

	snapshot := []model.WishlistItem{expiredItem("stale", now)}
	r.sweep(context.Background(), snapshot)
	require.Eventually(t, func() bool { return rel.callCount() == 1 }, time.Second, 10*time.Millisecond)

	// The same expiry observed again while the release is in flight must
	// not start a second one.
	r.sweep(context.Background(), snapshot)
	r.sweep(context.Background(), snapshot)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rel.callCount())

	// Once the release completes the entry is cleared, so a still-expired
	// item on a later snapshot is retried.
	close(gate)
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.inflight) == 0
	}, time.Second, 10*time.Millisecond)

	r.sweep(context.Background(), snapshot)
	require.Eventually(t, func() bool { return rel.callCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestFailedReleaseIsRetriedNextSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rel := &fakeReleaser{err: assert.AnError}
	r := New(rel, &fakeFeed{})
	r.now = func() time.Time { return now }
	r.OnReclaimed = func(item *model.WishlistItem) {
		t.Error("OnReclaimed must not fire for a failed release")
	}

	snapshot := []model.WishlistItem{expiredItem("stale", now)}
	r.sweep(context.Background(), snapshot)
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.inflight) == 0
	}, time.Second, 10*time.Millisecond)

	r.sweep(context.Background(), snapshot)
	require.Eventually(t, func() bool { return rel.callCount() == 2 }, time.Second, 10*time.Millisecond)
}

func TestRunSubscribesAndStopsOnCancel(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rel := &fakeReleaser{}
	feed := &fakeFeed{}
	r := New(rel, feed)
	r.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return feed.onItems != nil }, time.Second, 10*time.Millisecond)
	feed.onItems([]model.WishlistItem{expiredItem("stale", now)})
	require.Eventually(t, func() bool { return rel.callCount() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.True(t, feed.unsubscribed)
}
