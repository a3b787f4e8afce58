package store

// The notifier fans out "the collection changed" signals to feed watchers.
// Local subscribers are notified in-process; when a Redis client is
// configured the signal is additionally published on a pub/sub channel so
// that every server process observes mutations made by any of them.  The
// payload carries the origin process ID so a process can skip the echo of
// its own publishes.

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const changeChannel = "wishlist.changes"

// Notifier broadcasts collection-change signals.  The zero value is not
// usable; construct with NewNotifier.  A nil Redis client degrades to
// local-only delivery, mirroring how rate limiting and caching degrade
// when Redis is unavailable.
type Notifier struct {
	mu     sync.Mutex
	subs   map[int]func()
	nextID int

	rdb    *redis.Client
	origin string
}

// NewNotifier returns a Notifier publishing on the given Redis client.
// rdb may be nil.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{
		subs:   make(map[int]func()),
		rdb:    rdb,
		origin: uuid.NewString(),
	}
}

// Subscribe registers fn to be invoked on every broadcast.  The returned
// cancel function is idempotent.  fn must be quick and non-blocking;
// watchers coalesce signals on their side.
func (n *Notifier) Subscribe(fn func()) (cancel func()) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
		})
	}
}

// Broadcast signals local subscribers and, when configured, publishes the
// change on the Redis channel for other processes.  Publish failures are
// logged and swallowed: the local feed stays live even when the cross-
// process fan-out is down.
func (n *Notifier) Broadcast(ctx context.Context) {
	n.notifyLocal()
	if n.rdb == nil {
		return
	}
	if err := n.rdb.Publish(ctx, changeChannel, n.origin).Err(); err != nil {
		log.Printf("notifier: publish failed: %v", err)
	}
}

func (n *Notifier) notifyLocal() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Run consumes the Redis change channel and relays remote signals to local
// subscribers until ctx is cancelled.  It reconnects with backoff on
// subscription errors.  Calling Run with no Redis client returns
// immediately.
func (n *Notifier) Run(ctx context.Context) {
	if n.rdb == nil {
		return
	}
	backoff := time.Second
	for {
		sub := n.rdb.Subscribe(ctx, changeChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				backoff = time.Second
				if msg.Payload == n.origin {
					continue // our own broadcast already ran locally
				}
				n.notifyLocal()
			}
		}
		_ = sub.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
