package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akarels/giftregistry/internal/feed"
	"github.com/akarels/giftregistry/internal/model"
)

// WishlistHandler serves the read side of the registry: the item listing
// and the live SSE stream backed by the catalog feed.  Both surfaces
// return the client-facing item view, which carries the computed lease
// state and a token fingerprint but never the claim token itself.
type WishlistHandler struct {
	Store feed.Lister
	Feed  *feed.Feed
}

// NewWishlistHandler constructs a WishlistHandler.
func NewWishlistHandler(st feed.Lister, fd *feed.Feed) *WishlistHandler {
	if st == nil || fd == nil {
		panic("nil dependency passed to NewWishlistHandler")
	}
	return &WishlistHandler{Store: st, Feed: fd}
}

// List handles GET /v1/wishlist.  It returns the full collection in
// stable order, enriched with each item's lease state at response time.
func (h *WishlistHandler) List(c echo.Context) error {
	items, err := h.Store.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load wishlist"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": model.Views(items, time.Now()),
	})
}

// Stream handles GET /v1/wishlist/stream.  It subscribes the caller to
// the live catalog feed over Server-Sent Events: one "items" event with
// the full snapshot immediately, then one per observed change, and an
// "error" event once per feed failure.  The subscription is torn down
// when the client disconnects.
func (h *WishlistHandler) Stream(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	// Feed callbacks run on the watcher goroutine; pump them through a
	// channel so all writes to the response happen on this goroutine.
	type event struct {
		name string
		data []byte
	}
	events := make(chan event, 8)
	unsubscribe := h.Feed.Subscribe(
		func(items []model.WishlistItem) {
			data, err := json.Marshal(model.Views(items, time.Now()))
			if err != nil {
				return
			}
			select {
			case events <- event{name: "items", data: data}:
			default: // slow client: drop this snapshot, a newer one follows
			}
		},
		func(err error) {
			data, _ := json.Marshal(echo.Map{"error": err.Error()})
			select {
			case events <- event{name: "error", data: data}:
			default:
			}
		},
	)
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if _, err := fmt.Fprintf(res.Writer, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
