package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akarels/giftregistry/internal/engine"
	"github.com/akarels/giftregistry/internal/queue"
	queue_publisher "github.com/akarels/giftregistry/internal/service"
)

// GuestHandler exposes the anonymous claim and release operations.  A
// guest proves ownership only by presenting the token it supplied at
// claim time; there is no account and no session.  All preconditions are
// enforced by the engine inside the store transaction, so two guests
// racing for the same item cannot both succeed.
type GuestHandler struct {
	Engine *engine.Engine
}

// NewGuestHandler constructs a GuestHandler.
func NewGuestHandler(eng *engine.Engine) *GuestHandler {
	if eng == nil {
		panic("nil engine passed to NewGuestHandler")
	}
	return &GuestHandler{Engine: eng}
}

// Claim handles POST /v1/wishlist/:id/claim.  The body supplies the
// guest's self-generated token and an optional grace period in minutes.
// Responses: 200 with the updated item view, 404 when the item vanished,
// 409 when another guest holds an unexpired lease.  Re-claiming with the
// same token succeeds and refreshes the expiry.
func (h *GuestHandler) Claim(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var body struct {
		Token        string `json:"token"`
		GraceMinutes int    `json:"grace_minutes"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	item, err := h.Engine.Claim(c.Request().Context(), id, body.Token, body.GraceMinutes)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		case errors.Is(err, engine.ErrAlreadyClaimed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "already claimed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to claim item"})
		}
	}
	publishAsync(queue_publisher.ItemEventFrom(queue.KindClaimed, item, false))
	return c.JSON(http.StatusOK, echo.Map{"item": item.View(time.Now())})
}

// Release handles POST /v1/wishlist/:id/release.  The caller presents the
// token it claimed with; releasing an already-free item is a no-op
// success, and an expired lease can be cleared by anyone.  Responses: 200
// with the updated view, 404 when missing, 403 when the lease is held by
// a different token.
func (h *GuestHandler) Release(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	item, err := h.Engine.Release(c.Request().Context(), id, body.Token, false)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		case errors.Is(err, engine.ErrNotAllowed):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release item"})
		}
	}
	publishAsync(queue_publisher.ItemEventFrom(queue.KindReleased, item, false))
	return c.JSON(http.StatusOK, echo.Map{"item": item.View(time.Now())})
}

// publishAsync emits a domain event without blocking the request.  Event
// delivery is best-effort; the publisher logs its own failures.
func publishAsync(ev queue.ItemEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queue_publisher.PublishItemEvent(ctx, ev)
	}()
}
