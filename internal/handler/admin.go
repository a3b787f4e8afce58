package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akarels/giftregistry/internal/auth"
	"github.com/akarels/giftregistry/internal/engine"
	"github.com/akarels/giftregistry/internal/queue"
	queue_publisher "github.com/akarels/giftregistry/internal/service"
)

// AdminHandler exposes the administrative mutations: item CRUD and forced
// release.  Authorization is a shared secret exchanged once for a session
// token; none of these operations check claim tokens. Administrators own
// item identity and content, the engine owns the claim fields.
type AdminHandler struct {
	Engine          *engine.Engine
	JWTSecret       string
	AdminSecretHash string
	SessionTTLMin   int
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(eng *engine.Engine, jwtSecret, adminSecretHash string, sessionTTLMin int) *AdminHandler {
	if eng == nil {
		panic("nil engine passed to NewAdminHandler")
	}
	return &AdminHandler{
		Engine:          eng,
		JWTSecret:       jwtSecret,
		AdminSecretHash: adminSecretHash,
		SessionTTLMin:   sessionTTLMin,
	}
}

// Session handles POST /v1/admin/session.  It verifies the shared secret
// against its bcrypt hash and issues a short-lived session token for the
// administrative routes.
func (h *AdminHandler) Session(c echo.Context) error {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Secret == "" || !auth.VerifySecret(h.AdminSecretHash, body.Secret) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid secret"})
	}
	tok, err := auth.NewSessionToken(h.JWTSecret, h.SessionTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue session"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": tok.Token,
		"expires_at":   tok.Exp.Format(time.RFC3339),
	})
}

type itemBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Link        *string `json:"link"`
	ImageURL    *string `json:"image_url"`
	PriceRange  *string `json:"price_range"`
	Category    *string `json:"category"`
}

// Create handles POST /v1/wishlist.  Title is required; optional fields
// are trimmed and dropped when blank.  Returns 201 with the stored item.
func (h *AdminHandler) Create(c echo.Context) error {
	var body itemBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in := engine.ItemInput{
		Title:       deref(body.Title),
		Description: deref(body.Description),
		Link:        deref(body.Link),
		ImageURL:    deref(body.ImageURL),
		PriceRange:  deref(body.PriceRange),
		Category:    deref(body.Category),
	}
	item, err := h.Engine.Create(c.Request().Context(), in)
	if err != nil {
		if errors.Is(err, engine.ErrTitleRequired) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create item"})
	}
	publishAsync(queue_publisher.ItemEventFrom(queue.KindCreated, item, false))
	return c.JSON(http.StatusCreated, echo.Map{"item": item.View(time.Now())})
}

// Update handles PATCH /v1/wishlist/:id.  Only provided fields are
// merged; claim fields are untouchable through this path.
func (h *AdminHandler) Update(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	var body itemBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	upd := engine.ItemUpdate{
		Title:       body.Title,
		Description: body.Description,
		Link:        body.Link,
		ImageURL:    body.ImageURL,
		PriceRange:  body.PriceRange,
		Category:    body.Category,
	}
	item, err := h.Engine.Update(c.Request().Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		case errors.Is(err, engine.ErrTitleRequired):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update item"})
		}
	}
	publishAsync(queue_publisher.ItemEventFrom(queue.KindUpdated, item, false))
	return c.JSON(http.StatusOK, echo.Map{"item": item.View(time.Now())})
}

// Delete handles DELETE /v1/wishlist/:id.  Deleting an item that no
// longer exists is a silent success; a claim racing the delete observes
// not-found from its own transaction.
func (h *AdminHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	if err := h.Engine.Delete(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete item"})
	}
	publishAsync(queue.ItemEvent{
		Kind: queue.KindDeleted, ItemID: id,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return c.NoContent(http.StatusNoContent)
}

// ForceRelease handles POST /v1/wishlist/:id/force-release.  It clears
// the claim fields regardless of token or expiry; this is the same path
// the expiry reclaimer uses and it never fails for ownership reasons.
func (h *AdminHandler) ForceRelease(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	item, err := h.Engine.Release(c.Request().Context(), id, "", true)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to release item"})
	}
	publishAsync(queue_publisher.ItemEventFrom(queue.KindReleased, item, true))
	return c.JSON(http.StatusOK, echo.Map{"item": item.View(time.Now())})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
