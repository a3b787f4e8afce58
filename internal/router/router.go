package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/akarels/giftregistry/internal/config"
	"github.com/akarels/giftregistry/internal/handler"
	"github.com/akarels/giftregistry/internal/middleware"
)

// RegisterRoutes wires every endpoint of the registry API.
//
// Public, unauthenticated routes: health check, the wishlist listing (with
// a short-TTL response cache) and the SSE live stream.  Guest mutation
// routes (claim/release) carry the Redis token-bucket limiter because the
// callers are anonymous.  Administrative routes sit behind the session
// token middleware; the session endpoint itself is open and performs the
// shared-secret check.
func RegisterRoutes(
	e *echo.Echo,
	wh *handler.WishlistHandler,
	gh *handler.GuestHandler,
	ah *handler.AdminHandler,
	jwtSecret string,
	rdb *redis.Client,
) {
	e.GET("/healthz", handler.Health)

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	e.GET("/v1/wishlist", wh.List, cache)
	// The stream must not pass through the response cache: it never
	// terminates and its body is not replayable.
	e.GET("/v1/wishlist/stream", wh.Stream)

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	e.POST("/v1/wishlist/:id/claim", gh.Claim, limit)
	e.POST("/v1/wishlist/:id/release", gh.Release, limit)

	e.POST("/v1/admin/session", ah.Session)

	admin := e.Group("/v1", middleware.AdminAuth(jwtSecret))
	admin.POST("/wishlist", ah.Create)
	admin.PATCH("/wishlist/:id", ah.Update)
	admin.DELETE("/wishlist/:id", ah.Delete)
	admin.POST("/wishlist/:id/force-release", ah.ForceRelease)
}
