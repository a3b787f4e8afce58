package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/akarels/giftregistry/internal/config"
)

// bodyCapture tees the response body so a successful reply can be stored
// after it has been sent to the client.
type bodyCapture struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (bc *bodyCapture) WriteHeader(code int) {
	bc.status = code
	bc.ResponseWriter.WriteHeader(code)
}

func (bc *bodyCapture) Write(b []byte) (int, error) {
	if bc.limit <= 0 || bc.size < bc.limit {
		remain := bc.limit - bc.size
		if bc.limit <= 0 || int64(len(b)) <= remain {
			bc.buf.Write(b)
		} else {
			bc.buf.Write(b[:remain])
		}
	}
	bc.size += int64(len(b))
	return bc.ResponseWriter.Write(b)
}

// NewRedisCache returns a short-TTL response cache for GET endpoints.
// Only 200 responses are stored; the cache key is the route plus query
// string.  Intended for the wishlist list endpoint, where the SSE feed
// carries the live truth and the cache merely absorbs polling bursts.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 3 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			sum := sha1.Sum([]byte(c.Path() + "?" + c.Request().URL.RawQuery))
			key := fmt.Sprintf("%s:%x", cfg.Prefix, sum)

			ctx := c.Request().Context()
			if body, err := rdb.Get(ctx, key).Bytes(); err == nil {
				c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
				c.Response().Header().Set("X-Cache", "HIT")
				c.Response().WriteHeader(http.StatusOK)
				_, _ = c.Response().Write(body)
				return nil
			}

			bc := &bodyCapture{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          int64(cfg.MaxBodyBytes),
			}
			c.Response().Writer = bc
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if bc.status == http.StatusOK && (bc.limit <= 0 || bc.size <= bc.limit) {
				_ = rdb.SetEx(context.Background(), key, bc.buf.Bytes(), ttl).Err()
			}
			return nil
		}
	}
}
