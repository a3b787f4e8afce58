package main // Entry point for the gift registry server

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/akarels/giftregistry/internal/config"
	"github.com/akarels/giftregistry/internal/database"
	"github.com/akarels/giftregistry/internal/engine"
	"github.com/akarels/giftregistry/internal/feed"
	"github.com/akarels/giftregistry/internal/handler"
	"github.com/akarels/giftregistry/internal/model"
	"github.com/akarels/giftregistry/internal/queue"
	"github.com/akarels/giftregistry/internal/reclaimer"
	"github.com/akarels/giftregistry/internal/router"
	queue_publisher "github.com/akarels/giftregistry/internal/service"
	"github.com/akarels/giftregistry/internal/store"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient() // nil when unreachable; everything degrades
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting, caching and cross-process feed fan-out disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notifier := store.NewNotifier(rdb)
	go notifier.Run(ctx) // relay remote change signals into the local feed

	items := store.NewItemStore(db, notifier)
	if err := items.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	catalog := feed.New(items, notifier)
	eng := engine.New(items, cfg.GraceMinutes)

	// Watcher-driven reclamation of expired leases.
	rec := reclaimer.New(eng, catalog)
	rec.OnReclaimed = func(item *model.WishlistItem) {
		ev := queue_publisher.ItemEventFrom(queue.KindReclaimed, item, true)
		go func() { _ = queue_publisher.PublishItemEvent(context.Background(), ev) }()
	}
	go rec.Run(ctx)

	// Background consumer appending domain events to logs/wishlist.log.
	go func() {
		if err := queue.StartEventConsumer(); err != nil {
			log.Printf("event consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e,
		handler.NewWishlistHandler(items, catalog),
		handler.NewGuestHandler(eng),
		handler.NewAdminHandler(eng, cfg.JWTSecret, cfg.AdminSecretHash, cfg.AdminTTLMin),
		cfg.JWTSecret,
		rdb,
	)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, grace=%dm)", addr, cfg.Env, cfg.GraceMinutes)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
