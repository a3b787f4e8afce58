// Command client is the guest-side tool for the gift registry.  It lists
// the wishlist, claims and releases items, and can follow the live feed.
// Claim tokens are generated locally and remembered in a small JSON file
// under the user's config directory, so a guest can release or refresh
// their own claims later without any account.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/akarels/giftregistry/internal/client"
	"github.com/akarels/giftregistry/internal/model"
	"github.com/akarels/giftregistry/internal/tokenstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	base := os.Getenv("WISHLIST_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	api := client.New(base)

	tokens, err := tokenstore.Open(tokenPath())
	if err != nil {
		log.Fatalf("open token store: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "list":
		runList(ctx, api, tokens)
	case "watch":
		runWatch(ctx, api, tokens)
	case "claim":
		if len(os.Args) < 3 {
			log.Fatal("usage: client claim <item-id>")
		}
		runClaim(ctx, api, tokens, os.Args[2])
	case "release":
		if len(os.Args) < 3 {
			log.Fatal("usage: client release <item-id>")
		}
		runRelease(ctx, api, tokens, os.Args[2])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: client <command> [args]

commands:
  list                 print the current wishlist
  watch                follow the live feed and print each snapshot
  claim <item-id>      claim an item under a fresh token
  release <item-id>    release an item claimed from this machine

environment:
  WISHLIST_URL         server base URL (default http://localhost:8080)`)
}

// tokenPath places the token file under the OS user config directory,
// falling back to the working directory when none is available.
func tokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".wishlist-tokens.json"
	}
	return filepath.Join(dir, "giftregistry", "tokens.json")
}

func runList(ctx context.Context, api *client.API, tokens *tokenstore.Store) {
	items, err := api.List(ctx)
	if err != nil {
		log.Fatalf("list: %v", err)
	}
	printItems(items, tokens)
	if _, err := tokens.Prune(items); err != nil {
		log.Printf("prune token store: %v", err)
	}
}

func runWatch(ctx context.Context, api *client.API, tokens *tokenstore.Store) {
	err := api.Stream(ctx,
		func(items []model.ItemView) {
			fmt.Println()
			printItems(items, tokens)
			if dropped, err := tokens.Prune(items); err != nil {
				log.Printf("prune token store: %v", err)
			} else if len(dropped) > 0 {
				log.Printf("forgot tokens for %d item(s) no longer held here", len(dropped))
			}
		},
		func(err error) {
			log.Printf("feed: %v", err)
		},
	)
	if err != nil && ctx.Err() == nil {
		log.Fatalf("watch: %v", err)
	}
}

func runClaim(ctx context.Context, api *client.API, tokens *tokenstore.Store, id string) {
	// Reuse the stored token so repeating the command refreshes the hold
	// instead of failing against our own claim.
	token, ok := tokens.Token(id)
	if !ok {
		token = uuid.NewString()
	}
	item, err := api.Claim(ctx, id, token, 0)
	if err != nil {
		log.Fatalf("claim: %v", err)
	}
	if err := tokens.Put(id, token); err != nil {
		log.Fatalf("save token: %v", err)
	}
	if item.ClaimExpiresAt != nil {
		fmt.Printf("claimed %q until %s\n", item.Title, item.ClaimExpiresAt.Local().Format("15:04:05"))
	} else {
		fmt.Printf("claimed %q\n", item.Title)
	}
}

func runRelease(ctx context.Context, api *client.API, tokens *tokenstore.Store, id string) {
	token, ok := tokens.Token(id)
	if !ok {
		log.Fatal("no stored token for this item; it was not claimed from this machine")
	}
	item, err := api.Release(ctx, id, token)
	if err != nil {
		log.Fatalf("release: %v", err)
	}
	if err := tokens.Forget(id); err != nil {
		log.Printf("forget token: %v", err)
	}
	fmt.Printf("released %q\n", item.Title)
}

func printItems(items []model.ItemView, tokens *tokenstore.Store) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tLEASE\tMINE")
	for _, it := range items {
		mine := ""
		if token, ok := tokens.Token(it.ID); ok &&
			it.ClaimFingerprint == model.TokenFingerprint(token) {
			mine = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", it.ID, it.Title, it.Lease, mine)
	}
	w.Flush()
}
