// Command libwatch follows a user's bookmarks or favorites through the API
// and prints the library every time it changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/reelshelf/backend/internal/models"
	"github.com/anonto42/reelshelf/backend/internal/syncclient"
	"github.com/anonto42/reelshelf/backend/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", envOr("REELSHELF_API", "http://localhost:8080"), "API base URL")
	store := flag.String("store", "bookmarks", "store to follow: bookmarks or favorites")
	user := flag.String("user", os.Getenv("REELSHELF_USER"), "user id the token belongs to")
	debounce := flag.Duration("debounce", syncclient.DefaultDebounce, "refresh debounce window")
	reconnect := flag.Duration("reconnect", syncclient.DefaultReconnectDelay, "first wait before reopening a dropped stream")
	flag.Parse()

	log, err := logger.New(envOr("ENV", "development"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	token := os.Getenv("REELSHELF_TOKEN")
	if token == "" || *user == "" {
		log.Fatal("REELSHELF_TOKEN and -user are required")
	}
	kind := models.StoreKind(*store)
	if !kind.Valid() {
		log.Fatal("unknown store", "store", *store)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := syncclient.NewHTTPBackend(*apiURL, syncclient.StaticToken(token), nil, log)
	hook := syncclient.NewHook(*user, kind, backend, syncclient.Options{
		Debounce:       *debounce,
		ReconnectDelay: *reconnect,
		Logger:         log,
		OnChange: func(s syncclient.Snapshot) {
			if s.State == syncclient.StateReady || s.State == syncclient.StateError {
				printSnapshot(kind, s)
			}
		},
	})
	defer hook.Close()

	if err := hook.Start(ctx); err != nil {
		log.Warn("initial load failed", "error", err)
	}
	<-ctx.Done()
}

func printSnapshot(store models.StoreKind, s syncclient.Snapshot) {
	fmt.Printf("[%s] %s: %d movies, %d shows\n", time.Now().Format(time.TimeOnly), store, len(s.Library.Movies), len(s.Library.Shows))
	for _, v := range s.Library.Items() {
		switch {
		case v.MovieDetails != nil:
			fmt.Printf("  movie %d  %s\n", *v.MovieID, v.MovieDetails.Title)
		case v.ShowDetails != nil:
			fmt.Printf("  show  %d  %s\n", *v.ShowID, v.ShowDetails.Name)
		}
	}
	if s.Err != nil {
		fmt.Printf("  (refresh failed: %v)\n", s.Err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
