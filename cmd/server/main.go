package main

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quartzclinique/formgate/config"
	"github.com/quartzclinique/formgate/dispatch"
	"github.com/quartzclinique/formgate/errlog"
	"github.com/quartzclinique/formgate/gatekeeper"
	"github.com/quartzclinique/formgate/ratelimit"
	"github.com/quartzclinique/formgate/ratelimit/store"
	"github.com/quartzclinique/formgate/respond"
	"github.com/quartzclinique/formgate/session"
	"github.com/quartzclinique/formgate/submit"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal(err)
	}

	dir, err := cfg.StorageDir()
	if err != nil {
		log.Fatal(err)
	}

	diag := errlog.New(filepath.Join(dir, "mailer.log"), errlog.DefaultMaxBytes)

	st, err := newStore(cfg, dir)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	sessions := session.NewMemory(session.DefaultTTL)
	defer sessions.Close()

	relay := cfg.Relay()
	pipeline := &submit.Pipeline{
		Gatekeeper: gatekeeper.New(cfg.AllowedOrigins(), sessions, diag),
		Limiter:    ratelimit.New(st),
		Sessions:   sessions,
		Dispatcher: dispatch.NewSMTP(relay),
		Relay:      relay,
		Log:        diag,
	}

	r := chi.NewRouter()
	r.Use(respond.New())

	// Both handlers answer wrong methods themselves so the 405 carries the
	// JSON body clients expect, not chi's plain-text default.
	r.HandleFunc("/api/contact", pipeline.Contact)
	r.HandleFunc("/api/csrf-token", pipeline.Token)

	log.Printf("Starting server on %s (rate limit store: %s)", cfg.Addr(), cfg.RateLimitBackend())
	if err := http.ListenAndServe(cfg.Addr(), r); err != nil {
		log.Fatal(err)
	}
}

func newStore(cfg *config.Config, dir string) (store.Store, error) {
	window := config.RateLimitWindowSeconds * time.Second

	switch backend := cfg.RateLimitBackend(); backend {
	case "file":
		return store.NewFile(filepath.Join(dir, "rate_limit.json"), config.RateLimitMax, window), nil
	case "memory":
		return store.NewMemory(config.RateLimitMax, window), nil
	case "redis":
		return store.NewRedis(store.RedisConfig{
			URL:      cfg.RedisURL(),
			Password: cfg.RedisPassword(),
			DB:       cfg.RedisDB(),
		}, config.RateLimitMax, window)
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", backend)
	}
}
