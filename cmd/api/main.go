package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"keygate.org/internal/catalog"
	"keygate.org/internal/credential"
	"keygate.org/internal/httpapi"
	"keygate.org/internal/identity"
	"keygate.org/internal/obs"
	"keygate.org/internal/store/memory"
	"keygate.org/internal/store/pg"
	"keygate.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("KEYGATE_COMMIT"))

	var (
		store identity.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("KEYGATE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("KEYGATE_PG_DSN not set, using in-memory store")
		store = memory.New()
	}

	dir, err := identity.NewDirectory(store)
	if err != nil {
		log.Fatalf("identity directory: %v", err)
	}
	verifier := credential.NewVerifier(store, envInt("KEYGATE_KDF_ROUNDS", credential.DefaultRounds))

	tokenOpts := []token.Option{
		token.WithSweepInterval(envDuration("KEYGATE_TOKEN_SWEEP", 5*time.Minute)),
	}
	if secret := os.Getenv("KEYGATE_TOKEN_SECRET"); secret != "" {
		provider, err := token.NewJWTProvider(secret, "keygate")
		if err != nil {
			log.Fatalf("token provider: %v", err)
		}
		tokenOpts = append(tokenOpts, token.WithProvider(provider))
	}
	authority, err := token.NewAuthority(store, tokenOpts...)
	if err != nil {
		log.Fatalf("token authority: %v", err)
	}

	resolver := catalog.NewResolver(store)
	api := httpapi.New(probe, version, dir, verifier, authority, resolver)

	addr := os.Getenv("KEYGATE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go authority.RunSweeper(sweepCtx)

	log.Printf("Starting keygate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
