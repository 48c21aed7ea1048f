package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minimart/backend/internal/audit"
	"minimart/backend/internal/cache"
	"minimart/backend/internal/config"
	"minimart/backend/internal/currency"
	"minimart/backend/internal/httpapi"
	"minimart/backend/internal/service"
	"minimart/backend/internal/store"
	"minimart/backend/internal/store/memory"
	"minimart/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[server] config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[server] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		log.Fatalf("[server] storage: %v", err)
	}
	defer closeRepo()

	views := buildViewCache(ctx, cfg)
	codec := buildAuditCodec(cfg)
	auditor := audit.NewStoreRecorder(repo, codec)

	svc := service.New(repo, views, auditor, codec, cfg.LowStockThreshold)
	auth := httpapi.NewAuthManager(repo, cfg.AuthSecret, cfg.AccessTokenTTL)
	rates := currency.New(cfg.ExchangeRateAPIURL, views, cfg.ExchangeRateTTL)

	api := httpapi.NewServer(svc, auth, rates, auditor, cfg.AllowedOrigin)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] listen: %v", err)
		}
	case <-ctx.Done():
		log.Printf("[server] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] WARN: shutdown: %v", err)
		}
	}
}

// buildRepository connects to Postgres when DATABASE_URL is set, otherwise
// falls back to the seeded in-memory store for local development.
func buildRepository(ctx context.Context, cfg config.Config) (store.Repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Printf("[server] WARN: DATABASE_URL not set, using in-memory storage")
		return memory.NewSeeded(), func() {}, nil
	}

	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[server] connected to postgres")
	return pg, func() { pg.Close() }, nil
}

func buildViewCache(ctx context.Context, cfg config.Config) cache.ViewCache {
	if cfg.RedisAddr == "" {
		return cache.NoopViewCache{}
	}

	views := cache.NewRedisViewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := views.Ping(pingCtx); err != nil {
		log.Printf("[server] WARN: redis unreachable, views uncached: %v", err)
		return cache.NoopViewCache{}
	}
	log.Printf("[server] connected to redis")
	return views
}

func buildAuditCodec(cfg config.Config) audit.Codec {
	if cfg.AuditEncryptionKey == "" {
		log.Printf("[server] WARN: audit encryption not configured, details stored in plain text")
		return audit.PlainCodec{}
	}

	codec, err := audit.NewAESCodec(cfg.AuditEncryptionKey, cfg.AuditEncryptionIV)
	if err != nil {
		log.Printf("[server] WARN: audit encryption disabled: %v", err)
		return audit.PlainCodec{}
	}
	return codec
}
