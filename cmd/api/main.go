package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gfranzoni/accountledger/internal/api"
	"github.com/gfranzoni/accountledger/internal/auth"
	"github.com/gfranzoni/accountledger/internal/clock"
	"github.com/gfranzoni/accountledger/internal/config"
	"github.com/gfranzoni/accountledger/internal/idempotency"
	"github.com/gfranzoni/accountledger/internal/repository"
	"github.com/gfranzoni/accountledger/internal/service"
	"github.com/gfranzoni/accountledger/internal/store"
)

const (
	tokenTTL        = 24 * time.Hour
	cleanupInterval = time.Hour
	apiRateLimit    = 50 // requests per second per caller
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("Unable to migrate schema: %v", err)
	}

	// Initialize layers
	clk := clock.RealClock{}
	repo := repository.New(st.Pool, clk)
	svc := service.NewAccountService(repo)
	authn := auth.New(cfg.JWTSecret, cfg.AuthUsername, cfg.AuthPasswordHash, tokenTTL, clk)
	cache := idempotency.NewCache(idempotency.DefaultTTL, clk)
	limiter := api.NewRateLimiter(apiRateLimit)

	handler := api.NewHandler(svc, authn)
	router := api.NewRouter(handler, authn, cache, limiter)

	// The cache never starts its own timers; this process owns the schedule.
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := cache.Cleanup(); removed > 0 {
					log.Printf("Idempotency cache cleanup removed %d expired entries", removed)
				}
			}
		}
	}()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on :%s (%s)", cfg.Port, cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
