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

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/shinyyama/auction-backend/internal/config"
	"github.com/shinyyama/auction-backend/internal/db"
	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/middleware"
	"github.com/shinyyama/auction-backend/internal/server"
	"github.com/shinyyama/auction-backend/internal/stream"
	"github.com/shinyyama/auction-backend/internal/worker"
)

// Set with -ldflags at build time.
var (
	gitSHA    = "dev"
	buildTime = ""
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authMw, err := middleware.NewAuthMiddleware(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init auth (%s): %v", cfg.AuthMode, err)
	}

	hub := stream.NewHub(middleware.AllowOrigin(cfg.CORSOriginSuffixes))
	go hub.Run(ctx)

	var pubs []event.Publisher
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis ping error: %v", err)
		}
		pubs = append(pubs, event.NewRedisPublisher(rdb))
		go func() {
			if err := stream.NewSubscriber(rdb, hub).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("redis subscriber stopped: %v", err)
			}
		}()
	} else {
		// single instance: deliver straight to local websocket clients
		pubs = append(pubs, hub)
	}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("auction-api"), nats.MaxReconnects(-1))
		if err != nil {
			log.Printf("nats connect error: %v", err)
		} else if np, err := event.NewNATSPublisher(ctx, nc); err != nil {
			log.Printf("nats publisher error: %v", err)
			nc.Close()
		} else {
			pubs = append(pubs, np)
		}
	}
	publisher := event.Multi(pubs...)
	defer publisher.Close()

	srv := server.New(nil, server.Options{
		Auth:               authMw,
		Publisher:          publisher,
		Hub:                hub,
		CORSOriginSuffixes: cfg.CORSOriginSuffixes,
		DefaultDays:        cfg.DefaultDurationDays,
		SHA:                gitSHA,
		BuildTime:          buildTime,
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Printf("starting server on %s (auth=%s)", addr, authMw.Mode())
		errCh <- srv.Start(addr)
	}()

	go func() {
		conn, err := db.Connect(cfg)
		if err != nil {
			log.Printf("db connect error: %v", err)
			return
		}
		if err := db.Migrate(conn); err != nil {
			log.Printf("auto migrate error: %v", err)
		}
		srv.SetDB(conn)
		log.Printf("database ready; sweeping expired auctions every %s", cfg.SweepInterval)
		worker.NewSweeper(srv.Auctions(), cfg.SweepInterval).Run(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server stopped: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
