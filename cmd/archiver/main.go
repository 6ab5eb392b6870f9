package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shinyyama/auction-backend/internal/archive"
	"github.com/shinyyama/auction-backend/internal/config"
	"github.com/shinyyama/auction-backend/internal/db"
	"github.com/shinyyama/auction-backend/internal/repository"
	"google.golang.org/api/option"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.NatsURL == "" || cfg.ArchiveBucket == "" {
		log.Fatalf("NATS_URL and ARCHIVE_BUCKET are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}

	var opts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	gcs, err := storage.NewClient(ctx, opts...)
	if err != nil {
		log.Fatalf("storage client error: %v", err)
	}
	defer gcs.Close()

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("auction-archiver"), nats.MaxReconnects(-1))
	if err != nil {
		log.Fatalf("nats connect error: %v", err)
	}
	defer nc.Drain()
	js, err := jetstream.New(nc)
	if err != nil {
		log.Fatalf("jetstream error: %v", err)
	}

	archiver := archive.NewArchiver(repository.NewAuctionRepository(gdb), archive.NewGCSStore(gcs, cfg.ArchiveBucket))
	log.Printf("archiving closed auctions to gs://%s", cfg.ArchiveBucket)
	if err := archive.Consume(ctx, js, archiver); err != nil {
		log.Fatalf("archiver stopped: %v", err)
	}
	log.Printf("archiver stopped")
}
