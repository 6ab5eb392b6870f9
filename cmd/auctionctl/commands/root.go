package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/shinyyama/auction-backend/internal/config"
	"github.com/shinyyama/auction-backend/internal/db"
	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/repository"
	"github.com/shinyyama/auction-backend/internal/service"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	envFile    string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "auctionctl",
	Short: "Operator commands for the auction ledger",
	Long: `auctionctl runs maintenance tasks against the auction database:
schema migration, closing expired auctions, and inspecting an auction's ledger.

Connection settings come from the same DB_* environment variables as the API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load(envFile)
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(migrateCmd, sweepCmd, showCmd)
}

func connect() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return gdb, nil
}

// ledger builds the auction service without notifications or event publishing.
func ledger(gdb *gorm.DB) service.AuctionService {
	return service.NewAuctionService(
		repository.NewAuctionRepository(gdb),
		repository.NewCategoryRepository(gdb),
		repository.NewCommentRepository(gdb),
		repository.NewWatchlistRepository(gdb),
		nil,
		event.Nop(),
	)
}
