package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/auction-backend/internal/config"
	"github.com/shinyyama/auction-backend/internal/db"
	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/money"
	"github.com/shinyyama/auction-backend/internal/repository"
	"github.com/shinyyama/auction-backend/internal/service"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type seedAuction struct {
	Title         string
	Description   string
	StartingPrice string
	Category      string
	DurationDays  int
	Bids          int
}

var (
	sellers = []string{"seed-seller-1", "seed-seller-2", "seed-seller-3"}
	bidders = []string{"seed-bidder-1", "seed-bidder-2", "seed-bidder-3", "seed-bidder-4"}
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	canSeed, err := shouldSeed(ctx, gdb)
	if err != nil {
		return err
	}
	if !canSeed {
		log.Printf("auctions already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	auctionRepo := repository.NewAuctionRepository(gdb)
	categoryRepo := repository.NewCategoryRepository(gdb)
	// seeded bids should not notify anyone or reach the event stream
	svc := service.NewAuctionService(auctionRepo, categoryRepo,
		repository.NewCommentRepository(gdb), repository.NewWatchlistRepository(gdb), nil, event.Nop())

	auctions := buildSeedAuctions()
	bidCount := 0
	for idx, sa := range auctions {
		cat, err := categoryRepo.FindOrCreate(ctx, sa.Category)
		if err != nil {
			return fmt.Errorf("category %q: %w", sa.Category, err)
		}
		imageURL := picsumURL(sa.Category, idx+1)
		a, err := svc.Create(ctx, service.CreateAuctionRequest{
			OwnerUID:      sellers[idx%len(sellers)],
			Title:         sa.Title,
			Description:   sa.Description,
			StartingPrice: sa.StartingPrice,
			CategoryID:    &cat.ID,
			DurationDays:  sa.DurationDays,
			ImageURL:      &imageURL,
		})
		if err != nil {
			return fmt.Errorf("create auction %q: %w", sa.Title, err)
		}
		n, err := placeSeedBids(ctx, svc, a, sa.Bids, idx)
		if err != nil {
			return err
		}
		bidCount += n
	}

	log.Printf("seeded %d auctions with %d bids", len(auctions), bidCount)
	return nil
}

func buildSeedAuctions() []seedAuction {
	type cat struct {
		Name   string
		Price  string
		Titles []string
	}
	categories := []cat{
		{Name: "Fashion", Price: "25.00", Titles: []string{"Relaxed fit hoodie", "Organic cotton tee", "Classic denim jeans"}},
		{Name: "Electronics", Price: "120.00", Titles: []string{"14-inch ultrabook", "64GB tablet", "Mechanical keyboard"}},
		{Name: "Home", Price: "45.00", Titles: []string{"Solid wood side table", "Cotton rug 140x200", "Stacking shelf"}},
		{Name: "Books", Price: "8.50", Titles: []string{"Science fiction anthology", "Travel magazine bundle", "Graphic novel box set"}},
		{Name: "Toys", Price: "15.00", Titles: []string{"Building block kit", "1000 piece puzzle", "Model kit starter"}},
		{Name: "Collectibles", Price: "60.00", Titles: []string{"Vintage poster print", "Limited figure", "Trading card binder"}},
	}

	var out []seedAuction
	for _, c := range categories {
		for i, t := range c.Titles {
			out = append(out, seedAuction{
				Title:         t,
				Description:   fmt.Sprintf("%s (%s). Lightly used, stored at home. Ships within three days.", t, c.Name),
				StartingPrice: c.Price,
				Category:      c.Name,
				DurationDays:  service.MinDurationDays + i*2,
				Bids:          i + 1,
			})
		}
	}
	return out
}

// placeSeedBids raises the price by a varying step through the ledger so seeded rows obey the bid rules.
func placeSeedBids(ctx context.Context, svc service.AuctionService, a *model.Auction, n, seed int) (int, error) {
	for i := 0; i < n; i++ {
		step := money.Format(a.MinimumBid().Add(a.StartingPrice.Div(decimal.NewFromInt(10)).Mul(decimal.NewFromInt(int64(i + seed%3)))))
		res, err := svc.PlaceBid(ctx, service.PlaceBidRequest{
			AuctionID: a.ID,
			BidderUID: bidders[(seed+i)%len(bidders)],
			Amount:    step,
		})
		if err != nil {
			return i, fmt.Errorf("seed bid on auction %d: %w", a.ID, err)
		}
		a = res.Auction
	}
	return n, nil
}

func shouldSeed(ctx context.Context, gdb *gorm.DB) (bool, error) {
	var cnt int64
	if err := gdb.WithContext(ctx).Model(&model.Auction{}).Count(&cnt).Error; err != nil {
		return false, fmt.Errorf("count auctions: %w", err)
	}
	if cnt == 0 {
		return true, nil
	}
	force := os.Getenv("FORCE_SEED")
	return strings.EqualFold(force, "true"), nil
}

func picsumURL(category string, index int) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s-%d/600/600", strings.ToLower(category), index)
}
