package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/auction-backend/internal/event"
	"github.com/shinyyama/auction-backend/internal/handler"
	appmw "github.com/shinyyama/auction-backend/internal/middleware"
	"github.com/shinyyama/auction-backend/internal/repository"
	"github.com/shinyyama/auction-backend/internal/service"
	"github.com/shinyyama/auction-backend/internal/stream"
	"gorm.io/gorm"
)

type Options struct {
	Auth               *appmw.AuthMiddleware
	Publisher          event.Publisher
	Hub                *stream.Hub
	CORSOriginSuffixes []string
	DefaultDays        int
	SHA                string
	BuildTime          string
}

type Server struct {
	e        *echo.Echo
	repos    []interface{ SetDB(*gorm.DB) }
	auctions service.AuctionService
}

func New(db *gorm.DB, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(appmw.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", appmw.HeaderUID},
		AllowCredentials: true,
		AllowOriginFunc:  appmw.AllowOrigin(opts.CORSOriginSuffixes),
	}))

	auctionRepo := repository.NewAuctionRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	watchRepo := repository.NewWatchlistRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	notifSvc := service.NewNotificationService(notifRepo)
	auctionSvc := service.NewAuctionService(auctionRepo, categoryRepo, commentRepo, watchRepo, notifSvc, opts.Publisher,
		service.WithDefaultDuration(opts.DefaultDays))
	watchSvc := service.NewWatchlistService(watchRepo, auctionRepo)
	commentSvc := service.NewCommentService(commentRepo, auctionRepo)
	categorySvc := service.NewCategoryService(categoryRepo, auctionRepo)

	auctionHandler := handler.NewAuctionHandler(auctionSvc, notifSvc)
	watchHandler := handler.NewWatchlistHandler(watchSvc)
	commentHandler := handler.NewCommentHandler(commentSvc)
	categoryHandler := handler.NewCategoryHandler(categorySvc)
	notifHandler := handler.NewNotificationHandler(notifSvc)

	authMw := opts.Auth
	if authMw == nil {
		e.Logger.Warn("no auth middleware configured; falling back to X-User-UID header auth")
		authMw = appmw.NewHeaderAuth()
	}
	var users handler.UserLookup
	if client := authMw.Client(); client != nil {
		users = client
	}
	userHandler := handler.NewUserHandler(users, auctionSvc)
	requireAuth := authMw.RequireAuth
	optionalAuth := authMw.OptionalAuth

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.SHA,
			"build_time": opts.BuildTime,
		})
	})

	api := e.Group("/api")
	api.GET("/auctions", auctionHandler.List)
	api.POST("/auctions", auctionHandler.Create, requireAuth)
	api.GET("/auctions/:id", auctionHandler.Get, optionalAuth)
	api.GET("/auctions/:id/price", auctionHandler.Price)
	api.GET("/auctions/:id/bids", auctionHandler.ListBids)
	api.POST("/auctions/:id/bids", auctionHandler.PlaceBid, requireAuth)
	api.POST("/auctions/:id/close", auctionHandler.Close, requireAuth)
	api.POST("/auctions/:id/watch", watchHandler.Toggle, requireAuth)
	api.GET("/auctions/:id/comments", commentHandler.List)
	api.POST("/auctions/:id/comments", commentHandler.Create, requireAuth)

	api.GET("/categories", categoryHandler.List)
	api.POST("/categories", categoryHandler.Create, requireAuth)
	api.GET("/categories/:id/auctions", categoryHandler.ListAuctions)

	api.GET("/me/auctions", auctionHandler.ListMine, requireAuth)
	api.GET("/me/won", auctionHandler.ListWon, requireAuth)
	api.GET("/me/watchlist", watchHandler.List, requireAuth)
	api.GET("/me/notifications", notifHandler.List, requireAuth)
	api.POST("/me/notifications/read", notifHandler.MarkAllRead, requireAuth)
	api.GET("/users/:uid/public", userHandler.GetPublic)

	if opts.Hub != nil {
		streamHandler := handler.NewStreamHandler(opts.Hub, auctionSvc)
		e.GET("/ws/auctions/:id", streamHandler.Watch)
	}

	return &Server{
		e:        e,
		repos:    []interface{ SetDB(*gorm.DB) }{auctionRepo, categoryRepo, commentRepo, watchRepo, notifRepo},
		auctions: auctionSvc,
	}
}

// Auctions exposes the ledger service for background workers sharing this server's wiring.
func (s *Server) Auctions() service.AuctionService {
	return s.auctions
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// SetDB swaps the connection used by every repository, e.g. after a delayed database connect.
func (s *Server) SetDB(db *gorm.DB) {
	for _, r := range s.repos {
		r.SetDB(db)
	}
}
