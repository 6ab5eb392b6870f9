package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/money"
	"github.com/shinyyama/auction-backend/internal/service"
)

type AuctionHandler struct {
	svc    service.AuctionService
	notify service.NotificationService
}

func NewAuctionHandler(svc service.AuctionService, notify service.NotificationService) *AuctionHandler {
	return &AuctionHandler{svc: svc, notify: notify}
}

type AuctionResponse struct {
	ID            uint64  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description"`
	OwnerUID      string  `json:"ownerUid"`
	StartingPrice string  `json:"startingPrice"`
	CurrentPrice  string  `json:"currentPrice"`
	MinimumBid    string  `json:"minimumBid"`
	IsActive      bool    `json:"isActive"`
	WinnerUID     *string `json:"winnerUid,omitempty"`
	ImageURL      *string `json:"imageUrl,omitempty"`
	CategoryID    *uint64 `json:"categoryId,omitempty"`
	StartTime     string  `json:"startTime"`
	EndTime       *string `json:"endTime,omitempty"`
	ClosedAt      *string `json:"closedAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type AuctionListResponse struct {
	Auctions []AuctionResponse `json:"auctions"`
	Total    int64             `json:"total"`
}

type BidResponse struct {
	ID        uint64 `json:"id"`
	AuctionID uint64 `json:"auctionId"`
	BidderUID string `json:"bidderUid"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"createdAt"`
}

type AuctionDetailResponse struct {
	Auction    AuctionResponse   `json:"auction"`
	Category   *CategoryResponse `json:"category,omitempty"`
	BidCount   int64             `json:"bidCount"`
	HighestBid *BidResponse      `json:"highestBid,omitempty"`
	Bids       []BidResponse     `json:"bids"`
	Comments   []CommentResponse `json:"comments"`
	IsOwner    bool              `json:"isOwner"`
	IsWinner   bool              `json:"isWinner"`
	Watched    bool              `json:"watched"`
}

type PriceResponse struct {
	AuctionID    uint64       `json:"auctionId"`
	CurrentPrice string       `json:"currentPrice"`
	MinimumBid   string       `json:"minimumBid"`
	BidCount     int64        `json:"bidCount"`
	HighestBid   *BidResponse `json:"highestBid,omitempty"`
}

type PlaceBidResponse struct {
	Bid     BidResponse     `json:"bid"`
	Auction AuctionResponse `json:"auction"`
}

type CreateAuctionRequest struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	StartingPrice json.Number `json:"startingPrice"`
	CategoryID    *uint64     `json:"categoryId"`
	DurationDays  int         `json:"durationDays"`
	ImageURL      *string     `json:"imageUrl"`
}

// PlaceBidRequest accepts the amount as a JSON number or string; it is never converted to float.
type PlaceBidRequest struct {
	Amount json.Number `json:"amount"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}

func toAuctionResponse(a *model.Auction) AuctionResponse {
	return AuctionResponse{
		ID:            a.ID,
		Title:         a.Title,
		Description:   a.Description,
		OwnerUID:      a.OwnerUID,
		StartingPrice: money.Format(a.StartingPrice),
		CurrentPrice:  money.Format(a.EffectivePrice()),
		MinimumBid:    money.Format(a.MinimumBid()),
		IsActive:      a.IsActive,
		WinnerUID:     a.WinnerUID,
		ImageURL:      a.ImageURL,
		CategoryID:    a.CategoryID,
		StartTime:     a.StartTime.Format(time.RFC3339),
		EndTime:       formatTime(a.EndTime),
		ClosedAt:      formatTime(a.ClosedAt),
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.Format(time.RFC3339),
	}
}

func toAuctionListResponse(list []model.Auction, total int64) AuctionListResponse {
	resp := AuctionListResponse{
		Auctions: make([]AuctionResponse, 0, len(list)),
		Total:    total,
	}
	for i := range list {
		resp.Auctions = append(resp.Auctions, toAuctionResponse(&list[i]))
	}
	return resp
}

func toBidResponse(b *model.Bid) BidResponse {
	return BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderUID: b.BidderUID,
		Amount:    money.Format(b.Amount),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

func toBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for i := range bids {
		out = append(out, toBidResponse(&bids[i]))
	}
	return out
}

func (h *AuctionHandler) Create(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	a, err := h.svc.Create(c.Request().Context(), service.CreateAuctionRequest{
		OwnerUID:      uid,
		Title:         req.Title,
		Description:   req.Description,
		StartingPrice: req.StartingPrice.String(),
		CategoryID:    req.CategoryID,
		DurationDays:  req.DurationDays,
		ImageURL:      req.ImageURL,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(a))
}

func (h *AuctionHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	var categoryID *uint64
	if v := c.QueryParam("category"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid category")
		}
		categoryID = &id
	}
	list, total, err := h.svc.ListActive(c.Request().Context(), categoryID, limit, offset)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionListResponse(list, total))
}

func (h *AuctionHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	uid := currentUID(c)
	d, err := h.svc.Detail(c.Request().Context(), id, uid)
	if err != nil {
		return serviceError(c, err)
	}
	if uid != "" && h.notify != nil {
		_ = h.notify.MarkByAuction(c.Request().Context(), uid, id)
	}
	resp := AuctionDetailResponse{
		Auction:  toAuctionResponse(d.Auction),
		BidCount: d.BidCount,
		Bids:     toBidResponses(d.Bids),
		Comments: toCommentResponses(d.Comments),
		IsOwner:  d.IsOwner,
		IsWinner: d.IsWinner,
		Watched:  d.Watched,
	}
	if d.Category != nil {
		cat := toCategoryResponse(d.Category)
		resp.Category = &cat
	}
	if d.HighestBid != nil {
		top := toBidResponse(d.HighestBid)
		resp.HighestBid = &top
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuctionHandler) Price(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	ctx := c.Request().Context()
	current, err := h.svc.CurrentPrice(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	minimum, err := h.svc.MinimumBid(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	count, err := h.svc.BidCount(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	top, err := h.svc.HighestBid(ctx, id)
	if err != nil {
		return serviceError(c, err)
	}
	resp := PriceResponse{
		AuctionID:    id,
		CurrentPrice: money.Format(current),
		MinimumBid:   money.Format(minimum),
		BidCount:     count,
	}
	if top != nil {
		b := toBidResponse(top)
		resp.HighestBid = &b
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	bids, err := h.svc.ListBids(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"bids": toBidResponses(bids),
	})
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("invalid_amount", "amount must be a decimal number"))
	}
	res, err := h.svc.PlaceBid(c.Request().Context(), service.PlaceBidRequest{
		AuctionID: id,
		BidderUID: uid,
		Amount:    req.Amount.String(),
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, PlaceBidResponse{
		Bid:     toBidResponse(res.Bid),
		Auction: toAuctionResponse(res.Auction),
	})
}

func (h *AuctionHandler) Close(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	a, err := h.svc.Close(c.Request().Context(), id, uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(a))
}

func (h *AuctionHandler) ListMine(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListByOwner(c.Request().Context(), uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionListResponse(list, int64(len(list))))
}

func (h *AuctionHandler) ListWon(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.ListWon(c.Request().Context(), uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionListResponse(list, int64(len(list))))
}
