package handler

import (
	"context"
	"net/http"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/service"
)

// UserLookup resolves public profile fields; *auth.Client satisfies it.
type UserLookup interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

type UserHandler struct {
	users    UserLookup
	auctions service.AuctionService
}

// NewUserHandler accepts a nil lookup, in which case profiles carry only the uid.
func NewUserHandler(users UserLookup, auctions service.AuctionService) *UserHandler {
	return &UserHandler{users: users, auctions: auctions}
}

type PublicUserResponse struct {
	UID         string            `json:"uid"`
	DisplayName string            `json:"displayName"`
	PhotoURL    *string           `json:"photoURL"`
	Auctions    []AuctionResponse `json:"auctions"`
}

// GetPublic returns a seller's public profile with the auctions they are currently running.
func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", "invalid uid"))
	}
	resp := PublicUserResponse{UID: uid}
	if h.users != nil {
		user, err := h.users.GetUser(c.Request().Context(), uid)
		if err != nil {
			return c.JSON(http.StatusNotFound, NewErrorResponse("not_found", "user not found"))
		}
		resp.DisplayName = user.DisplayName
		resp.PhotoURL = strPtrOrNil(user.PhotoURL)
	}
	list, err := h.auctions.ListByOwner(c.Request().Context(), uid)
	if err != nil {
		return serviceError(c, err)
	}
	active := make([]model.Auction, 0, len(list))
	for _, a := range list {
		if a.IsActive {
			active = append(active, a)
		}
	}
	resp.Auctions = toAuctionListResponse(active, int64(len(active))).Auctions
	return c.JSON(http.StatusOK, resp)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
