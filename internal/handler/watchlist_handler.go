package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/service"
)

type WatchlistHandler struct {
	svc service.WatchlistService
}

func NewWatchlistHandler(svc service.WatchlistService) *WatchlistHandler {
	return &WatchlistHandler{svc: svc}
}

func (h *WatchlistHandler) Toggle(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	watched, err := h.svc.Toggle(c.Request().Context(), uid, id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"auctionId": id,
		"watched":   watched,
	})
}

func (h *WatchlistHandler) List(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.List(c.Request().Context(), uid)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionListResponse(list, int64(len(list))))
}
