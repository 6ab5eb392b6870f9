package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/service"
	"github.com/shinyyama/auction-backend/internal/stream"
)

type StreamHandler struct {
	hub *stream.Hub
	svc service.AuctionService
}

func NewStreamHandler(hub *stream.Hub, svc service.AuctionService) *StreamHandler {
	return &StreamHandler{hub: hub, svc: svc}
}

// Watch upgrades to a websocket that receives the auction's bid_placed and auction_closed events.
func (h *StreamHandler) Watch(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	if _, err := h.svc.Get(c.Request().Context(), id); err != nil {
		return serviceError(c, err)
	}
	if err := h.hub.ServeWS(c.Response(), c.Request(), id); err != nil {
		c.Logger().Warnf("websocket upgrade auction=%d: %v", id, err)
	}
	return nil
}
