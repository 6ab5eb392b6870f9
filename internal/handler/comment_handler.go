package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/service"
)

type CommentHandler struct {
	svc service.CommentService
}

func NewCommentHandler(svc service.CommentService) *CommentHandler {
	return &CommentHandler{svc: svc}
}

type CommentResponse struct {
	ID        uint64 `json:"id"`
	AuctionID uint64 `json:"auctionId"`
	AuthorUID string `json:"authorUid"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

func toCommentResponse(cm *model.Comment) CommentResponse {
	return CommentResponse{
		ID:        cm.ID,
		AuctionID: cm.AuctionID,
		AuthorUID: cm.AuthorUID,
		Content:   cm.Content,
		CreatedAt: cm.CreatedAt.Format(time.RFC3339),
	}
}

func toCommentResponses(list []model.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(list))
	for i := range list {
		out = append(out, toCommentResponse(&list[i]))
	}
	return out
}

func (h *CommentHandler) Create(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json")
	}
	cm, err := h.svc.Add(c.Request().Context(), id, uid, body.Content)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toCommentResponse(cm))
}

func (h *CommentHandler) List(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid auction id")
	}
	list, err := h.svc.List(c.Request().Context(), id)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"comments": toCommentResponses(list),
	})
}
