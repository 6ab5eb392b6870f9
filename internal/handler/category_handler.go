package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/model"
	"github.com/shinyyama/auction-backend/internal/service"
)

type CategoryHandler struct {
	svc service.CategoryService
}

func NewCategoryHandler(svc service.CategoryService) *CategoryHandler {
	return &CategoryHandler{svc: svc}
}

type CategoryResponse struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func toCategoryResponse(cat *model.Category) CategoryResponse {
	return CategoryResponse{ID: cat.ID, Name: cat.Name}
}

func (h *CategoryHandler) List(c echo.Context) error {
	list, err := h.svc.List(c.Request().Context())
	if err != nil {
		return serviceError(c, err)
	}
	resp := make([]CategoryResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toCategoryResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": resp,
	})
}

func (h *CategoryHandler) Create(c echo.Context) error {
	if currentUID(c) == "" {
		return unauthorized(c)
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid json")
	}
	cat, err := h.svc.Create(c.Request().Context(), body.Name)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusCreated, toCategoryResponse(cat))
}

func (h *CategoryHandler) ListAuctions(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, "invalid category id")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	cat, list, total, err := h.svc.ListAuctions(c.Request().Context(), id, limit, offset)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"category": toCategoryResponse(cat),
		"auctions": toAuctionListResponse(list, total).Auctions,
		"total":    total,
	})
}
