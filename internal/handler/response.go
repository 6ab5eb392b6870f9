package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/auction-backend/internal/reqctx"
	"github.com/shinyyama/auction-backend/internal/service"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error errorPayload `json:"error"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: errorPayload{
			Code:    code,
			Message: message,
		},
	}
}

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrBidTooLow, http.StatusConflict, "bid_too_low"},
	{service.ErrAuctionClosed, http.StatusConflict, "auction_closed"},
	{service.ErrAlreadyClosed, http.StatusConflict, "already_closed"},
	{service.ErrSelfBid, http.StatusUnprocessableEntity, "self_bid_forbidden"},
}

// serviceError renders a service error with its status and code. Unknown errors are logged
// and reported as internal_error without detail.
func serviceError(c echo.Context, err error) error {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return c.JSON(e.status, NewErrorResponse(e.code, message(err, e.err)))
		}
	}
	c.Logger().Errorf("%s %s %s: %v", reqctx.Tag(c.Request().Context()), c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, NewErrorResponse("internal_error", "internal error"))
}

// message turns "bid_too_low: minimum bid is 10.01" into "minimum bid is 10.01".
func message(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return strings.ReplaceAll(msg, "_", " ")
}

func currentUID(c echo.Context) string {
	uid, _ := c.Get("uid").(string)
	return uid
}

func parseID(c echo.Context, name string) (uint64, error) {
	return strconv.ParseUint(c.Param(name), 10, 64)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, NewErrorResponse("unauthorized", "missing uid"))
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, NewErrorResponse("bad_request", msg))
}
