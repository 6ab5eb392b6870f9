package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/auction-backend/internal/reqctx"
)

// RequestID tags each request with an X-Request-ID and copies it into the request context for logging.
func RequestID() echo.MiddlewareFunc {
	return echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, rid string) {
			c.SetRequest(c.Request().WithContext(reqctx.WithRID(c.Request().Context(), rid)))
		},
	})
}
