package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
)

// Recovery returns middleware that recovers from panics, logs the stack
// trace, and returns a 500 to the client so a single panicking handler
// cannot take down the server.
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (returnErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic recovered",
						slog.Any("panic", r),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", c.Request().Method),
						slog.String("path", c.Request().URL.Path),
					)

					returnErr = c.JSON(http.StatusInternalServerError, map[string]string{
						"error":   http.StatusText(http.StatusInternalServerError),
						"message": "An unexpected error occurred. Please try again.",
					})
				}
			}()

			return next(c)
		}
	}
}
