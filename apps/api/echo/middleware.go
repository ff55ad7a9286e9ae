package echoapi

import (
	"github.com/labstack/echo/v4"
)

// noStoreMiddleware keeps responses that may be reached through a secure link
// out of shared caches and referrer headers.
func noStoreMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		h := ctx.Response().Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Referrer-Policy", "no-referrer")
		return next(ctx)
	}
}
