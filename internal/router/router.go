package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/email-confirmation/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/email-confirmation/internal/middleware" // import middleware for JWT authentication and caching
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check,
// used by load balancers and monitoring systems.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterEmails registers the email lifecycle endpoints under /v1.
// Every route requires a valid Bearer access token issued by the
// external account system; the JWTAuth middleware verifies it with the
// shared secret and injects the caller's user ID.  The cache middleware
// may be nil, in which case read endpoints are served uncached.
func RegisterEmails(e *echo.Echo, h *handler.EmailHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))

	// Read endpoints.  The cache key includes the caller so responses
	// never leak between accounts.  The key endpoint is deliberately
	// uncached: a reset invalidates the previous key immediately, and a
	// cached copy would keep handing out the dead key until the TTL ran
	// out.
	reads := []struct {
		path string
		h    echo.HandlerFunc
	}{
		{"/emails", h.ListEmails},
		{"/primary-email", h.GetPrimaryEmail},
	}
	for _, r := range reads {
		if cache != nil {
			g.GET(r.path, r.h, cache)
		} else {
			g.GET(r.path, r.h)
		}
	}
	g.GET("/emails/key", h.GetConfirmationKey)

	// Mutations.
	g.POST("/emails", h.AddUnconfirmedEmail)
	g.POST("/emails/confirmed", h.AddConfirmedEmail)
	g.POST("/emails/ensure", h.EnsureEmail)
	g.POST("/emails/confirm", h.ConfirmEmail)
	g.POST("/emails/reset", h.ResetEmailConfirmation)
	g.DELETE("/emails", h.RemoveEmail)
	g.PUT("/primary-email", h.SetPrimaryEmail)
}
