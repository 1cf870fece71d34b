package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http" // HTTP status codes for responses
	"strconv"  // string-to-int conversion for the subject claim
	"strings"  // string utilities for prefix checking and trimming

	"github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
	"github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// ContextUserID is the Echo context key under which JWTAuth stores the
// authenticated user's numeric identifier.
const ContextUserID = "user_id"

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and injects the token's subject claim into the request context as a
// uint64.  Tokens are issued by the external account system; this service
// only verifies them with the shared secret.  Handlers read the caller's
// identity via UserID(c).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header starts with "Bearer " followed by the JWT.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			// Parse the token using the HS256 signing method and our
			// secret.  The callback supplies the signing key and ensures
			// the algorithm matches what we expect; tokens signed with a
			// different method are rejected.
			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			// The subject carries the user ID.  JWT numeric values decode
			// as float64; some issuers encode numeric strings instead, so
			// both forms are accepted.
			var uid uint64
			switch sub := claims["sub"].(type) {
			case float64:
				uid = uint64(sub)
			case string:
				if parsed, err := strconv.ParseUint(sub, 10, 64); err == nil {
					uid = parsed
				}
			}
			if uid == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
			}

			c.Set(ContextUserID, uid)
			return next(c)
		}
	}
}

// UserID extracts the authenticated user's identifier stored by JWTAuth.
// The second return value is false when the middleware did not run.
func UserID(c echo.Context) (uint64, bool) {
	uid, ok := c.Get(ContextUserID).(uint64)
	return uid, ok
}
