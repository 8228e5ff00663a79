package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-booking/internal/model"
)

const callerKey = "caller"

// JWTAuth validates a Bearer access token signed with secret (HS256) and
// stores the resulting model.Caller in the request context.  The caller's
// role comes from the "role" claim and its ID from "sub".
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, found := strings.CutPrefix(auth, "Bearer ")
			if !found || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			sub, _ := claims.GetSubject()
			role, _ := claims["role"].(string)
			c.Set(callerKey, model.Caller{ID: sub, Role: model.ParseRole(role)})
			return next(c)
		}
	}
}

// CallerFrom returns the caller stored by JWTAuth.  Requests that did not
// pass through JWTAuth are anonymous customers.
func CallerFrom(c echo.Context) model.Caller {
	if v, ok := c.Get(callerKey).(model.Caller); ok {
		return v
	}
	return model.Caller{Role: model.RoleCustomer}
}
