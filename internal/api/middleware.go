package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/service"
)

// Authenticator resolves a bearer access token into an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*models.Identity, error)
}

// AuthGateMiddleware extracts an access token from the Authorization header
// (preferred) or the access cookie, and attaches the resolved Identity to
// the request context. A missing credential is not an error here: the
// request proceeds without an identity and the scope check denies it.
// An invalid credential fails the request.
func AuthGateMiddleware(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := extractAccessToken(c)
			if raw == "" {
				return next(c)
			}

			identity, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}

			c.Set(models.IdentityContextKey, identity)
			return next(c)
		}
	}
}

// RequireScopeMiddleware enforces the route-prefix scope binding. Fail
// closed: no identity means deny, regardless of path.
func RequireScopeMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := c.Get(models.IdentityContextKey).(*models.Identity)
			if !ok || identity == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			if !service.Authorize(c.Request().URL.Path, identity.Scope) {
				return service.ErrScopeMismatch
			}

			return next(c)
		}
	}
}

func extractAccessToken(c echo.Context) string {
	header := c.Request().Header.Get(models.AuthorizationHeader)
	if strings.HasPrefix(strings.ToLower(header), strings.ToLower(models.BearerPrefix)) {
		return strings.TrimSpace(header[len(models.BearerPrefix):])
	}

	cookie, err := c.Cookie(models.AccessCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func GetLoggerMiddlewareConfig(a *API) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", c.Request().Method,
				"uri", v.URI,
				"status", v.Status,
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
				a.log.Errorw("Request", fields...)
			} else {
				a.log.Infow("Request", fields...)
			}
			return nil
		},
	}
}
