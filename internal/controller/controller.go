package controller

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avolkova/quizauth/internal/models"
	"github.com/avolkova/quizauth/internal/service"
)

type Controller struct {
	zapLogger   *zap.SugaredLogger
	authService *service.AuthService
	tokens      *service.TokenService
}

func NewController(logger *zap.SugaredLogger, authService *service.AuthService, tokens *service.TokenService) *Controller {
	return &Controller{
		zapLogger:   logger,
		authService: authService,
		tokens:      tokens,
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/{user|admin}/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Identifier == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "identifier and password are required")
	}

	scope := service.RequiredScope(ctx.Request().URL.Path)
	if scope == "" {
		return echo.NewHTTPError(http.StatusNotFound, "unknown login scope")
	}

	_, pair, err := c.authService.Login(ctx.Request().Context(), req.Identifier, req.Password, scope)
	if err != nil {
		return err
	}

	c.setTokenCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Successfully logged in!"})
}

// (POST /api/{user|admin}/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	refreshToken := readCookie(ctx, models.RefreshCookieName)
	if refreshToken == "" {
		// Non-browser clients send the token in the body instead.
		var req models.TokenRefreshRequest
		if err := ctx.Bind(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}
	if refreshToken == "" {
		return service.ErrTokenInvalid
	}

	requiredScope := service.RequiredScope(ctx.Request().URL.Path)

	pair, err := c.authService.Rotate(ctx.Request().Context(), refreshToken, requiredScope)
	if err != nil {
		return err
	}

	c.setTokenCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, models.TokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// (POST /api/{user|admin}/auth/logout).
func (c *Controller) Logout(ctx echo.Context) error {
	refreshToken := readCookie(ctx, models.RefreshCookieName)
	accessToken := bearerToken(ctx)
	if accessToken == "" {
		accessToken = readCookie(ctx, models.AccessCookieName)
	}

	requiredScope := service.RequiredScope(ctx.Request().URL.Path)

	err := c.authService.RevokeByTokens(ctx.Request().Context(), refreshToken, accessToken, requiredScope)
	if err != nil {
		// Scope mismatch keeps the session and the cookies.
		return err
	}

	c.clearTokenCookies(ctx)
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "Logged out"})
}

// (GET /api/{user|admin}/me).
func (c *Controller) Me(ctx echo.Context) error {
	identity, ok := ctx.Get(models.IdentityContextKey).(*models.Identity)
	if !ok || identity == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	return ctx.JSON(http.StatusOK, models.UserResponse{
		ID:       identity.User.ID,
		FullName: identity.User.FullName,
		Email:    identity.User.Email,
		Username: identity.User.Username,
		Scope:    identity.Scope,
	})
}

func (c *Controller) setTokenCookies(ctx echo.Context, pair *service.TokenPair) {
	ctx.SetCookie(tokenCookie(models.AccessCookieName, pair.AccessToken, int(c.tokens.AccessTTL().Seconds())))
	ctx.SetCookie(tokenCookie(models.RefreshCookieName, pair.RefreshToken, int(c.tokens.RefreshTTL().Seconds())))
}

func (c *Controller) clearTokenCookies(ctx echo.Context) {
	ctx.SetCookie(tokenCookie(models.AccessCookieName, "", -1))
	ctx.SetCookie(tokenCookie(models.RefreshCookieName, "", -1))
}

func tokenCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func readCookie(ctx echo.Context, name string) string {
	cookie, err := ctx.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func bearerToken(ctx echo.Context) string {
	header := ctx.Request().Header.Get(models.AuthorizationHeader)
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(models.BearerPrefix)) {
		return ""
	}
	return strings.TrimSpace(header[len(models.BearerPrefix):])
}
