package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/avolkova/quizauth/internal/service"
	"github.com/avolkova/quizauth/internal/storage"
)

// ErrorHandler maps service sentinels to HTTP statuses. Every token or
// session validation failure collapses to the same "unauthenticated" body:
// the precise cause (malformed vs expired vs revoked vs replayed) is kept in
// the logs only, so the boundary leaks no oracle.
func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		switch {
		case isUnauthenticatedError(err):
			log.Infow("authentication rejected", "error", err, "uri", c.Request().RequestURI)
			writeJSON(log, c, http.StatusUnauthorized, "unauthenticated")
			return
		case errors.Is(err, service.ErrScopeMismatch):
			writeJSON(log, c, http.StatusForbidden, service.ErrScopeMismatch.Error())
			return
		case errors.Is(err, service.ErrInvalidCredentials):
			writeJSON(log, c, http.StatusBadRequest, service.ErrInvalidCredentials.Error())
			return
		case errors.Is(err, service.ErrAccountNotVerified):
			writeJSON(log, c, http.StatusForbidden, "please verify your account first")
			return
		case errors.Is(err, service.ErrRateLimited):
			writeJSON(log, c, http.StatusTooManyRequests, service.ErrRateLimited.Error())
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			writeJSON(log, c, he.Code, fmt.Sprintf("%v", he.Message))
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		writeJSON(log, c, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(log *zap.SugaredLogger, c echo.Context, status int, reason string) {
	if err := c.JSON(status, map[string]string{"reason": reason}); err != nil {
		log.Errorw("failed to write json response", "error", err)
	}
}

func isUnauthenticatedError(err error) bool {
	return errors.Is(err, service.ErrTokenInvalid) ||
		errors.Is(err, service.ErrTokenMalformed) ||
		errors.Is(err, service.ErrReplayDetected) ||
		errors.Is(err, service.ErrScopeNotAllowed) ||
		errors.Is(err, storage.ErrSessionNotFound) ||
		errors.Is(err, storage.ErrUserNotFound)
}
