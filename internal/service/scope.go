package service

import (
	"strings"

	"github.com/avolkova/quizauth/internal/models"
)

// RequiredScope returns the scope an /api/admin/ or /api/user/ route binds
// to, or "" for paths without a scope binding.
func RequiredScope(path string) models.Scope {
	path = strings.ToLower(path)
	switch {
	case strings.HasPrefix(path, "/api/admin/"):
		return models.ScopeAdmin
	case strings.HasPrefix(path, "/api/user/"):
		return models.ScopeUser
	default:
		return ""
	}
}

// Authorize reports whether a scope may access the given path. Pure and
// fail-closed: unknown prefixes and empty scopes are denied.
func Authorize(path string, scope models.Scope) bool {
	path = strings.ToLower(path)
	switch {
	case strings.HasPrefix(path, "/api/admin/"):
		return scope == models.ScopeAdmin
	case strings.HasPrefix(path, "/api/user/"):
		return scope == models.ScopeUser
	case strings.HasPrefix(path, "/api/"):
		return scope == models.ScopeUser || scope == models.ScopeAdmin
	default:
		return false
	}
}
