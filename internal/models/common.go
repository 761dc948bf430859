package models

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"

	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "

	// IdentityContextKey is the echo context key the authentication gate
	// stores the resolved *Identity under.
	IdentityContextKey = "identity"
)
