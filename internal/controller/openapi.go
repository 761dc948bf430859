package controller

import (
	_ "embed"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
)

//go:embed openapi.yaml
var openapiSpec []byte

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, err
	}
	if err := swagger.Validate(loader.Context); err != nil {
		return nil, err
	}
	return swagger, nil
}

// RegisterHandlersWithBaseURL wires the auth routes under both scope
// prefixes. protected middleware (the authentication gate and the scope
// check) applies only to routes that require an identity.
func RegisterHandlersWithBaseURL(e *echo.Echo, c *Controller, base string, protected ...echo.MiddlewareFunc) {
	g := e.Group(base)
	g.GET("/ping", c.CheckServer)

	for _, prefix := range []string{"/user", "/admin"} {
		pg := g.Group(prefix)
		pg.POST("/auth/login", c.Login)
		pg.POST("/auth/refresh", c.Refresh)
		pg.POST("/auth/logout", c.Logout)
		pg.GET("/me", c.Me, protected...)
	}
}
