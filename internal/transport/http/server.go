// Package http provides the admin HTTP server for the orchestrator.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	v1 "github.com/finagent/orchestrator/internal/transport/http/v1"
)

// NewServer creates and configures the admin HTTP server. It serves the
// approval inbox, run event history, the tool catalog and the ledger
// endpoints.
func NewServer(deps v1.Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Handlers
	handler := v1.NewHandler(deps)
	handler.RegisterRoutes(e)

	return e
}
