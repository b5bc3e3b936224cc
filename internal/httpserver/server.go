package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	api "github.com/justgrego/AI-pplicant/api/http"
	"github.com/justgrego/AI-pplicant/internal/config"
)

// Server bundles the router and its dependencies.
type Server struct {
	Router http.Handler
}

// New builds the Echo router with middleware and the interview API mounted.
func New(cfg config.Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType},
	}))

	api.NewHandlers(cfg).Register(e)
	return &Server{Router: e}
}
