package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Addr    string // bind address, e.g. ":8090"
	DevMode bool   // include underlying error text in error bodies
	APIKey  string // require X-API-Key on every route when set
}

// ServerDeps carries what NewServer needs to assemble the service.
type ServerDeps struct {
	Handlers *Handlers
	Config   ServerConfig
}

// Server owns the echo instance and its shutdown lifecycle.
type Server struct {
	e      *echo.Echo
	cfg    ServerConfig
	closed chan struct{}
}

// NewServer assembles the status API around the given handlers.
func NewServer(deps ServerDeps) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// The slowest route is dry-run, which round-trips one simulation through
	// the RPC pool; the pool's bounded failover budget fits inside the write
	// timeout. Everything else answers from memory.
	e.Server.ReadTimeout = 15 * time.Second
	e.Server.WriteTimeout = 60 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	RegisterRoutes(e, deps.Handlers, deps.Config)

	return &Server{e: e, cfg: deps.Config, closed: make(chan struct{})}, nil
}

// Start serves requests until Shutdown.
func (s *Server) Start() error {
	return s.e.Start(s.cfg.Addr)
}

// Shutdown drains in-flight requests, waiting at most ten seconds.
func (s *Server) Shutdown(ctx context.Context) error {
	defer close(s.closed)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}

// WaitClosed blocks until Shutdown finishes or the context expires.
func (s *Server) WaitClosed(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

// SetNoCacheHeaders keeps responses out of intermediary caches. Derived
// addresses and simulations reflect live chain state.
func SetNoCacheHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "no-store")
		return next(c)
	}
}

// SetJSONContentType forces the JSON content type on every response.
func SetJSONContentType(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return next(c)
	}
}
