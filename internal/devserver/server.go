// Package devserver is an in-memory chat backend speaking the same REST and
// live-connection protocol as the production service. It backs local runs
// and the client's end-to-end tests.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

// Server wires the store, the hub and the HTTP routes together.
type Server struct {
	echo   *echo.Echo
	store  *Store
	hub    *Hub
	secret []byte
	logger *slog.Logger
}

// Option is a function that configures a Server.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	rateLimit int
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRateLimit caps send requests per client IP and minute.
func WithRateLimit(perMinute int) Option {
	return func(o *options) {
		o.rateLimit = perMinute
	}
}

// New builds a server signing tokens with secret and seeded with one user per
// name.
func New(secret string, names []string, opts ...Option) *Server {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "devserver")

	s := &Server{
		echo:   echo.New(),
		store:  NewStore(),
		hub:    NewHub(logger),
		secret: []byte(secret),
		logger: logger,
	}
	s.store.Seed(names...)

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.Use(middleware.RequestID())
	e.Use(RequestLogger(logger))
	e.Use(middleware.Recover())

	h := &handler{store: s.store, hub: s.hub}
	e.GET("/ws", s.hub.Handler)

	apiGroup := e.Group("/api", Auth(s.secret, s.store))
	apiGroup.GET("/auth/check", h.CheckAuth)
	apiGroup.GET("/messages/users", h.ListUsers)
	apiGroup.GET("/messages/:id", h.ListMessages)
	apiGroup.POST("/messages/send/:id", h.SendMessage, RateLimiter(o.rateLimit))

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Hub returns the live-connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Token issues a session token for userID.
func (s *Server) Token(userID string) (string, error) {
	return IssueToken(s.secret, userID, time.Now())
}

// Run serves on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Dev server listening", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.Close()
		return s.echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close drops live connections and stops the server.
func (s *Server) Close() error {
	s.hub.Close()
	return s.echo.Close()
}
