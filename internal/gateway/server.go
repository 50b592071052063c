// Package gateway serves the task execution API over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/taskweaver/internal/billing"
	"github.com/soyeahso/taskweaver/internal/config"
	"github.com/soyeahso/taskweaver/internal/hooks"
	"github.com/soyeahso/taskweaver/internal/logging"
	"github.com/soyeahso/taskweaver/internal/runner"
	"github.com/soyeahso/taskweaver/internal/store"
	"github.com/soyeahso/taskweaver/internal/taskexec"
)

// Deps are the services the gateway exposes. Hooks is optional.
type Deps struct {
	Agents  *store.AgentStore
	Sources *store.DataSourceStore
	Tasks   *store.TaskStore
	Usage   *store.UsageStore
	Billing *billing.Enforcer
	Exec    *taskexec.Service
	Runner  *runner.Runner
	Hooks   *hooks.Manager
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.Config
	deps    Deps
	auth    ResolvedAuth
	log     *logging.Logger
	limiter *clientLimiter
	lockout *authLockout
	now     func() time.Time

	mu        sync.RWMutex
	addr      string
	startedAt time.Time
}

// New creates a gateway server.
func New(cfg config.Config, deps Deps, log *logging.Logger) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		auth:    ResolveAuth(cfg.Gateway.Auth),
		log:     log.Sub("gateway"),
		limiter: newClientLimiter(cfg.Gateway.RateLimit.RequestsPerSecond, cfg.Gateway.RateLimit.Burst),
		lockout: newAuthLockout(),
		now:     time.Now,
	}
}

// Handler returns the routed API with the full middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var h http.Handler = mux
	h = s.authMiddleware(h)
	h = rateLimitMiddleware(h, s.limiter, s.log)
	h = requestIDMiddleware(h)
	h = corsMiddleware(h, s.cfg.Gateway.AllowedOrigins)
	h = loggingMiddleware(h, s.log)
	return h
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Task runs hold the response open for the provider call.
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.startedAt = s.now()
	s.mu.Unlock()

	if s.auth.Mode == "none" && s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("authentication is disabled on a non-loopback address")
	}
	s.log.Info().
		Str("addr", s.Addr()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("auth", s.auth.Mode).
		Msg("gateway server ready")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": s.Addr()})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gateway server")
	stopCtx := context.WithoutCancel(ctx)
	s.emit(stopCtx, hooks.EventGatewayStop, map[string]any{"addr": s.Addr()})

	shutdownCtx, cancel := context.WithTimeout(stopCtx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Addr returns the address the server listens on, or "" before Serve.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.startedAt)
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.deps.Hooks != nil {
		s.deps.Hooks.Emit(ctx, event, data)
	}
}
