// Package httpapi serves an owner-scoped JSON view of schedules and the
// ledger, plus health and optional pprof endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"pillbot/internal/dose"
	"pillbot/pkg/clock"
	logx "pillbot/pkg/logx"
)

type Config struct {
	Enabled       bool
	Addr          string
	JWTSecret     string
	AllowInsecure bool
	Pprof         bool
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8088"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	return c
}

// Deps are the engine pieces the API reads and writes.
type Deps struct {
	Store   dose.Store
	Ledger  *dose.Ledger
	Planner *dose.Planner
	Clock   clock.Clock
}

// Server manages the listener lifecycle; Apply is safe to call on every
// config reload.
type Server struct {
	mu   sync.Mutex
	log  logx.Logger
	deps Deps
	srv  *http.Server
	ln   net.Listener
	addr string
	cfg  Config
}

func New(deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real(nil)
	}
	if deps.Ledger == nil {
		deps.Ledger = dose.NewLedger(deps.Store)
	}
	if deps.Planner == nil {
		deps.Planner = dose.NewPlanner(deps.Store, log)
	}
	return &Server{log: log.With(logx.String("comp", "httpapi")), deps: deps}
}

// CheckBind rejects exposing an unauthenticated API beyond loopback.
func CheckBind(cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.JWTSecret != "" || cfg.AllowInsecure || isLoopback(cfg.Addr) {
		return nil
	}
	return fmt.Errorf("http_api.addr %s is not loopback: set http_api.jwt_secret or http_api.allow_insecure", cfg.Addr)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Apply starts, restarts or stops the listener to match cfg.
func (s *Server) Apply(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		return nil
	}
	if err := CheckBind(cfg); err != nil {
		s.stopLocked(ctx)
		return err
	}
	if s.srv != nil && s.cfg == cfg {
		return nil
	}
	s.stopLocked(ctx)
	return s.startLocked(cfg)
}

func (s *Server) startLocked(cfg Config) error {
	if cfg.JWTSecret == "" {
		s.log.Warn("http api running without authentication", logx.String("addr", cfg.Addr))
	}
	srv := &http.Server{
		Handler:      s.Handler(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("http api listen %s: %w", cfg.Addr, err)
	}
	s.srv, s.ln, s.cfg = srv, ln, cfg
	s.addr = ln.Addr().String()

	addr := s.addr
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("http api server error", logx.String("addr", addr), logx.Err(err))
		}
	}()
	s.log.Info("http api enabled", logx.String("addr", addr), logx.Bool("pprof", cfg.Pprof))
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Server) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr, s.cfg = nil, nil, "", Config{}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("http api shutdown error", logx.String("addr", addr), logx.Err(err))
	}
	_ = ln.Close()
	s.log.Info("http api disabled", logx.String("addr", addr))
}

// Addr reports the actual listen address if running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
