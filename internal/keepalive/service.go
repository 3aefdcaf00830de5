// Package keepalive serves a tiny HTTP liveness endpoint so that free
// hosting platforms with an HTTP health probe keep the process alive.
package keepalive

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	logx "maptap/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Service {
	if cfg.Addr == "" {
		cfg.Addr = ":10000"
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("maptap bot running"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("keepalive server stopped", logx.Err(err))
		}
	}()
	s.log.Info("keepalive listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	s.log.Info("keepalive stopped")
}
