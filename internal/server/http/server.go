// Package httpserver exposes the session manager's HTTP API.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/marwld/minibot/internal/limiter"
	"github.com/marwld/minibot/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	log     *zap.Logger
	life    service.Lifecycle
	updater service.ConfigUpdater
	lim     limiter.Limiter
	srv     *http.Server
}

// New constructs the HTTP server with injected services. reg may be nil to
// skip the metrics endpoint.
func New(log *zap.Logger, addr string, life service.Lifecycle, updater service.ConfigUpdater, lim limiter.Limiter, reg *prometheus.Registry) *Server {
	s := &Server{log: log, life: life, updater: updater, lim: lim}

	r := chi.NewRouter()
	r.Use(Logging(log), Recover(log))

	r.Get("/", s.handleConnect)
	r.Get("/active", s.handleActive)
	r.Get("/ping", s.handlePing)
	r.Get("/connect-all", s.handleConnectAll)
	r.Get("/reconnect", s.handleReconnect)
	r.Get("/update-config", s.handleUpdateConfig)
	r.Get("/verify-otp", s.handleVerifyOTP)
	r.Get("/getabout", s.handleGetAbout)
	if reg != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until Shutdown or a listener error.
func (s *Server) Run() error {
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
