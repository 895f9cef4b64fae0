// Package server provides the LogSentinel HTTP API: probes, metrics,
// plugin health and the routes each plugin exposes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/HerbHall/logsentinel/internal/version"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PluginSource provides plugin metadata and routes. *registry.Registry
// satisfies it.
type PluginSource interface {
	AllRoutes() map[string][]plugin.Route
	All() []plugin.Plugin
}

// disabledLister is implemented by plugin sources that track disabled
// plugins.
type disabledLister interface {
	Disabled() map[string]string
}

// ReadinessChecker returns nil when the daemon can serve traffic.
type ReadinessChecker func(ctx context.Context) error

// readyTimeout bounds a single readiness check.
const readyTimeout = 3 * time.Second

// probePaths are neither rate limited nor access logged.
var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// Server is the LogSentinel HTTP API server.
type Server struct {
	httpServer *http.Server
	plugins    PluginSource
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
	started    time.Time
}

// New builds the server and mounts every plugin route. A nil ready always
// reports ready.
func New(cfg Config, plugins PluginSource, logger *zap.Logger, ready ReadinessChecker) *Server {
	def := DefaultConfig()
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}

	s := &Server{
		plugins: plugins,
		logger:  logger,
		mux:     http.NewServeMux(),
		ready:   ready,
		started: time.Now(),
	}
	s.registerRoutes()
	s.mountPluginRoutes()

	s.httpServer = &http.Server{
		Addr: cfg.Addr(),
		Handler: Chain(s.mux,
			Recover(logger),
			WithRequestID,
			AccessLog(logger, probePaths),
			SecureHeaders,
			VersionHeader,
			RateLimit(cfg, probePaths),
		),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "no such endpoint", r.URL.Path)
	})
}

// mountPluginRoutes registers plugin routes under /api/v1/{plugin}.
func (s *Server) mountPluginRoutes() {
	for name, routes := range s.plugins.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, name, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", name),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReadyz runs the readiness checker with a bounded timeout.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			NotReady(w, err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string                         `json:"status"`
	Service string                         `json:"service"`
	Uptime  string                         `json:"uptime"`
	Version map[string]string              `json:"version"`
	Plugins map[string]plugin.HealthStatus `json:"plugins,omitempty"`

	// Disabled maps optional plugins that were switched off to the reason.
	Disabled map[string]string `json:"disabled,omitempty"`
}

// PluginResponse describes a registered plugin.
type PluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Roles       []string `json:"roles,omitempty"`
}

// healthRank orders plugin statuses from best to worst.
var healthRank = map[string]int{"healthy": 0, "degraded": 1, "unhealthy": 2}

// handleHealth reports each plugin's own health. The overall status is the
// worst plugin status: "ok", "degraded", or "unhealthy" (served as 503).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Service: "logsentinel",
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Version: version.Map(),
		Plugins: make(map[string]plugin.HealthStatus),
	}
	if dl, ok := s.plugins.(disabledLister); ok {
		resp.Disabled = dl.Disabled()
	}
	worst := 0
	for _, p := range s.plugins.All() {
		hc, ok := p.(plugin.HealthChecker)
		if !ok {
			continue
		}
		h := hc.Health(r.Context())
		resp.Plugins[p.Info().Name] = h
		rank, known := healthRank[h.Status]
		if !known {
			rank = healthRank["degraded"]
		}
		worst = max(worst, rank)
	}

	status := http.StatusOK
	switch worst {
	case 0:
		resp.Status = "ok"
	case 1:
		resp.Status = "degraded"
	default:
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handlePlugins lists registered plugins sorted by name.
func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	plugins := s.plugins.All()
	out := make([]PluginResponse, 0, len(plugins))
	for _, p := range plugins {
		pi := p.Info()
		out = append(out, PluginResponse{
			Name:        pi.Name,
			Version:     pi.Version,
			Description: pi.Description,
			Required:    pi.Required,
			Roles:       pi.Roles,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}
