// Package server hosts the HTTP surface: operational probes, the
// Prometheus endpoint, and every route exported by the registered
// plugins, mounted under a shared /api/v1 prefix.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sensorvision/pilot/internal/version"
	"github.com/sensorvision/pilot/pkg/plugin"
)

// PluginSource is the slice of the registry the server needs: the set
// of live plugins and their HTTP routes. Declared here so the server
// does not depend on the registry package.
type PluginSource interface {
	AllRoutes() map[string][]plugin.Route
	All() []plugin.Plugin
}

// ReadinessChecker reports whether the process can serve traffic.
// A nil error means ready.
type ReadinessChecker func(ctx context.Context) error

// SimpleRouteRegistrar registers additional routes directly on the mux.
type SimpleRouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server wraps the http.Server, its mux, and the plugin routes
// mounted on it.
type Server struct {
	httpServer *http.Server
	plugins    PluginSource
	logger     *zap.Logger
	mux        *http.ServeMux
	ready      ReadinessChecker
}

// New assembles the full handler: core routes, any extra registrars,
// plugin routes, and the middleware chain around all of it.
func New(addr string, plugins PluginSource, logger *zap.Logger, ready ReadinessChecker, extraRoutes ...SimpleRouteRegistrar) *Server {
	s := &Server{
		plugins: plugins,
		logger:  logger,
		mux:     http.NewServeMux(),
		ready:   ready,
	}

	s.mountCoreRoutes()
	for _, r := range extraRoutes {
		if r != nil {
			r.RegisterRoutes(s.mux)
		}
	}
	s.mountPluginRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      Chain(s.mux, defaultMiddleware(logger)...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// probePaths are exempt from request logging and rate limiting.
var probePaths = []string{"/healthz", "/readyz", "/metrics"}

// defaultMiddleware returns the chain outermost-first.
func defaultMiddleware(logger *zap.Logger) []Middleware {
	return []Middleware{
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, probePaths),
		SecurityHeadersMiddleware,
		VersionHeaderMiddleware,
		RateLimitMiddleware(100, 200, probePaths),
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) mountCoreRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleLiveness)
	s.mux.HandleFunc("GET /readyz", s.handleReadiness)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/v1/health", s.handleServiceHealth)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePluginList)

	// More specific patterns take precedence, so this only catches
	// API paths no plugin claimed.
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "no such endpoint", r.URL.Path)
	})
}

// mountPluginRoutes exposes each plugin route as
// "{method} /api/v1/{plugin}{path}".
func (s *Server) mountPluginRoutes() {
	for pluginName, routes := range s.plugins.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, pluginName, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", pluginName),
				zap.String("pattern", pattern),
			)
		}
	}
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSONBody(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version map[string]string `json:"version"`
}

// PluginResponse describes one registered plugin.
type PluginResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONBody(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "pilot",
		Version: version.Map(),
	})
}

func (s *Server) handlePluginList(w http.ResponseWriter, _ *http.Request) {
	all := s.plugins.All()
	out := make([]PluginResponse, 0, len(all))
	for _, p := range all {
		info := p.Info()
		out = append(out, PluginResponse{
			Name:        info.Name,
			Version:     info.Version,
			Description: info.Description,
		})
	}
	writeJSONBody(w, http.StatusOK, out)
}

func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
