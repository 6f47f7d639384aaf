package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/plugin"
)

type fakePluginSource struct {
	plugins []plugin.Plugin
	routes  map[string][]plugin.Route
}

func (f *fakePluginSource) AllRoutes() map[string][]plugin.Route {
	if f.routes == nil {
		return map[string][]plugin.Route{}
	}
	return f.routes
}

func (f *fakePluginSource) All() []plugin.Plugin { return f.plugins }

type infoOnlyPlugin struct {
	info plugin.PluginInfo
}

func (p *infoOnlyPlugin) Info() plugin.PluginInfo                          { return p.info }
func (p *infoOnlyPlugin) Init(_ context.Context, _ plugin.Dependencies) error { return nil }
func (p *infoOnlyPlugin) Start(_ context.Context) error                    { return nil }
func (p *infoOnlyPlugin) Stop(_ context.Context) error                     { return nil }

func newTestServer(t *testing.T, ready ReadinessChecker, src *fakePluginSource) *Server {
	t.Helper()
	if src == nil {
		src = &fakePluginSource{
			plugins: []plugin.Plugin{&infoOnlyPlugin{info: plugin.PluginInfo{
				Name:        "pilot",
				Version:     "0.1.0",
				Description: "LLM-assisted telemetry analysis",
			}}},
		}
	}
	return New("127.0.0.1:0", src, zap.NewNop(), ready)
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)
	return w
}

func TestLivenessProbe(t *testing.T) {
	w := serve(newTestServer(t, nil, nil), "GET", "/healthz")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "alive" {
		t.Errorf("status = %q, want alive", body["status"])
	}
}

func TestReadinessProbe(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv := newTestServer(t, func(context.Context) error { return nil }, nil)
		if w := serve(srv, "GET", "/readyz"); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	})

	t.Run("nil checker passes", func(t *testing.T) {
		if w := serve(newTestServer(t, nil, nil), "GET", "/readyz"); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newTestServer(t, func(context.Context) error {
			return errors.New("database unreachable")
		}, nil)
		w := serve(srv, "GET", "/readyz")

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", w.Code)
		}
		var body map[string]string
		json.NewDecoder(w.Body).Decode(&body)
		if body["status"] != "not ready" {
			t.Errorf("status = %q, want %q", body["status"], "not ready")
		}
		if !strings.Contains(body["error"], "database unreachable") {
			t.Errorf("error = %q, want the checker's message", body["error"])
		}
	})
}

func TestServiceHealth(t *testing.T) {
	w := serve(newTestServer(t, nil, nil), "GET", "/api/v1/health")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body HealthResponse
	json.NewDecoder(w.Body).Decode(&body)
	if body.Status != "ok" || body.Service != "pilot" {
		t.Errorf("body = %+v, want status ok and service pilot", body)
	}
	if body.Version == nil {
		t.Error("expected version map in response")
	}
}

func TestPluginList(t *testing.T) {
	w := serve(newTestServer(t, nil, nil), "GET", "/api/v1/plugins")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var plugins []PluginResponse
	json.NewDecoder(w.Body).Decode(&plugins)
	if len(plugins) != 1 || plugins[0].Name != "pilot" || plugins[0].Version != "0.1.0" {
		t.Errorf("plugins = %+v, want the single pilot entry", plugins)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(newTestServer(t, nil, nil), "GET", "/metrics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected Go runtime metrics in /metrics output")
	}
}

func TestPluginRoutesMounted(t *testing.T) {
	src := &fakePluginSource{
		routes: map[string][]plugin.Route{
			"pilot": {{
				Method: "POST",
				Path:   "/query",
				Handler: func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusAccepted)
				},
			}},
		},
	}
	srv := newTestServer(t, nil, src)

	if w := serve(srv, "POST", "/api/v1/pilot/query"); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
}

func TestUnknownAPIPathIsProblemJSON(t *testing.T) {
	w := serve(newTestServer(t, nil, nil), "GET", "/api/v1/nope")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p Problem
	json.NewDecoder(w.Body).Decode(&p)
	if p.Instance != "/api/v1/nope" {
		t.Errorf("instance = %q, want the request path", p.Instance)
	}
}

func TestMiddlewareHeadersOnFullHandler(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest("GET", "/healthz", http.NoBody)
	w := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(w, req)

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if w.Header().Get("X-Pilot-Version") == "" {
		t.Error("expected X-Pilot-Version header")
	}
}
