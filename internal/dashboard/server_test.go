package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"energylink/config"
	"energylink/internal/metrics"
	"energylink/logger"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                            "0.0.0.0:8080",
		"  :9090  ":                   "0.0.0.0:9090",
		"localhost":                   "localhost:8080",
		"0.0.0.0:80":                  "0.0.0.0:80",
		"[::1]:443":                   "[::1]:443",
		"::1":                         "[::1]:8080",
		"*:8080":                      "0.0.0.0:8080",
		"http://10.0.4.12:8080":       "10.0.4.12:8080",
		"https://10.0.4.12":           "10.0.4.12:8080",
		"http://:7070":                "0.0.0.0:7070",
		"tcp://localhost:5050":        "localhost:5050",
		"https://status.example.com/": "status.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{}, logger.Logger())
	if err != nil || srv != nil {
		t.Fatalf("expected nil server for disabled dashboard, got %v, %v", srv, err)
	}
	if srv.Address() != "" {
		t.Fatal("nil server should report an empty address")
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, Address: ":9000"}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	t.Cleanup(srv.cleanup)
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
	return srv
}

func serve(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	router, err := srv.buildRouter("energylink")
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func fixed(status string) HealthCheck {
	return func(context.Context) (string, any) {
		return status, map[string]string{"note": status}
	}
}

func TestHealthzAggregatesComponents(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]string
		want   string
		code   int
	}{
		{"no components", nil, StatusHealthy, http.StatusOK},
		{"all healthy", map[string]string{"compliance": StatusHealthy, "marketdata": StatusHealthy}, StatusHealthy, http.StatusOK},
		{"starting degrades", map[string]string{"compliance": StatusHealthy, "marketdata": "starting"}, StatusDegraded, http.StatusOK},
		{"unhealthy wins", map[string]string{"compliance": StatusUnhealthy, "marketdata": StatusDegraded}, StatusUnhealthy, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t)
			for name, status := range tc.checks {
				srv.RegisterHealthCheck(name, fixed(status))
			}

			rec := serve(t, srv, "/healthz")
			if rec.Code != tc.code {
				t.Fatalf("status code = %d, want %d", rec.Code, tc.code)
			}
			var body struct {
				App        string                     `json:"app"`
				Status     string                     `json:"status"`
				Components map[string]json.RawMessage `json:"components"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.want || body.App != "energylink" {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
			if len(body.Components) != len(tc.checks) {
				t.Fatalf("expected %d components, got %d", len(tc.checks), len(body.Components))
			}
		})
	}
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	srv := newTestServer(t)
	metrics.RecordSubmission("CFTC", "accepted", 1, 0)

	rec := serve(t, srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "energylink_") {
		t.Fatalf("expected energylink metric families, got:\n%s", rec.Body.String())
	}
}

func TestAPIMetricsReflectsEmittedMetrics(t *testing.T) {
	srv := newTestServer(t)
	metrics.EmitMetric(logger.Logger(), "compliance", "submission_attempts", 2, "gauge", nil)
	metrics.EmitMetric(logger.Logger(), "marketdata", "price_fetch", 1, "", nil)

	rec := serve(t, srv, "/api/metrics?component=compliance")
	var body struct {
		Metrics []metrics.Metric `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Metrics) != 1 || body.Metrics[0].Name != "submission_attempts" {
		t.Fatalf("unexpected metrics: %s", rec.Body.String())
	}
}

func TestAPILogsCapturesLoggerOutput(t *testing.T) {
	srv := newTestServer(t)
	srv.log.WithComponent("routing").Warn("no venue for market")
	srv.log.WithComponent("routing").Info("order routed")

	rec := serve(t, srv, "/api/logs?level=warning&component=routing")
	var body struct {
		Logs []logRecord `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Logs) != 1 || body.Logs[0].Message != "no venue for market" {
		t.Fatalf("unexpected logs: %s", rec.Body.String())
	}
}

func TestRegisteredViews(t *testing.T) {
	srv := newTestServer(t)
	srv.RegisterView("/connectors/", func(context.Context) (any, error) {
		return []string{"cme", "sgx"}, nil
	})
	srv.RegisterView("broken", func(context.Context) (any, error) {
		return nil, errors.New("store closed")
	})

	rec := serve(t, srv, "/api/connectors")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sgx") {
		t.Fatalf("unexpected view response %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, srv, "/api/broken")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from failing view, got %d", rec.Code)
	}
}
