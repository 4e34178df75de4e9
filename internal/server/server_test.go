package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

func newTestServerConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr: ":8080",
		},
	}
}

func TestServer(t *testing.T) {
	t.Run("health endpoints", func(t *testing.T) {
		g := NewWithT(t)

		apiCalled := false
		api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiCalled = true
			w.WriteHeader(http.StatusOK)
		})

		registry := prometheus.NewRegistry()
		server := newServer(newTestServerConfig(), api, registry, registry)
		g.Expect(server.Addr).To(Equal(":8080"))

		tests := []struct {
			path            string
			expectedStatus  int
			expectAPICalled bool
		}{
			{pathReadyz, http.StatusOK, false},
			{pathHealthz, http.StatusOK, false},
		}

		for _, tt := range tests {
			t.Run(tt.path, func(t *testing.T) {
				apiCalled = false
				req := httptest.NewRequest(http.MethodGet, tt.path, nil)
				rec := httptest.NewRecorder()

				server.Handler.ServeHTTP(rec, req)

				g.Expect(rec.Code).To(Equal(tt.expectedStatus))
				g.Expect(apiCalled).To(Equal(tt.expectAPICalled))
			})
		}
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		g := NewWithT(t)

		api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		registry := prometheus.NewRegistry()
		server := newServer(newTestServerConfig(), api, registry, registry)

		// Produce one observation so the summary shows up.
		server.Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, pathJWKS, nil))

		req := httptest.NewRequest(http.MethodGet, pathMetrics, nil)
		rec := httptest.NewRecorder()

		server.Handler.ServeHTTP(rec, req)

		g.Expect(rec.Code).To(Equal(http.StatusOK))
		g.Expect(rec.Body.String()).To(ContainSubstring("http_request_duration_seconds"))
	})

	t.Run("metric path labels are bounded", func(t *testing.T) {
		g := NewWithT(t)

		api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		registry := prometheus.NewRegistry()
		server := newServer(newTestServerConfig(), api, registry, registry)

		for _, path := range []string{pathJWKS, "/random/abc123", "/random/def456", "/.env"} {
			server.Handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		}

		families, err := registry.Gather()
		g.Expect(err).ToNot(HaveOccurred())

		var paths []string
		for _, f := range families {
			if f.GetName() != "http_request_duration_seconds" {
				continue
			}
			for _, m := range f.GetMetric() {
				for _, l := range m.GetLabel() {
					if l.GetName() == "path" {
						paths = append(paths, l.GetValue())
					}
				}
			}
		}
		g.Expect(paths).To(ConsistOf(pathJWKS, metricPathOther))
	})

	t.Run("API routing", func(t *testing.T) {
		g := NewWithT(t)

		apiCalled := false
		api := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiCalled = true
			g.Expect(logging.FromRequest(r)).ToNot(BeNil())
			w.WriteHeader(http.StatusTeapot) // Unique status to verify API was called
		})

		registry := prometheus.NewRegistry()
		server := newServer(newTestServerConfig(), api, registry, registry)

		req := httptest.NewRequest(http.MethodGet, "/some/api/path", nil)
		rec := httptest.NewRecorder()

		server.Handler.ServeHTTP(rec, req)

		g.Expect(rec.Code).To(Equal(http.StatusTeapot))
		g.Expect(apiCalled).To(BeTrue())
	})
}
