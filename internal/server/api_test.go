package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"
	. "github.com/onsi/gomega"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/issuer"
	"github.com/matheuscscp/fleet-issuer/internal/keystore"
)

const testIssuerURL = "https://issuer.example.com"

func TestOpenIDConfiguration(t *testing.T) {
	tests := []struct {
		name            string
		issuer          string
		expectedJWKSURI string
	}{
		{
			name:            "issuer without trailing slash",
			issuer:          testIssuerURL,
			expectedJWKSURI: testIssuerURL + pathJWKS,
		},
		{
			name:            "issuer with trailing slash",
			issuer:          testIssuerURL + "/",
			expectedJWKSURI: testIssuerURL + pathJWKS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			conf := newTestConfig(0)
			conf.Issuer = tt.issuer
			api := newAPI(&mockIssuer{}, conf, time.Now)

			req := httptest.NewRequest(http.MethodGet, pathOpenIDConfiguration, nil)
			rec := httptest.NewRecorder()

			api.ServeHTTP(rec, req)

			g.Expect(rec.Code).To(Equal(http.StatusOK))
			g.Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			response := parseJSONResponse(g, rec.Body.Bytes())

			g.Expect(response["issuer"]).To(Equal(tt.issuer))
			g.Expect(response["jwks_uri"]).To(Equal(tt.expectedJWKSURI))

			signingAlgs, ok := response["id_token_signing_alg_values_supported"].([]any)
			g.Expect(ok).To(BeTrue())
			g.Expect(signingAlgs).To(ConsistOf(issuer.Algorithm().String()))
		})
	}
}

func TestJWKS(t *testing.T) {
	g := NewWithT(t)

	conf := newTestConfig(0)
	iss := issuer.New(conf, keystore.NewMemoryStore())
	api := newAPI(iss, conf, time.Now)

	tokenString, _, err := iss.Issue(context.Background(), issuer.Claims{Subject: "node-1"}, time.Now())
	g.Expect(err).ToNot(HaveOccurred())

	req := httptest.NewRequest(http.MethodGet, pathJWKS, nil)
	rec := httptest.NewRecorder()

	api.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
	g.Expect(rec.Header().Get("Cache-Control")).To(BeEmpty())

	response := parseJSONResponse(g, rec.Body.Bytes())
	keys, ok := response["keys"].([]any)
	g.Expect(ok).To(BeTrue())
	g.Expect(keys).To(HaveLen(1))

	key := keys[0].(map[string]any)
	g.Expect(key["kty"]).To(Equal("EC"))
	g.Expect(key["crv"]).To(Equal("P-256"))
	g.Expect(key["alg"]).To(Equal(issuer.Algorithm().String()))
	g.Expect(key["use"]).To(Equal("sig"))
	g.Expect(key["kid"]).ToNot(BeEmpty())
	g.Expect(key).ToNot(HaveKey("d"))

	// A relying party can verify the token with the published set.
	set, err := jwk.Parse(rec.Body.Bytes())
	g.Expect(err).ToNot(HaveOccurred())
	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(set), jwt.WithValidate(true))
	g.Expect(err).ToNot(HaveOccurred())
	sub, ok := token.Subject()
	g.Expect(ok).To(BeTrue())
	g.Expect(sub).To(Equal("node-1"))
}

func TestJWKS_empty(t *testing.T) {
	g := NewWithT(t)

	api := newAPI(&mockIssuer{}, newTestConfig(0), time.Now)

	req := httptest.NewRequest(http.MethodGet, pathJWKS, nil)
	rec := httptest.NewRecorder()

	api.ServeHTTP(rec, req)

	g.Expect(rec.Code).To(Equal(http.StatusOK))
	g.Expect(rec.Body.String()).To(MatchJSON(`{"keys":[]}`))
}

func TestJWKS_listError(t *testing.T) {
	g := NewWithT(t)

	mi := &mockIssuer{err: errors.New("store unavailable")}
	api := newAPI(mi, newTestConfig(30), time.Now)

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, pathJWKS, nil)
		rec := httptest.NewRecorder()

		api.ServeHTTP(rec, req)

		g.Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		g.Expect(rec.Body.String()).To(ContainSubstring("Failed to list public keys"))
	}

	// Failures are not cached.
	g.Expect(mi.calls.Load()).To(Equal(int32(2)))
}

func TestJWKS_cache(t *testing.T) {
	tests := []struct {
		name                 string
		cacheSeconds         int
		expectedCalls        int32
		expectedCacheControl string
	}{
		{
			name:          "cache disabled",
			cacheSeconds:  0,
			expectedCalls: 3,
		},
		{
			name:                 "cache enabled",
			cacheSeconds:         60,
			expectedCalls:        1,
			expectedCacheControl: "public, max-age=60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			mi := &mockIssuer{}
			api := newAPI(mi, newTestConfig(tt.cacheSeconds), time.Now)

			for range 3 {
				req := httptest.NewRequest(http.MethodGet, pathJWKS, nil)
				rec := httptest.NewRecorder()

				api.ServeHTTP(rec, req)

				g.Expect(rec.Code).To(Equal(http.StatusOK))
				g.Expect(rec.Header().Get("Cache-Control")).To(Equal(tt.expectedCacheControl))
				g.Expect(rec.Body.String()).To(MatchJSON(`{"keys":[]}`))
			}

			g.Expect(mi.calls.Load()).To(Equal(tt.expectedCalls))
		})
	}
}

func TestAPI_routing(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{
			name:           "unknown path",
			method:         http.MethodGet,
			path:           "/token",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "post to jwks",
			method:         http.MethodPost,
			path:           pathJWKS,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "delete openid configuration",
			method:         http.MethodDelete,
			path:           pathOpenIDConfiguration,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewWithT(t)

			api := newAPI(&mockIssuer{}, newTestConfig(0), time.Now)

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			api.ServeHTTP(rec, req)

			g.Expect(rec.Code).To(Equal(tt.expectedStatus))
		})
	}
}

func TestJWKS_passesClock(t *testing.T) {
	g := NewWithT(t)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	mi := &mockIssuer{}
	api := newAPI(mi, newTestConfig(0), func() time.Time { return now })

	api.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, pathJWKS, nil))

	g.Expect(mi.lastNow).To(Equal(now))
}

type mockIssuer struct {
	keys    []jwk.Key
	err     error
	calls   atomic.Int32
	lastNow time.Time
}

func (m *mockIssuer) Issue(ctx context.Context, claims issuer.Claims, now time.Time) (string, time.Time, error) {
	return "", time.Time{}, errors.New("not implemented")
}

func (m *mockIssuer) Shutdown(ctx context.Context) error {
	return nil
}

func (m *mockIssuer) PublicKeys(ctx context.Context, now time.Time) ([]jwk.Key, error) {
	m.calls.Add(1)
	m.lastNow = now
	if m.err != nil {
		return nil, m.err
	}
	if m.keys == nil {
		return []jwk.Key{}, nil
	}
	return m.keys, nil
}

func newTestConfig(jwksCacheSeconds int) *config.Config {
	conf := &config.Config{
		Issuer: testIssuerURL,
		Server: config.ServerConfig{
			JWKSCacheSeconds: jwksCacheSeconds,
		},
	}
	if err := conf.ValidateAndInitialize(); err != nil {
		panic(err)
	}
	return conf
}

func parseJSONResponse(g *WithT, body []byte) map[string]any {
	var response map[string]any
	err := json.Unmarshal(body, &response)
	g.Expect(err).ToNot(HaveOccurred())
	return response
}
