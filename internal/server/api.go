package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/issuer"
	"github.com/matheuscscp/fleet-issuer/internal/logging"
)

const (
	// OIDC endpoints for relying parties verifying tokens of the fleet.
	pathOpenIDConfiguration = "/.well-known/openid-configuration"
	pathJWKS                = "/openid/v1/jwks"

	jwksCacheKey = "jwks"
)

func newAPI(ti issuer.Issuer, conf *config.Config, nowFunc func() time.Time) http.Handler {
	var cache *gocache.Cache
	cacheDuration := conf.Server.JWKSCacheDuration()
	if cacheDuration > 0 {
		cache = gocache.New(cacheDuration, 2*cacheDuration)
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get(pathOpenIDConfiguration, func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]any{
			"issuer":                                conf.Issuer,
			"jwks_uri":                              jwksURL(conf.Issuer),
			"id_token_signing_alg_values_supported": []string{issuer.Algorithm().String()},
		})
	})

	r.Get(pathJWKS, func(w http.ResponseWriter, r *http.Request) {
		if cache != nil {
			if b, ok := cache.Get(jwksCacheKey); ok {
				respondJWKS(w, r, b.([]byte), cacheDuration)
				return
			}
		}

		keys, err := ti.PublicKeys(r.Context(), nowFunc())
		if err != nil {
			logging.FromRequest(r).WithError(err).Error("failed to list public keys")
			http.Error(w, "Failed to list public keys", http.StatusInternalServerError)
			return
		}

		b, err := json.Marshal(map[string]any{"keys": keys})
		if err != nil {
			logging.FromRequest(r).WithError(err).Error("failed to marshal public keys")
			http.Error(w, "Failed to marshal public keys", http.StatusInternalServerError)
			return
		}

		if cache != nil {
			cache.SetDefault(jwksCacheKey, b)
		}
		respondJWKS(w, r, b, cacheDuration)
	})

	return r
}

func jwksURL(iss string) string {
	return fmt.Sprintf("%s%s", strings.TrimSuffix(iss, "/"), pathJWKS)
}

func respondJWKS(w http.ResponseWriter, r *http.Request, b []byte, maxAge time.Duration) {
	if maxAge > 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		logging.FromRequest(r).WithError(err).Error("failed to write response")
	}
}
