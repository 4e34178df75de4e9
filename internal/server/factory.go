package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matheuscscp/fleet-issuer/internal/config"
	"github.com/matheuscscp/fleet-issuer/internal/issuer"
)

func New(conf *config.Config, iss issuer.Issuer) *http.Server {
	api := newAPI(iss, conf, time.Now)
	return newServer(conf, api, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}
