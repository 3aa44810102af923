package api

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheckHandler reports that the process is serving requests
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"alive": true}`)
}

// MetricsHandler exposes the default prometheus registry
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
