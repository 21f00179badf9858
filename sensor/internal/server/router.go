package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/proximity-stack/common/middleware"
	"github.com/telhawk-systems/proximity-stack/sensor/internal/handlers"
)

// NewRouter constructs a ServeMux with the sensor API routes registered.
func NewRouter(h *handlers.SensorHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/sensor-records", h.Records)
	mux.HandleFunc("/api/sensor_data/{$}", h.Records)
	mux.HandleFunc("/", h.Index)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
