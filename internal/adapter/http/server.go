// Package http exposes the service's read surface: current observations,
// the forecast, the radar animation, plus health and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlweather/knmi-direct/internal/domain"
)

// ObservationSource yields the latest published observation snapshot.
type ObservationSource interface {
	Current() (domain.ObservationSnapshot, bool)
}

// ForecastSource yields the latest published forecast snapshot.
type ForecastSource interface {
	Current() (domain.ForecastSnapshot, bool)
}

// RadarImager renders the current radar animation, regenerating on demand.
type RadarImager interface {
	Image(ctx context.Context) ([]byte, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the weather data and operational HTTP endpoints.
type Server struct {
	httpServer   *http.Server
	observations ObservationSource
	forecast     ForecastSource
	radar        RadarImager
	logger       *slog.Logger
}

// NewServer wires all routes over the given data sources.
func NewServer(addr string, observations ObservationSource, forecast ForecastSource, radar RadarImager, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		observations: observations,
		forecast:     forecast,
		radar:        radar,
		logger:       logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /observations", s.handleObservations)
	mux.HandleFunc("GET /forecast", s.handleForecast)
	mux.HandleFunc("GET /radar.gif", s.handleRadar)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleObservations(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.observations.Current()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no observations available yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleForecast(w http.ResponseWriter, _ *http.Request) {
	snapshot, ok := s.forecast.Current()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "no forecast available yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleRadar(w http.ResponseWriter, r *http.Request) {
	img, err := s.radar.Image(r.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("radar image render failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": "radar image unavailable",
		})
		return
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(img) //nolint:errcheck // best-effort image response
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
