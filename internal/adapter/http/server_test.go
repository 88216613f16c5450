package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/nlweather/knmi-direct/internal/adapter/http"
	"github.com/nlweather/knmi-direct/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockObservations struct {
	snapshot domain.ObservationSnapshot
	ok       bool
}

func (m *mockObservations) Current() (domain.ObservationSnapshot, bool) { return m.snapshot, m.ok }

type mockForecast struct {
	snapshot domain.ForecastSnapshot
	ok       bool
}

func (m *mockForecast) Current() (domain.ForecastSnapshot, bool) { return m.snapshot, m.ok }

type mockRadar struct {
	img []byte
	err error
}

func (m *mockRadar) Image(_ context.Context) ([]byte, error) { return m.img, m.err }

type serverMocks struct {
	observations *mockObservations
	forecast     *mockForecast
	radar        *mockRadar
	readyErr     error
}

func newTestServer(m serverMocks) *httpadapter.Server {
	if m.observations == nil {
		m.observations = &mockObservations{}
	}
	if m.forecast == nil {
		m.forecast = &mockForecast{}
	}
	if m.radar == nil {
		m.radar = &mockRadar{}
	}
	return httpadapter.NewServer(":0", m.observations, m.forecast, m.radar,
		&mockReadiness{err: m.readyErr}, slog.Default())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(serverMocks{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(serverMocks{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(serverMocks{readyErr: fmt.Errorf("not ready yet")})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(serverMocks{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestObservationsReturnsSnapshot(t *testing.T) {
	observed := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	srv := newTestServer(serverMocks{observations: &mockObservations{
		snapshot: domain.ObservationSnapshot{
			"Amsterdam": {
				StationID:   "0-20000-0-06240",
				StationName: "Schiphol",
				DistanceKM:  9.1,
				ObservedAt:  observed,
				Ranges:      map[string]float64{"ta": 7.4},
			},
		},
		ok: true,
	}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/observations", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body domain.ObservationSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Schiphol", body["Amsterdam"].StationName)
	assert.Equal(t, 7.4, body["Amsterdam"].Ranges["ta"])
}

func TestObservationsReturns503BeforeFirstRefresh(t *testing.T) {
	srv := newTestServer(serverMocks{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/observations", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestForecastReturnsSnapshot(t *testing.T) {
	srv := newTestServer(serverMocks{forecast: &mockForecast{
		snapshot: domain.ForecastSnapshot{
			Hourly: []domain.HourlyForecast{{Temperature: 8.5}},
		},
		ok: true,
	}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body domain.ForecastSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Hourly, 1)
	assert.Equal(t, 8.5, body.Hourly[0].Temperature)
}

func TestRadarReturnsGIF(t *testing.T) {
	srv := newTestServer(serverMocks{radar: &mockRadar{img: []byte("GIF89a...")}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/radar.gif", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "GIF89a...", rec.Body.String())
}

func TestRadarReturns502OnRenderError(t *testing.T) {
	srv := newTestServer(serverMocks{radar: &mockRadar{err: errors.New("upstream down")}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/radar.gif", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
