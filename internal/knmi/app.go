package knmi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nlweather/knmi-direct/internal/domain"
)

const defaultAppBaseURL = "https://api.app.knmi.cloud"

// AppClient queries the KNMI App API for hourly/daily forecasts and alerts.
// Unlike EDR and WMS it needs no token.
type AppClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewAppClient creates a forecast API client.
func NewAppClient(timeout time.Duration, logger *slog.Logger) *AppClient {
	return &AppClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultAppBaseURL,
		logger:     logger,
	}
}

func (c *AppClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("app request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read app response: %w", err)
	}
	c.logger.Debug("called App API endpoint", "endpoint", endpoint, "status", resp.StatusCode)

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

type appWeatherResponse struct {
	Hourly struct {
		Forecast []domain.HourlyForecast `json:"forecast"`
	} `json:"hourly"`
	Daily struct {
		Forecast []domain.DailyForecast `json:"forecast"`
	} `json:"daily"`
	Alerts []domain.Alert `json:"alerts"`
}

// Weather fetches the forecast for a resolved location and alert region.
func (c *AppClient) Weather(ctx context.Context, locationID, regionID string) (domain.ForecastSnapshot, error) {
	params := url.Values{
		"location": {locationID},
		"region":   {regionID},
	}
	body, err := c.get(ctx, "weather", params)
	if err != nil {
		return domain.ForecastSnapshot{}, err
	}
	var wr appWeatherResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return domain.ForecastSnapshot{}, fmt.Errorf("decode weather: %w", err)
	}
	return domain.ForecastSnapshot{
		Hourly: wr.Hourly.Forecast,
		Daily:  wr.Daily.Forecast,
		Alerts: wr.Alerts,
	}, nil
}

// Locations lists the forecast grid locations used to resolve the closest
// location ID for a configured point.
func (c *AppClient) Locations(ctx context.Context) ([]domain.Station, error) {
	body, err := c.get(ctx, "locations", nil)
	if err != nil {
		return nil, err
	}
	var locs []struct {
		ID        string  `json:"id"`
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal(body, &locs); err != nil {
		return nil, fmt.Errorf("decode locations: %w", err)
	}
	stations := make([]domain.Station, 0, len(locs))
	for _, l := range locs {
		stations = append(stations, domain.Station{
			ID:        l.ID,
			Name:      l.Name,
			Latitude:  l.Latitude,
			Longitude: l.Longitude,
		})
	}
	return stations, nil
}
