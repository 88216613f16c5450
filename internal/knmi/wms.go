package knmi

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
)

const defaultWMSBaseURL = "https://api.dataplatform.knmi.nl/wms/adaguc-server"

// Tile datasets and layers served by the adaguc WMS.
const (
	realTimeDataset = "nl_rdr_data_rtcor_5m"
	realTimeLayer   = "precipitation_real_time"
	forecastDataset = "radar_forecast_2.0"
	forecastLayer   = "precipitation_nowcast"
)

// maxConcurrentTileRequests bounds in-flight requests to the tile provider
// across all callers of one client, to respect upstream rate limits.
const maxConcurrentTileRequests = 5

// WMSClient fetches radar tile imagery. A semaphore shared across all calls
// limits concurrency, and a circuit breaker backs off after repeated
// rate-limit or server errors instead of hammering the provider.
type WMSClient struct {
	token      string
	httpClient *http.Client
	baseURL    string
	sem        *semaphore.Weighted
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewWMSClient creates a tile API client.
func NewWMSClient(token string, timeout time.Duration, logger *slog.Logger) *WMSClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "knmi-wms",
		MaxRequests: maxConcurrentTileRequests,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			// Only rate-limit and server errors should open the breaker;
			// NotFound and InvalidRequest are per-query outcomes.
			if err == nil {
				return true
			}
			var srv *ServerError
			return !errors.Is(err, ErrRateLimited) && !errors.As(err, &srv)
		},
	})
	return &WMSClient{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultWMSBaseURL,
		sem:        semaphore.NewWeighted(maxConcurrentTileRequests),
		breaker:    breaker,
		logger:     logger,
	}
}

func baseParams() url.Values {
	return url.Values{
		"SERVICE":     {"WMS"},
		"REQUEST":     {"GetMap"},
		"VERSION":     {"1.3.0"},
		"FORMAT":      {"image/png"},
		"TRANSPARENT": {"TRUE"},
		"CRS":         {"EPSG:3857"},
	}
}

func (c *WMSClient) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	body, err := c.breaker.Execute(func() (any, error) {
		return c.do(ctx, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("tile circuit open: %w", ErrRateLimited)
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (c *WMSClient) do(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wms request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read wms response: %w", err)
	}
	c.logger.Debug("called WMS endpoint", "status", resp.StatusCode, "dataset", params.Get("DATASET"), "time", params.Get("TIME"))

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	// The server reports some request errors as 200 with an error document.
	if strings.HasPrefix(string(body), "ADAGUC Server:") {
		return nil, &InvalidRequest{Body: string(body)}
	}
	return body, nil
}

// RealTimeTile fetches one observed precipitation frame.
func (c *WMSClient) RealTimeTile(ctx context.Context, at time.Time, width, height int, bbox, style string) ([]byte, error) {
	params := baseParams()
	params.Set("TIME", at.UTC().Format(time.RFC3339))
	params.Set("DATASET", realTimeDataset)
	params.Set("LAYERS", realTimeLayer)
	params.Set("STYLES", style)
	params.Set("WIDTH", strconv.Itoa(width))
	params.Set("HEIGHT", strconv.Itoa(height))
	params.Set("BBOX", bbox)
	return c.get(ctx, params)
}

// ForecastTile fetches one nowcast precipitation frame for the model run
// identified by ref.
func (c *WMSClient) ForecastTile(ctx context.Context, ref, at time.Time, width, height int, bbox, style string) ([]byte, error) {
	params := baseParams()
	params.Set("DIM_REFERENCE_TIME", ref.UTC().Format(time.RFC3339))
	params.Set("TIME", at.UTC().Format(time.RFC3339))
	params.Set("DATASET", forecastDataset)
	params.Set("LAYERS", forecastLayer)
	params.Set("STYLES", style)
	params.Set("WIDTH", strconv.Itoa(width))
	params.Set("HEIGHT", strconv.Itoa(height))
	params.Set("BBOX", bbox)
	return c.get(ctx, params)
}

// Capabilities returns the latest timestamp the real-time radar dataset
// advertises in its GetCapabilities time dimension.
func (c *WMSClient) Capabilities(ctx context.Context) (time.Time, error) {
	params := url.Values{
		"SERVICE": {"WMS"},
		"REQUEST": {"GetCapabilities"},
		"DATASET": {realTimeDataset},
	}
	body, err := c.get(ctx, params)
	if err != nil {
		return time.Time{}, err
	}
	return parseCapabilitiesLatest(body)
}

type capabilitiesDoc struct {
	Capability struct {
		Layer capabilitiesLayer `xml:"Layer"`
	} `xml:"Capability"`
}

type capabilitiesLayer struct {
	Dimensions []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:",chardata"`
	} `xml:"Dimension"`
	Layers []capabilitiesLayer `xml:"Layer"`
}

// parseCapabilitiesLatest walks the layer tree for the first time dimension
// and returns the end of its last interval. Intervals have the form
// "start/end/period", possibly comma-separated.
func parseCapabilitiesLatest(body []byte) (time.Time, error) {
	var doc capabilitiesDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return time.Time{}, fmt.Errorf("decode capabilities: %w", err)
	}
	dim, ok := findTimeDimension(doc.Capability.Layer)
	if !ok {
		return time.Time{}, fmt.Errorf("capabilities has no time dimension")
	}
	intervals := strings.Split(strings.TrimSpace(dim), ",")
	last := intervals[len(intervals)-1]
	parts := strings.Split(last, "/")
	end := parts[0]
	if len(parts) >= 2 {
		end = parts[1]
	}
	latest, err := time.Parse(time.RFC3339, strings.TrimSpace(end))
	if err != nil {
		return time.Time{}, fmt.Errorf("decode capabilities time dimension: %w", err)
	}
	return latest.UTC(), nil
}

func findTimeDimension(layer capabilitiesLayer) (string, bool) {
	for _, d := range layer.Dimensions {
		if strings.EqualFold(d.Name, "time") {
			return d.Value, true
		}
	}
	for _, child := range layer.Layers {
		if v, ok := findTimeDimension(child); ok {
			return v, true
		}
	}
	return "", false
}
