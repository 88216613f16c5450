// Package knmi contains thin clients for the KNMI data platform APIs:
// EDR (ground observations), WMS (radar tiles) and the App API (forecasts).
// All share one error taxonomy; see errors.go.
package knmi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nlweather/knmi-direct/internal/domain"
)

// BBoxNL is the query bounding box covering the Netherlands, in
// lon-lat degree order as the EDR API expects it.
const BBoxNL = "3.3,50.6,7.3,53.5"

const defaultEDRBaseURL = "https://api.dataplatform.knmi.nl/edr/v1/collections/10-minute-in-situ-meteorological-observations"

// EDRClient queries the 10-minute in-situ observation collection.
type EDRClient struct {
	token      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewEDRClient creates an observation API client.
func NewEDRClient(token string, timeout time.Duration, logger *slog.Logger) *EDRClient {
	return &EDRClient{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultEDRBaseURL,
		logger:     logger,
	}
}

func (c *EDRClient) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read edr response: %w", err)
	}
	c.logger.Debug("called EDR endpoint", "endpoint", endpoint, "status", resp.StatusCode)

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// Metadata returns the timestamp of the latest available observation run.
func (c *EDRClient) Metadata(ctx context.Context) (time.Time, error) {
	body, err := c.get(ctx, "", nil)
	if err != nil {
		return time.Time{}, err
	}
	var meta struct {
		Extent struct {
			Temporal struct {
				Interval [][]string `json:"interval"`
			} `json:"temporal"`
		} `json:"extent"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return time.Time{}, fmt.Errorf("decode metadata: %w", err)
	}
	if len(meta.Extent.Temporal.Interval) == 0 || len(meta.Extent.Temporal.Interval[0]) < 2 {
		return time.Time{}, fmt.Errorf("metadata has no temporal interval")
	}
	latest, err := time.Parse(time.RFC3339, meta.Extent.Temporal.Interval[0][1])
	if err != nil {
		return time.Time{}, fmt.Errorf("decode metadata interval: %w", err)
	}
	return latest.UTC(), nil
}

// CubeCoverages fetches all coverages inside the NL bounding box for one
// timestamp, keeping only those that carry every requested parameter.
func (c *EDRClient) CubeCoverages(ctx context.Context, at time.Time, parameters []string) ([]domain.Coverage, error) {
	params := url.Values{
		"datetime":       {formatTime(at)},
		"parameter-name": {joinParameters(parameters)},
		"bbox":           {BBoxNL},
	}
	body, err := c.get(ctx, "/cube", params)
	if err != nil {
		return nil, err
	}
	coverages, err := decodeCoverages(body)
	if err != nil {
		return nil, err
	}
	complete := coverages[:0]
	for _, cov := range coverages {
		if cov.HasParameters(parameters) {
			complete = append(complete, cov)
		}
	}
	c.logger.Debug("cube coverages fetched", "total", len(coverages), "complete", len(complete))
	return complete, nil
}

// StationCoverage fetches the coverage of a single station at a timestamp.
func (c *EDRClient) StationCoverage(ctx context.Context, stationID string, at time.Time, parameters []string) (domain.Coverage, error) {
	params := url.Values{
		"datetime":       {formatTime(at)},
		"parameter-name": {joinParameters(parameters)},
	}
	body, err := c.get(ctx, "/locations/"+url.PathEscape(stationID), params)
	if err != nil {
		return domain.Coverage{}, err
	}
	coverages, err := decodeCoverages(body)
	if err != nil {
		return domain.Coverage{}, err
	}
	if len(coverages) == 0 {
		return domain.Coverage{}, ErrNotFound
	}
	return coverages[0], nil
}

// Stations lists the currently reporting observation stations.
func (c *EDRClient) Stations(ctx context.Context) ([]domain.Station, error) {
	params := url.Values{
		"datetime": {formatTime(time.Now().UTC())},
		"bbox":     {BBoxNL},
	}
	body, err := c.get(ctx, "/locations", params)
	if err != nil {
		return nil, err
	}
	var fc struct {
		Features []struct {
			ID         string `json:"id"`
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
			Geometry struct {
				Coordinates []float64 `json:"coordinates"` // [lon, lat]
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	stations := make([]domain.Station, 0, len(fc.Features))
	for _, f := range fc.Features {
		s := domain.Station{ID: f.ID, Name: f.Properties.Name}
		if len(f.Geometry.Coordinates) == 2 {
			s.Longitude = f.Geometry.Coordinates[0]
			s.Latitude = f.Geometry.Coordinates[1]
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// CoverageJSON wire format, reduced to the axes and ranges we consume.

type coverageCollection struct {
	Coverages []coverageJSON `json:"coverages"`
}

type coverageJSON struct {
	Domain struct {
		Axes struct {
			X struct {
				Values []float64 `json:"values"`
			} `json:"x"`
			Y struct {
				Values []float64 `json:"values"`
			} `json:"y"`
			T struct {
				Values []string `json:"values"`
			} `json:"t"`
		} `json:"axes"`
	} `json:"domain"`
	Ranges     map[string]rangeJSON `json:"ranges"`
	LocationID string               `json:"eumetnet:locationId"`
}

type rangeJSON struct {
	Values []float64 `json:"values"`
}

func decodeCoverages(body []byte) ([]domain.Coverage, error) {
	var cc coverageCollection
	if err := json.Unmarshal(body, &cc); err != nil {
		return nil, fmt.Errorf("decode coverage collection: %w", err)
	}
	coverages := make([]domain.Coverage, 0, len(cc.Coverages))
	for _, cj := range cc.Coverages {
		cov, err := cj.toDomain()
		if err != nil {
			return nil, err
		}
		coverages = append(coverages, cov)
	}
	return coverages, nil
}

func (cj coverageJSON) toDomain() (domain.Coverage, error) {
	if len(cj.Domain.Axes.X.Values) == 0 || len(cj.Domain.Axes.Y.Values) == 0 || len(cj.Domain.Axes.T.Values) == 0 {
		return domain.Coverage{}, fmt.Errorf("coverage %q has incomplete axes", cj.LocationID)
	}
	at, err := time.Parse(time.RFC3339, cj.Domain.Axes.T.Values[0])
	if err != nil {
		return domain.Coverage{}, fmt.Errorf("coverage %q time axis: %w", cj.LocationID, err)
	}
	ranges := make(map[string]float64, len(cj.Ranges))
	for param, r := range cj.Ranges {
		if len(r.Values) == 0 {
			continue
		}
		ranges[param] = r.Values[0]
	}
	return domain.Coverage{
		StationID: cj.LocationID,
		Longitude: cj.Domain.Axes.X.Values[0],
		Latitude:  cj.Domain.Axes.Y.Values[0],
		Time:      at.UTC(),
		Ranges:    ranges,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func joinParameters(parameters []string) string {
	return strings.Join(parameters, ",")
}
