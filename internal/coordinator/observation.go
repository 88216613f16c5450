package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/geo"
)

// StationDistanceThresholdKM is how close the resolved station must be for
// an equal-version notification to be skipped: beyond this a refetch may
// find a closer station reporting again.
const StationDistanceThresholdKM = 50

// ObservationAPI is the slice of the EDR client the observation strategies
// consume.
type ObservationAPI interface {
	Metadata(ctx context.Context) (time.Time, error)
	CubeCoverages(ctx context.Context, at time.Time, parameters []string) ([]domain.Coverage, error)
	StationCoverage(ctx context.Context, stationID string, at time.Time, parameters []string) (domain.Coverage, error)
	Stations(ctx context.Context) ([]domain.Station, error)
}

// CubeStrategy fetches all coverages across the query bounding box for a
// version and resolves each configured location to its nearest station.
type CubeStrategy struct {
	api        ObservationAPI
	locations  []domain.Location
	parameters []string

	stationNames map[string]string
}

// NewCubeStrategy creates the whole-region observation strategy.
func NewCubeStrategy(api ObservationAPI, locations []domain.Location, parameters []string) *CubeStrategy {
	return &CubeStrategy{
		api:          api,
		locations:    locations,
		parameters:   parameters,
		stationNames: make(map[string]string),
	}
}

func (s *CubeStrategy) ResolveVersion(n domain.Notification) (time.Time, error) {
	return domain.ObservationFile.Parse(n.Filename)
}

func (s *CubeStrategy) Fetch(ctx context.Context, version time.Time) (domain.ObservationSnapshot, error) {
	coverages, err := s.api.CubeCoverages(ctx, version, s.parameters)
	if err != nil {
		return nil, err
	}
	return s.prepare(coverages)
}

// Bootstrap caches station names and loads the latest available coverages so
// entities have data before the first push notification.
func (s *CubeStrategy) Bootstrap(ctx context.Context) (domain.ObservationSnapshot, time.Time, error) {
	stations, err := s.api.Stations(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	for _, st := range stations {
		s.stationNames[st.ID] = st.Name
	}

	latest, err := s.api.Metadata(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	snap, err := s.Fetch(ctx, latest)
	if err != nil {
		return nil, time.Time{}, err
	}
	return snap, latest, nil
}

// prepare resolves every configured location against the coverage set.
func (s *CubeStrategy) prepare(coverages []domain.Coverage) (domain.ObservationSnapshot, error) {
	if len(coverages) == 0 {
		return nil, fmt.Errorf("coverage set is empty")
	}
	snap := make(domain.ObservationSnapshot, len(s.locations))
	for _, loc := range s.locations {
		coverage, distance := geo.ClosestCoverage(coverages, loc)
		snap[loc.Name] = domain.LocationObservation{
			StationID:   coverage.StationID,
			StationName: s.stationNames[coverage.StationID],
			DistanceKM:  distance,
			ObservedAt:  coverage.Time,
			Ranges:      coverage.Ranges,
		}
	}
	return snap, nil
}

// StationStrategy addresses one fixed station directly instead of selecting
// from the whole region. The station is resolved from the configured
// location once, at bootstrap.
type StationStrategy struct {
	api        ObservationAPI
	location   domain.Location
	parameters []string

	stationID   string
	stationName string
	distanceKM  float64
}

// NewStationStrategy creates a single-station observation strategy for the
// station nearest to loc.
func NewStationStrategy(api ObservationAPI, loc domain.Location, parameters []string) *StationStrategy {
	return &StationStrategy{
		api:        api,
		location:   loc,
		parameters: parameters,
	}
}

func (s *StationStrategy) ResolveVersion(n domain.Notification) (time.Time, error) {
	return domain.ObservationFile.Parse(n.Filename)
}

func (s *StationStrategy) Fetch(ctx context.Context, version time.Time) (domain.ObservationSnapshot, error) {
	coverage, err := s.api.StationCoverage(ctx, s.stationID, version, s.parameters)
	if err != nil {
		return nil, err
	}
	return domain.ObservationSnapshot{
		s.location.Name: {
			StationID:   coverage.StationID,
			StationName: s.stationName,
			DistanceKM:  s.distanceKM,
			ObservedAt:  coverage.Time,
			Ranges:      coverage.Ranges,
		},
	}, nil
}

func (s *StationStrategy) Bootstrap(ctx context.Context) (domain.ObservationSnapshot, time.Time, error) {
	stations, err := s.api.Stations(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(stations) == 0 {
		return nil, time.Time{}, fmt.Errorf("no stations available")
	}
	station, distance := geo.ClosestStation(stations, s.location)
	s.stationID = station.ID
	s.stationName = station.Name
	s.distanceKM = distance

	latest, err := s.api.Metadata(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}
	snap, err := s.Fetch(ctx, latest)
	if err != nil {
		return nil, time.Time{}, err
	}
	return snap, latest, nil
}
