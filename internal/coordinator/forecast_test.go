package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// fakeForecastAPI serves a canned App API response.
type fakeForecastAPI struct {
	snapshot    domain.ForecastSnapshot
	locations   []domain.Station
	weatherErr  error
	fetchedIDs  []string
	fetchedRegs []string
}

func (a *fakeForecastAPI) Weather(_ context.Context, locationID, regionID string) (domain.ForecastSnapshot, error) {
	a.fetchedIDs = append(a.fetchedIDs, locationID)
	a.fetchedRegs = append(a.fetchedRegs, regionID)
	if a.weatherErr != nil {
		return domain.ForecastSnapshot{}, a.weatherErr
	}
	return a.snapshot, nil
}

func (a *fakeForecastAPI) Locations(_ context.Context) ([]domain.Station, error) {
	return a.locations, nil
}

func TestForecastFirstRefreshResolvesClosestLocation(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 42, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	api := &fakeForecastAPI{
		locations: []domain.Station{
			{ID: "rotterdam", Latitude: 51.92, Longitude: 4.48},
			{ID: "amsterdam", Latitude: 52.37, Longitude: 4.90},
		},
		snapshot: domain.ForecastSnapshot{
			Hourly: []domain.HourlyForecast{
				{Time: now.Truncate(time.Hour).Add(-time.Hour), Temperature: 6.1},
				{Time: now.Truncate(time.Hour), Temperature: 6.5},
				{Time: now.Truncate(time.Hour).Add(time.Hour), Temperature: 7.0},
			},
		},
	}
	loc := domain.Location{Name: "Amsterdam", Latitude: 52.3676, Longitude: 4.9041}
	c := NewForecastCoordinator(api, loc, "nl", 0, clock, discardLogger(), observability.NewMetricsForTesting())

	require.NoError(t, c.FirstRefresh(context.Background()))

	assert.Equal(t, []string{"amsterdam"}, api.fetchedIDs)
	assert.Equal(t, []string{"nl"}, api.fetchedRegs)

	snap, ok := c.Current()
	require.True(t, ok)
	// The hour already behind us is pruned; the current hour stays.
	require.Len(t, snap.Hourly, 2)
	assert.Equal(t, 6.5, snap.Hourly[0].Temperature)
	assert.Equal(t, now, snap.FetchedAt)
	assert.Equal(t, DefaultForecastInterval, c.Interval())
}

func TestForecastRefreshKeepsPriorDataOnError(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 42, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	api := &fakeForecastAPI{
		locations: []domain.Station{{ID: "amsterdam", Latitude: 52.37, Longitude: 4.90}},
		snapshot: domain.ForecastSnapshot{
			Hourly: []domain.HourlyForecast{{Time: now.Truncate(time.Hour), Temperature: 6.5}},
		},
	}
	c := NewForecastCoordinator(api, domain.Location{Name: "Amsterdam", Latitude: 52.37, Longitude: 4.90},
		"nl", 15*time.Minute, clock, discardLogger(), observability.NewMetricsForTesting())

	require.NoError(t, c.FirstRefresh(context.Background()))

	api.weatherErr = errors.New("upstream down")
	require.Error(t, c.Refresh(context.Background()))

	snap, ok := c.Current()
	require.True(t, ok)
	assert.Len(t, snap.Hourly, 1)
}

func TestForecastRefreshBeforeResolveFails(t *testing.T) {
	api := &fakeForecastAPI{}
	c := NewForecastCoordinator(api, domain.Location{}, "nl", time.Minute,
		clockwork.NewFakeClock(), discardLogger(), observability.NewMetricsForTesting())

	require.Error(t, c.Refresh(context.Background()))
}

func TestForecastSubscribersNotified(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 42, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	api := &fakeForecastAPI{
		locations: []domain.Station{{ID: "amsterdam", Latitude: 52.37, Longitude: 4.90}},
		snapshot:  domain.ForecastSnapshot{Hourly: []domain.HourlyForecast{{Time: now}}},
	}
	c := NewForecastCoordinator(api, domain.Location{Latitude: 52.37, Longitude: 4.90},
		"nl", time.Minute, clock, discardLogger(), observability.NewMetricsForTesting())

	var notified int
	c.Subscribe(func(domain.ForecastSnapshot) { notified++ })

	require.NoError(t, c.FirstRefresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, notified)
}
