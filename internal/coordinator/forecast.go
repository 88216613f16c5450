package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/geo"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// DefaultForecastInterval is how often the App API is polled; the forecast
// dataset has no push notifications.
const DefaultForecastInterval = 15 * time.Minute

// ForecastAPI is the slice of the App client the forecast coordinator
// consumes.
type ForecastAPI interface {
	Weather(ctx context.Context, locationID, regionID string) (domain.ForecastSnapshot, error)
	Locations(ctx context.Context) ([]domain.Station, error)
}

// ForecastCoordinator polls the App API on a fixed interval instead of
// reacting to push notifications. Hourly entries already in the past are
// pruned on every refresh, cut off at the top of the current hour.
type ForecastCoordinator struct {
	api      ForecastAPI
	location domain.Location
	region   string
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu          sync.RWMutex
	locationID  string
	data        *domain.ForecastSnapshot
	subscribers []func(domain.ForecastSnapshot)
}

// NewForecastCoordinator creates a polling coordinator for one location and
// alert region.
func NewForecastCoordinator(api ForecastAPI, loc domain.Location, region string, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *ForecastCoordinator {
	if interval <= 0 {
		interval = DefaultForecastInterval
	}
	return &ForecastCoordinator{
		api:      api,
		location: loc,
		region:   region,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// Name identifies the coordinator in scheduler logs.
func (c *ForecastCoordinator) Name() string {
	return "forecast"
}

// Interval returns the configured polling interval.
func (c *ForecastCoordinator) Interval() time.Duration {
	return c.interval
}

// Current returns the last successfully fetched forecast, if any.
func (c *ForecastCoordinator) Current() (domain.ForecastSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		return domain.ForecastSnapshot{}, false
	}
	return *c.data, true
}

// Subscribe registers a function called with every published snapshot.
func (c *ForecastCoordinator) Subscribe(fn func(domain.ForecastSnapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// FirstRefresh resolves the closest forecast location and loads the initial
// snapshot.
func (c *ForecastCoordinator) FirstRefresh(ctx context.Context) error {
	locations, err := c.api.Locations(ctx)
	if err != nil {
		return fmt.Errorf("resolve forecast location: %w", err)
	}
	if len(locations) == 0 {
		return fmt.Errorf("resolve forecast location: none available")
	}
	closest, distance := geo.ClosestStation(locations, c.location)

	c.mu.Lock()
	c.locationID = closest.ID
	c.mu.Unlock()
	c.logger.Debug("forecast location resolved",
		"location", c.location.Name, "forecast_location", closest.ID, "distance_km", distance)

	return c.Refresh(ctx)
}

// Refresh fetches the forecast and publishes it. On failure the previous
// snapshot stays visible and the error is returned to the scheduler.
func (c *ForecastCoordinator) Refresh(ctx context.Context) error {
	c.mu.RLock()
	locationID := c.locationID
	c.mu.RUnlock()
	if locationID == "" {
		return fmt.Errorf("forecast location not resolved")
	}

	c.metrics.FetchAttempts.WithLabelValues("forecast").Inc()
	start := c.clock.Now()
	snap, err := c.api.Weather(ctx, locationID, c.region)
	c.metrics.FetchDuration.WithLabelValues("forecast").Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.RefreshOutcomes.WithLabelValues("forecast", "aborted").Inc()
		return fmt.Errorf("retrieve forecast: %w", err)
	}

	currentHour := c.clock.Now().UTC().Truncate(time.Hour)
	snap = snap.PruneHoursBefore(currentHour)
	snap.FetchedAt = c.clock.Now().UTC()

	c.mu.Lock()
	c.data = &snap
	subs := make([]func(domain.ForecastSnapshot), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	c.metrics.RefreshOutcomes.WithLabelValues("forecast", "success").Inc()
	return nil
}
