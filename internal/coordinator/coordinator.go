// Package coordinator implements the notification-driven refresh skeleton
// shared by all data coordinators: version deduplication, a grace delay
// before each fetch, bounded retries on transient failures, and snapshot
// publication to subscribers.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/knmi"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// epochSentinel initializes last-known versions far enough in the past that
// any real notification is treated as newer.
var epochSentinel = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// Strategy supplies the variation points of a coordinator: how to read a
// version out of a notification, how to fetch data for that version, and
// how to load the initial snapshot.
type Strategy[T any] interface {
	// ResolveVersion extracts the dataset version a notification announces.
	ResolveVersion(n domain.Notification) (time.Time, error)
	// Fetch retrieves the snapshot for a version.
	Fetch(ctx context.Context, version time.Time) (T, error)
	// Bootstrap loads the initial snapshot and its version, used before any
	// notification has arrived.
	Bootstrap(ctx context.Context) (T, time.Time, error)
}

// DedupeMode selects the already-satisfied test applied to incoming
// notification versions.
type DedupeMode int

const (
	// DedupeStrict skips any version not strictly newer than the last one.
	DedupeStrict DedupeMode = iota
	// DedupeEqualWithDistanceCheck skips older versions outright, but
	// refetches an equal version when the current snapshot's stations sit
	// farther away than the distance threshold.
	DedupeEqualWithDistanceCheck
)

// Options tune the shared refresh skeleton.
type Options[T any] struct {
	// GraceDelay is waited before every fetch attempt; upstream publishes
	// the notification slightly before the data is queryable.
	GraceDelay time.Duration
	// MaxAttempts bounds fetch attempts per notification.
	MaxAttempts int
	Dedupe      DedupeMode
	// DistanceThresholdKM and MaxDistance feed the equal-version distance
	// check; both must be set for DedupeEqualWithDistanceCheck.
	DistanceThresholdKM float64
	MaxDistance         func(T) float64
}

const (
	defaultGraceDelay  = 15 * time.Second
	defaultMaxAttempts = 3
)

// Coordinator reacts to push notifications for one dataset, keeping the
// last successful snapshot visible through transient upstream failures.
type Coordinator[T any] struct {
	name     string
	strategy Strategy[T]
	opts     Options[T]
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu          sync.RWMutex
	lastVersion time.Time
	data        *T
	subscribers []func(T)
}

// New creates a coordinator. Zero option fields get the reference defaults.
func New[T any](name string, strategy Strategy[T], opts Options[T], clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Coordinator[T] {
	if opts.GraceDelay == 0 {
		opts.GraceDelay = defaultGraceDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Coordinator[T]{
		name:        name,
		strategy:    strategy,
		opts:        opts,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		lastVersion: epochSentinel,
	}
}

// Current returns the last successfully fetched snapshot, if any.
func (c *Coordinator[T]) Current() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil {
		var zero T
		return zero, false
	}
	return *c.data, true
}

// LastVersion returns the version of the current snapshot, or the epoch
// sentinel before the first success.
func (c *Coordinator[T]) LastVersion() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastVersion
}

// Subscribe registers a function called with every published snapshot.
// Subscribers must be registered before the coordinator starts handling
// notifications.
func (c *Coordinator[T]) Subscribe(fn func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// SetUpdatedData publishes a snapshot and its version, notifying all
// subscribers. Subscribers run on the caller's goroutine, outside the lock.
func (c *Coordinator[T]) SetUpdatedData(data T, version time.Time) {
	c.mu.Lock()
	c.data = &data
	c.lastVersion = version
	subs := make([]func(T), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

// FirstRefresh loads the initial snapshot via the strategy's bootstrap.
// Failure here is surfaced to the caller; the coordinator holds no data
// until it succeeds.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	data, version, err := c.strategy.Bootstrap(ctx)
	if err != nil {
		return err
	}
	c.SetUpdatedData(data, version)
	c.logger.Debug("initial snapshot loaded", "coordinator", c.name, "version", version)
	return nil
}

// HandleNotification is the listener callback entry point. A version not
// newer than the current one is a no-op; otherwise the coordinator waits
// the grace delay and fetches, retrying transient failures up to the
// attempt budget. Exhaustion leaves prior data untouched.
func (c *Coordinator[T]) HandleNotification(ctx context.Context, n domain.Notification) {
	version, err := c.strategy.ResolveVersion(n)
	if err != nil {
		c.logger.Warn("unresolvable notification version", "coordinator", c.name, "filename", n.Filename, "error", err)
		c.metrics.RefreshOutcomes.WithLabelValues(c.name, "aborted").Inc()
		return
	}

	if c.alreadySatisfied(version) {
		c.logger.Debug("already got data for version", "coordinator", c.name, "version", version)
		c.metrics.RefreshOutcomes.WithLabelValues(c.name, "skipped").Inc()
		return
	}

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		if !sleepWithContext(ctx, c.clock, c.opts.GraceDelay) {
			return
		}
		c.metrics.FetchAttempts.WithLabelValues(c.name).Inc()
		start := c.clock.Now()
		data, err := c.strategy.Fetch(ctx, version)
		c.metrics.FetchDuration.WithLabelValues(c.name).Observe(c.clock.Since(start).Seconds())
		if err == nil {
			c.SetUpdatedData(data, version)
			c.metrics.RefreshOutcomes.WithLabelValues(c.name, "success").Inc()
			return
		}
		if !knmi.Retryable(err) {
			c.logger.Warn("refresh aborted", "coordinator", c.name, "version", version, "error", err)
			c.metrics.RefreshOutcomes.WithLabelValues(c.name, "aborted").Inc()
			return
		}
		c.logger.Debug("retrying fetch", "coordinator", c.name, "version", version, "attempt", attempt, "error", err)
	}

	c.logger.Warn("could not retrieve coverage after retries",
		"coordinator", c.name, "version", version, "attempts", c.opts.MaxAttempts)
	c.metrics.RefreshOutcomes.WithLabelValues(c.name, "exhausted").Inc()
}

// alreadySatisfied applies the dedupe policy to an incoming version.
func (c *Coordinator[T]) alreadySatisfied(version time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.opts.Dedupe {
	case DedupeEqualWithDistanceCheck:
		if version.Before(c.lastVersion) {
			return true
		}
		if version.Equal(c.lastVersion) {
			return c.data != nil && c.opts.MaxDistance != nil &&
				c.opts.MaxDistance(*c.data) < c.opts.DistanceThresholdKM
		}
		return false
	default:
		return !version.After(c.lastVersion)
	}
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
