// Package listener maintains the long-lived push-notification subscription
// to the data platform broker and fans incoming events out to registered
// per-dataset callbacks.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/observability"
)

// Message is one raw broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Source is a broker connection factory. Open establishes a fresh connection
// and subscription; Next blocks for the next message; Close tears the
// connection down. A Source must support repeated Open/Close cycles.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Callback handles one notification for a dataset. Callbacks for the same
// message run concurrently; the listener waits for all of them before
// pulling the next message.
type Callback func(ctx context.Context, n domain.Notification)

// State is the listener connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// BackoffPolicy decides how long to wait before reconnect attempt n (1-based).
type BackoffPolicy interface {
	NextDelay(attempt int) time.Duration
}

// FixedBackoff waits the same delay between every reconnect.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) NextDelay(int) time.Duration { return b.Delay }

// Listener owns one broker subscription and a per-dataset callback registry.
// Its run loop never terminates on error; any transport failure leads to a
// backoff-and-reconnect cycle until the context is cancelled.
type Listener struct {
	source  Source
	backoff BackoffPolicy
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	callbacks map[string]map[string]Callback

	state atomic.Int32
}

// New creates a Listener around a broker source.
func New(source Source, backoff BackoffPolicy, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Listener {
	return &Listener{
		source:    source,
		backoff:   backoff,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		callbacks: make(map[string]map[string]Callback),
	}
}

// Register installs a callback for a dataset. Registering the same
// (dataset, subscriber) pair again replaces the previous callback.
func (l *Listener) Register(dataset, subscriberID string, cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.callbacks[dataset] == nil {
		l.callbacks[dataset] = make(map[string]Callback)
	}
	l.callbacks[dataset][subscriberID] = cb
}

// Unregister removes a subscriber's callback for a dataset.
func (l *Listener) Unregister(dataset, subscriberID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.callbacks[dataset], subscriberID)
	if len(l.callbacks[dataset]) == 0 {
		delete(l.callbacks, dataset)
	}
}

// State returns the current connection state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

func (l *Listener) setState(s State) {
	l.state.Store(int32(s))
	l.metrics.ListenerState.Set(float64(s))
}

// Run drives the connect/subscribe/consume loop until ctx is cancelled.
// It always returns nil; errors are contained inside the loop.
func (l *Listener) Run(ctx context.Context) error {
	defer l.setState(StateDisconnected)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateConnecting)
		err := l.source.Open(ctx)
		if err == nil {
			l.setState(StateSubscribed)
			l.logger.Debug("waiting for messages")
			attempt = 0
			err = l.consume(ctx)
			if closeErr := l.source.Close(); closeErr != nil {
				l.logger.Debug("source close error", "error", closeErr)
			}
		}

		if ctx.Err() != nil {
			return nil
		}

		attempt++
		delay := l.backoff.NextDelay(attempt)
		l.logger.Warn("listener transport error, reconnecting", "error", err, "delay", delay, "attempt", attempt)
		l.metrics.ListenerReconnects.Inc()
		l.setState(StateBackoff)
		if !sleepWithContext(ctx, l.clock, delay) {
			return nil
		}
	}
}

// consume pulls messages until the source fails or the context ends.
func (l *Listener) consume(ctx context.Context) error {
	for {
		msg, err := l.source.Next(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, msg)
	}
}

// dispatch routes one message to every callback registered for its dataset
// and waits for all of them. Messages for unknown datasets are dropped
// silently; a slow callback therefore delays subsequent messages, which
// keeps per-subscription ordering intact.
func (l *Listener) dispatch(ctx context.Context, msg Message) {
	n, err := domain.ParseNotification(msg.Payload)
	if err != nil {
		l.logger.Debug("dropping unparseable message", "topic", msg.Topic, "error", err)
		l.metrics.NotificationsDropped.WithLabelValues("unparseable").Inc()
		return
	}
	l.metrics.NotificationsReceived.WithLabelValues(n.Dataset).Inc()
	l.logger.Debug("broker event", "dataset", n.Dataset, "filename", n.Filename)

	l.mu.RLock()
	cbs := make([]Callback, 0, len(l.callbacks[n.Dataset]))
	for _, cb := range l.callbacks[n.Dataset] {
		cbs = append(cbs, cb)
	}
	l.mu.RUnlock()

	if len(cbs) == 0 {
		l.metrics.NotificationsDropped.WithLabelValues("no_subscribers").Inc()
		return
	}

	var wg sync.WaitGroup
	for _, cb := range cbs {
		wg.Add(1)
		go func(cb Callback) {
			defer wg.Done()
			cb(ctx, n)
		}(cb)
	}
	wg.Wait()
}

// Check performs a one-shot connect-and-subscribe probe against a source,
// used for credential validation during setup. The source is closed again
// before returning.
func Check(ctx context.Context, source Source) error {
	if err := source.Open(ctx); err != nil {
		return err
	}
	return source.Close()
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
