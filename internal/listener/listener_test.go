package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlweather/knmi-direct/internal/domain"
	"github.com/nlweather/knmi-direct/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func notificationPayload(dataset, filename string) []byte {
	return []byte(fmt.Sprintf(`{"data":{"datasetName":%q,"filename":%q}}`, dataset, filename))
}

// fakeSource feeds scripted messages and errors to the listener.
type fakeSource struct {
	mu       sync.Mutex
	openErrs []error
	opens    int
	closes   int
	msgs     chan Message
	errs     chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		msgs: make(chan Message, 16),
		errs: make(chan error, 16),
	}
}

func (s *fakeSource) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if len(s.openErrs) > 0 {
		err := s.openErrs[0]
		s.openErrs = s.openErrs[1:]
		return err
	}
	return nil
}

func (s *fakeSource) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case err := <-s.errs:
		return Message{}, err
	case msg := <-s.msgs:
		return msg, nil
	}
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func runListener(t *testing.T, l *Listener) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return cancel, done
}

func waitState(t *testing.T, l *Listener, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for l.State() != want {
		select {
		case <-deadline:
			t.Fatalf("listener never reached state %s, currently %s", want, l.State())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestListenerDispatchesByDataset(t *testing.T) {
	source := newFakeSource()
	l := New(source, FixedBackoff{Delay: time.Second}, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	observations := make(chan domain.Notification, 1)
	radar := make(chan domain.Notification, 1)
	l.Register(domain.DatasetObservations, "obs", func(_ context.Context, n domain.Notification) {
		observations <- n
	})
	l.Register(domain.DatasetRadarForecast, "radar", func(_ context.Context, n domain.Notification) {
		radar <- n
	})

	cancel, done := runListener(t, l)
	defer cancel()

	source.msgs <- Message{Payload: notificationPayload(domain.DatasetObservations, "obs.nc")}
	source.msgs <- Message{Payload: notificationPayload(domain.DatasetRadarForecast, "radar.h5")}

	select {
	case n := <-observations:
		assert.Equal(t, "obs.nc", n.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("observation callback never fired")
	}
	select {
	case n := <-radar:
		assert.Equal(t, "radar.h5", n.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("radar callback never fired")
	}
	select {
	case <-observations:
		t.Fatal("observation callback saw a radar notification")
	default:
	}

	cancel()
	require.NoError(t, <-done)
}

func TestListenerRegisterReplacesSubscriber(t *testing.T) {
	source := newFakeSource()
	l := New(source, FixedBackoff{Delay: time.Second}, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	first := make(chan domain.Notification, 1)
	second := make(chan domain.Notification, 1)
	l.Register(domain.DatasetObservations, "same-id", func(_ context.Context, n domain.Notification) {
		first <- n
	})
	l.Register(domain.DatasetObservations, "same-id", func(_ context.Context, n domain.Notification) {
		second <- n
	})

	cancel, done := runListener(t, l)
	defer cancel()

	source.msgs <- Message{Payload: notificationPayload(domain.DatasetObservations, "obs.nc")}

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement callback never fired")
	}
	select {
	case <-first:
		t.Fatal("replaced callback still fired")
	default:
	}

	cancel()
	require.NoError(t, <-done)
}

func TestListenerDropsUnknownDatasetSilently(t *testing.T) {
	source := newFakeSource()
	l := New(source, FixedBackoff{Delay: time.Second}, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	got := make(chan domain.Notification, 1)
	l.Register(domain.DatasetObservations, "obs", func(_ context.Context, n domain.Notification) {
		got <- n
	})

	cancel, done := runListener(t, l)
	defer cancel()

	source.msgs <- Message{Payload: notificationPayload("some-other-dataset", "other.nc")}
	source.msgs <- Message{Payload: notificationPayload(domain.DatasetObservations, "obs.nc")}

	// The later message arriving proves the earlier one was dropped without
	// stalling the loop.
	select {
	case n := <-got:
		assert.Equal(t, "obs.nc", n.Filename)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestListenerReconnectsAfterTransportError(t *testing.T) {
	source := newFakeSource()
	clock := clockwork.NewFakeClock()
	l := New(source, FixedBackoff{Delay: 30 * time.Second}, clock, discardLogger(), observability.NewMetricsForTesting())

	cancel, done := runListener(t, l)
	defer cancel()

	waitState(t, l, StateSubscribed)
	source.errs <- errors.New("connection lost")
	waitState(t, l, StateBackoff)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(30 * time.Second)

	waitState(t, l, StateSubscribed)
	assert.GreaterOrEqual(t, source.openCount(), 2)

	cancel()
	require.NoError(t, <-done)
}

func TestListenerRunReturnsNilOnCancel(t *testing.T) {
	source := newFakeSource()
	l := New(source, FixedBackoff{Delay: time.Second}, clockwork.NewRealClock(), discardLogger(), observability.NewMetricsForTesting())

	cancel, done := runListener(t, l)
	waitState(t, l, StateSubscribed)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, StateDisconnected, l.State())
}

func TestCheck(t *testing.T) {
	source := newFakeSource()
	require.NoError(t, Check(context.Background(), source))
	assert.Equal(t, 1, source.openCount())

	failing := newFakeSource()
	failing.openErrs = []error{errors.New("not authorised")}
	require.Error(t, Check(context.Background(), failing))
}
