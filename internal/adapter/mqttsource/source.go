// Package mqttsource adapts the data platform's MQTT-over-websockets
// notification broker to the listener.Source contract.
package mqttsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"

	"github.com/nlweather/knmi-direct/internal/knmi"
	"github.com/nlweather/knmi-direct/internal/listener"
)

// DefaultBrokerURL is the data platform notification broker endpoint.
const DefaultBrokerURL = "wss://mqtt.dataplatform.knmi.nl:443"

// DefaultTopics subscribes to file notifications for the observation and
// radar-forecast datasets.
var DefaultTopics = []string{
	"dataplatform/file/v1/10-minute-in-situ-meteorological-observations/1.0/#",
	"dataplatform/file/v1/radar_forecast/2.0/#",
}

// Config holds broker connection settings.
type Config struct {
	BrokerURL      string
	Token          string
	Topics         []string
	ConnectTimeout time.Duration
}

// Source implements listener.Source. Every Open builds a fresh client;
// reusing a client across reconnects does not survive broker-side session
// teardown.
type Source struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
	msgs   chan listener.Message
	errs   chan error
	done   chan struct{}
}

// New creates a broker source. Zero-value config fields fall back to the
// data platform defaults.
func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = DefaultBrokerURL
	}
	if len(cfg.Topics) == 0 {
		cfg.Topics = DefaultTopics
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Source{cfg: cfg, logger: logger}
}

// Open connects and subscribes to all configured topic filters.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make(chan listener.Message, 16)
	errs := make(chan error, 1)
	done := make(chan struct{})

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(uuid.NewString()).
		SetUsername("token").
		SetPassword(s.cfg.Token).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case errs <- fmt.Errorf("connection lost: %w", err):
		default:
		}
	})

	client := mqtt.NewClient(opts)
	if err := waitToken(ctx, client.Connect()); err != nil {
		return mapConnectError(err)
	}

	handler := func(_ mqtt.Client, m mqtt.Message) {
		select {
		case msgs <- listener.Message{Topic: m.Topic(), Payload: m.Payload()}:
		case <-done:
		}
	}
	for _, topic := range s.cfg.Topics {
		if err := waitToken(ctx, client.Subscribe(topic, 0, handler)); err != nil {
			client.Disconnect(0)
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	s.client = client
	s.msgs = msgs
	s.errs = errs
	s.done = done
	s.logger.Debug("broker subscription established", "broker", s.cfg.BrokerURL, "topics", len(s.cfg.Topics))
	return nil
}

// Next blocks until a message arrives, the connection is lost, or the
// context ends.
func (s *Source) Next(ctx context.Context) (listener.Message, error) {
	s.mu.Lock()
	msgs, errs := s.msgs, s.errs
	s.mu.Unlock()

	if msgs == nil {
		return listener.Message{}, errors.New("source not open")
	}
	select {
	case <-ctx.Done():
		return listener.Message{}, ctx.Err()
	case err := <-errs:
		return listener.Message{}, err
	case msg := <-msgs:
		return msg, nil
	}
}

// Close drops the current connection. The source can be opened again.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	s.msgs = nil
	s.errs = nil
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

// mapConnectError translates a broker auth rejection into the shared
// taxonomy so setup validation can tell bad credentials from outages.
func mapConnectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedNotAuthorised) ||
		errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
		return fmt.Errorf("%w: %s", knmi.ErrTokenInvalid, err)
	}
	return err
}
