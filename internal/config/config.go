// Package config loads service settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nlweather/knmi-direct/internal/adapter/mqttsource"
	"github.com/nlweather/knmi-direct/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// KNMI credentials. The notification token authenticates against the MQTT
	// broker, the data tokens against the EDR and WMS APIs.
	NotificationToken string
	EDRToken          string
	WMSToken          string

	BrokerURL       string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Locations the service tracks, parsed from a "Name=lat,lon;..." list.
	Locations []domain.Location
	Region    string

	GraceDelay       time.Duration
	ListenerBackoff  time.Duration
	ForecastInterval time.Duration
	ClientTimeout    time.Duration

	RadarBackgroundPath string
	RadarTimezone       string

	// Optional Kafka sink for observation snapshots.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	graceDelay, err := parseDuration("GRACE_DELAY", "15s")
	if err != nil {
		return nil, err
	}
	listenerBackoff, err := parseDuration("LISTENER_BACKOFF", "30s")
	if err != nil {
		return nil, err
	}
	forecastInterval, err := parseDuration("FORECAST_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	clientTimeout, err := parseDuration("CLIENT_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	locations, err := ParseLocations(os.Getenv("LOCATIONS"))
	if err != nil {
		return nil, err
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		NotificationToken: os.Getenv("KNMI_NOTIFICATION_TOKEN"),
		EDRToken:          os.Getenv("KNMI_EDR_TOKEN"),
		WMSToken:          os.Getenv("KNMI_WMS_TOKEN"),

		BrokerURL:       envOrDefault("MQTT_BROKER_URL", mqttsource.DefaultBrokerURL),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Locations: locations,
		Region:    envOrDefault("FORECAST_REGION", "nl"),

		GraceDelay:       graceDelay,
		ListenerBackoff:  listenerBackoff,
		ForecastInterval: forecastInterval,
		ClientTimeout:    clientTimeout,

		RadarBackgroundPath: os.Getenv("RADAR_BACKGROUND_PATH"),
		RadarTimezone:       envOrDefault("RADAR_TIMEZONE", "Europe/Amsterdam"),

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "weather-observations"),
	}

	if cfg.NotificationToken == "" {
		return nil, errors.New("KNMI_NOTIFICATION_TOKEN is required")
	}
	if cfg.EDRToken == "" {
		return nil, errors.New("KNMI_EDR_TOKEN is required")
	}
	if cfg.WMSToken == "" {
		return nil, errors.New("KNMI_WMS_TOKEN is required")
	}
	if len(cfg.Locations) == 0 {
		return nil, errors.New("LOCATIONS is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

// ParseLocations parses a semicolon-separated "Name=lat,lon" list.
func ParseLocations(s string) ([]domain.Location, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var locations []domain.Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, coords, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid location %q: expected Name=lat,lon", entry)
		}
		latStr, lonStr, ok := strings.Cut(coords, ",")
		if !ok {
			return nil, fmt.Errorf("invalid location %q: expected Name=lat,lon", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude in %q: %w", entry, err)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude in %q: %w", entry, err)
		}
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("coordinates out of range in %q", entry)
		}
		locations = append(locations, domain.Location{
			Name:      strings.TrimSpace(name),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return locations, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
