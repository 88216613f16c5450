package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlweather/knmi-direct/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("KNMI_NOTIFICATION_TOKEN", "notif-token")
	t.Setenv("KNMI_EDR_TOKEN", "edr-token")
	t.Setenv("KNMI_WMS_TOKEN", "wms-token")
	t.Setenv("LOCATIONS", "Amsterdam=52.37,4.89")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "notif-token", cfg.NotificationToken)
	assert.Equal(t, "wss://mqtt.dataplatform.knmi.nl:443", cfg.BrokerURL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.GraceDelay)
	assert.Equal(t, 30*time.Second, cfg.ListenerBackoff)
	assert.Equal(t, 15*time.Minute, cfg.ForecastInterval)
	assert.Equal(t, 30*time.Second, cfg.ClientTimeout)
	assert.Equal(t, "Europe/Amsterdam", cfg.RadarTimezone)
	assert.Equal(t, "nl", cfg.Region)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []domain.Location{{Name: "Amsterdam", Latitude: 52.37, Longitude: 4.89}}, cfg.Locations)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCATIONS", "Amsterdam=52.37,4.89; De Bilt=52.10,5.18")
	t.Setenv("MQTT_BROKER_URL", "wss://example.test:443")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("GRACE_DELAY", "5s")
	t.Setenv("FORECAST_INTERVAL", "10m")
	t.Setenv("RADAR_TIMEZONE", "UTC")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-observations")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Len(t, cfg.Locations, 2)
	assert.Equal(t, "De Bilt", cfg.Locations[1].Name)
	assert.Equal(t, "wss://example.test:443", cfg.BrokerURL)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.GraceDelay)
	assert.Equal(t, 10*time.Minute, cfg.ForecastInterval)
	assert.Equal(t, "UTC", cfg.RadarTimezone)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-observations", cfg.KafkaTopic)
}

func TestLoad_MissingToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("KNMI_EDR_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KNMI_EDR_TOKEN")
}

func TestLoad_MissingLocations(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOCATIONS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOCATIONS")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeGraceDelay(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GRACE_DELAY", "-1s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GRACE_DELAY")
}

func TestParseLocations(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.Location
		wantErr bool
	}{
		{
			name:  "single",
			input: "Amsterdam=52.37,4.89",
			want:  []domain.Location{{Name: "Amsterdam", Latitude: 52.37, Longitude: 4.89}},
		},
		{
			name:  "multiple with spaces",
			input: "Amsterdam=52.37,4.89; De Bilt=52.10,5.18",
			want: []domain.Location{
				{Name: "Amsterdam", Latitude: 52.37, Longitude: 4.89},
				{Name: "De Bilt", Latitude: 52.10, Longitude: 5.18},
			},
		},
		{name: "empty", input: "  ", want: nil},
		{name: "missing coords", input: "Amsterdam", wantErr: true},
		{name: "missing longitude", input: "Amsterdam=52.37", wantErr: true},
		{name: "non-numeric", input: "Amsterdam=abc,4.89", wantErr: true},
		{name: "latitude out of range", input: "Nowhere=95.0,4.89", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocations(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
