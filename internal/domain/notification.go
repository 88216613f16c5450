package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Dataset names as they appear in broker notification payloads.
const (
	DatasetObservations  = "10-minute-in-situ-meteorological-observations"
	DatasetRadarForecast = "radar_forecast"
)

// Notification is one push event from the data platform broker. It is
// consumed once by every callback registered for its dataset and then
// discarded. The timestamp embedded in Filename is the authoritative
// version of the dataset, not the event's arrival time.
type Notification struct {
	Dataset  string
	Filename string
	Payload  []byte
}

type notificationPayload struct {
	Data struct {
		DatasetName string `json:"datasetName"`
		Filename    string `json:"filename"`
	} `json:"data"`
}

// ParseNotification decodes a broker message payload.
func ParseNotification(payload []byte) (Notification, error) {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Notification{}, fmt.Errorf("parse notification: %w", err)
	}
	if p.Data.DatasetName == "" {
		return Notification{}, fmt.Errorf("parse notification: missing datasetName")
	}
	return Notification{
		Dataset:  p.Data.DatasetName,
		Filename: p.Data.Filename,
		Payload:  payload,
	}, nil
}

// FilenamePattern extracts the UTC timestamp a dataset encodes in its
// published filenames.
type FilenamePattern struct {
	Prefix string
	Suffix string
	Layout string
}

// Filename patterns per dataset.
var (
	ObservationFile   = FilenamePattern{Prefix: "KMDS__OPER_P___10M_OBS_L2_", Suffix: ".nc", Layout: "200601021504"}
	RadarForecastFile = FilenamePattern{Prefix: "RAD_NL25_RAC_FM_", Suffix: ".h5", Layout: "200601021504"}
)

// Parse returns the embedded timestamp, always in UTC.
func (p FilenamePattern) Parse(filename string) (time.Time, error) {
	if !strings.HasPrefix(filename, p.Prefix) || !strings.HasSuffix(filename, p.Suffix) {
		return time.Time{}, fmt.Errorf("filename %q does not match pattern %s*%s", filename, p.Prefix, p.Suffix)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(filename, p.Prefix), p.Suffix)
	ts, err := time.ParseInLocation(p.Layout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("filename %q: %w", filename, err)
	}
	return ts, nil
}
