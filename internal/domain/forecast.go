package domain

import "time"

// HourlyForecast is one hour of the App API forecast.
type HourlyForecast struct {
	Time          time.Time `json:"dateTime"`
	Temperature   float64   `json:"temperature"`
	Precipitation float64   `json:"precipitation"`
	WindSpeed     float64   `json:"windSpeed"`
	WindDirection float64   `json:"windDirection"`
	Condition     int       `json:"weatherType"`
}

// DailyForecast is one day of the App API forecast.
type DailyForecast struct {
	Date            time.Time `json:"date"`
	TemperatureLow  float64   `json:"temperatureLow"`
	TemperatureHigh float64   `json:"temperatureHigh"`
	Precipitation   float64   `json:"precipitation"`
	PrecipitationP  float64   `json:"precipitationChance"`
	Condition       int       `json:"weatherType"`
}

// Alert is a regional weather warning.
type Alert struct {
	RegionID string    `json:"regionId"`
	Level    string    `json:"level"`
	Text     string    `json:"text"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// ForecastSnapshot bundles one App API response. FetchedAt is when the
// service retrieved it, not an upstream model-run time.
type ForecastSnapshot struct {
	Hourly    []HourlyForecast `json:"hourly"`
	Daily     []DailyForecast  `json:"daily"`
	Alerts    []Alert          `json:"alerts"`
	FetchedAt time.Time        `json:"fetched_at"`
}

// PruneHoursBefore drops hourly entries strictly before the cutoff and
// returns the snapshot. Daily entries and alerts are left untouched.
func (s ForecastSnapshot) PruneHoursBefore(cutoff time.Time) ForecastSnapshot {
	pruned := make([]HourlyForecast, 0, len(s.Hourly))
	for _, h := range s.Hourly {
		if !h.Time.Before(cutoff) {
			pruned = append(pruned, h)
		}
	}
	s.Hourly = pruned
	return s
}
