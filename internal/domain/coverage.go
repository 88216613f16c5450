package domain

import "time"

// DefaultParameters is the set of EDR parameter codes fetched for every
// observation refresh. Categorical codes (ww) ride along as numeric values,
// matching the upstream CoverageJSON encoding.
var DefaultParameters = []string{"ta", "td", "rh", "pp", "vv", "dd", "ff", "gff", "n1", "ww"}

// Coverage is one provider-returned spatio-temporal sample: a station, a
// timestamp, and per-parameter values.
type Coverage struct {
	StationID string
	Latitude  float64
	Longitude float64
	Time      time.Time
	Ranges    map[string]float64
}

// HasParameters reports whether the coverage carries a value for every
// requested parameter code.
func (c Coverage) HasParameters(parameters []string) bool {
	for _, p := range parameters {
		if _, ok := c.Ranges[p]; !ok {
			return false
		}
	}
	return true
}

// LocationObservation is the per-location slice of an observation snapshot:
// the coverage of the nearest station plus how far away that station is.
type LocationObservation struct {
	StationID   string             `json:"station_id"`
	StationName string             `json:"station_name"`
	DistanceKM  float64            `json:"distance_km"`
	ObservedAt  time.Time          `json:"observed_at"`
	Ranges      map[string]float64 `json:"ranges"`
}

// ObservationSnapshot maps configured location names to their nearest-station
// observations. A snapshot is immutable once published; coordinators replace
// it wholesale on refresh.
type ObservationSnapshot map[string]LocationObservation

// MaxDistance returns the largest station distance across all locations.
// Zero for an empty snapshot.
func (s ObservationSnapshot) MaxDistance() float64 {
	var maxKM float64
	for _, obs := range s {
		if obs.DistanceKM > maxKM {
			maxKM = obs.DistanceKM
		}
	}
	return maxKM
}

// ObservedAt returns the observation time shared by the snapshot, taken from
// an arbitrary entry. Zero for an empty snapshot.
func (s ObservationSnapshot) ObservedAt() time.Time {
	for _, obs := range s {
		return obs.ObservedAt
	}
	return time.Time{}
}
