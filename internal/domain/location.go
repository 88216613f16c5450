package domain

// Location is a configured point of interest, supplied by configuration
// and immutable for the lifetime of the process.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Station is an upstream measurement or forecast anchor point, e.g. a
// ground observation station or a forecast grid cell.
type Station struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
