// Package domain models KNMI Data Platform weather data.
//
// # Data Sources
//
// Three upstream APIs feed the service:
//
//   - The EDR API serves 10-minute ground observations as CoverageJSON,
//     one coverage per station. Dataset name:
//     "10-minute-in-situ-meteorological-observations".
//   - The adaguc WMS serves precipitation radar tiles, both the corrected
//     real-time composite and the two-hour nowcast ("radar_forecast").
//   - The App API serves hourly/daily forecasts and regional weather alerts
//     for named locations.
//
// New observation and nowcast runs are announced as file-created events on
// the data platform's MQTT broker. The payload is a CloudEvents envelope;
// only data.datasetName and data.filename are consumed here.
//
// # Filename Timestamps
//
// The timestamp embedded in a published filename is the authoritative
// version of a dataset run:
//
//	KMDS__OPER_P___10M_OBS_L2_202401151030.nc  →  2024-01-15 10:30 UTC
//	RAD_NL25_RAC_FM_202401151025.h5            →  2024-01-15 10:25 UTC
//
// Versions compare by this timestamp, never by event arrival time: broker
// redeliveries and out-of-order arrivals are expected.
//
// # Parameter Codes
//
// EDR parameters follow the KNMI 10-minute observation naming:
//
//	ta   air temperature (°C)         td   dew point (°C)
//	rh   relative humidity (%)        pp   air pressure (hPa)
//	vv   visibility (m)               dd   wind direction (degrees)
//	ff   wind speed (m/s)             gff  wind gust (m/s)
//	n1   cloud cover (octas)          ww   present weather code
//
// A station reports a parameter only when its sensor suite carries it, so
// coverages are filtered for completeness before nearest-station selection;
// see [Coverage.HasParameters].
package domain
