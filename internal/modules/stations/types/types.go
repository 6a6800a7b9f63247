package types

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrNoStations is returned when the data source yields zero stations.
	ErrNoStations = errors.New("no stations in data source")
	// ErrUnknownStation is returned when a station code does not resolve
	// against the loaded catalog.
	ErrUnknownStation = errors.New("unknown station code")
)

// Station is one fixed-location monitoring point. Immutable once loaded.
type Station struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Region    string  `json:"region"`
	Commune   string  `json:"commune"`
	Watershed string  `json:"watershed"`
	Zone      string  `json:"zone"`
	Elevation float64 `json:"elevation"`
}

// HasValidCoordinates reports whether the station can be placed on a map.
// Stations failing this check stay in the catalog but are excluded from the
// bounding box.
func (s Station) HasValidCoordinates() bool {
	if math.IsNaN(s.Latitude) || math.IsInf(s.Latitude, 0) {
		return false
	}
	if math.IsNaN(s.Longitude) || math.IsInf(s.Longitude, 0) {
		return false
	}
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}

// BoundingBox is the minimal rectangle covering a set of coordinates.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Variable names for Measurement.Value lookups and chart selection.
const (
	VarTemperature   = "temperature"
	VarHumidity      = "humidity"
	VarPressure      = "pressure"
	VarWindDirection = "wind_direction"
	VarWindSpeed     = "wind_speed"
	VarPrecipitation = "precipitation"
	VarRadiation     = "radiation"
)

// Variables lists the measured variables in display order.
func Variables() []string {
	return []string{
		VarTemperature,
		VarHumidity,
		VarPressure,
		VarWindDirection,
		VarWindSpeed,
		VarPrecipitation,
		VarRadiation,
	}
}

// Measurement is one time-stamped set of sensor readings for a station.
// Nil pointers mean "no data"; a reading is never coerced to zero.
type Measurement struct {
	StationCode   string    `json:"stationCode"`
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature"`
	Humidity      *float64  `json:"humidity"`
	Pressure      *float64  `json:"pressure"`
	WindDirection *float64  `json:"windDirection"`
	WindSpeed     *float64  `json:"windSpeed"`
	Precipitation *float64  `json:"precipitation"`
	Radiation     *float64  `json:"radiation"`
}

// Value returns the reading for a named variable, or nil when the variable is
// unknown or has no data at this timestamp.
func (m Measurement) Value(variable string) *float64 {
	switch variable {
	case VarTemperature:
		return m.Temperature
	case VarHumidity:
		return m.Humidity
	case VarPressure:
		return m.Pressure
	case VarWindDirection:
		return m.WindDirection
	case VarWindSpeed:
		return m.WindSpeed
	case VarPrecipitation:
		return m.Precipitation
	case VarRadiation:
		return m.Radiation
	}
	return nil
}

// Telemetry is a live reading published by a station over MQTT.
type Telemetry struct {
	StationCode   string    `json:"station_code"`
	Timestamp     time.Time `json:"timestamp"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Humidity      *float64  `json:"humidity,omitempty"`
	Pressure      *float64  `json:"pressure,omitempty"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
	Precipitation *float64  `json:"precipitation,omitempty"`
	Radiation     *float64  `json:"radiation,omitempty"`
}
