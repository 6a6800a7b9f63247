package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"time"

	"station-dashboard/internal/modules/stations/types"
)

//go:embed sql/get-stations.postgres.sql
var getStationsPostgresSQL string

//go:embed sql/get-stations.sqlite.sql
var getStationsSQLiteSQL string

//go:embed sql/get-measurements.postgres.sql
var getMeasurementsPostgresSQL string

//go:embed sql/get-measurements.sqlite.sql
var getMeasurementsSQLiteSQL string

//go:embed sql/insert-measurement.postgres.sql
var insertMeasurementPostgresSQL string

//go:embed sql/insert-measurement.sqlite.sql
var insertMeasurementSQLiteSQL string

//go:embed sql/get-station-exists.postgres.sql
var getStationExistsPostgresSQL string

//go:embed sql/get-station-exists.sqlite.sql
var getStationExistsSQLiteSQL string

// StationRepository is the data-source boundary: two read operations feeding
// the catalog and the time-series provider, plus the ingest write used by the
// MQTT bridge.
type StationRepository interface {
	GetStations(ctx context.Context, institution string) ([]types.Station, error)
	GetMeasurements(ctx context.Context, stationCode, institution string, year int) ([]types.Measurement, error)
	StationExists(ctx context.Context, stationCode, institution string) (bool, error)
	InsertTelemetry(ctx context.Context, t types.Telemetry) error
}

type queries struct {
	getStations       string
	getMeasurements   string
	insertMeasurement string
	stationExists     string
}

func queriesFor(driver string) (queries, error) {
	switch driver {
	case "postgres":
		return queries{
			getStations:       getStationsPostgresSQL,
			getMeasurements:   getMeasurementsPostgresSQL,
			insertMeasurement: insertMeasurementPostgresSQL,
			stationExists:     getStationExistsPostgresSQL,
		}, nil
	case "sqlite3":
		return queries{
			getStations:       getStationsSQLiteSQL,
			getMeasurements:   getMeasurementsSQLiteSQL,
			insertMeasurement: insertMeasurementSQLiteSQL,
			stationExists:     getStationExistsSQLiteSQL,
		}, nil
	default:
		return queries{}, fmt.Errorf("unsupported db driver %q (allowed: postgres, sqlite3)", driver)
	}
}

type repositoryImpl struct {
	db *sql.DB
	q  queries
}

func NewRepository(db *sql.DB, driver string) (StationRepository, error) {
	q, err := queriesFor(driver)
	if err != nil {
		return nil, err
	}
	return &repositoryImpl{db: db, q: q}, nil
}

func (r *repositoryImpl) GetStations(ctx context.Context, institution string) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, r.q.getStations, institution)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	var out []types.Station
	for rows.Next() {
		var s types.Station
		var lat, lon, elev sql.NullFloat64
		if err := rows.Scan(&s.Code, &s.Name, &lat, &lon, &s.Region, &s.Commune, &s.Watershed, &s.Zone, &elev); err != nil {
			return nil, err
		}
		// A NULL coordinate becomes NaN so the catalog can keep the station
		// while excluding it from the bounding box.
		s.Latitude = floatOrNaN(lat)
		s.Longitude = floatOrNaN(lon)
		if elev.Valid {
			s.Elevation = elev.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetMeasurements(ctx context.Context, stationCode, institution string, year int) ([]types.Measurement, error) {
	rows, err := r.db.QueryContext(ctx, r.q.getMeasurements, institution, stationCode, year)
	if err != nil {
		return nil, fmt.Errorf("query measurements: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close measurements rows", "error", err)
		}
	}()
	return scanMeasurements(rows)
}

func (r *repositoryImpl) StationExists(ctx context.Context, stationCode, institution string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, r.q.stationExists, stationCode, institution).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query station exists: %w", err)
	}
	return exists, nil
}

func (r *repositoryImpl) InsertTelemetry(ctx context.Context, t types.Telemetry) error {
	tsStr := t.Timestamp.UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, r.q.insertMeasurement,
		t.StationCode, tsStr,
		nullable(t.Temperature), nullable(t.Humidity), nullable(t.Pressure),
		nullable(t.WindDirection), nullable(t.WindSpeed),
		nullable(t.Precipitation), nullable(t.Radiation),
	)
	if err != nil {
		return fmt.Errorf("insert measurement: %w", err)
	}
	return nil
}

func scanMeasurements(rows *sql.Rows) ([]types.Measurement, error) {
	var out []types.Measurement
	for rows.Next() {
		var m types.Measurement
		var ts any
		var temp, hum, pres, wdir, wspd, prec, rad sql.NullFloat64
		if err := rows.Scan(&m.StationCode, &ts, &temp, &hum, &pres, &wdir, &wspd, &prec, &rad); err != nil {
			return nil, err
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		m.Time = t
		m.Temperature = floatOrNil(temp)
		m.Humidity = floatOrNil(hum)
		m.Pressure = floatOrNil(pres)
		m.WindDirection = floatOrNil(wdir)
		m.WindSpeed = floatOrNil(wspd)
		m.Precipitation = floatOrNil(prec)
		m.Radiation = floatOrNil(rad)
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseTimestamp accepts what either driver hands back: time.Time from
// postgres, RFC3339 text from sqlite.
func parseTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case time.Time:
		return ts, nil
	case string:
		return parseTimestampString(ts)
	case []byte:
		return parseTimestampString(string(ts))
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func parseTimestampString(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
	}
	return t, nil
}

// floatOrNil maps NULL and the NaN sentinel to "no data". The postgres
// queries already NULLIF NaN away; this guard covers sqlite rows and any
// column the SQL misses.
func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid || math.IsNaN(v.Float64) {
		return nil
	}
	f := v.Float64
	return &f
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nullable(v *float64) any {
	if v == nil || math.IsNaN(*v) {
		return nil
	}
	return *v
}
