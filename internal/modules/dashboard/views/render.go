package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"

	"station-dashboard/internal/modules/stations/types"
)

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// Marker is the view model for one station on the map.
type Marker struct {
	Code      string
	Name      string
	Region    string
	Commune   string
	Watershed string
	Zone      string
	Elevation float64
	Latitude  float64
	Longitude float64
	Mappable  bool
	Selected  bool
}

// MapData is the view model for the station map.
type MapData struct {
	Markers   []Marker
	Bounds    types.BoundingBox
	HasBounds bool
}

// BuildMapData converts catalog stations into map markers. Stations without
// valid coordinates get a non-mappable marker (listed, not plotted).
func BuildMapData(stations []types.Station, bounds types.BoundingBox, hasBounds bool, selected string) MapData {
	markers := make([]Marker, 0, len(stations))
	for _, s := range stations {
		markers = append(markers, Marker{
			Code:      s.Code,
			Name:      s.Name,
			Region:    s.Region,
			Commune:   s.Commune,
			Watershed: s.Watershed,
			Zone:      s.Zone,
			Elevation: s.Elevation,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
			Mappable:  s.HasValidCoordinates(),
			Selected:  selected != "" && s.Code == selected,
		})
	}
	return MapData{Markers: markers, Bounds: bounds, HasBounds: hasBounds}
}

// ChartPoint is one x-axis category. A nil Value renders as a gap, never as
// zero.
type ChartPoint struct {
	Label string
	Value *float64
}

// Display formats the point value for templates; empty for a gap.
func (p ChartPoint) Display() string {
	if p.Value == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *p.Value)
}

// ChartData is the view model for the chart partial.
type ChartData struct {
	StationCode string
	StationName string
	Variable    string
	Unit        string
	Year        int
	Points      []ChartPoint
	Unavailable bool
	Message     string
}

var variableUnits = map[string]string{
	types.VarTemperature:   "°C",
	types.VarHumidity:      "%",
	types.VarPressure:      "mbar",
	types.VarWindDirection: "°",
	types.VarWindSpeed:     "kt",
	types.VarPrecipitation: "mm",
	types.VarRadiation:     "W/m²",
}

// VariableUnit returns the display unit for a variable name.
func VariableUnit(variable string) string {
	return variableUnits[variable]
}

// pointLabel keeps month-bucketed timestamps short.
func pointLabel(t time.Time) string {
	if t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02 15:04")
}

// BuildChartData maps a station's records to chart points for one variable.
// Every record becomes an x-axis category; records with no reading keep their
// category and get a nil value.
func BuildChartData(station types.Station, records []types.Measurement, variable string, year int) ChartData {
	points := make([]ChartPoint, 0, len(records))
	for _, m := range records {
		points = append(points, ChartPoint{Label: pointLabel(m.Time), Value: m.Value(variable)})
	}
	return ChartData{
		StationCode: station.Code,
		StationName: station.Name,
		Variable:    variable,
		Unit:        variableUnits[variable],
		Year:        year,
		Points:      points,
	}
}

// BuildUnavailableChart is the explicit "data unavailable" state, distinct
// from an empty chart.
func BuildUnavailableChart(station types.Station, variable string, year int) ChartData {
	return ChartData{
		StationCode: station.Code,
		StationName: station.Name,
		Variable:    variable,
		Unit:        variableUnits[variable],
		Year:        year,
		Unavailable: true,
		Message:     fmt.Sprintf("data unavailable for %s", station.Name),
	}
}

// TableColumn heads one variable column.
type TableColumn struct {
	Variable string
	Unit     string
}

// TableRow is one timestamped row; Cells align with TableData.Columns and
// hold formatted values or the missing marker.
type TableRow struct {
	Time  string
	Cells []string
}

// TableData is the view model for the record table partial, including a
// per-column average that skips missing values.
type TableData struct {
	StationCode string
	StationName string
	Columns     []TableColumn
	Rows        []TableRow
	Averages    []string
}

const missingCell = "–"

func formatCell(v *float64) string {
	if v == nil {
		return missingCell
	}
	return fmt.Sprintf("%.2f", *v)
}

// BuildTableData lays out all variables for the station's records. Averages
// exclude missing values; a column with no data averages to the missing
// marker, never zero.
func BuildTableData(station types.Station, records []types.Measurement) TableData {
	variables := types.Variables()
	columns := make([]TableColumn, 0, len(variables))
	for _, v := range variables {
		columns = append(columns, TableColumn{Variable: v, Unit: variableUnits[v]})
	}

	rows := make([]TableRow, 0, len(records))
	sums := make([]float64, len(variables))
	counts := make([]int, len(variables))
	for _, m := range records {
		cells := make([]string, len(variables))
		for i, v := range variables {
			val := m.Value(v)
			cells[i] = formatCell(val)
			if val != nil {
				sums[i] += *val
				counts[i]++
			}
		}
		rows = append(rows, TableRow{Time: m.Time.Format(time.RFC3339), Cells: cells})
	}

	averages := make([]string, len(variables))
	for i := range variables {
		if counts[i] == 0 {
			averages[i] = missingCell
			continue
		}
		avg := sums[i] / float64(counts[i])
		averages[i] = fmt.Sprintf("%.2f", avg)
	}

	return TableData{
		StationCode: station.Code,
		StationName: station.Name,
		Columns:     columns,
		Rows:        rows,
		Averages:    averages,
	}
}

// DashboardData is the view model for the full dashboard page.
type DashboardData struct {
	SessionID string
	Map       MapData
	Chart     *ChartData // nil renders the placeholder
	Table     *TableData
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderMapPartial executes only the map partial into w.
func RenderMapPartial(w io.Writer, data *MapData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/map.html", data)
}

// RenderChartPartial executes only the chart partial into w. A nil data
// renders the placeholder.
func RenderChartPartial(w io.Writer, data *ChartData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/chart.html", data)
}

// RenderTablePartial executes only the record table partial into w.
func RenderTablePartial(w io.Writer, data *TableData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/table.html", data)
}
