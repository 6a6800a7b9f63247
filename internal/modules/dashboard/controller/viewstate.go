package controller

import (
	"sync"

	"station-dashboard/internal/modules/dashboard/views"
	"station-dashboard/internal/modules/stations/types"
)

// viewState is the per-session view sink: it keeps the latest pushed view
// models so the partial handlers can re-render the current state at any time.
type viewState struct {
	variable string

	mu        sync.Mutex
	stations  []types.Station
	bounds    types.BoundingBox
	hasBounds bool
	selected  string
	chart     *views.ChartData
	table     *views.TableData
}

func newViewState(variable string) *viewState {
	return &viewState{variable: variable}
}

func (v *viewState) ShowMap(stations []types.Station, bounds types.BoundingBox, hasBounds bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stations = stations
	v.bounds = bounds
	v.hasBounds = hasBounds
}

func (v *viewState) ShowPlaceholder() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = ""
	v.chart = nil
	v.table = nil
}

func (v *viewState) ShowSeries(station types.Station, records []types.Measurement, year int) {
	chart := views.BuildChartData(station, records, v.variable, year)
	table := views.BuildTableData(station, records)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = station.Code
	v.chart = &chart
	v.table = &table
}

func (v *viewState) ShowUnavailable(station types.Station, year int, fetchErr error) {
	chart := views.BuildUnavailableChart(station, v.variable, year)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = station.Code
	v.chart = &chart
	v.table = nil
}

// chartView returns the chart/table models for the current selection; both
// nil means the placeholder.
func (v *viewState) chartView() (*views.ChartData, *views.TableData) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chart, v.table
}

// mapView rebuilds the map model with the current selection highlighted.
func (v *viewState) mapView() views.MapData {
	v.mu.Lock()
	defer v.mu.Unlock()
	return views.BuildMapData(v.stations, v.bounds, v.hasBounds, v.selected)
}
