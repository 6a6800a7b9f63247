package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"station-dashboard/internal/modules/dashboard/session"
	"station-dashboard/internal/modules/dashboard/views"
	"station-dashboard/internal/modules/stations/types"
	"station-dashboard/internal/utils"
)

func (c *dashboardControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	ctrl := c.sessions.Create()
	vs, ok := c.sink(ctrl.ID())
	if !ok {
		slog.Error("dashboard: sink missing for fresh session", "session_id", ctrl.ID())
		utils.WriteError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	chart, table := vs.chartView()
	data := &views.DashboardData{
		SessionID: ctrl.ID(),
		Map:       vs.mapView(),
		Chart:     chart,
		Table:     table,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.RenderDashboard(w, data); err != nil {
		slog.Error("dashboard template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
}

func (c *dashboardControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	bounds, hasBounds := c.catalog.BoundingBox()
	resp := struct {
		Stations []types.Station    `json:"stations"`
		Bounds   *types.BoundingBox `json:"bounds,omitempty"`
	}{Stations: c.catalog.All()}
	if hasBounds {
		resp.Bounds = &bounds
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *dashboardControllerImpl) handleSeries(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station code")
		return
	}
	if _, ok := c.catalog.Get(code); !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown station code")
		return
	}
	year, err := parseYearQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := c.provider.Fetch(r.Context(), code, year)
	if err != nil {
		slog.Error("series: fetch failed", "station", code, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	if records == nil {
		records = []types.Measurement{}
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *dashboardControllerImpl) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctrl := c.sessions.Create()
	utils.WriteJSON(w, http.StatusCreated, map[string]string{"id": ctrl.ID()})
}

func (c *dashboardControllerImpl) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := c.sessions.Get(id); !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	c.dropSession(id)
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	Station string `json:"station"`
	Year    *int   `json:"year"`
}

func (c *dashboardControllerImpl) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctrl, ok := c.sessions.Get(id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Station == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing 'station'")
		return
	}
	year := c.settings.DefaultYear
	if req.Year != nil {
		if *req.Year < 0 {
			utils.WriteError(w, http.StatusBadRequest, "'year' must be >= 0")
			return
		}
		year = *req.Year
	}

	err := ctrl.Select(r.Context(), req.Station, year)
	switch {
	case errors.Is(err, types.ErrUnknownStation):
		utils.WriteError(w, http.StatusBadRequest, "unknown station code")
		return
	case errors.Is(err, session.ErrSuperseded):
		utils.WriteError(w, http.StatusConflict, "selection superseded")
		return
	case err != nil:
		// The sink already holds the "unavailable" view; return it so the
		// client replaces any stale chart.
		slog.Warn("select: fetch failed", "session_id", id, "station", req.Station, "error", err)
	}
	c.writeChartView(w, id)
}

func (c *dashboardControllerImpl) handleClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctrl, ok := c.sessions.Get(id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	ctrl.Clear()
	c.writeChartView(w, id)
}

func (c *dashboardControllerImpl) handleChartPartial(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if _, ok := c.sessions.Get(id); !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	c.writeChartView(w, id)
}

func (c *dashboardControllerImpl) handleMapPartial(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if _, ok := c.sessions.Get(id); !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	vs, ok := c.sink(id)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	data := vs.mapView()
	var buf bytes.Buffer
	if err := views.RenderMapPartial(&buf, &data); err != nil {
		slog.Error("map partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("map partial: write response failed", "error", err)
	}
}

// writeChartView renders the session's current chart/table state (series,
// placeholder or unavailable) as an HTML fragment.
func (c *dashboardControllerImpl) writeChartView(w http.ResponseWriter, sessionID string) {
	vs, ok := c.sink(sessionID)
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "unknown session")
		return
	}
	chart, table := vs.chartView()
	var buf bytes.Buffer
	if err := views.RenderChartPartial(&buf, chart); err != nil {
		slog.Error("chart partial render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	if table != nil {
		if err := views.RenderTablePartial(&buf, table); err != nil {
			slog.Error("table partial render failed", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to render")
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("chart partial: write response failed", "error", err)
	}
}
