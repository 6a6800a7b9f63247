package controller

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"station-dashboard/internal/modules/dashboard/session"
)

// Sessions a browser abandoned (reload, closed tab) are reaped after this
// long without a request; every handler access refreshes the timer.
const (
	sessionMaxIdle = 30 * time.Minute
	reapInterval   = 5 * time.Minute
)

type DashboardController interface {
	RegisterRoutes(mux *http.ServeMux)
	// RunSessionReaper expires idle sessions until ctx is cancelled.
	RunSessionReaper(ctx context.Context)
}

// Settings carries the dashboard policy knobs from configuration.
type Settings struct {
	Institution     string
	DefaultYear     int
	DefaultVariable string
}

type dashboardControllerImpl struct {
	catalog  session.Cataloger
	provider session.TimeSeriesProvider
	sessions *session.Manager
	settings Settings

	mu    sync.RWMutex
	sinks map[string]*viewState
}

func NewDashboardController(cat session.Cataloger, provider session.TimeSeriesProvider, settings Settings) DashboardController {
	c := &dashboardControllerImpl{
		catalog:  cat,
		provider: provider,
		settings: settings,
		sinks:    make(map[string]*viewState),
	}
	c.sessions = session.NewManager(cat, provider, c.newSink)
	return c
}

func (c *dashboardControllerImpl) newSink(sessionID string) session.ViewSink {
	vs := newViewState(c.settings.DefaultVariable)
	c.mu.Lock()
	c.sinks[sessionID] = vs
	c.mu.Unlock()
	return vs
}

func (c *dashboardControllerImpl) sink(sessionID string) (*viewState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vs, ok := c.sinks[sessionID]
	return vs, ok
}

func (c *dashboardControllerImpl) dropSession(sessionID string) {
	c.sessions.Remove(sessionID)
	c.mu.Lock()
	delete(c.sinks, sessionID)
	c.mu.Unlock()
}

func (c *dashboardControllerImpl) RunSessionReaper(ctx context.Context) {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.reapIdleSessions(sessionMaxIdle); n > 0 {
				slog.Info("expired idle dashboard sessions", "count", n)
			}
		}
	}
}

// reapIdleSessions removes sessions idle for at least maxIdle together with
// their view state.
func (c *dashboardControllerImpl) reapIdleSessions(maxIdle time.Duration) int {
	expired := c.sessions.ExpireIdle(maxIdle)
	if len(expired) == 0 {
		return 0
	}
	c.mu.Lock()
	for _, id := range expired {
		delete(c.sinks, id)
	}
	c.mu.Unlock()
	return len(expired)
}

func (c *dashboardControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", c.handleDashboard)
	mux.HandleFunc("GET /api/v1/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1/stations/{code}/series", c.handleSeries)
	mux.HandleFunc("POST /api/v1/sessions", c.handleCreateSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", c.handleDeleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/select", c.handleSelect)
	mux.HandleFunc("POST /api/v1/sessions/{id}/clear", c.handleClear)
	mux.HandleFunc("GET /partials/chart", c.handleChartPartial)
	mux.HandleFunc("GET /partials/map", c.handleMapPartial)
}
