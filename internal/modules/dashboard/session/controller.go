package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"station-dashboard/internal/modules/stations/types"
)

// ErrSuperseded is returned to a Select call whose fetch lost to a newer
// selection. Nothing was rendered on its behalf.
var ErrSuperseded = errors.New("selection superseded by a newer one")

// TimeSeriesProvider fetches one station's historical series. A station with
// no matching records yields an empty slice, not an error. Year 0 means no
// year filter.
type TimeSeriesProvider interface {
	Fetch(ctx context.Context, stationCode string, year int) ([]types.Measurement, error)
}

// Cataloger is the read side of the station catalog the controller needs.
type Cataloger interface {
	All() []types.Station
	Get(code string) (types.Station, bool)
	BoundingBox() (types.BoundingBox, bool)
}

// ViewSink receives pushed view updates. One implementation per session;
// calls are serialized by the controller.
type ViewSink interface {
	// ShowMap renders the station map. hasBounds is false when no station
	// had valid coordinates.
	ShowMap(stations []types.Station, bounds types.BoundingBox, hasBounds bool)
	// ShowPlaceholder clears the chart/table area ("select a station").
	ShowPlaceholder()
	// ShowSeries renders the selected station's series. records may be empty,
	// which renders as an empty chart rather than an error state.
	ShowSeries(station types.Station, records []types.Measurement, year int)
	// ShowUnavailable marks the selected station's data as unavailable for
	// the requested year, replacing any stale chart.
	ShowUnavailable(station types.Station, year int, fetchErr error)
}

// State of the selection machine.
type State int

const (
	StateIdle State = iota
	StateSelected
)

// Controller drives one dashboard session: a single selection slot, a fetch
// per selection, and the guarantee that only the most recently requested
// station's data reaches the sink (last request wins). Superseded fetches are
// cancelled through their context.
type Controller struct {
	id       string
	catalog  Cataloger
	provider TimeSeriesProvider
	sink     ViewSink

	mu       sync.Mutex
	selected string
	hasSel   bool
	year     int
	seq      uint64 // last issued fetch sequence
	rendered uint64 // highest sequence that reached the sink
	cancel   context.CancelFunc
	lastSeen time.Time
}

func NewController(id string, cat Cataloger, provider TimeSeriesProvider, sink ViewSink) *Controller {
	return &Controller{id: id, catalog: cat, provider: provider, sink: sink, lastSeen: time.Now()}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Start pushes the initial map view and chart placeholder. The catalog must
// already be loaded.
func (c *Controller) Start() {
	bounds, hasBounds := c.catalog.BoundingBox()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink.ShowMap(c.catalog.All(), bounds, hasBounds)
	c.sink.ShowPlaceholder()
}

// Touch marks the session as recently used. The manager calls it on every
// lookup so active sessions survive the idle sweep.
func (c *Controller) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last session activity.
func (c *Controller) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Current returns the selected station code, if any.
func (c *Controller) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.hasSel
}

// State returns the machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasSel {
		return StateSelected
	}
	return StateIdle
}

// Select handles a station click: commits the selection, fetches the series
// and pushes it to the sink. A code missing from the catalog is rejected with
// types.ErrUnknownStation and clears any prior selection so the view is never
// silently mislabeled. Concurrent Select calls race on the sequence number;
// losers return ErrSuperseded without touching the sink.
func (c *Controller) Select(ctx context.Context, code string, year int) error {
	station, ok := c.catalog.Get(code)
	if !ok {
		// The placeholder render stays inside the lock so it cannot land
		// after a newer selection's series render.
		c.mu.Lock()
		c.invalidateLocked()
		c.sink.ShowPlaceholder()
		c.mu.Unlock()
		return fmt.Errorf("select %q: %w", code, types.ErrUnknownStation)
	}

	c.mu.Lock()
	c.seq++
	myseq := c.seq
	if c.cancel != nil {
		c.cancel() // actively cancel the superseded fetch
	}
	fctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.selected = code
	c.hasSel = true
	c.year = year
	c.lastSeen = time.Now()
	c.mu.Unlock()

	records, err := c.provider.Fetch(fctx, code, year)

	c.mu.Lock()
	defer c.mu.Unlock()
	if myseq != c.seq || myseq <= c.rendered {
		return ErrSuperseded
	}
	c.rendered = myseq
	if err != nil {
		// Stay Selected; retry is user-initiated by re-clicking.
		c.sink.ShowUnavailable(station, year, err)
		return fmt.Errorf("fetch series for %q: %w", code, err)
	}
	c.sink.ShowSeries(station, records, year)
	return nil
}

// Clear deselects: cancels any in-flight fetch, invalidates its render and
// shows the placeholder. The render happens under the lock; a Select racing
// this Clear orders its series render strictly after the placeholder.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
	c.lastSeen = time.Now()
	c.sink.ShowPlaceholder()
}

// invalidateLocked drops the selection and bumps the sequence so in-flight
// fetches can never render. Caller holds c.mu.
func (c *Controller) invalidateLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	c.rendered = c.seq
	c.selected = ""
	c.hasSel = false
}
