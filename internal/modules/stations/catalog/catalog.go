package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/modules/stations/types"
)

// Catalog holds the session-wide set of monitoring stations. Load replaces
// the whole snapshot atomically; readers never observe a partial reload.
// Stations with invalid coordinates are kept in the catalog (they still have
// metadata and measurements) but excluded from the bounding box.
type Catalog struct {
	repo        repository.StationRepository
	institution string

	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	stations  []types.Station
	byCode    map[string]types.Station
	bounds    types.BoundingBox
	hasBounds bool
}

func New(repo repository.StationRepository, institution string) *Catalog {
	return &Catalog{repo: repo, institution: institution}
}

// Load fetches the station set and swaps it in. It fails when the source is
// unreachable or returns zero stations; the previous snapshot stays current
// in that case.
func (c *Catalog) Load(ctx context.Context) error {
	stations, err := c.repo.GetStations(ctx, c.institution)
	if err != nil {
		return fmt.Errorf("load stations: %w", err)
	}
	if len(stations) == 0 {
		return fmt.Errorf("load stations (institution %q): %w", c.institution, types.ErrNoStations)
	}

	snap := &snapshot{
		stations: make([]types.Station, 0, len(stations)),
		byCode:   make(map[string]types.Station, len(stations)),
	}
	mappable := 0
	for _, s := range stations {
		// Duplicate rows are dropped entirely so the map never renders the
		// same marker twice.
		if _, dup := snap.byCode[s.Code]; dup {
			slog.Warn("duplicate station code in data source, keeping first row", "code", s.Code)
			continue
		}
		snap.byCode[s.Code] = s
		snap.stations = append(snap.stations, s)
		if !s.HasValidCoordinates() {
			slog.Warn("station has invalid coordinates, excluded from bounding box",
				"code", s.Code, "name", s.Name)
			continue
		}
		mappable++
		if !snap.hasBounds {
			snap.bounds = types.BoundingBox{
				MinLat: s.Latitude, MaxLat: s.Latitude,
				MinLon: s.Longitude, MaxLon: s.Longitude,
			}
			snap.hasBounds = true
			continue
		}
		if s.Latitude < snap.bounds.MinLat {
			snap.bounds.MinLat = s.Latitude
		}
		if s.Latitude > snap.bounds.MaxLat {
			snap.bounds.MaxLat = s.Latitude
		}
		if s.Longitude < snap.bounds.MinLon {
			snap.bounds.MinLon = s.Longitude
		}
		if s.Longitude > snap.bounds.MaxLon {
			snap.bounds.MaxLon = s.Longitude
		}
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()

	slog.Info("station catalog loaded",
		"institution", c.institution,
		"stations", len(snap.stations),
		"mappable", mappable,
		"hasBounds", snap.hasBounds,
	)
	return nil
}

// All returns a copy of the loaded stations in source order.
func (c *Catalog) All() []types.Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil
	}
	out := make([]types.Station, len(c.snap.stations))
	copy(out, c.snap.stations)
	return out
}

// Get returns a station by code.
func (c *Catalog) Get(code string) (types.Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return types.Station{}, false
	}
	s, ok := c.snap.byCode[code]
	return s, ok
}

// BoundingBox returns the box framing all mappable stations. The second
// return is false before Load or when no station had valid coordinates.
func (c *Catalog) BoundingBox() (types.BoundingBox, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return types.BoundingBox{}, false
	}
	return c.snap.bounds, c.snap.hasBounds
}

// Len returns the number of loaded stations.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return 0
	}
	return len(c.snap.stations)
}
