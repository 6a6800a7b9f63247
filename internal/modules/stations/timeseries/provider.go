package timeseries

import (
	"context"
	"time"

	"station-dashboard/internal/modules/stations/repository"
	"station-dashboard/internal/modules/stations/types"
)

// Provider adapts the station repository to the dashboard's time-series
// boundary: it pins the institution filter and bounds every fetch with a
// timeout so a hung data source can never stall a session indefinitely.
type Provider struct {
	repo        repository.StationRepository
	institution string
	timeout     time.Duration
}

func New(repo repository.StationRepository, institution string, timeout time.Duration) *Provider {
	return &Provider{repo: repo, institution: institution, timeout: timeout}
}

// Fetch returns the station's series ordered by timestamp ascending. Year 0
// means no year filter. A station with no matching records returns an empty
// slice.
func (p *Provider) Fetch(ctx context.Context, stationCode string, year int) ([]types.Measurement, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.repo.GetMeasurements(ctx, stationCode, p.institution, year)
}
