package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"station-dashboard/internal/modules/stations/types"
)

type fakeCatalog struct {
	stations []types.Station
}

func (f *fakeCatalog) All() []types.Station { return f.stations }

func (f *fakeCatalog) Get(code string) (types.Station, bool) {
	for _, s := range f.stations {
		if s.Code == code {
			return s, true
		}
	}
	return types.Station{}, false
}

func (f *fakeCatalog) BoundingBox() (types.BoundingBox, bool) {
	if len(f.stations) == 0 {
		return types.BoundingBox{}, false
	}
	b := types.BoundingBox{
		MinLat: f.stations[0].Latitude, MaxLat: f.stations[0].Latitude,
		MinLon: f.stations[0].Longitude, MaxLon: f.stations[0].Longitude,
	}
	for _, s := range f.stations[1:] {
		if s.Latitude < b.MinLat {
			b.MinLat = s.Latitude
		}
		if s.Latitude > b.MaxLat {
			b.MaxLat = s.Latitude
		}
		if s.Longitude < b.MinLon {
			b.MinLon = s.Longitude
		}
		if s.Longitude > b.MaxLon {
			b.MaxLon = s.Longitude
		}
	}
	return b, true
}

type fakeProvider struct {
	fetch func(ctx context.Context, code string, year int) ([]types.Measurement, error)
}

func (f *fakeProvider) Fetch(ctx context.Context, code string, year int) ([]types.Measurement, error) {
	return f.fetch(ctx, code, year)
}

type seriesCall struct {
	code string
	n    int
	year int
}

type unavailableCall struct {
	code string
	year int
}

type recordingSink struct {
	mu           sync.Mutex
	mapCalls     int
	placeholders int
	series       []seriesCall
	unavailable  []unavailableCall
	order        []string

	// Optional gates for exercising render ordering: ShowPlaceholder signals
	// placeholderEntered and then blocks until placeholderGate closes.
	placeholderEntered chan struct{}
	placeholderGate    chan struct{}
}

func (r *recordingSink) ShowMap(stations []types.Station, bounds types.BoundingBox, hasBounds bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapCalls++
}

func (r *recordingSink) ShowPlaceholder() {
	if r.placeholderEntered != nil {
		r.placeholderEntered <- struct{}{}
	}
	if r.placeholderGate != nil {
		<-r.placeholderGate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.placeholders++
	r.order = append(r.order, "placeholder")
}

func (r *recordingSink) ShowSeries(station types.Station, records []types.Measurement, year int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.series = append(r.series, seriesCall{code: station.Code, n: len(records), year: year})
	r.order = append(r.order, "series:"+station.Code)
}

func (r *recordingSink) ShowUnavailable(station types.Station, year int, fetchErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = append(r.unavailable, unavailableCall{code: station.Code, year: year})
	r.order = append(r.order, "unavailable:"+station.Code)
}

func (r *recordingSink) renderOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *recordingSink) lastSeries(t *testing.T) seriesCall {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.series) == 0 {
		t.Fatal("no series was rendered")
	}
	return r.series[len(r.series)-1]
}

var testStations = []types.Station{
	{Code: "S1", Name: "Antofagasta", Latitude: -23.6, Longitude: -70.4},
	{Code: "S2", Name: "Santiago", Latitude: -33.4, Longitude: -70.6},
}

func record(code string, t time.Time, temp *float64) types.Measurement {
	return types.Measurement{StationCode: code, Time: t, Temperature: temp}
}

func newTestController(provider TimeSeriesProvider) (*Controller, *recordingSink) {
	sink := &recordingSink{}
	ctrl := NewController("test", &fakeCatalog{stations: testStations}, provider, sink)
	return ctrl, sink
}

func TestStart_RendersMapAndPlaceholder(t *testing.T) {
	ctrl, sink := newTestController(&fakeProvider{})
	ctrl.Start()
	if sink.mapCalls != 1 {
		t.Errorf("map renders = %d; want 1", sink.mapCalls)
	}
	if sink.placeholders != 1 {
		t.Errorf("placeholder renders = %d; want 1", sink.placeholders)
	}
	if ctrl.State() != StateIdle {
		t.Error("initial state is not Idle")
	}
}

func TestSelect_TransitionsToSelected(t *testing.T) {
	temp := 18.4
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return []types.Measurement{record(code, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), &temp)}, nil
	}}
	ctrl, sink := newTestController(provider)

	if err := ctrl.Select(context.Background(), "S1", 2023); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if ctrl.State() != StateSelected {
		t.Error("state after Select is not Selected")
	}
	cur, ok := ctrl.Current()
	if !ok || cur != "S1" {
		t.Errorf("Current() = %q, %v; want S1, true", cur, ok)
	}
	got := sink.lastSeries(t)
	if got.code != "S1" || got.n != 1 || got.year != 2023 {
		t.Errorf("rendered series = %+v; want S1 with 1 record for 2023", got)
	}
}

func TestSelect_UnknownCodeRejectedAndViewCleared(t *testing.T) {
	temp := 18.4
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return []types.Measurement{record(code, time.Now(), &temp)}, nil
	}}
	ctrl, sink := newTestController(provider)

	if err := ctrl.Select(context.Background(), "S1", 0); err != nil {
		t.Fatalf("Select S1: %v", err)
	}

	err := ctrl.Select(context.Background(), "stale-marker", 0)
	if !errors.Is(err, types.ErrUnknownStation) {
		t.Fatalf("Select unknown: got %v, want ErrUnknownStation", err)
	}
	if ctrl.State() != StateIdle {
		t.Error("state after rejected select is not Idle")
	}
	if sink.placeholders == 0 {
		t.Error("prior chart state was not cleared after rejected select")
	}
	if got := sink.lastSeries(t); got.code != "S1" {
		t.Errorf("last rendered series = %q; want the S1 render from before", got.code)
	}
}

func TestSelect_EmptySeriesIsNotAnError(t *testing.T) {
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return nil, nil
	}}
	ctrl, sink := newTestController(provider)

	if err := ctrl.Select(context.Background(), "S2", 1999); err != nil {
		t.Fatalf("Select with empty series: %v", err)
	}
	got := sink.lastSeries(t)
	if got.code != "S2" || got.n != 0 {
		t.Errorf("rendered series = %+v; want empty S2 series", got)
	}
	if len(sink.unavailable) != 0 {
		t.Error("empty series rendered as unavailable")
	}
}

func TestSelect_FetchFailureShowsUnavailableAndStaysSelected(t *testing.T) {
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return nil, errors.New("connection refused")
	}}
	ctrl, sink := newTestController(provider)

	err := ctrl.Select(context.Background(), "S1", 2023)
	if err == nil {
		t.Fatal("Select with failing fetch: expected error, got nil")
	}
	if errors.Is(err, ErrSuperseded) {
		t.Fatal("fetch failure reported as superseded")
	}
	if ctrl.State() != StateSelected {
		t.Error("state after fetch failure is not Selected (retry is user-initiated)")
	}
	if len(sink.unavailable) != 1 || sink.unavailable[0].code != "S1" {
		t.Errorf("unavailable renders = %v; want [S1]", sink.unavailable)
	}
	if sink.unavailable[0].year != 2023 {
		t.Errorf("unavailable year = %d; want the requested 2023", sink.unavailable[0].year)
	}
	if len(sink.series) != 0 {
		t.Error("a series was rendered despite the fetch failure")
	}
}

func TestSelect_LastRequestWins(t *testing.T) {
	temp := 18.4
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		if code == "S1" {
			close(started)
			// Artificially slow fetch; unblocks on cancellation.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-release:
			}
		}
		return []types.Measurement{record(code, time.Now(), &temp)}, nil
	}}
	ctrl, sink := newTestController(provider)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- ctrl.Select(context.Background(), "S1", 0)
	}()
	<-started

	if err := ctrl.Select(context.Background(), "S2", 0); err != nil {
		t.Fatalf("Select S2: %v", err)
	}

	select {
	case err := <-firstDone:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("superseded Select returned %v; want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}

	if got := sink.lastSeries(t); got.code != "S2" {
		t.Errorf("final rendered station = %q; want S2", got.code)
	}
	if len(sink.series) != 1 {
		t.Errorf("series renders = %d; want 1 (S1 must never render)", len(sink.series))
	}
	cur, _ := ctrl.Current()
	if cur != "S2" {
		t.Errorf("Current() = %q; want S2", cur)
	}
}

func TestClear_ReturnsToIdleAndDiscardsInFlightFetch(t *testing.T) {
	temp := 10.0
	started := make(chan struct{})
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		close(started)
		<-ctx.Done()
		return []types.Measurement{record(code, time.Now(), &temp)}, ctx.Err()
	}}
	ctrl, sink := newTestController(provider)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Select(context.Background(), "S1", 0)
	}()
	<-started

	ctrl.Clear()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("in-flight Select after Clear returned %v; want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight fetch was not cancelled by Clear")
	}

	if ctrl.State() != StateIdle {
		t.Error("state after Clear is not Idle")
	}
	if len(sink.series) != 0 {
		t.Error("cancelled fetch still rendered a series")
	}
}

func TestClear_PlaceholderNeverOutrunsNewerSelect(t *testing.T) {
	temp := 18.4
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return []types.Measurement{record(code, time.Now(), &temp)}, nil
	}}
	ctrl, sink := newTestController(provider)

	if err := ctrl.Select(context.Background(), "S1", 0); err != nil {
		t.Fatalf("Select S1: %v", err)
	}

	entered := make(chan struct{}, 1)
	gate := make(chan struct{})
	sink.placeholderEntered = entered
	sink.placeholderGate = gate

	clearDone := make(chan struct{})
	go func() {
		ctrl.Clear()
		close(clearDone)
	}()
	// Clear is now inside its placeholder render.
	<-entered

	selectDone := make(chan error, 1)
	go func() {
		selectDone <- ctrl.Select(context.Background(), "S2", 0)
	}()

	close(gate)
	<-clearDone
	if err := <-selectDone; err != nil {
		t.Fatalf("Select S2: %v", err)
	}

	order := sink.renderOrder()
	if order[len(order)-1] != "series:S2" {
		t.Errorf("render order = %v; want the newer selection's series last", order)
	}
	cur, ok := ctrl.Current()
	if !ok || cur != "S2" {
		t.Errorf("Current() = %q, %v; want S2, true", cur, ok)
	}
}

func TestLastSeen_RefreshedByActivity(t *testing.T) {
	ctrl, _ := newTestController(&fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		return nil, nil
	}})

	ctrl.mu.Lock()
	ctrl.lastSeen = time.Now().Add(-time.Hour)
	ctrl.mu.Unlock()

	if err := ctrl.Select(context.Background(), "S1", 0); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if idle := time.Since(ctrl.LastSeen()); idle > time.Minute {
		t.Errorf("idle after Select = %v; want refreshed", idle)
	}
}
