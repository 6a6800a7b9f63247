package session

import (
	"context"
	"testing"
	"time"

	"station-dashboard/internal/modules/stations/types"
)

func newTestManager() (*Manager, map[string]*recordingSink) {
	sinks := make(map[string]*recordingSink)
	provider := &fakeProvider{fetch: func(ctx context.Context, code string, year int) ([]types.Measurement, error) {
		temp := 1.0
		return []types.Measurement{record(code, time.Now(), &temp)}, nil
	}}
	m := NewManager(&fakeCatalog{stations: testStations}, provider, func(id string) ViewSink {
		s := &recordingSink{}
		sinks[id] = s
		return s
	})
	return m, sinks
}

func TestManager_CreateAndGet(t *testing.T) {
	m, sinks := newTestManager()

	ctrl := m.Create()
	if ctrl.ID() == "" {
		t.Fatal("created session has empty id")
	}
	if got, ok := m.Get(ctrl.ID()); !ok || got != ctrl {
		t.Error("Get did not return the created controller")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("Get returned a controller for an unknown id")
	}
	// Create pushed the initial map render.
	if sinks[ctrl.ID()].mapCalls != 1 {
		t.Errorf("initial map renders = %d; want 1", sinks[ctrl.ID()].mapCalls)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m, sinks := newTestManager()

	a := m.Create()
	b := m.Create()

	if err := a.Select(context.Background(), "S1", 0); err != nil {
		t.Fatalf("Select on session a: %v", err)
	}

	if b.State() != StateIdle {
		t.Error("selection on session a leaked into session b")
	}
	if len(sinks[b.ID()].series) != 0 {
		t.Error("series render on session a reached session b's sink")
	}
	if got := sinks[a.ID()].lastSeries(t); got.code != "S1" {
		t.Errorf("session a rendered %q; want S1", got.code)
	}
}

func TestManager_ExpireIdle(t *testing.T) {
	m, _ := newTestManager()

	idle := m.Create()
	active := m.Create()

	if expired := m.ExpireIdle(time.Hour); len(expired) != 0 {
		t.Fatalf("fresh sessions expired: %v", expired)
	}

	idle.mu.Lock()
	idle.lastSeen = time.Now().Add(-2 * time.Hour)
	idle.mu.Unlock()

	expired := m.ExpireIdle(time.Hour)
	if len(expired) != 1 || expired[0] != idle.ID() {
		t.Fatalf("expired = %v; want just %q", expired, idle.ID())
	}
	if _, ok := m.Get(idle.ID()); ok {
		t.Error("expired session still retrievable")
	}
	if _, ok := m.Get(active.ID()); !ok {
		t.Error("active session was expired")
	}
	if m.Len() != 1 {
		t.Errorf("manager length = %d; want 1", m.Len())
	}
}

func TestManager_GetRefreshesIdleTimer(t *testing.T) {
	m, _ := newTestManager()

	ctrl := m.Create()
	ctrl.mu.Lock()
	ctrl.lastSeen = time.Now().Add(-2 * time.Hour)
	ctrl.mu.Unlock()

	if _, ok := m.Get(ctrl.ID()); !ok {
		t.Fatal("Get failed")
	}
	if expired := m.ExpireIdle(time.Hour); len(expired) != 0 {
		t.Errorf("session expired despite recent Get: %v", expired)
	}
}

func TestManager_Remove(t *testing.T) {
	m, _ := newTestManager()

	ctrl := m.Create()
	m.Remove(ctrl.ID())
	if _, ok := m.Get(ctrl.ID()); ok {
		t.Error("removed session still retrievable")
	}
	if m.Len() != 0 {
		t.Errorf("manager length after remove = %d; want 0", m.Len())
	}
}
