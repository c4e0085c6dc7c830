package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
)

type staticServers []*domain.Server

func (s staticServers) ListServers(ctx context.Context) ([]*domain.Server, error) {
	return s, nil
}

type failingServers struct{}

func (failingServers) ListServers(ctx context.Context) ([]*domain.Server, error) {
	return nil, errors.New("db down")
}

type recordingRefresher struct {
	mu        sync.Mutex
	refreshed []string
	fail      map[string]bool
	delay     time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func (r *recordingRefresher) Refresh(ctx context.Context, server *domain.Server) error {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.maxActive.Load()
		if n <= peak || r.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.refreshed = append(r.refreshed, server.ID)
	r.mu.Unlock()
	if r.fail[server.ID] {
		return errors.New("agent unreachable")
	}
	return nil
}

func (r *recordingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refreshed)
}

func TestRefreshAllSkipsDisabledAndContinuesPastFailures(t *testing.T) {
	servers := staticServers{
		{ID: "a", Name: "a", Enabled: true},
		{ID: "b", Name: "b", Enabled: false},
		{ID: "c", Name: "c", Enabled: true},
		{ID: "d", Name: "d", Enabled: true},
	}
	refresher := &recordingRefresher{fail: map[string]bool{"a": true}}
	svc := NewRefreshService(servers, refresher, time.Minute, 2)

	if err := svc.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if got := refresher.count(); got != 3 {
		t.Errorf("Expected 3 refreshes, got %d (%v)", got, refresher.refreshed)
	}
	for _, id := range refresher.refreshed {
		if id == "b" {
			t.Error("Disabled server should not be refreshed")
		}
	}
}

func TestRefreshAllBoundsConcurrency(t *testing.T) {
	var servers staticServers
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		servers = append(servers, &domain.Server{ID: id, Name: id, Enabled: true})
	}
	refresher := &recordingRefresher{delay: 20 * time.Millisecond}
	svc := NewRefreshService(servers, refresher, time.Minute, 2)

	if err := svc.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll failed: %v", err)
	}
	if got := refresher.maxActive.Load(); got > 2 {
		t.Errorf("Expected at most 2 concurrent refreshes, saw %d", got)
	}
	if got := refresher.count(); got != 6 {
		t.Errorf("Expected 6 refreshes, got %d", got)
	}
}

func TestRefreshAllListError(t *testing.T) {
	svc := NewRefreshService(failingServers{}, &recordingRefresher{}, time.Minute, 1)
	if err := svc.RefreshAll(context.Background()); err == nil {
		t.Error("Expected error when servers cannot be listed")
	}
}

func TestTriggerDebounces(t *testing.T) {
	servers := staticServers{{ID: "a", Name: "a", Enabled: true}}
	refresher := &recordingRefresher{}
	svc := NewRefreshService(servers, refresher, time.Minute, 1)
	svc.debounce = 20 * time.Millisecond

	for range 5 {
		svc.Trigger()
	}

	deadline := time.Now().Add(time.Second)
	for refresher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := refresher.count(); got != 1 {
		t.Errorf("Expected exactly 1 refresh after debounced triggers, got %d", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	servers := staticServers{{ID: "a", Name: "a", Enabled: true}}
	refresher := &recordingRefresher{}
	svc := NewRefreshService(servers, refresher, 10*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for refresher.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if refresher.count() < 2 {
		t.Errorf("Expected at least 2 ticks, got %d", refresher.count())
	}
}
