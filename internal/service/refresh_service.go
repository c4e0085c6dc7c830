// Package service runs the background status refresh.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
	"golang.org/x/sync/errgroup"
)

// ServerLister lists the managed servers.
type ServerLister interface {
	ListServers(ctx context.Context) ([]*domain.Server, error)
}

// Refresher refreshes the cached status of one server's stacks.
type Refresher interface {
	Refresh(ctx context.Context, server *domain.Server) error
}

// RefreshService periodically refreshes every enabled server.
type RefreshService struct {
	servers     ServerLister
	cache       Refresher
	interval    time.Duration
	concurrency int
	debounce    time.Duration

	mu           sync.Mutex
	triggerTimer *time.Timer
}

// NewRefreshService creates a new RefreshService.
func NewRefreshService(servers ServerLister, cache Refresher, interval time.Duration, concurrency int) *RefreshService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &RefreshService{
		servers:     servers,
		cache:       cache,
		interval:    interval,
		concurrency: concurrency,
		debounce:    time.Second,
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (s *RefreshService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RefreshAll(ctx); err != nil {
			slog.Error("status refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RefreshAll refreshes every enabled server, at most concurrency at a
// time. A failing server is logged and does not stop the others; only a
// failure to list servers is returned.
func (s *RefreshService) RefreshAll(ctx context.Context) error {
	servers, err := s.servers.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, server := range servers {
		if !server.Enabled {
			continue
		}
		g.Go(func() error {
			if err := s.cache.Refresh(ctx, server); err != nil {
				slog.Warn("failed to refresh server status", "server", server.Name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Trigger schedules a debounced RefreshAll.
// Multiple triggers within the debounce period result in a single refresh.
func (s *RefreshService) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Cancel existing timer
	if s.triggerTimer != nil {
		s.triggerTimer.Stop()
	}

	s.triggerTimer = time.AfterFunc(s.debounce, func() {
		if err := s.RefreshAll(context.Background()); err != nil {
			slog.Warn("triggered status refresh failed", "error", err)
		}
	})
}
