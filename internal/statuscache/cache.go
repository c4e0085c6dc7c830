// Package statuscache keeps the last two observed states of every stack.
package statuscache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/metrics"
)

// StackStatus is one observation of a stack on its server.
type StackStatus struct {
	State    domain.StackState     `json:"state"`
	Services []domain.StackService `json:"services"`
}

// Snapshot pairs the current observation with the one before it.
// Snapshots are immutable once stored; a refresh stores a new one.
type Snapshot struct {
	Previous    StackStatus `json:"previous"`
	Curr        StackStatus `json:"curr"`
	RefreshedAt time.Time   `json:"refreshed_at"`
}

var unknown = StackStatus{State: domain.StackStateUnknown}

// StackLister returns the stacks deployed to a server.
type StackLister interface {
	ListStacksForServer(ctx context.Context, serverID string) ([]*domain.Stack, error)
}

// Cache holds a snapshot per stack id.
type Cache struct {
	stacks  StackLister
	agent   agent.Client
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*Snapshot

	serverMu    sync.Mutex
	serverLocks map[string]*sync.Mutex
}

// New creates an empty cache.
func New(stacks StackLister, client agent.Client, m *metrics.Metrics) *Cache {
	return &Cache{
		stacks:      stacks,
		agent:       client,
		metrics:     m,
		entries:     make(map[string]*Snapshot),
		serverLocks: make(map[string]*sync.Mutex),
	}
}

// Get returns the snapshot for a stack, if one has been recorded.
func (c *Cache) Get(stackID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.entries[stackID]
	if !ok {
		return Snapshot{Previous: unknown, Curr: unknown}, false
	}
	return *snap, true
}

// Curr returns the current status of a stack, Unknown when not cached.
func (c *Cache) Curr(stackID string) StackStatus {
	snap, _ := c.Get(stackID)
	return snap.Curr
}

func (c *Cache) serverLock(serverID string) *sync.Mutex {
	c.serverMu.Lock()
	defer c.serverMu.Unlock()
	l, ok := c.serverLocks[serverID]
	if !ok {
		l = &sync.Mutex{}
		c.serverLocks[serverID] = l
	}
	return l
}

// Refresh fetches live containers from the server's agent and stores a new
// snapshot for every stack on that server. Refreshes of one server are
// serialized; the fetch itself runs without holding the read lock. When
// the agent cannot be reached every stack of the server becomes Unknown.
func (c *Cache) Refresh(ctx context.Context, server *domain.Server) error {
	l := c.serverLock(server.ID)
	l.Lock()
	defer l.Unlock()

	stacks, err := c.stacks.ListStacksForServer(ctx, server.ID)
	if err != nil {
		c.metrics.ObserveRefresh(metrics.ResultError)
		return fmt.Errorf("%w: listing stacks for server %s: %v", domain.ErrStoreFailure, server.Name, err)
	}

	containers, fetchErr := c.agent.ListContainers(ctx, server)

	next := make(map[string]StackStatus, len(stacks))
	for _, stack := range stacks {
		if fetchErr != nil {
			next[stack.ID] = unknown
			continue
		}
		next[stack.ID] = statusFor(agent.ProjectContainers(containers, stack.ProjectName()))
	}

	now := time.Now()
	c.mu.Lock()
	for id, curr := range next {
		prev := unknown
		if old, ok := c.entries[id]; ok {
			prev = old.Curr
		}
		c.entries[id] = &Snapshot{Previous: prev, Curr: curr, RefreshedAt: now}
	}
	c.mu.Unlock()

	if fetchErr != nil {
		c.metrics.ObserveRefresh(metrics.ResultError)
		return fmt.Errorf("refreshing server %s: %w", server.Name, fetchErr)
	}
	c.metrics.ObserveRefresh(metrics.ResultSuccess)
	return nil
}

// statusFor builds a stack status from the stack's own containers.
func statusFor(containers []domain.ContainerSummary) StackStatus {
	services := make([]domain.StackService, 0, len(containers))
	for i := range containers {
		c := containers[i]
		name := agent.ContainerService(c)
		if name == "" {
			name = c.Name
		}
		services = append(services, domain.StackService{Service: name, Image: c.Image, Container: &c})
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Service < services[j].Service })
	return StackStatus{State: agent.DeriveState(containers), Services: services}
}
