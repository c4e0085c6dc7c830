// Package actionstate tracks which actions are in flight per resource and
// rejects conflicting actions before they start.
package actionstate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bcnelson/stackplane/internal/domain"
)

// Flag marks one category of in-flight action.
type Flag uint8

const (
	Pulling Flag = 1 << iota
	Deploying
	Starting
	Restarting
	Pausing
	Unpausing
	Stopping
	Destroying
)

// lifecycle flags are mutually exclusive with each other.
const lifecycle = Deploying | Starting | Restarting | Pausing | Unpausing | Stopping | Destroying

var flagNames = []struct {
	flag Flag
	name string
}{
	{Pulling, "pulling"},
	{Deploying, "deploying"},
	{Starting, "starting"},
	{Restarting, "restarting"},
	{Pausing, "pausing"},
	{Unpausing, "unpausing"},
	{Stopping, "stopping"},
	{Destroying, "destroying"},
}

func (f Flag) String() string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// conflictsWith returns the flags that may not be set while f is being set.
func (f Flag) conflictsWith() Flag {
	var c Flag
	if f&lifecycle != 0 {
		c |= lifecycle
	}
	if f&Pulling != 0 {
		c |= Pulling | Deploying | Destroying
	}
	if f&(Deploying|Destroying) != 0 {
		c |= Pulling
	}
	return c
}

// BusyError is returned when a requested flag conflicts with one already set.
type BusyError struct {
	ResourceID string
	Requested  Flag
	Conflict   Flag
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("resource %s is busy: %s already in progress (requested %s)",
		e.ResourceID, e.Conflict, e.Requested)
}

// Is makes errors.Is(err, domain.ErrBusy) hold for BusyError.
func (e *BusyError) Is(target error) bool {
	return target == domain.ErrBusy
}

// Record is the action state of one resource. Each record has its own lock,
// so records of different resources never contend.
type Record struct {
	id    string
	mu    sync.Mutex
	flags Flag
}

// Update sets flags if none of them conflicts with a flag already set.
// It never blocks on other actions: a conflict fails immediately with a
// *BusyError. The returned guard clears exactly the flags it set.
func (r *Record) Update(flags Flag) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conflict := r.flags & flags.conflictsWith(); conflict != 0 {
		return nil, &BusyError{ResourceID: r.id, Requested: flags, Conflict: conflict}
	}
	r.flags |= flags
	return &Guard{record: r, flags: flags}, nil
}

// Run acquires flags, calls fn and releases the flags when fn returns or panics.
func (r *Record) Run(flags Flag, fn func() error) error {
	guard, err := r.Update(flags)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn()
}

// Flags returns the currently set flags.
func (r *Record) Flags() Flag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags
}

// Get returns an unguarded snapshot for status queries.
func (r *Record) Get() domain.StackActionState {
	f := r.Flags()
	return domain.StackActionState{
		Pulling:    f&Pulling != 0,
		Deploying:  f&Deploying != 0,
		Starting:   f&Starting != 0,
		Restarting: f&Restarting != 0,
		Pausing:    f&Pausing != 0,
		Unpausing:  f&Unpausing != 0,
		Stopping:   f&Stopping != 0,
		Destroying: f&Destroying != 0,
	}
}

// Guard owns flags set by a successful Update.
type Guard struct {
	record *Record
	flags  Flag
	once   sync.Once
}

// Release clears the guarded flags. Calling it more than once is a no-op.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.record.mu.Lock()
		g.record.flags &^= g.flags
		g.record.mu.Unlock()
	})
}

// Coordinator maps resource ids to their records for the process lifetime.
type Coordinator struct {
	mu      sync.Mutex
	records map[string]*Record
}

// New creates an empty coordinator.
func New() *Coordinator {
	return &Coordinator{records: make(map[string]*Record)}
}

// Record returns the record for id, creating an empty one on first access.
func (c *Coordinator) Record(id string) *Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		rec = &Record{id: id}
		c.records[id] = rec
	}
	return rec
}

// Get returns the action state for id without guarding.
func (c *Coordinator) Get(id string) domain.StackActionState {
	return c.Record(id).Get()
}
