package handler

import (
	"context"

	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/execute"
	"github.com/bcnelson/stackplane/internal/resolver"
)

// Execute requests. Stack accepts an id or a unique name.
type (
	StartStack struct {
		Stack   string `json:"stack"`
		Service string `json:"service,omitempty"`
	}
	RestartStack struct {
		Stack   string `json:"stack"`
		Service string `json:"service,omitempty"`
	}
	PauseStack struct {
		Stack   string `json:"stack"`
		Service string `json:"service,omitempty"`
	}
	UnpauseStack struct {
		Stack   string `json:"stack"`
		Service string `json:"service,omitempty"`
	}
	StopStack struct {
		Stack    string `json:"stack"`
		Service  string `json:"service,omitempty"`
		StopTime *int   `json:"stop_time,omitempty"`
	}
	DestroyStack struct {
		Stack         string `json:"stack"`
		Service       string `json:"service,omitempty"`
		StopTime      *int   `json:"stop_time,omitempty"`
		RemoveOrphans bool   `json:"remove_orphans"`
	}
)

// NewExecuteRegistry registers every execute request.
func NewExecuteRegistry(d *Deps) *resolver.Registry {
	r := resolver.NewRegistry("execute")
	resolver.Register(r, func(ctx context.Context, user *domain.User, req StartStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{Kind: execute.Start, Service: req.Service})
	})
	resolver.Register(r, func(ctx context.Context, user *domain.User, req RestartStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{Kind: execute.Restart, Service: req.Service})
	})
	resolver.Register(r, func(ctx context.Context, user *domain.User, req PauseStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{Kind: execute.Pause, Service: req.Service})
	})
	resolver.Register(r, func(ctx context.Context, user *domain.User, req UnpauseStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{Kind: execute.Unpause, Service: req.Service})
	})
	resolver.Register(r, func(ctx context.Context, user *domain.User, req StopStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{Kind: execute.Stop, Service: req.Service, Timeout: req.StopTime})
	})
	resolver.Register(r, func(ctx context.Context, user *domain.User, req DestroyStack) (*domain.Update, error) {
		return d.execute(ctx, user, req.Stack, execute.Action{
			Kind:          execute.Destroy,
			Service:       req.Service,
			Timeout:       req.StopTime,
			RemoveOrphans: req.RemoveOrphans,
		})
	})
	return r
}

// execute surfaces every pipeline error, remote ones included. By the time
// an error comes back with an update, that update is already finalized and
// persisted, and the error message names its id.
func (d *Deps) execute(ctx context.Context, user *domain.User, ref string, action execute.Action) (*domain.Update, error) {
	return d.Executor.Execute(ctx, user, ref, action)
}
