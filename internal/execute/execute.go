// Package execute runs stack lifecycle actions on remote agents.
package execute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcnelson/stackplane/internal/access"
	"github.com/bcnelson/stackplane/internal/actionstate"
	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/metrics"
	"github.com/bcnelson/stackplane/internal/statuscache"
	"github.com/bcnelson/stackplane/internal/storage"
	"github.com/google/uuid"
)

// Publisher receives every state change of an Update.
type Publisher interface {
	Publish(update *domain.Update)
}

// Executor runs lifecycle actions through the shared pipeline.
type Executor struct {
	gate    *access.Gate
	states  *actionstate.Coordinator
	store   storage.Storage
	agent   agent.Client
	cache   *statuscache.Cache
	hub     Publisher
	metrics *metrics.Metrics
}

// New creates an Executor. hub and m may be nil.
func New(gate *access.Gate, states *actionstate.Coordinator, store storage.Storage, client agent.Client,
	cache *statuscache.Cache, hub Publisher, m *metrics.Metrics) *Executor {
	return &Executor{
		gate:    gate,
		states:  states,
		store:   store,
		agent:   client,
		cache:   cache,
		hub:     hub,
		metrics: m,
	}
}

// Execute runs action against the stack named by ref on behalf of user.
//
// Validation, lookup and permission failures return before the stack's
// action flag is touched. A conflicting action in flight returns a Busy
// error before anything is persisted or sent. Once the flag is held the
// action always produces a finalized Update, which is returned together
// with the error when the remote call or the final persist fails; the
// flag is released on every path, panics included.
func (e *Executor) Execute(ctx context.Context, user *domain.User, ref string, action Action) (*domain.Update, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	stack, server, err := e.gate.StackAndServer(ctx, ref, user, domain.PermissionExecute)
	if err != nil {
		return nil, err
	}

	var update *domain.Update
	err = e.states.Record(stack.ID).Run(action.Flag(), func() error {
		var runErr error
		update, runErr = e.run(ctx, user, stack, server, action)
		return runErr
	})

	var busy *actionstate.BusyError
	if errors.As(err, &busy) {
		e.metrics.ObserveBusy(string(action.Operation()))
		slog.Info("stack action rejected: busy",
			"stack", stack.Name, "action", action.Operation(), "conflict", busy.Conflict.String())
	}
	return update, err
}

func (e *Executor) publish(update *domain.Update) {
	if e.hub != nil {
		e.hub.Publish(update)
	}
}

// run is the guarded part of the pipeline. The action is not cancelled
// once started, so the caller's cancellation is detached here.
func (e *Executor) run(ctx context.Context, user *domain.User, stack *domain.Stack, server *domain.Server, action Action) (*domain.Update, error) {
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	op := action.Operation()
	logger := slog.With("stack", stack.Name, "server", server.Name, "action", op)

	update := &domain.Update{
		ID:        uuid.New().String(),
		Operation: op,
		Target:    stack.Target(),
		Operator:  user.ID,
		StartedAt: started,
		Status:    domain.UpdateStatusInProgress,
	}
	if err := e.store.CreateUpdate(ctx, update); err != nil {
		e.metrics.ObserveAction(string(op), metrics.ResultError, time.Since(started))
		return nil, fmt.Errorf("%w: creating update for %s on stack %s: %v", domain.ErrStoreFailure, op, stack.Name, err)
	}
	e.publish(update)
	logger = logger.With("update", update.ID)
	logger.Info("stack action started")

	// A panic past this point still leaves a finalized, failed Update behind.
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if !update.Finalized() {
			update.PushLog(domain.ErrorLog(action.Stage(), fmt.Errorf("panic: %v", p)))
			update.Finalize()
			if err := e.store.UpdateUpdate(ctx, update); err != nil {
				logger.Error("failed to persist update after panic", "error", err)
			}
			e.publish(update)
		}
		e.metrics.ObserveAction(string(op), metrics.ResultError, time.Since(started))
		logger.Error("stack action panicked", "panic", p)
		panic(p)
	}()

	if action.Service != "" {
		update.PushLog(domain.SimpleLog("Service", "Service: "+action.Service))
	}

	command := action.Command()
	remoteErr := e.compose(ctx, update, server, stack.ProjectName(), command, action.Stage())

	if err := e.cache.Refresh(ctx, server); err != nil {
		logger.Warn("failed to refresh status cache after action", "error", err)
	}

	update.Finalize()
	persistErr := e.store.UpdateUpdate(ctx, update)
	e.publish(update)

	result := metrics.ResultSuccess
	if !update.Success {
		result = metrics.ResultFailure
	}
	e.metrics.ObserveAction(string(op), result, time.Since(started))

	if persistErr != nil {
		logger.Error("failed to persist finalized update", "error", persistErr)
		persistErr = fmt.Errorf("%w: finalizing update %s: %v", domain.ErrStoreFailure, update.ID, persistErr)
	}
	if remoteErr != nil {
		logger.Warn("stack action failed", "error", remoteErr)
		remoteErr = fmt.Errorf("%s on stack %s (update %s): %w", op, stack.Name, update.ID, remoteErr)
	} else {
		logger.Info("stack action finished", "duration", time.Since(started))
	}
	return update, errors.Join(remoteErr, persistErr)
}

// compose sends command to the agent and records its log on update.
func (e *Executor) compose(ctx context.Context, update *domain.Update, server *domain.Server, project, command, stage string) error {
	log, err := e.agent.ComposeExecution(ctx, server, project, command)
	if err != nil {
		err = fmt.Errorf("compose %q: %w", command, err)
		update.PushLog(domain.ErrorLog(stage, err))
		return err
	}
	if log.Stage == "" {
		log.Stage = stage
	}
	update.PushLog(*log)
	if !log.Success {
		return fmt.Errorf("%w: compose %q exited with failure: %s", domain.ErrRemoteFailure, command, log.Stderr)
	}
	return nil
}
