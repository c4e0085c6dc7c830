package handler

import (
	"net/http"

	"github.com/bcnelson/stackplane/internal/access"
	"github.com/bcnelson/stackplane/internal/actionstate"
	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/api/middleware"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/execute"
	"github.com/bcnelson/stackplane/internal/github"
	"github.com/bcnelson/stackplane/internal/resolver"
	"github.com/bcnelson/stackplane/internal/statuscache"
	"github.com/bcnelson/stackplane/internal/storage"
)

// PageSize is the number of rows returned per page by list requests.
const PageSize = 100

// Deps holds the components request handlers are built from.
type Deps struct {
	Store    storage.Storage
	Gate     *access.Gate
	States   *actionstate.Coordinator
	Cache    *statuscache.Cache
	Agent    agent.Client
	Executor *execute.Executor
	// GitHub may be nil when no token is configured.
	GitHub *github.Client
	// WebhookHost is the public base URL webhook listeners are served under.
	WebhookHost string
	// Refresher, when set, is triggered after servers or stacks are created.
	Refresher interface{ Trigger() }
}

func (d *Deps) triggerRefresh() {
	if d.Refresher != nil {
		d.Refresher.Trigger()
	}
}

// NoData is the response of requests that return nothing.
type NoData struct{}

// RPCHandler serves one resolver registry over HTTP.
type RPCHandler struct {
	registry *resolver.Registry
}

// NewRPCHandler creates a new RPCHandler.
func NewRPCHandler(registry *resolver.Registry) *RPCHandler {
	return &RPCHandler{registry: registry}
}

// ServeHTTP decodes a {"type", "params"} envelope and responds with the
// handler's result.
func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req resolver.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user := middleware.GetUserFromContext(r.Context())
	resp, err := h.registry.Resolve(r.Context(), user, req.Type, req.Params)
	if err != nil {
		// Failed actions still leave a finalized update behind.
		var details map[string]any
		if update, ok := resp.(*domain.Update); ok && update != nil {
			details = map[string]any{"update_id": update.ID}
		}
		respondErrorDetails(w, err, details)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Types lists the registered request types with their response types.
func (h *RPCHandler) Types(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.registry.Types())
}
