package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bcnelson/stackplane/internal/access"
	"github.com/bcnelson/stackplane/internal/actionstate"
	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/api"
	"github.com/bcnelson/stackplane/internal/api/handler"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/execute"
	"github.com/bcnelson/stackplane/internal/metrics"
	"github.com/bcnelson/stackplane/internal/statuscache"
	"github.com/bcnelson/stackplane/internal/storage/memory"
	"github.com/bcnelson/stackplane/internal/updates"
)

// blockingAgent holds ComposeExecution until release is closed, when set.
// A non-nil err or a set fail short-circuits the shim.
type blockingAgent struct {
	*agent.FileShim
	entered chan struct{}
	release chan struct{}
	err     error
	fail    bool
}

func (a *blockingAgent) ComposeExecution(ctx context.Context, server *domain.Server, project, command string) (*domain.Log, error) {
	if a.release != nil {
		a.entered <- struct{}{}
		<-a.release
	}
	if a.err != nil {
		return nil, a.err
	}
	if a.fail {
		now := time.Now()
		return &domain.Log{Command: command, Stderr: "exit status 1", StartedAt: now, EndedAt: now}, nil
	}
	return a.FileShim.ComposeExecution(ctx, server, project, command)
}

// testServer creates a test server with in-memory storage and a file shim agent
type testServer struct {
	handler      http.Handler
	store        *memory.Store
	shim         *agent.FileShim
	agent        *blockingAgent
	cache        *statuscache.Cache
	bootstrapKey string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New()
	bootstrapKey := "test-bootstrap-key"

	shim := agent.NewFileShim(filepath.Join(t.TempDir(), "agents.json"))
	client := &blockingAgent{FileShim: shim}
	m := metrics.New()
	cache := statuscache.New(store, client, m)
	gate := access.New(store, false)
	states := actionstate.New()
	hub := updates.NewHub(gate)

	deps := &handler.Deps{
		Store:    store,
		Gate:     gate,
		States:   states,
		Cache:    cache,
		Agent:    client,
		Executor: execute.New(gate, states, store, client, cache, hub, m),
	}

	// OIDC disabled for tests
	h := api.NewRouter(deps, api.Options{
		BootstrapKey: bootstrapKey,
		Hub:          hub,
		Metrics:      m,
	})

	return &testServer{
		handler:      h,
		store:        store,
		shim:         shim,
		agent:        client,
		cache:        cache,
		bootstrapKey: bootstrapKey,
	}
}

func (ts *testServer) request(method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	var reqBody io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) rpc(path, typ string, params any, apiKey string) *httptest.ResponseRecorder {
	return ts.request("POST", path, map[string]any{"type": typ, "params": params}, apiKey)
}

// mustRPC performs an RPC call, expects 200 and decodes the response into out.
func (ts *testServer) mustRPC(t *testing.T, path, typ string, params any, apiKey string, out any) {
	t.Helper()
	rr := ts.rpc(path, typ, params, apiKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("%s %s: expected status 200, got %d: %s", path, typ, rr.Code, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", path, typ, err)
		}
	}
}

// createUserKey creates a user and an API key for it, returning the key.
func (ts *testServer) createUserKey(t *testing.T, adminKey, username string, admin bool) (string, *domain.User) {
	t.Helper()
	var user domain.User
	ts.mustRPC(t, "/write", "CreateUser", map[string]any{"username": username, "admin": admin}, adminKey, &user)

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: username, UserID: user.ID}, adminKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp domain.CreateAPIKeyResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return resp.Key, &user
}

// setupAdmin bootstraps an admin user and returns its key.
// The bootstrap key stops working once this returns.
func (ts *testServer) setupAdmin(t *testing.T) string {
	t.Helper()
	key, _ := ts.createUserKey(t, ts.bootstrapKey, "admin", true)
	return key
}

func (ts *testServer) createServer(t *testing.T, adminKey, name string) *domain.Server {
	t.Helper()
	var server domain.Server
	ts.mustRPC(t, "/write", "CreateServer", map[string]any{"name": name, "address": "http://" + name + ":8120"}, adminKey, &server)
	return &server
}

func (ts *testServer) createStack(t *testing.T, adminKey, name string, server *domain.Server) *domain.Stack {
	t.Helper()
	var stack domain.Stack
	ts.mustRPC(t, "/write", "CreateStack", map[string]any{
		"name":   name,
		"config": map[string]any{"server_id": server.Name},
	}, adminKey, &stack)
	return &stack
}

func container(project, service, state string) domain.ContainerSummary {
	return domain.ContainerSummary{Name: project + "-" + service + "-1", Project: project, Service: service, State: state}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp domain.StandardErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error response: %v (%s)", err, rr.Body.String())
	}
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/health", nil, "")

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}

	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("Expected status ok, got %s", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request("GET", "/metrics", nil, "")
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	// Request without auth header
	rr := ts.rpc("/read", "ListStacks", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != domain.ErrCodeUnauthenticated {
		t.Errorf("Expected %s, got %s", domain.ErrCodeUnauthenticated, code)
	}

	// Request with invalid auth header format
	req := httptest.NewRequest("POST", "/read", nil)
	req.Header.Set("Authorization", "Basic invalid")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Request with invalid API key
	rr = ts.rpc("/read", "ListStacks", nil, "invalid-key")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rr.Code)
	}

	// Websocket stream is authenticated too
	rr = ts.request("GET", "/ws/update", nil, "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for /ws/update, got %d", rr.Code)
	}
}

func TestBootstrapKeyAuth(t *testing.T) {
	ts := newTestServer(t)

	// Bootstrap key should work when no API keys exist
	rr := ts.rpc("/read", "ListStacks", nil, ts.bootstrapKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with bootstrap key, got %d: %s", rr.Code, rr.Body.String())
	}

	adminKey := ts.setupAdmin(t)

	// Bootstrap key is disabled once a key exists
	rr = ts.rpc("/read", "ListStacks", nil, ts.bootstrapKey)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bootstrap key after keys exist, got %d", rr.Code)
	}
	rr = ts.rpc("/read", "ListStacks", nil, adminKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with admin key, got %d", rr.Code)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)

	// Create a second key for the admin itself
	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: "Test Key"}, adminKey)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var createResp domain.CreateAPIKeyResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &createResp)
	if createResp.Key == "" {
		t.Error("Expected key to be returned on creation")
	}
	if createResp.Name != "Test Key" {
		t.Errorf("Expected name 'Test Key', got '%s'", createResp.Name)
	}

	// Use the new API key
	rr = ts.rpc("/read", "ListStacks", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with new API key, got %d", rr.Code)
	}

	// List API keys
	rr = ts.request("GET", "/api/v1/keys", nil, createResp.Key)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var keys []domain.APIKey
	_ = json.Unmarshal(rr.Body.Bytes(), &keys)
	if len(keys) != 2 {
		t.Errorf("Expected 2 keys, got %d", len(keys))
	}

	// Delete the new key
	rr = ts.request("DELETE", "/api/v1/keys/"+createResp.ID, nil, adminKey)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rr.Code)
	}

	// Deleted key no longer authenticates
	rr = ts.rpc("/read", "ListStacks", nil, createResp.Key)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for deleted key, got %d", rr.Code)
	}
}

func TestNonAdminCannotCreateKeysForOthers(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	userKey, _ := ts.createUserKey(t, adminKey, "alice", false)
	_, bob := ts.createUserKey(t, adminKey, "bob", false)

	rr := ts.request("POST", "/api/v1/keys", domain.CreateAPIKeyRequest{Name: "sneaky", UserID: bob.ID}, userKey)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", rr.Code)
	}
}

func TestExecuteStack(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	server := ts.createServer(t, adminKey, "srv")
	stack := ts.createStack(t, adminKey, "web", server)

	if err := ts.shim.Seed("srv", []domain.ContainerSummary{
		container("web", "app", "exited"),
		container("web", "db", "exited"),
	}); err != nil {
		t.Fatal(err)
	}

	var update domain.Update
	ts.mustRPC(t, "/execute", "StartStack", map[string]any{"stack": "web"}, adminKey, &update)

	if update.Status != domain.UpdateStatusComplete || !update.Success {
		t.Errorf("Expected complete successful update, got status=%s success=%v", update.Status, update.Success)
	}
	if update.Operation != domain.OperationStartStack {
		t.Errorf("Expected StartStack operation, got %s", update.Operation)
	}
	if len(update.Logs) != 1 || update.Logs[0].Command != "docker compose -p web start" {
		t.Errorf("Unexpected logs: %+v", update.Logs)
	}

	// The cache is refreshed as part of the action
	var items []domain.StackListItem
	ts.mustRPC(t, "/read", "ListStacks", nil, adminKey, &items)
	if len(items) != 1 || items[0].Info.State != domain.StackStateRunning {
		t.Errorf("Expected web to be running, got %+v", items)
	}

	// The update is persisted
	var stored domain.Update
	ts.mustRPC(t, "/read", "GetUpdate", map[string]any{"id": update.ID}, adminKey, &stored)
	if stored.ID != update.ID || !stored.Finalized() {
		t.Errorf("Expected stored finalized update, got %+v", stored)
	}

	var list handler.ListUpdatesResponse
	ts.mustRPC(t, "/read", "ListUpdates", map[string]any{"target": stack.Target()}, adminKey, &list)
	if len(list.Updates) != 1 || list.NextPage != nil {
		t.Errorf("Expected 1 update and no next page, got %+v", list)
	}
}

func TestExecuteRemoteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		fail       bool
		wantStatus int
		wantCode   string
	}{
		{
			name:       "agent unreachable",
			err:        fmt.Errorf("%w: dial tcp 10.0.0.1:8120: connection refused", domain.ErrRemoteUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   domain.ErrCodeRemoteUnavailable,
		},
		{
			name:       "compose exits non-zero",
			fail:       true,
			wantStatus: http.StatusBadGateway,
			wantCode:   domain.ErrCodeRemoteFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			adminKey := ts.setupAdmin(t)
			server := ts.createServer(t, adminKey, "srv")
			stack := ts.createStack(t, adminKey, "web", server)
			if err := ts.shim.Seed("srv", []domain.ContainerSummary{container("web", "app", "exited")}); err != nil {
				t.Fatal(err)
			}
			ts.agent.err = tt.err
			ts.agent.fail = tt.fail

			rr := ts.rpc("/execute", "StartStack", map[string]any{"stack": "web"}, adminKey)
			if rr.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			var resp domain.StandardErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding error response: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, resp.Error.Code)
			}
			updateID, _ := resp.Error.Details["update_id"].(string)
			if updateID == "" {
				t.Fatalf("Expected update_id in error details, got %+v", resp.Error.Details)
			}
			if !strings.Contains(resp.Error.Message, updateID) {
				t.Errorf("Expected message to name update %s, got %q", updateID, resp.Error.Message)
			}

			// The failed update is finalized and persisted before the error surfaces
			var stored domain.Update
			ts.mustRPC(t, "/read", "GetUpdate", map[string]any{"id": updateID}, adminKey, &stored)
			if !stored.Finalized() || stored.Success {
				t.Errorf("Expected finalized failed update, got status=%s success=%v", stored.Status, stored.Success)
			}
			if stored.Target != stack.Target() {
				t.Errorf("Expected update target %+v, got %+v", stack.Target(), stored.Target)
			}

			// The busy flag is released, so a retry reaches the agent again
			ts.agent.err = nil
			ts.agent.fail = false
			ts.mustRPC(t, "/execute", "StartStack", map[string]any{"stack": "web"}, adminKey, nil)
		})
	}
}

func TestExecuteStopWithServiceAndTimeout(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	server := ts.createServer(t, adminKey, "srv")
	ts.createStack(t, adminKey, "web", server)
	_ = ts.shim.Seed("srv", []domain.ContainerSummary{
		container("web", "app", "running"),
		container("web", "db", "running"),
	})

	var update domain.Update
	ts.mustRPC(t, "/execute", "StopStack", map[string]any{"stack": "web", "service": "app", "stop_time": 30}, adminKey, &update)

	if len(update.Logs) != 2 {
		t.Fatalf("Expected service log and compose log, got %+v", update.Logs)
	}
	if update.Logs[0].Stdout != "Service: app" {
		t.Errorf("Expected service log first, got %+v", update.Logs[0])
	}
	if update.Logs[1].Command != "docker compose -p web stop --timeout 30 app" {
		t.Errorf("Unexpected command %q", update.Logs[1].Command)
	}

	// One of two services stopped: the stack is unhealthy
	var summary handler.StacksSummary
	ts.mustRPC(t, "/read", "GetStacksSummary", nil, adminKey, &summary)
	if summary.Unhealthy != 1 {
		t.Errorf("Expected 1 unhealthy stack, got %+v", summary)
	}
}

func TestExecuteInvalidService(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	server := ts.createServer(t, adminKey, "srv")
	ts.createStack(t, adminKey, "web", server)

	rr := ts.rpc("/execute", "RestartStack", map[string]any{"stack": "web", "service": "app; rm -rf /"}, adminKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestExecuteRequiresPermission(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	server := ts.createServer(t, adminKey, "srv")
	stack := ts.createStack(t, adminKey, "web", server)
	userKey, user := ts.createUserKey(t, adminKey, "alice", false)

	rr := ts.rpc("/execute", "StartStack", map[string]any{"stack": "web"}, userKey)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}

	// Read is not enough to execute
	grant := func(level string) {
		ts.mustRPC(t, "/write", "UpdatePermissionOnTarget", map[string]any{
			"user_target":     map[string]any{"type": "User", "id": user.ID},
			"resource_target": stack.Target(),
			"permission":      level,
		}, adminKey, nil)
	}
	grant("Read")
	rr = ts.rpc("/execute", "StartStack", map[string]any{"stack": "web"}, userKey)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 with Read, got %d", rr.Code)
	}

	grant("Execute")
	rr = ts.rpc("/execute", "StartStack", map[string]any{"stack": "web"}, userKey)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 with Execute, got %d: %s", rr.Code, rr.Body.String())
	}

	// Non-admins cannot write
	rr = ts.rpc("/write", "CreateServer", map[string]any{"name": "x", "address": "http://x"}, userKey)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-admin write, got %d", rr.Code)
	}

	grant("None")
	rr = ts.rpc("/read", "GetStack", map[string]any{"stack": "web"}, userKey)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 after revoking, got %d", rr.Code)
	}
}

func TestExecuteBusy(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	server := ts.createServer(t, adminKey, "srv")
	ts.createStack(t, adminKey, "web", server)
	_ = ts.shim.Seed("srv", []domain.ContainerSummary{container("web", "app", "running")})

	ts.agent.entered = make(chan struct{}, 1)
	ts.agent.release = make(chan struct{})

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- ts.rpc("/execute", "RestartStack", map[string]any{"stack": "web"}, adminKey)
	}()

	select {
	case <-ts.agent.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first action never reached the agent")
	}

	var actionState domain.StackActionState
	ts.mustRPC(t, "/read", "GetStackActionState", map[string]any{"stack": "web"}, adminKey, &actionState)
	if !actionState.Restarting {
		t.Errorf("Expected restarting to be set, got %+v", actionState)
	}

	rr := ts.rpc("/execute", "StopStack", map[string]any{"stack": "web"}, adminKey)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
	if code := errorCode(t, rr); code != domain.ErrCodeBusy {
		t.Errorf("Expected %s, got %s", domain.ErrCodeBusy, code)
	}

	close(ts.agent.release)
	select {
	case rr := <-first:
		if rr.Code != http.StatusOK {
			t.Errorf("Expected first action to succeed, got %d: %s", rr.Code, rr.Body.String())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first action did not finish")
	}

	ts.mustRPC(t, "/read", "GetStackActionState", map[string]any{"stack": "web"}, adminKey, &actionState)
	if actionState != (domain.StackActionState{}) {
		t.Errorf("Expected no flags after completion, got %+v", actionState)
	}
}

func TestStacksSummary(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	srv := ts.createServer(t, adminKey, "srv")
	other := ts.createServer(t, adminKey, "other")
	ts.createStack(t, adminKey, "web", srv)
	ts.createStack(t, adminKey, "db", srv)
	ts.createStack(t, adminKey, "cache", srv)
	ts.createStack(t, adminKey, "ghost", other)

	_ = ts.shim.Seed("srv", []domain.ContainerSummary{
		container("web", "app", "running"),
		container("db", "postgres", "exited"),
	})
	if err := ts.cache.Refresh(context.Background(), srv); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	var summary handler.StacksSummary
	ts.mustRPC(t, "/read", "GetStacksSummary", nil, adminKey, &summary)

	want := handler.StacksSummary{Total: 4, Running: 1, Stopped: 1, Down: 1, Unknown: 1}
	if summary != want {
		t.Errorf("Expected %+v, got %+v", want, summary)
	}
}

func TestListStackServicesAndLogs(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	srv := ts.createServer(t, adminKey, "srv")
	ts.createStack(t, adminKey, "web", srv)
	_ = ts.shim.Seed("srv", []domain.ContainerSummary{
		container("web", "worker", "running"),
		container("web", "app", "running"),
	})
	_ = ts.cache.Refresh(context.Background(), srv)

	var services []domain.StackService
	ts.mustRPC(t, "/read", "ListStackServices", map[string]any{"stack": "web"}, adminKey, &services)
	if len(services) != 2 || services[0].Service != "app" || services[1].Service != "worker" {
		t.Errorf("Expected sorted services [app worker], got %+v", services)
	}

	var log domain.Log
	ts.mustRPC(t, "/read", "GetStackServiceLog", map[string]any{"stack": "web", "service": "app"}, adminKey, &log)
	if log.Command != "docker compose -p web logs app" {
		t.Errorf("Unexpected log command %q", log.Command)
	}

	rr := ts.rpc("/read", "SearchStackServiceLog", map[string]any{"stack": "web", "service": "app"}, adminKey)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for search without terms, got %d", rr.Code)
	}
	ts.mustRPC(t, "/read", "SearchStackServiceLog", map[string]any{
		"stack": "web", "service": "app", "terms": []string{"error"}, "combinator": "And",
	}, adminKey, &log)
}

func TestCommonExtraArgs(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	srv := ts.createServer(t, adminKey, "srv")
	for name, args := range map[string][]string{
		"a": {"--pull=always", "--build"},
		"b": {"--build", "--quiet-pull"},
	} {
		ts.mustRPC(t, "/write", "CreateStack", map[string]any{
			"name":   name,
			"config": map[string]any{"server_id": srv.ID, "extra_args": args},
		}, adminKey, nil)
	}

	var args []string
	ts.mustRPC(t, "/read", "ListCommonStackExtraArgs", nil, adminKey, &args)
	want := []string{"--build", "--pull=always", "--quiet-pull"}
	if len(args) != len(want) {
		t.Fatalf("Expected %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, args)
			break
		}
	}
}

func TestRecentlyViewed(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)
	srv := ts.createServer(t, adminKey, "srv")
	a := ts.createStack(t, adminKey, "a", srv)
	b := ts.createStack(t, adminKey, "b", srv)

	for _, target := range []domain.ResourceTarget{a.Target(), b.Target(), a.Target()} {
		ts.mustRPC(t, "/write", "PushRecentlyViewed", map[string]any{"resource": target}, adminKey, nil)
	}

	admin, err := ts.store.GetUserByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatal(err)
	}
	if len(admin.RecentlyViewed) != 2 || admin.RecentlyViewed[0] != a.Target() || admin.RecentlyViewed[1] != b.Target() {
		t.Errorf("Expected [a b], got %+v", admin.RecentlyViewed)
	}

	ts.mustRPC(t, "/write", "SetLastSeenUpdate", nil, adminKey, nil)
	admin, _ = ts.store.GetUserByUsername(context.Background(), "admin")
	if admin.LastUpdateView == 0 {
		t.Error("Expected last update view to be set")
	}
}

func TestBootstrapUserViewTrackingIsNoop(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		params any
	}{
		{"push recently viewed", "PushRecentlyViewed", map[string]any{"resource": map[string]any{"type": "Stack", "id": "web"}}},
		{"set last seen update", "SetLastSeenUpdate", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.rpc("/write", tt.typ, tt.params, ts.bootstrapKey)
			if rr.Code != http.StatusOK {
				t.Errorf("Expected status 200 for bootstrap user, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestWebhooksUnmanagedWithoutGitHub(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)

	var status map[string]bool
	ts.mustRPC(t, "/read", "GetStackWebhooksEnabled", map[string]any{"stack": "missing"}, adminKey, &status)
	if status["managed"] {
		t.Errorf("Expected unmanaged without a GitHub token, got %+v", status)
	}
}

func TestRequestTypes(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)

	rr := ts.request("GET", "/execute", nil, adminKey)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	var types map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &types)
	for _, name := range []string{"StartStack", "RestartStack", "PauseStack", "UnpauseStack", "StopStack", "DestroyStack"} {
		if types[name] != "*domain.Update" {
			t.Errorf("Expected %s -> *domain.Update, got %q", name, types[name])
		}
	}
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer(t)
	adminKey := ts.setupAdmin(t)

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"unknown type", "/read", map[string]any{"type": "GetEverything"}, http.StatusBadRequest},
		{"unknown field", "/read", map[string]any{"type": "GetStack", "params": map[string]any{"stak": "web"}}, http.StatusBadRequest},
		{"not json", "/write", "not an envelope", http.StatusBadRequest},
		{"missing stack", "/read", map[string]any{"type": "GetStack", "params": map[string]any{"stack": "nope"}}, http.StatusNotFound},
		{"bad server address", "/write", map[string]any{"type": "CreateServer", "params": map[string]any{"name": "x", "address": "ftp://x"}}, http.StatusBadRequest},
		{"stack on missing server", "/write", map[string]any{"type": "CreateStack", "params": map[string]any{"name": "x", "config": map[string]any{"server_id": "nope"}}}, http.StatusBadRequest},
		{"negative stop time", "/execute", map[string]any{"type": "StopStack", "params": map[string]any{"stack": "web", "stop_time": -1}}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.request("POST", tt.path, tt.body, adminKey)
			if rr.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
		})
	}
}
