package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
)

// Client defines the interface for talking to the agent on a managed server.
type Client interface {
	// ComposeExecution runs `docker compose -p <project> <command>` on the server.
	// A command that ran but exited non-zero is returned as a log with Success false.
	ComposeExecution(ctx context.Context, server *domain.Server, project, command string) (*domain.Log, error)
	// ListContainers returns every container on the server.
	ListContainers(ctx context.Context, server *domain.Server) ([]domain.ContainerSummary, error)
	GetComposeServiceLog(ctx context.Context, server *domain.Server, req LogRequest) (*domain.Log, error)
	SearchComposeServiceLog(ctx context.Context, server *domain.Server, req SearchLogRequest) (*domain.Log, error)
}

// LogRequest asks for the tail of one compose service's log.
type LogRequest struct {
	Project    string `json:"project"`
	Service    string `json:"service"`
	Tail       uint64 `json:"tail"`
	Timestamps bool   `json:"timestamps"`
}

// SearchCombinator joins search terms.
type SearchCombinator string

const (
	CombinatorOr  SearchCombinator = "Or"
	CombinatorAnd SearchCombinator = "And"
)

// SearchLogRequest greps one compose service's log.
type SearchLogRequest struct {
	Project    string           `json:"project"`
	Service    string           `json:"service"`
	Terms      []string         `json:"terms"`
	Combinator SearchCombinator `json:"combinator"`
	Invert     bool             `json:"invert"`
	Timestamps bool             `json:"timestamps"`
}

type composeExecution struct {
	Project string `json:"project"`
	Command string `json:"command"`
}

type getContainerList struct{}

type request struct {
	Type   string `json:"type"`
	Params any    `json:"params"`
}

// MaxResponseBytes caps how much of an agent response is read. Service logs
// are the largest payloads an agent returns.
const MaxResponseBytes = 32 << 20

// HTTPClient calls agents over HTTP.
type HTTPClient struct {
	http        *http.Client
	passkey     string
	maxResponse int64
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates an agent client. passkey is used for servers that
// do not carry their own. timeout bounds each request and is the only
// timeout applied to agent calls.
func NewHTTPClient(passkey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http:        &http.Client{Timeout: timeout},
		passkey:     passkey,
		maxResponse: MaxResponseBytes,
	}
}

func (c *HTTPClient) ComposeExecution(ctx context.Context, server *domain.Server, project, command string) (*domain.Log, error) {
	var log domain.Log
	if err := c.do(ctx, server, "ComposeExecution", composeExecution{Project: project, Command: command}, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *HTTPClient) ListContainers(ctx context.Context, server *domain.Server) ([]domain.ContainerSummary, error) {
	var containers []domain.ContainerSummary
	if err := c.do(ctx, server, "GetContainerList", getContainerList{}, &containers); err != nil {
		return nil, err
	}
	return containers, nil
}

func (c *HTTPClient) GetComposeServiceLog(ctx context.Context, server *domain.Server, req LogRequest) (*domain.Log, error) {
	var log domain.Log
	if err := c.do(ctx, server, "GetComposeServiceLog", req, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *HTTPClient) SearchComposeServiceLog(ctx context.Context, server *domain.Server, req SearchLogRequest) (*domain.Log, error) {
	var log domain.Log
	if err := c.do(ctx, server, "GetComposeServiceLogSearch", req, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

func (c *HTTPClient) do(ctx context.Context, server *domain.Server, typ string, params, out any) error {
	if !server.Enabled {
		return fmt.Errorf("%w: server %s is disabled", domain.ErrRemoteUnavailable, server.Name)
	}
	if server.Address == "" {
		return fmt.Errorf("%w: server %s has no address", domain.ErrRemoteUnavailable, server.Name)
	}

	body, err := json.Marshal(request{Type: typ, Params: params})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", typ, err)
	}

	url := strings.TrimRight(server.Address, "/") + "/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request to %s: %v", domain.ErrRemoteUnavailable, server.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	passkey := server.Passkey
	if passkey == "" {
		passkey = c.passkey
	}
	req.Header.Set("Authorization", passkey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s request to server %s: %v", domain.ErrRemoteUnavailable, typ, server.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return fmt.Errorf("%w: reading %s response from server %s: %v", domain.ErrRemoteUnavailable, typ, server.Name, err)
	}
	if int64(len(data)) > c.maxResponse {
		return fmt.Errorf("%w: %s response from server %s exceeds %d bytes",
			domain.ErrRemoteFailure, typ, server.Name, c.maxResponse)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s on server %s returned %d: %s",
			domain.ErrRemoteFailure, typ, server.Name, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response from server %s: %v", domain.ErrRemoteFailure, typ, server.Name, err)
	}
	return nil
}
