// Package github reads webhook registrations for stacks whose source lives on GitHub.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/bcnelson/stackplane/internal/domain"
	"golang.org/x/oauth2"
)

// Provider is the git provider value that marks a GitHub-hosted stack.
const Provider = "github.com"

const defaultAPIURL = "https://api.github.com"

// Webhook is the part of a repository hook we compare against.
type Webhook struct {
	ID     int64 `json:"id"`
	Active bool  `json:"active"`
	Config struct {
		URL string `json:"url"`
	} `json:"config"`
}

// WebhookStatus reports whether a stack's listener hooks are registered.
type WebhookStatus struct {
	Managed        bool `json:"managed"`
	RefreshEnabled bool `json:"refresh_enabled"`
	DeployEnabled  bool `json:"deploy_enabled"`
}

// Client lists repository webhooks with a token that manages a fixed set of owners.
type Client struct {
	http   *http.Client
	apiURL string
	owners []string
}

// New creates a client authenticated with token. It returns nil when no
// token is configured, which callers treat as "nothing is managed".
func New(token, apiURL string, owners []string) *Client {
	if token == "" {
		return nil
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &Client{
		http:   oauth2.NewClient(context.Background(), src),
		apiURL: strings.TrimRight(apiURL, "/"),
		owners: owners,
	}
}

// Manages reports whether the token is configured for owner.
func (c *Client) Manages(owner string) bool {
	return c != nil && slices.Contains(c.owners, owner)
}

// ListWebhooks returns every hook on owner/repo.
func (c *Client) ListWebhooks(ctx context.Context, owner, repo string) ([]Webhook, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/hooks?per_page=100", c.apiURL, url.PathEscape(owner), url.PathEscape(repo))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing webhooks on %s/%s: %v", domain.ErrRemoteUnavailable, owner, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: listing webhooks on %s/%s returned %d: %s",
			domain.ErrRemoteFailure, owner, repo, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var hooks []Webhook
	if err := json.NewDecoder(resp.Body).Decode(&hooks); err != nil {
		return nil, fmt.Errorf("%w: decoding webhooks: %v", domain.ErrRemoteFailure, err)
	}
	return hooks, nil
}

// ListenerURLs returns the refresh and deploy listener URLs for a stack.
func ListenerURLs(host, stackID string) (refresh, deploy string) {
	host = strings.TrimRight(host, "/")
	return fmt.Sprintf("%s/listener/github/stack/%s/refresh", host, stackID),
		fmt.Sprintf("%s/listener/github/stack/%s/deploy", host, stackID)
}

// StackWebhooks checks the stack's repository for active hooks pointing
// at the stack's listener URLs under host.
func (c *Client) StackWebhooks(ctx context.Context, stack *domain.Stack, host string) (WebhookStatus, error) {
	if c == nil || stack.Config.GitProvider != Provider || stack.Config.Repo == "" {
		return WebhookStatus{}, nil
	}

	owner, repo, ok := strings.Cut(stack.Config.Repo, "/")
	if !c.Manages(owner) {
		return WebhookStatus{}, nil
	}
	if !ok || repo == "" {
		return WebhookStatus{}, fmt.Errorf("%w: repo %q has no repository after the owner", domain.ErrInvalidInput, stack.Config.Repo)
	}

	hooks, err := c.ListWebhooks(ctx, owner, repo)
	if err != nil {
		return WebhookStatus{}, err
	}

	refreshURL, deployURL := ListenerURLs(host, stack.ID)
	status := WebhookStatus{Managed: true}
	for _, hook := range hooks {
		if !hook.Active {
			continue
		}
		switch hook.Config.URL {
		case refreshURL:
			status.RefreshEnabled = true
		case deployURL:
			status.DeployEnabled = true
		}
	}
	return status, nil
}
