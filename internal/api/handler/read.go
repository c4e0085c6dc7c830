package handler

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/bcnelson/stackplane/internal/agent"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/github"
	"github.com/bcnelson/stackplane/internal/resolver"
	"github.com/bcnelson/stackplane/internal/validation"
)

// DefaultLogTail is the number of log lines fetched when a request sets none.
const DefaultLogTail = 100

// Read requests.
type (
	GetStack struct {
		Stack string `json:"stack"`
	}
	ListStacks struct {
		Query domain.ResourceQuery `json:"query"`
	}
	ListFullStacks struct {
		Query domain.ResourceQuery `json:"query"`
	}
	ListStackServices struct {
		Stack string `json:"stack"`
	}
	GetStackServiceLog struct {
		Stack      string `json:"stack"`
		Service    string `json:"service"`
		Tail       uint64 `json:"tail"`
		Timestamps bool   `json:"timestamps"`
	}
	SearchStackServiceLog struct {
		Stack      string                 `json:"stack"`
		Service    string                 `json:"service"`
		Terms      []string               `json:"terms"`
		Combinator agent.SearchCombinator `json:"combinator"`
		Invert     bool                   `json:"invert"`
		Timestamps bool                   `json:"timestamps"`
	}
	ListCommonStackExtraArgs struct {
		Query domain.ResourceQuery `json:"query"`
	}
	ListCommonStackBuildExtraArgs struct {
		Query domain.ResourceQuery `json:"query"`
	}
	GetStackActionState struct {
		Stack string `json:"stack"`
	}
	GetStacksSummary struct{}
	GetStackWebhooksEnabled struct {
		Stack string `json:"stack"`
	}
	ListServers struct{}
	GetUpdate struct {
		ID string `json:"id"`
	}
	ListUpdates struct {
		Target *domain.ResourceTarget `json:"target,omitempty"`
		Page   int                    `json:"page"`
	}
	ListAlerts struct {
		IncludeResolved bool `json:"include_resolved"`
		Page            int  `json:"page"`
	}
)

// StacksSummary counts the visible stacks by cached state.
// Paused stacks count as stopped.
type StacksSummary struct {
	Total     int `json:"total"`
	Running   int `json:"running"`
	Stopped   int `json:"stopped"`
	Down      int `json:"down"`
	Unhealthy int `json:"unhealthy"`
	Unknown   int `json:"unknown"`
}

// ListUpdatesResponse is one page of updates.
type ListUpdatesResponse struct {
	Updates  []*domain.UpdateListItem `json:"updates"`
	NextPage *int                     `json:"next_page"`
}

// ListAlertsResponse is one page of alerts.
type ListAlertsResponse struct {
	Alerts   []*domain.Alert `json:"alerts"`
	NextPage *int            `json:"next_page"`
}

// NewReadRegistry registers every read request.
func NewReadRegistry(d *Deps) *resolver.Registry {
	r := resolver.NewRegistry("read")
	resolver.Register(r, d.getStack)
	resolver.Register(r, d.listStacks)
	resolver.Register(r, d.listFullStacks)
	resolver.Register(r, d.listStackServices)
	resolver.Register(r, d.getStackServiceLog)
	resolver.Register(r, d.searchStackServiceLog)
	resolver.Register(r, d.listCommonStackExtraArgs)
	resolver.Register(r, d.listCommonStackBuildExtraArgs)
	resolver.Register(r, d.getStackActionState)
	resolver.Register(r, d.getStacksSummary)
	resolver.Register(r, d.getStackWebhooksEnabled)
	resolver.Register(r, d.listServers)
	resolver.Register(r, d.getUpdate)
	resolver.Register(r, d.listUpdates)
	resolver.Register(r, d.listAlerts)
	return r
}

func (d *Deps) getStack(ctx context.Context, user *domain.User, req GetStack) (*domain.Stack, error) {
	return d.Gate.GetStack(ctx, req.Stack, user, domain.PermissionRead)
}

func (d *Deps) listStacks(ctx context.Context, user *domain.User, req ListStacks) ([]domain.StackListItem, error) {
	stacks, err := d.Gate.VisibleStacks(ctx, user, req.Query)
	if err != nil {
		return nil, err
	}
	items := make([]domain.StackListItem, 0, len(stacks))
	for _, stack := range stacks {
		status := d.Cache.Curr(stack.ID)
		services := make([]string, 0, len(status.Services))
		for _, s := range status.Services {
			services = append(services, s.Service)
		}
		items = append(items, domain.StackListItem{
			ID:   stack.ID,
			Name: stack.Name,
			Tags: stack.Tags,
			Info: domain.StackListInfo{
				ServerID:    stack.Config.ServerID,
				ProjectName: stack.ProjectName(),
				GitProvider: stack.Config.GitProvider,
				Repo:        stack.Config.Repo,
				State:       status.State,
				Services:    services,
			},
		})
	}
	return items, nil
}

func (d *Deps) listFullStacks(ctx context.Context, user *domain.User, req ListFullStacks) ([]*domain.Stack, error) {
	return d.Gate.VisibleStacks(ctx, user, req.Query)
}

func (d *Deps) listStackServices(ctx context.Context, user *domain.User, req ListStackServices) ([]domain.StackService, error) {
	stack, err := d.Gate.GetStack(ctx, req.Stack, user, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	services := d.Cache.Curr(stack.ID).Services
	if services == nil {
		services = []domain.StackService{}
	}
	return services, nil
}

func (d *Deps) getStackServiceLog(ctx context.Context, user *domain.User, req GetStackServiceLog) (*domain.Log, error) {
	if err := validation.ValidateServiceName(req.Service); err != nil {
		return nil, err
	}
	stack, server, err := d.Gate.StackAndServer(ctx, req.Stack, user, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	tail := req.Tail
	if tail == 0 {
		tail = DefaultLogTail
	}
	return d.Agent.GetComposeServiceLog(ctx, server, agent.LogRequest{
		Project:    stack.ProjectName(),
		Service:    req.Service,
		Tail:       tail,
		Timestamps: req.Timestamps,
	})
}

func (d *Deps) searchStackServiceLog(ctx context.Context, user *domain.User, req SearchStackServiceLog) (*domain.Log, error) {
	if err := validation.ValidateServiceName(req.Service); err != nil {
		return nil, err
	}
	if err := validation.ValidateSearchTerms(req.Terms); err != nil {
		return nil, err
	}
	combinator := req.Combinator
	switch combinator {
	case "":
		combinator = agent.CombinatorOr
	case agent.CombinatorOr, agent.CombinatorAnd:
	default:
		return nil, fmt.Errorf("%w: unknown combinator %q", domain.ErrInvalidInput, combinator)
	}

	stack, server, err := d.Gate.StackAndServer(ctx, req.Stack, user, domain.PermissionRead)
	if err != nil {
		return nil, err
	}
	return d.Agent.SearchComposeServiceLog(ctx, server, agent.SearchLogRequest{
		Project:    stack.ProjectName(),
		Service:    req.Service,
		Terms:      req.Terms,
		Combinator: combinator,
		Invert:     req.Invert,
		Timestamps: req.Timestamps,
	})
}

func (d *Deps) listCommonStackExtraArgs(ctx context.Context, user *domain.User, req ListCommonStackExtraArgs) ([]string, error) {
	return d.commonArgs(ctx, user, req.Query, func(s *domain.Stack) []string { return s.Config.ExtraArgs })
}

func (d *Deps) listCommonStackBuildExtraArgs(ctx context.Context, user *domain.User, req ListCommonStackBuildExtraArgs) ([]string, error) {
	return d.commonArgs(ctx, user, req.Query, func(s *domain.Stack) []string { return s.Config.BuildExtraArgs })
}

// commonArgs collects the args used by any visible stack, sorted and de-duplicated.
func (d *Deps) commonArgs(ctx context.Context, user *domain.User, query domain.ResourceQuery, args func(*domain.Stack) []string) ([]string, error) {
	stacks, err := d.Gate.VisibleStacks(ctx, user, query)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, stack := range stacks {
		out = append(out, args(stack)...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (d *Deps) getStackActionState(ctx context.Context, user *domain.User, req GetStackActionState) (domain.StackActionState, error) {
	stack, err := d.Gate.GetStack(ctx, req.Stack, user, domain.PermissionRead)
	if err != nil {
		return domain.StackActionState{}, err
	}
	return d.States.Get(stack.ID), nil
}

func (d *Deps) getStacksSummary(ctx context.Context, user *domain.User, _ GetStacksSummary) (StacksSummary, error) {
	stacks, err := d.Gate.VisibleStacks(ctx, user, domain.ResourceQuery{})
	if err != nil {
		return StacksSummary{}, err
	}
	var summary StacksSummary
	for _, stack := range stacks {
		summary.Total++
		switch d.Cache.Curr(stack.ID).State {
		case domain.StackStateRunning:
			summary.Running++
		case domain.StackStateStopped, domain.StackStatePaused:
			summary.Stopped++
		case domain.StackStateDown:
			summary.Down++
		case domain.StackStateUnknown:
			summary.Unknown++
		default:
			summary.Unhealthy++
		}
	}
	return summary, nil
}

func (d *Deps) getStackWebhooksEnabled(ctx context.Context, user *domain.User, req GetStackWebhooksEnabled) (github.WebhookStatus, error) {
	if d.GitHub == nil {
		return github.WebhookStatus{}, nil
	}
	stack, err := d.Gate.GetStack(ctx, req.Stack, user, domain.PermissionRead)
	if err != nil {
		return github.WebhookStatus{}, err
	}
	return d.GitHub.StackWebhooks(ctx, stack, d.WebhookHost)
}

func (d *Deps) listServers(ctx context.Context, user *domain.User, _ ListServers) ([]*domain.Server, error) {
	servers, err := d.Store.ListServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing servers: %v", domain.ErrStoreFailure, err)
	}
	visible := make([]*domain.Server, 0, len(servers))
	for _, server := range servers {
		ok, err := d.canRead(ctx, user, server.Target())
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, server)
		}
	}
	return visible, nil
}

func (d *Deps) getUpdate(ctx context.Context, user *domain.User, req GetUpdate) (*domain.Update, error) {
	update, err := d.Store.GetUpdate(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", req.ID, err)
	}
	if err := d.Gate.Check(ctx, user, update.Target, domain.PermissionRead); err != nil {
		return nil, err
	}
	return update, nil
}

func (d *Deps) listUpdates(ctx context.Context, user *domain.User, req ListUpdates) (ListUpdatesResponse, error) {
	if req.Page < 0 {
		return ListUpdatesResponse{}, fmt.Errorf("%w: page must be non-negative", domain.ErrInvalidInput)
	}
	if req.Target != nil {
		if err := d.Gate.Check(ctx, user, *req.Target, domain.PermissionRead); err != nil {
			return ListUpdatesResponse{}, err
		}
	}
	items, err := d.Store.ListUpdates(ctx, domain.UpdateQuery{
		Target: req.Target,
		Limit:  PageSize,
		Offset: req.Page * PageSize,
	})
	if err != nil {
		return ListUpdatesResponse{}, fmt.Errorf("%w: listing updates: %v", domain.ErrStoreFailure, err)
	}

	resp := ListUpdatesResponse{Updates: make([]*domain.UpdateListItem, 0, len(items)), NextPage: nextPage(req.Page, len(items))}
	readable := make(map[domain.ResourceTarget]bool)
	for _, item := range items {
		ok, seen := readable[item.Target]
		if !seen {
			if ok, err = d.canRead(ctx, user, item.Target); err != nil {
				return ListUpdatesResponse{}, err
			}
			readable[item.Target] = ok
		}
		if ok {
			resp.Updates = append(resp.Updates, item)
		}
	}
	return resp, nil
}

func (d *Deps) listAlerts(ctx context.Context, user *domain.User, req ListAlerts) (ListAlertsResponse, error) {
	if req.Page < 0 {
		return ListAlertsResponse{}, fmt.Errorf("%w: page must be non-negative", domain.ErrInvalidInput)
	}
	alerts, err := d.Store.ListAlerts(ctx, req.IncludeResolved, PageSize, req.Page*PageSize)
	if err != nil {
		return ListAlertsResponse{}, fmt.Errorf("%w: listing alerts: %v", domain.ErrStoreFailure, err)
	}

	resp := ListAlertsResponse{Alerts: make([]*domain.Alert, 0, len(alerts)), NextPage: nextPage(req.Page, len(alerts))}
	readable := make(map[domain.ResourceTarget]bool)
	for _, alert := range alerts {
		ok, seen := readable[alert.Target]
		if !seen {
			if ok, err = d.canRead(ctx, user, alert.Target); err != nil {
				return ListAlertsResponse{}, err
			}
			readable[alert.Target] = ok
		}
		if ok {
			resp.Alerts = append(resp.Alerts, alert)
		}
	}
	return resp, nil
}

func (d *Deps) canRead(ctx context.Context, user *domain.User, target domain.ResourceTarget) (bool, error) {
	err := d.Gate.Check(ctx, user, target, domain.PermissionRead)
	if errors.Is(err, domain.ErrUnauthorized) {
		return false, nil
	}
	return err == nil, err
}

// nextPage is set only when the page came back full.
func nextPage(page, n int) *int {
	if n < PageSize {
		return nil
	}
	next := page + 1
	return &next
}
