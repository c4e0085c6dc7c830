package domain

import "time"

// Stack is a named, server-bound set of compose services.
// It is the unit of action and permission.
type Stack struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	Config      StackConfig `json:"config"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// StackConfig holds the deployable configuration of a stack.
type StackConfig struct {
	ServerID       string   `json:"server_id"`
	ProjectName    string   `json:"project_name,omitempty"`
	GitProvider    string   `json:"git_provider,omitempty"`
	Repo           string   `json:"repo,omitempty"`
	Branch         string   `json:"branch,omitempty"`
	ExtraArgs      []string `json:"extra_args,omitempty"`
	BuildExtraArgs []string `json:"build_extra_args,omitempty"`
}

// ProjectName returns the compose project name used on the agent.
func (s *Stack) ProjectName() string {
	if s.Config.ProjectName != "" {
		return s.Config.ProjectName
	}
	return s.Name
}

// Target returns the resource target addressing this stack.
func (s *Stack) Target() ResourceTarget {
	return ResourceTarget{Type: ResourceTypeStack, ID: s.ID}
}

// StackState is the lifecycle state of a stack as last observed on its server.
type StackState string

const (
	StackStateDeploying  StackState = "deploying"
	StackStateRunning    StackState = "running"
	StackStatePaused     StackState = "paused"
	StackStateStopped    StackState = "stopped"
	StackStateCreated    StackState = "created"
	StackStateRestarting StackState = "restarting"
	StackStateDead       StackState = "dead"
	StackStateRemoving   StackState = "removing"
	StackStateUnhealthy  StackState = "unhealthy"
	StackStateDown       StackState = "down"
	StackStateUnknown    StackState = "unknown"
)

// ContainerSummary is the agent's view of one container.
type ContainerSummary struct {
	Name    string            `json:"name"`
	Image   string            `json:"image,omitempty"`
	State   string            `json:"state"`
	Status  string            `json:"status,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Project string            `json:"project,omitempty"`
	Service string            `json:"service,omitempty"`
}

// StackService is one service of a stack with its container, if any.
type StackService struct {
	Service   string            `json:"service"`
	Image     string            `json:"image,omitempty"`
	Container *ContainerSummary `json:"container,omitempty"`
}

// StackActionState reports which actions are in flight for a stack.
type StackActionState struct {
	Pulling    bool `json:"pulling"`
	Deploying  bool `json:"deploying"`
	Starting   bool `json:"starting"`
	Restarting bool `json:"restarting"`
	Pausing    bool `json:"pausing"`
	Unpausing  bool `json:"unpausing"`
	Stopping   bool `json:"stopping"`
	Destroying bool `json:"destroying"`
}

// StackListItem is the summary row returned by list queries.
type StackListItem struct {
	ID   string        `json:"id"`
	Name string        `json:"name"`
	Tags []string      `json:"tags"`
	Info StackListInfo `json:"info"`
}

// StackListInfo carries the cached state for a list row.
type StackListInfo struct {
	ServerID    string     `json:"server_id"`
	ProjectName string     `json:"project_name"`
	GitProvider string     `json:"git_provider,omitempty"`
	Repo        string     `json:"repo,omitempty"`
	State       StackState `json:"state"`
	Services    []string   `json:"services"`
}

// CreateStackRequest is the request body for creating a stack.
type CreateStackRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Config      StackConfig `json:"config"`
}
