package agent

import "github.com/bcnelson/stackplane/internal/domain"

const (
	projectLabel = "com.docker.compose.project"
	serviceLabel = "com.docker.compose.service"
)

// ContainerProject returns the compose project a container belongs to.
func ContainerProject(c domain.ContainerSummary) string {
	if c.Project != "" {
		return c.Project
	}
	return c.Labels[projectLabel]
}

// ContainerService returns the compose service a container runs.
func ContainerService(c domain.ContainerSummary) string {
	if c.Service != "" {
		return c.Service
	}
	return c.Labels[serviceLabel]
}

// ProjectContainers filters containers to those of one compose project.
func ProjectContainers(containers []domain.ContainerSummary, project string) []domain.ContainerSummary {
	var out []domain.ContainerSummary
	for _, c := range containers {
		if ContainerProject(c) == project {
			out = append(out, c)
		}
	}
	return out
}

var containerStates = map[string]domain.StackState{
	"running":    domain.StackStateRunning,
	"paused":     domain.StackStatePaused,
	"exited":     domain.StackStateStopped,
	"created":    domain.StackStateCreated,
	"restarting": domain.StackStateRestarting,
	"dead":       domain.StackStateDead,
	"removing":   domain.StackStateRemoving,
}

// DeriveState computes a stack state from its project's containers.
// No containers is down; containers that all share one state map to that
// state; anything else is unhealthy.
func DeriveState(containers []domain.ContainerSummary) domain.StackState {
	if len(containers) == 0 {
		return domain.StackStateDown
	}
	first := containers[0].State
	for _, c := range containers[1:] {
		if c.State != first {
			return domain.StackStateUnhealthy
		}
	}
	if state, ok := containerStates[first]; ok {
		return state
	}
	return domain.StackStateUnhealthy
}
