package execute

import (
	"fmt"
	"strings"

	"github.com/bcnelson/stackplane/internal/actionstate"
	"github.com/bcnelson/stackplane/internal/domain"
	"github.com/bcnelson/stackplane/internal/validation"
)

// Kind is a stack lifecycle action.
type Kind int

const (
	Start Kind = iota
	Restart
	Pause
	Unpause
	Stop
	Destroy
)

type kindInfo struct {
	keyword   string
	flag      actionstate.Flag
	operation domain.Operation
}

var kinds = map[Kind]kindInfo{
	Start:   {"start", actionstate.Starting, domain.OperationStartStack},
	Restart: {"restart", actionstate.Restarting, domain.OperationRestartStack},
	Pause:   {"pause", actionstate.Pausing, domain.OperationPauseStack},
	Unpause: {"unpause", actionstate.Unpausing, domain.OperationUnpauseStack},
	Stop:    {"stop", actionstate.Stopping, domain.OperationStopStack},
	Destroy: {"down", actionstate.Destroying, domain.OperationDestroyStack},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.keyword
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Action is one requested lifecycle action with its extras.
type Action struct {
	Kind Kind
	// Service limits the action to one compose service.
	Service string
	// Timeout is forwarded as --timeout for Stop and Destroy.
	Timeout *int
	// RemoveOrphans is forwarded as --remove-orphans for Destroy.
	RemoveOrphans bool
}

// Validate checks the action before any lookup or remote call.
func (a Action) Validate() error {
	if _, ok := kinds[a.Kind]; !ok {
		return fmt.Errorf("%w: unknown action %d", domain.ErrInvalidInput, int(a.Kind))
	}
	if a.Service != "" {
		if err := validation.ValidateServiceName(a.Service); err != nil {
			return err
		}
	}
	if a.Timeout != nil {
		if err := validation.ValidateTimeout(*a.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// Command builds the compose arguments in the order the agent expects:
// keyword, timeout, orphan removal, service.
func (a Action) Command() string {
	var b strings.Builder
	b.WriteString(kinds[a.Kind].keyword)
	if a.Timeout != nil && (a.Kind == Stop || a.Kind == Destroy) {
		fmt.Fprintf(&b, " --timeout %d", *a.Timeout)
	}
	if a.RemoveOrphans && a.Kind == Destroy {
		b.WriteString(" --remove-orphans")
	}
	if a.Service != "" {
		b.WriteString(" " + a.Service)
	}
	return b.String()
}

// Flag is the action-state flag held while the action runs.
func (a Action) Flag() actionstate.Flag {
	return kinds[a.Kind].flag
}

// Operation names the action on its Update record.
func (a Action) Operation() domain.Operation {
	return kinds[a.Kind].operation
}

// Stage names the log segment recording the compose command.
func (a Action) Stage() string {
	return "Compose " + strings.ToUpper(a.Kind.String()[:1]) + a.Kind.String()[1:]
}
