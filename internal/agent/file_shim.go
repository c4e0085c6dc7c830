package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bcnelson/stackplane/internal/domain"
)

// FileShim is an agent stand-in that keeps container state in a JSON file
// keyed by server name. Compose commands change container states the way
// docker compose would. Useful for local runs without real agents.
type FileShim struct {
	filePath string
	mu       sync.Mutex
}

// Ensure FileShim implements Client.
var _ Client = (*FileShim)(nil)

// NewFileShim creates a new file-based shim.
func NewFileShim(filePath string) *FileShim {
	return &FileShim{filePath: filePath}
}

type shimState map[string][]domain.ContainerSummary

func (f *FileShim) load() (shimState, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return shimState{}, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	state := shimState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	return state, nil
}

func (f *FileShim) save(state shimState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}
	return nil
}

// Seed replaces the containers recorded for a server.
func (f *FileShim) Seed(serverName string, containers []domain.ContainerSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return err
	}
	state[serverName] = containers
	return f.save(state)
}

func (f *FileShim) ComposeExecution(ctx context.Context, server *domain.Server, project, command string) (*domain.Log, error) {
	if !server.Enabled {
		return nil, fmt.Errorf("%w: server %s is disabled", domain.ErrRemoteUnavailable, server.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteFailure, err)
	}

	keyword, service := parseShimCommand(command)
	log := &domain.Log{
		Stage:     "Compose " + keyword,
		Command:   fmt.Sprintf("docker compose -p %s %s", project, command),
		Success:   true,
		StartedAt: time.Now(),
	}

	var kept []domain.ContainerSummary
	var touched int
	for _, c := range state[server.Name] {
		if ContainerProject(c) != project || (service != "" && ContainerService(c) != service) {
			kept = append(kept, c)
			continue
		}
		touched++
		switch keyword {
		case "start", "restart":
			c.State = "running"
		case "pause":
			if c.State == "running" {
				c.State = "paused"
			}
		case "unpause":
			if c.State == "paused" {
				c.State = "running"
			}
		case "stop":
			c.State = "exited"
		case "down":
			continue
		default:
			log.Success = false
		}
		kept = append(kept, c)
	}
	state[server.Name] = kept

	if !log.Success {
		log.Stderr = fmt.Sprintf("unknown compose command %q", keyword)
	} else {
		log.Stdout = fmt.Sprintf("%s: %d container(s)", keyword, touched)
		if err := f.save(state); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRemoteFailure, err)
		}
	}
	log.EndedAt = time.Now()

	slog.Debug("file shim compose execution", "server", server.Name, "project", project, "command", command)
	return log, nil
}

func (f *FileShim) ListContainers(ctx context.Context, server *domain.Server) ([]domain.ContainerSummary, error) {
	if !server.Enabled {
		return nil, fmt.Errorf("%w: server %s is disabled", domain.ErrRemoteUnavailable, server.Name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteFailure, err)
	}
	return state[server.Name], nil
}

func (f *FileShim) GetComposeServiceLog(ctx context.Context, server *domain.Server, req LogRequest) (*domain.Log, error) {
	return f.serviceLog(server, "get service log", req.Project, req.Service)
}

func (f *FileShim) SearchComposeServiceLog(ctx context.Context, server *domain.Server, req SearchLogRequest) (*domain.Log, error) {
	return f.serviceLog(server, "search service log", req.Project, req.Service)
}

func (f *FileShim) serviceLog(server *domain.Server, stage, project, service string) (*domain.Log, error) {
	if !server.Enabled {
		return nil, fmt.Errorf("%w: server %s is disabled", domain.ErrRemoteUnavailable, server.Name)
	}
	now := time.Now()
	return &domain.Log{
		Stage:     stage,
		Command:   fmt.Sprintf("docker compose -p %s logs %s", project, service),
		Success:   true,
		StartedAt: now,
		EndedAt:   now,
	}, nil
}

// parseShimCommand extracts the keyword and the trailing service, if any.
func parseShimCommand(command string) (keyword, service string) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", ""
	}
	keyword = fields[0]
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "--timeout":
			i++
		case "--remove-orphans":
		default:
			service = fields[i]
		}
	}
	return keyword, service
}
