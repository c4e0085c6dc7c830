package domain

import (
	"slices"
	"time"
)

// Operation names the kind of work an Update records.
type Operation string

const (
	OperationStartStack   Operation = "StartStack"
	OperationRestartStack Operation = "RestartStack"
	OperationPauseStack   Operation = "PauseStack"
	OperationUnpauseStack Operation = "UnpauseStack"
	OperationStopStack    Operation = "StopStack"
	OperationDestroyStack Operation = "DestroyStack"
)

// UpdateStatus is the progress of an Update.
type UpdateStatus string

const (
	UpdateStatusInProgress UpdateStatus = "InProgress"
	UpdateStatusComplete   UpdateStatus = "Complete"
)

// Log is one stage of output recorded on an Update.
type Log struct {
	Stage     string    `json:"stage" db:"stage"`
	Command   string    `json:"command" db:"command"`
	Stdout    string    `json:"stdout" db:"stdout"`
	Stderr    string    `json:"stderr" db:"stderr"`
	Success   bool      `json:"success" db:"success"`
	StartedAt time.Time `json:"start_ts" db:"started_at"`
	EndedAt   time.Time `json:"end_ts" db:"ended_at"`
}

// SimpleLog is a successful informational log with no command.
func SimpleLog(stage, msg string) Log {
	now := time.Now()
	return Log{Stage: stage, Stdout: msg, Success: true, StartedAt: now, EndedAt: now}
}

// ErrorLog records a failure as a log stage.
func ErrorLog(stage string, err error) Log {
	now := time.Now()
	return Log{Stage: stage, Stderr: err.Error(), Success: false, StartedAt: now, EndedAt: now}
}

// Update is the audit record of one executed operation.
// It is immutable once its status is Complete.
type Update struct {
	ID        string         `json:"id"`
	Operation Operation      `json:"operation"`
	Target    ResourceTarget `json:"target"`
	Operator  string         `json:"operator"`
	StartedAt time.Time      `json:"start_ts"`
	EndedAt   *time.Time     `json:"end_ts,omitempty"`
	Status    UpdateStatus   `json:"status"`
	Success   bool           `json:"success"`
	Logs      []Log          `json:"logs"`
}

// Clone returns a deep copy of the update.
func (u *Update) Clone() *Update {
	c := *u
	c.Logs = slices.Clone(u.Logs)
	if u.EndedAt != nil {
		end := *u.EndedAt
		c.EndedAt = &end
	}
	return &c
}

// Finalized reports whether the update has been finalized.
func (u *Update) Finalized() bool {
	return u.Status == UpdateStatusComplete
}

// PushLog appends a log stage. Finalized updates are left untouched.
func (u *Update) PushLog(l Log) bool {
	if u.Finalized() {
		return false
	}
	u.Logs = append(u.Logs, l)
	return true
}

// Finalize sets the end time and aggregate success. It only takes effect once.
func (u *Update) Finalize() {
	if u.Finalized() {
		return
	}
	now := time.Now()
	u.EndedAt = &now
	u.Status = UpdateStatusComplete
	u.Success = true
	for _, l := range u.Logs {
		if !l.Success {
			u.Success = false
			break
		}
	}
}

// UpdateListItem is the summary row returned by ListUpdates.
type UpdateListItem struct {
	ID        string         `json:"id"`
	Operation Operation      `json:"operation"`
	Target    ResourceTarget `json:"target"`
	Operator  string         `json:"operator"`
	StartedAt time.Time      `json:"start_ts"`
	Status    UpdateStatus   `json:"status"`
	Success   bool           `json:"success"`
}

// UpdateQuery filters the update listing.
type UpdateQuery struct {
	Target *ResourceTarget
	Limit  int
	Offset int
}
