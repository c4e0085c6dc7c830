package domain

import (
	"encoding/json"
	"time"
)

// SeverityLevel grades an alert.
type SeverityLevel string

const (
	SeverityOk       SeverityLevel = "OK"
	SeverityWarning  SeverityLevel = "WARNING"
	SeverityCritical SeverityLevel = "CRITICAL"
)

// Alert is a raised condition on a resource. Delivery happens elsewhere.
type Alert struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"ts"`
	Resolved   bool            `json:"resolved"`
	ResolvedAt *time.Time      `json:"resolved_ts,omitempty"`
	Level      SeverityLevel   `json:"level"`
	Target     ResourceTarget  `json:"target"`
	Variant    string          `json:"variant"`
	Data       json.RawMessage `json:"data,omitempty"`
}
