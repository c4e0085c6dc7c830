package domain

import "time"

// Server is a managed host reachable through its agent.
type Server struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"` // Agent base URL
	Passkey   string    `json:"-" db:"passkey"`       // Overrides the default agent passkey when set
	Region    string    `json:"region" db:"region"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Target returns the resource target addressing this server.
func (s *Server) Target() ResourceTarget {
	return ResourceTarget{Type: ResourceTypeServer, ID: s.ID}
}

// CreateServerRequest is the request body for creating a server.
type CreateServerRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Passkey string `json:"passkey,omitempty"`
	Region  string `json:"region,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}
