// Package resolver dispatches typed RPC requests to their handlers.
//
// Each request type is registered once, together with its response type
// and handler. Handlers receive the authenticated user and enforce their
// own permission requirements; the resolver does no permission checks.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"github.com/bcnelson/stackplane/internal/domain"
)

type entry struct {
	response string
	call     func(ctx context.Context, user *domain.User, params json.RawMessage) (any, error)
}

// Registry maps request type names to handlers.
type Registry struct {
	name    string
	entries map[string]entry
}

// NewRegistry creates an empty registry. name identifies it in errors.
func NewRegistry(name string) *Registry {
	return &Registry{name: name, entries: make(map[string]entry)}
}

// Register binds Req to fn under Req's type name. Registering the same
// request type twice panics.
func Register[Req, Resp any](r *Registry, fn func(ctx context.Context, user *domain.User, req Req) (Resp, error)) {
	name := reflect.TypeFor[Req]().Name()
	if name == "" {
		panic(fmt.Sprintf("resolver %s: request type must be a named type", r.name))
	}
	if _, exists := r.entries[name]; exists {
		panic(fmt.Sprintf("resolver %s: request type %s registered twice", r.name, name))
	}
	r.entries[name] = entry{
		response: reflect.TypeFor[Resp]().String(),
		call: func(ctx context.Context, user *domain.User, params json.RawMessage) (any, error) {
			var req Req
			if trimmed := bytes.TrimSpace(params); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
				dec := json.NewDecoder(bytes.NewReader(trimmed))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&req); err != nil {
					return nil, fmt.Errorf("%w: decoding %s: %v", domain.ErrInvalidInput, name, err)
				}
			}
			return fn(ctx, user, req)
		},
	}
}

// Request is the wire envelope of one RPC call.
type Request struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Resolve decodes params for typ and calls its handler.
func (r *Registry) Resolve(ctx context.Context, user *domain.User, typ string, params json.RawMessage) (any, error) {
	e, ok := r.entries[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unknown %s request type %q", domain.ErrInvalidInput, r.name, typ)
	}
	return e.call(ctx, user, params)
}

// Types maps each registered request type to its response type.
func (r *Registry) Types() map[string]string {
	out := make(map[string]string, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.response
	}
	return out
}

// Names lists the registered request type names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
