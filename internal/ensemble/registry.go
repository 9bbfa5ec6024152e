package ensemble

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Vote is one engine's verdict for one clip.
type Vote struct {
	Engine       string         `json:"engine"`
	HasSubtitles bool           `json:"has_subtitles"`
	Confidence   float64        `json:"confidence"`
	Weight       float64        `json:"weight"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Duration     time.Duration  `json:"duration"`
}

// Engine is the contract every detector backend satisfies.
type Engine interface {
	Detect(ctx context.Context, videoPath string) (Vote, error)
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, videoPath string) (Vote, error)

// Detect calls f.
func (f EngineFunc) Detect(ctx context.Context, videoPath string) (Vote, error) {
	return f(ctx, videoPath)
}

// Member is a registered engine with its fixed voting weight.
type Member struct {
	Name    string
	Weight  float64
	Timeout time.Duration
	Engine  Engine
}

// Registry holds the engines taking part in a vote. Weights need not sum to
// one.
type Registry struct {
	members []Member
	names   map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds m. Empty or duplicate names, weights outside [0,1], and nil
// engines are rejected.
func (r *Registry) Register(m Member) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("register engine: name is required")
	}
	if _, dup := r.names[m.Name]; dup {
		return fmt.Errorf("register engine %q: duplicate name", m.Name)
	}
	if m.Weight < 0 || m.Weight > 1 {
		return fmt.Errorf("register engine %q: weight %v outside [0,1]", m.Name, m.Weight)
	}
	if m.Engine == nil {
		return fmt.Errorf("register engine %q: engine is nil", m.Name)
	}
	if m.Timeout < 0 {
		return fmt.Errorf("register engine %q: negative timeout", m.Name)
	}
	r.names[m.Name] = struct{}{}
	r.members = append(r.members, m)
	return nil
}

// Members returns the registered engines in registration order.
func (r *Registry) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Len returns the number of registered engines.
func (r *Registry) Len() int { return len(r.members) }
