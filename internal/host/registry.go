package host

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/rowclaim/internal/datasource"
	"github.com/roach88/rowclaim/internal/trigger"
)

// Task is a runnable, serializable deferred activation.
type Task interface {
	Run(ctx context.Context) (trigger.Event, error)
	Serialize() (string, map[string]any)
}

// Factory rebuilds a fresh Task from serialized parameters. activationID
// identifies the host-side attempt and logger is scoped to it.
type Factory func(params map[string]any, activationID string, logger *slog.Logger) (Task, error)

// Registry maps type identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a type identifier twice is an error.
func (r *Registry) Register(typeID string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[typeID]; ok {
		return fmt.Errorf("type %q already registered", typeID)
	}
	r.factories[typeID] = f
	return nil
}

// Build rebuilds a task of the given type.
func (r *Registry) Build(typeID string, params map[string]any, activationID string, logger *slog.Logger) (Task, error) {
	r.mu.RLock()
	f, ok := r.factories[typeID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown trigger type %q", typeID)
	}
	return f(params, activationID, logger)
}

// Types returns the registered type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry registers the record-claim trigger against connector.
// Extra options apply to every rebuilt trigger, e.g. a test sleeper.
func DefaultRegistry(connector datasource.Connector, opts ...trigger.Option) *Registry {
	r := NewRegistry()
	_ = r.Register(trigger.TypeID, func(params map[string]any, activationID string, logger *slog.Logger) (Task, error) {
		all := append([]trigger.Option{
			trigger.WithActivationID(activationID),
			trigger.WithLogger(logger),
		}, opts...)
		return trigger.FromParams(params, connector, all...)
	})
	return r
}
