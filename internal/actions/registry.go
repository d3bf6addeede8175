// internal/actions/registry.go
package actions

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// Registry is the closed set of action types the decision loop can dispatch
// to. Three sources populate it: built-in defaults, caller-supplied custom
// actions, and actions discovered from connected tool servers.
type Registry struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	actions map[string]Action
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:  logger.Named("actions"),
		actions: make(map[string]Action),
	}
}

// NewDefaultRegistry creates a registry pre-populated with the built-in
// action set, including the reserved complete action.
func NewDefaultRegistry(logger *zap.Logger) *Registry {
	r := NewRegistry(logger)
	for _, a := range builtinActions() {
		// Built-in names are unique by construction.
		r.actions[a.Name()] = a
	}
	return r
}

// Register adds one action type. Registering a duplicate name fails and
// leaves the registry unchanged.
func (r *Registry) Register(a Action) error {
	if a == nil || a.Name() == "" {
		return fmt.Errorf("cannot register an unnamed action")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.actions[a.Name()]; exists {
		return fmt.Errorf("action type %q is already registered", a.Name())
	}
	r.actions[a.Name()] = a
	r.logger.Debug("Action registered.", zap.String("action", a.Name()))
	return nil
}

// RegisterBatch transactionally registers every action from one source
// (typically a tool server). All entries are staged; if any one fails the
// staged subset is rolled back and the original error returned, so partial
// registration is never observable.
func (r *Registry) RegisterBatch(source string, acts []Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make([]string, 0, len(acts))
	for _, a := range acts {
		if a == nil || a.Name() == "" {
			r.rollbackLocked(staged)
			return fmt.Errorf("source %q supplied an unnamed action", source)
		}
		if _, exists := r.actions[a.Name()]; exists {
			err := fmt.Errorf("action type %q from source %q is already registered", a.Name(), source)
			r.rollbackLocked(staged)
			return err
		}
		r.actions[a.Name()] = a
		staged = append(staged, a.Name())
	}

	r.logger.Info("Registered action batch.", zap.String("source", source), zap.Int("count", len(staged)))
	return nil
}

func (r *Registry) rollbackLocked(staged []string) {
	for _, name := range staged {
		delete(r.actions, name)
	}
}

// Unregister removes one action type by name. Removing an absent type is a
// no-op, so disconnect cleanup can run unconditionally.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, name)
}

// UnregisterAll removes a set of action types, used in bulk when a tool
// server disconnects.
func (r *Registry) UnregisterAll(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		delete(r.actions, name)
	}
}

// Get returns the action registered under name.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Schemas returns the declared schema of every registered action, sorted by
// name, for inclusion in the model prompt.
func (r *Registry) Schemas() []schemas.ActionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]schemas.ActionSchema, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, schemas.ActionSchema{
			Name:        a.Name(),
			Description: a.Description(),
			Parameters:  a.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports how many action types are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
