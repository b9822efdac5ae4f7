// Package hooks provides a priority-ordered registry of observers that the
// kernel runs after each processed event.
package hooks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Hook observes a value of type T. A returned error is collected but never
// stops the remaining hooks from running.
type Hook[T any] func(v T) error

// HookInfo is a registered hook and its ordering.
type HookInfo[T any] struct {
	Name     string
	Hook     Hook[T]
	Priority int64 // lower runs first, like Unix nice
}

// Registry holds hooks for one value type.
type Registry[T any] struct {
	mu    sync.RWMutex
	hooks []HookInfo[T]
}

// NewRegistry creates an empty registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{}
}

// Register adds a hook with priority 0.
func (r *Registry[T]) Register(name string, hook Hook[T]) {
	r.RegisterWithPriority(name, hook, 0)
}

// RegisterWithPriority adds a hook. Hooks of equal priority run in
// registration order.
func (r *Registry[T]) RegisterWithPriority(name string, hook Hook[T], priority int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, HookInfo[T]{Name: name, Hook: hook, Priority: priority})
	sort.SliceStable(r.hooks, func(i, j int) bool {
		return r.hooks[i].Priority < r.hooks[j].Priority
	})
}

// Run calls every hook with v. Panics are recovered and reported as errors;
// all failures are joined into the returned error.
func (r *Registry[T]) Run(v T) error {
	r.mu.RLock()
	hooks := make([]HookInfo[T], len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	var errs []error
	for _, info := range hooks {
		if err := call(info, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call[T any](info HookInfo[T], v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook %s: panic: %v", info.Name, p)
		}
	}()
	if err := info.Hook(v); err != nil {
		return fmt.Errorf("hook %s: %w", info.Name, err)
	}
	return nil
}

// Names lists registered hooks in run order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.hooks))
	for i, h := range r.hooks {
		names[i] = h.Name
	}
	return names
}

// Clear removes all hooks.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = nil
}

// Count returns the number of registered hooks.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.hooks)
}
