package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNotRegistered reports a lookup for a game code no engine claims.
	ErrNotRegistered = errors.New("engine: not registered")
	// ErrDuplicateEngine reports a second registration under one game code.
	ErrDuplicateEngine = errors.New("engine: duplicate registration")
)

// Registry holds the concrete engines a host serves, keyed by certified
// game code. Registration validates Info once so lookups can trust it.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register adds an engine under its Info code.
func (r *Registry) Register(e Engine) error {
	info := e.Info()
	if err := info.Validate(); err != nil {
		return fmt.Errorf("engine: register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.engines[info.Code]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEngine, info.Code)
	}
	r.engines[info.Code] = e
	return nil
}

// Get returns the engine registered under code.
func (r *Registry) Get(code string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, code)
	}
	return e, nil
}

// Codes returns the registered game codes in sorted order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.engines))
	for code := range r.engines {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
