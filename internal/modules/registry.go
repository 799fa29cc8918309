// Package modules provides an in-process module map: page code registers
// under a specifier and is evaluated lazily on first import.
package modules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pageshell/framework"
	"golang.org/x/sync/singleflight"
)

var ErrModuleNotFound = errors.New("module not found")

// Init evaluates a module body and returns its exports.
type Init func(ctx context.Context) (framework.Exports, error)

type Registry struct {
	mu          sync.RWMutex
	definitions map[string]Init
	evaluated   map[string]*framework.Module

	inflight singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]Init),
		evaluated:   make(map[string]*framework.Module),
	}
}

func (r *Registry) Register(specifier string, evaluate Init) error {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return errors.New("module specifier cannot be empty")
	}
	if evaluate == nil {
		return fmt.Errorf("module %q: init is required", specifier)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[specifier]; ok {
		return fmt.Errorf("module %q already registered", specifier)
	}
	r.definitions[specifier] = evaluate
	return nil
}

// Import evaluates the module once and returns the cached namespace on later
// calls. Concurrent first imports share one evaluation. Failed evaluations
// are not cached.
func (r *Registry) Import(ctx context.Context, specifier string) (*framework.Module, error) {
	r.mu.RLock()
	if module, ok := r.evaluated[specifier]; ok {
		r.mu.RUnlock()
		return module, nil
	}
	evaluate, ok := r.definitions[specifier]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("import %q: %w", specifier, ErrModuleNotFound)
	}

	value, err, _ := r.inflight.Do(specifier, func() (interface{}, error) {
		r.mu.RLock()
		cached, ok := r.evaluated[specifier]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		exports, err := evaluate(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", specifier, err)
		}
		if exports == nil {
			exports = framework.Exports{}
		}

		module := &framework.Module{Specifier: specifier, Exports: exports}
		r.mu.Lock()
		r.evaluated[specifier] = module
		r.mu.Unlock()
		return module, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*framework.Module), nil
}

func (r *Registry) Specifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specifiers := make([]string, 0, len(r.definitions))
	for specifier := range r.definitions {
		specifiers = append(specifiers, specifier)
	}
	sort.Strings(specifiers)
	return specifiers
}

func (r *Registry) Evaluated(specifier string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.evaluated[specifier]
	return ok
}
