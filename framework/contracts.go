package framework

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Exports map[string]interface{}

type Module struct {
	Specifier string
	Exports   Exports
}

func (m *Module) Export(name string) (interface{}, bool) {
	if m == nil || m.Exports == nil {
		return nil, false
	}

	value, ok := m.Exports[name]
	return value, ok
}

type ModuleLoader interface {
	Import(ctx context.Context, specifier string) (*Module, error)
}

type Loader func(ctx context.Context) (*Module, error)

type Route struct {
	Pattern string
	Load    Loader
}

type LocationSource interface {
	Fragment() string
}

type DispatchState string

const (
	DispatchStateAwaitingLayout DispatchState = "awaiting_layout"
	DispatchStateDispatched     DispatchState = "dispatched"
)

var errNilModuleLoader = errors.New("module loader is nil")

func Import(loader ModuleLoader, specifier string) Loader {
	specifier = strings.TrimSpace(specifier)
	return func(ctx context.Context) (*Module, error) {
		if loader == nil {
			return nil, errNilModuleLoader
		}
		return loader.Import(ctx, specifier)
	}
}

type LoadError struct {
	DispatchID string
	Fragment   string
	Pattern    string
	Err        error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load route %q for fragment %q: %v", e.Pattern, e.Fragment, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
