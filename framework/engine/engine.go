package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"pageshell/framework"
	"pageshell/framework/pattern"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrLayoutFailed   = errors.New("base layout failed to load")
	ErrAlreadyStarted = errors.New("engine already started")
)

var errNilLayoutLoader = errors.New("layout loader is required")

type Config struct {
	Routes []framework.Route

	// HandleUnhandledLoad receives loader failures that nothing else
	// observes. Defaults to logging at error level.
	HandleUnhandledLoad func(err *framework.LoadError)

	// NewDispatchID defaults to a random UUID.
	NewDispatchID func() string

	Logger *zap.Logger
}

type compiledRoute struct {
	pattern string
	matcher *pattern.Matcher
	load    framework.Loader
}

type Engine struct {
	routes []compiledRoute

	unhandled func(err *framework.LoadError)
	newID     func() string
	logger    *zap.Logger

	mu       sync.Mutex
	state    framework.DispatchState
	starting bool
}

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	routes := make([]compiledRoute, 0, len(cfg.Routes))
	for idx, route := range cfg.Routes {
		if route.Load == nil {
			return nil, fmt.Errorf("route %d %q: loader is required", idx, route.Pattern)
		}
		matcher, err := pattern.Compile(route.Pattern)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", idx, err)
		}
		routes = append(routes, compiledRoute{
			pattern: route.Pattern,
			matcher: matcher,
			load:    route.Load,
		})
	}

	unhandled := cfg.HandleUnhandledLoad
	if unhandled == nil {
		unhandled = func(err *framework.LoadError) {
			logger.Error("unhandled page load failure",
				zap.String("dispatch_id", err.DispatchID),
				zap.String("fragment", err.Fragment),
				zap.String("pattern", err.Pattern),
				zap.Error(err.Err),
			)
		}
	}

	newID := cfg.NewDispatchID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	return &Engine{
		routes:    routes,
		unhandled: unhandled,
		newID:     newID,
		logger:    logger,
		state:     framework.DispatchStateAwaitingLayout,
	}, nil
}

func (engine *Engine) State() framework.DispatchState {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.state
}

// Start awaits the base layout and only then reads the location and
// dispatches. An engine dispatches at most once: later calls fail with
// ErrAlreadyStarted. A layout failure leaves the engine awaiting its layout,
// evaluates no route and allows Start to be retried.
func (engine *Engine) Start(
	ctx context.Context,
	layout framework.Loader,
	location framework.LocationSource,
) (*Dispatch, error) {
	if layout == nil {
		return nil, errNilLayoutLoader
	}

	engine.mu.Lock()
	if engine.starting || engine.state == framework.DispatchStateDispatched {
		engine.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	engine.starting = true
	engine.mu.Unlock()

	if _, err := layout(ctx); err != nil {
		engine.mu.Lock()
		engine.starting = false
		engine.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrLayoutFailed, err)
	}
	engine.logger.Debug("base layout ready")

	fragment := ""
	if location != nil {
		fragment = location.Fragment()
	}

	return engine.dispatch(ctx, fragment), nil
}

// dispatch tests routes in declaration order and starts the first match's
// loader in the background. It never waits for that load.
func (engine *Engine) dispatch(ctx context.Context, fragment string) *Dispatch {
	engine.mu.Lock()
	engine.state = framework.DispatchStateDispatched
	engine.starting = false
	engine.mu.Unlock()

	dispatch := &Dispatch{
		ID:       engine.newID(),
		Fragment: fragment,
		done:     make(chan struct{}),
	}

	path := routablePath(fragment)
	for _, route := range engine.routes {
		match, ok := route.matcher.Match(path)
		if !ok {
			continue
		}

		dispatch.Matched = true
		dispatch.Pattern = route.pattern
		dispatch.Params = match.Params

		engine.logger.Debug("route matched",
			zap.String("dispatch_id", dispatch.ID),
			zap.String("fragment", fragment),
			zap.String("pattern", route.pattern),
		)

		go engine.load(context.WithoutCancel(ctx), dispatch, route.load)
		return dispatch
	}

	engine.logger.Debug("no route matched",
		zap.String("dispatch_id", dispatch.ID),
		zap.String("fragment", fragment),
	)
	close(dispatch.done)
	return dispatch
}

func (engine *Engine) load(ctx context.Context, dispatch *Dispatch, load framework.Loader) {
	module, err := load(ctx)
	if err != nil {
		loadErr := &framework.LoadError{
			DispatchID: dispatch.ID,
			Fragment:   dispatch.Fragment,
			Pattern:    dispatch.Pattern,
			Err:        err,
		}
		engine.unhandled(loadErr)
		dispatch.finish(nil, loadErr)
		return
	}

	dispatch.finish(module, nil)
}

func (engine *Engine) Routes() []string {
	patterns := make([]string, 0, len(engine.routes))
	for _, route := range engine.routes {
		patterns = append(patterns, route.pattern)
	}
	return patterns
}

// Only fragments starting with "/" are in-page paths. Anything else,
// the empty fragment included, addresses the root of the path space.
func routablePath(fragment string) string {
	if !strings.HasPrefix(fragment, "/") {
		return "/"
	}
	return fragment
}
