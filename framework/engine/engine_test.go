package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pageshell/framework"
	"pageshell/framework/pattern"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/dlclark/regexp2.runClock"))
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

func (l *callLog) count(call string) int {
	total := 0
	for _, c := range l.snapshot() {
		if c == call {
			total++
		}
	}
	return total
}

func recordingLoader(log *callLog, name string) framework.Loader {
	return func(context.Context) (*framework.Module, error) {
		log.add(name)
		return &framework.Module{Specifier: name}, nil
	}
}

type staticLocation string

func (s staticLocation) Fragment() string { return string(s) }

type recordingLocation struct {
	log      *callLog
	fragment string
}

func (l recordingLocation) Fragment() string {
	l.log.add("location")
	return l.fragment
}

func pageRoutes(log *callLog) []framework.Route {
	return []framework.Route{
		{Pattern: "/info.html", Load: recordingLoader(log, "info")},
		{Pattern: "/(.*)", Load: recordingLoader(log, "default")},
	}
}

func readyLayout(context.Context) (*framework.Module, error) {
	return &framework.Module{Specifier: "layout"}, nil
}

func mustStart(t *testing.T, routeEngine *Engine, ctx context.Context, fragment string) *Dispatch {
	t.Helper()
	dispatch, err := routeEngine.Start(ctx, readyLayout, staticLocation(fragment))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return dispatch
}

func waitDispatch(t *testing.T, dispatch *Dispatch) *framework.Module {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	module, err := dispatch.Wait(ctx)
	if err != nil {
		t.Fatalf("wait dispatch: %v", err)
	}
	return module
}

func TestDispatchPageRoutes(t *testing.T) {
	tests := []struct {
		name         string
		fragment     string
		expectedCall string
		unexpected   string
	}{
		{name: "info page", fragment: "/info.html", expectedCall: "info", unexpected: "default"},
		{name: "info with extra segment", fragment: "/info.html/extra", expectedCall: "default", unexpected: "info"},
		{name: "empty fragment", fragment: "", expectedCall: "default", unexpected: "info"},
		{name: "other page", fragment: "/other/page", expectedCall: "default", unexpected: "info"},
		{name: "info trailing slash", fragment: "/info.html/", expectedCall: "default", unexpected: "info"},
		{name: "info different case", fragment: "/INFO.html", expectedCall: "default", unexpected: "info"},
		{name: "no leading slash", fragment: "abc", expectedCall: "default", unexpected: "info"},
		{name: "info without leading slash", fragment: "info.html", expectedCall: "default", unexpected: "info"},
		{name: "query only", fragment: "?q=1", expectedCall: "default", unexpected: "info"},
		{name: "info with query", fragment: "/info.html?q=1", expectedCall: "default", unexpected: "info"},
		{name: "info with nested hash", fragment: "/info.html#top", expectedCall: "default", unexpected: "info"},
		{name: "nested hash only", fragment: "#/info.html", expectedCall: "default", unexpected: "info"},
		{name: "root", fragment: "/", expectedCall: "default", unexpected: "info"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			log := &callLog{}
			routeEngine, err := New(Config{Routes: pageRoutes(log)})
			if err != nil {
				t.Fatalf("new engine: %v", err)
			}

			dispatch := mustStart(t, routeEngine, context.Background(), tc.fragment)
			if !dispatch.Matched {
				t.Fatalf("expected fragment %q to match", tc.fragment)
			}
			module := waitDispatch(t, dispatch)
			if module == nil || module.Specifier != tc.expectedCall {
				t.Fatalf("expected module %q, got %+v", tc.expectedCall, module)
			}

			if got := log.count(tc.expectedCall); got != 1 {
				t.Fatalf("expected %s loader called once, got %d", tc.expectedCall, got)
			}
			if got := log.count(tc.unexpected); got != 0 {
				t.Fatalf("did not expect %s loader, got %d calls", tc.unexpected, got)
			}
		})
	}
}

func TestDispatchFirstDeclaredRouteWins(t *testing.T) {
	log := &callLog{}
	routeEngine, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/(.*)", Load: recordingLoader(log, "first")},
			{Pattern: "/info.html", Load: recordingLoader(log, "second")},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch := mustStart(t, routeEngine, context.Background(), "/info.html")
	waitDispatch(t, dispatch)

	if dispatch.Pattern != "/(.*)" {
		t.Fatalf("expected first route pattern, got %q", dispatch.Pattern)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] != "first" {
		t.Fatalf("expected only first loader, got %v", got)
	}
}

func TestDispatchWithoutRoutesIsNoop(t *testing.T) {
	unhandledCalled := false
	routeEngine, err := New(Config{
		HandleUnhandledLoad: func(*framework.LoadError) { unhandledCalled = true },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch := mustStart(t, routeEngine, context.Background(), "/anything")
	if dispatch.Matched {
		t.Fatal("did not expect a match without routes")
	}
	select {
	case <-dispatch.Done():
	default:
		t.Fatal("expected unmatched dispatch to be settled")
	}

	module, err := dispatch.Wait(context.Background())
	if module != nil || err != nil {
		t.Fatalf("expected nil module and error, got %+v, %v", module, err)
	}
	if unhandledCalled {
		t.Fatal("did not expect unhandled load callback")
	}
	if routeEngine.State() != framework.DispatchStateDispatched {
		t.Fatalf("expected state %q, got %q", framework.DispatchStateDispatched, routeEngine.State())
	}
}

func TestDispatchCapturesParams(t *testing.T) {
	log := &callLog{}
	routeEngine, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/note/[slug]", Load: recordingLoader(log, "note")},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch := mustStart(t, routeEngine, context.Background(), "/note/hello-world")
	waitDispatch(t, dispatch)
	if dispatch.Params["slug"] != "hello-world" {
		t.Fatalf("expected slug param, got %v", dispatch.Params)
	}
}

func TestStartAwaitsLayoutBeforeRouting(t *testing.T) {
	log := &callLog{}
	release := make(chan struct{})
	layout := func(context.Context) (*framework.Module, error) {
		log.add("layout:start")
		<-release
		log.add("layout:done")
		return &framework.Module{Specifier: "layout"}, nil
	}

	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	started := make(chan *Dispatch, 1)
	go func() {
		dispatch, err := routeEngine.Start(
			context.Background(),
			layout,
			recordingLocation{log: log, fragment: "/info.html"},
		)
		if err != nil {
			t.Errorf("start: %v", err)
		}
		started <- dispatch
	}()

	time.Sleep(20 * time.Millisecond)
	if state := routeEngine.State(); state != framework.DispatchStateAwaitingLayout {
		t.Fatalf("expected state %q while layout pending, got %q", framework.DispatchStateAwaitingLayout, state)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] != "layout:start" {
		t.Fatalf("expected only layout start before release, got %v", got)
	}

	close(release)
	dispatch := <-started
	if dispatch == nil {
		t.Fatal("expected dispatch handle")
	}
	waitDispatch(t, dispatch)

	expected := []string{"layout:start", "layout:done", "location", "info"}
	got := log.snapshot()
	if len(got) != len(expected) {
		t.Fatalf("expected call sequence %v, got %v", expected, got)
	}
	for idx := range expected {
		if got[idx] != expected[idx] {
			t.Fatalf("expected call sequence %v, got %v", expected, got)
		}
	}
}

func TestStartLayoutFailureSkipsRouting(t *testing.T) {
	log := &callLog{}
	errLayout := errors.New("chunk fetch failed")

	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch, err := routeEngine.Start(
		context.Background(),
		func(context.Context) (*framework.Module, error) { return nil, errLayout },
		recordingLocation{log: log, fragment: "/info.html"},
	)
	if dispatch != nil {
		t.Fatalf("did not expect dispatch handle, got %+v", dispatch)
	}
	if !errors.Is(err, ErrLayoutFailed) || !errors.Is(err, errLayout) {
		t.Fatalf("expected layout failure wrapping cause, got %v", err)
	}
	if got := log.snapshot(); len(got) != 0 {
		t.Fatalf("expected no routing calls, got %v", got)
	}
	if routeEngine.State() != framework.DispatchStateAwaitingLayout {
		t.Fatalf("expected engine to stay awaiting layout, got %q", routeEngine.State())
	}
}

func TestLoaderFailureGoesToUnhandledHandler(t *testing.T) {
	errBoom := errors.New("network down")
	var reported *framework.LoadError

	routeEngine, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/(.*)", Load: func(context.Context) (*framework.Module, error) { return nil, errBoom }},
		},
		HandleUnhandledLoad: func(err *framework.LoadError) { reported = err },
		NewDispatchID:       func() string { return "dispatch-1" },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch := mustStart(t, routeEngine, context.Background(), "/broken")
	_, waitErr := dispatch.Wait(context.Background())
	if !errors.Is(waitErr, errBoom) {
		t.Fatalf("expected wait error wrapping cause, got %v", waitErr)
	}
	if reported == nil {
		t.Fatal("expected unhandled load callback")
	}
	if reported.DispatchID != "dispatch-1" || reported.Pattern != "/(.*)" || reported.Fragment != "/broken" {
		t.Fatalf("unexpected load error context: %+v", reported)
	}
}

func TestDispatchDoesNotWaitForLoad(t *testing.T) {
	release := make(chan struct{})
	routeEngine, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/(.*)", Load: func(context.Context) (*framework.Module, error) {
				<-release
				return &framework.Module{Specifier: "slow"}, nil
			}},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch := mustStart(t, routeEngine, context.Background(), "/slow")
	select {
	case <-dispatch.Done():
		t.Fatal("expected load to still be in flight")
	default:
	}

	close(release)
	if module := waitDispatch(t, dispatch); module.Specifier != "slow" {
		t.Fatalf("expected slow module, got %+v", module)
	}
}

func TestLoadOutlivesCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	loadCtxErr := make(chan error, 1)
	routeEngine, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/(.*)", Load: func(ctx context.Context) (*framework.Module, error) {
				<-release
				loadCtxErr <- ctx.Err()
				return &framework.Module{Specifier: "page"}, nil
			}},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatch := mustStart(t, routeEngine, ctx, "/page")
	cancel()
	close(release)

	waitDispatch(t, dispatch)
	if err := <-loadCtxErr; err != nil {
		t.Fatalf("expected load context to survive caller cancellation, got %v", err)
	}
}

func TestNewRejectsMalformedPattern(t *testing.T) {
	log := &callLog{}
	_, err := New(Config{
		Routes: []framework.Route{
			{Pattern: "/info.html", Load: recordingLoader(log, "info")},
			{Pattern: "/(.*", Load: recordingLoader(log, "broken")},
		},
	})
	if !errors.Is(err, pattern.ErrInvalidPattern) {
		t.Fatalf("expected invalid pattern error, got %v", err)
	}
}

func TestNewRejectsMissingLoader(t *testing.T) {
	if _, err := New(Config{Routes: []framework.Route{{Pattern: "/"}}}); err == nil {
		t.Fatal("expected missing loader error")
	}
}

func TestRoutesPreserveDeclarationOrder(t *testing.T) {
	routeEngine, err := New(Config{Routes: pageRoutes(&callLog{})})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	routes := routeEngine.Routes()
	if len(routes) != 2 || routes[0] != "/info.html" || routes[1] != "/(.*)" {
		t.Fatalf("unexpected route order: %v", routes)
	}
}

func TestStartWithStaticLocation(t *testing.T) {
	log := &callLog{}
	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	dispatch, err := routeEngine.Start(context.Background(), recordingLoader(log, "layout"), staticLocation("/other/page"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDispatch(t, dispatch)

	if got := log.snapshot(); len(got) != 2 || got[0] != "layout" || got[1] != "default" {
		t.Fatalf("expected layout then default, got %v", got)
	}
}

func TestStartDispatchesOnce(t *testing.T) {
	log := &callLog{}
	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	first := mustStart(t, routeEngine, context.Background(), "/info.html")
	waitDispatch(t, first)

	second, err := routeEngine.Start(context.Background(), recordingLoader(log, "layout"), staticLocation("/info.html"))
	if !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected already started error, got %v", err)
	}
	if second != nil {
		t.Fatalf("did not expect a second dispatch, got %+v", second)
	}
	if got := log.snapshot(); len(got) != 1 || got[0] != "info" {
		t.Fatalf("expected a single info load, got %v", got)
	}
}

func TestStartRejectsConcurrentStart(t *testing.T) {
	log := &callLog{}
	entered := make(chan struct{})
	release := make(chan struct{})
	layout := func(context.Context) (*framework.Module, error) {
		close(entered)
		<-release
		return &framework.Module{Specifier: "layout"}, nil
	}

	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	started := make(chan *Dispatch, 1)
	go func() {
		dispatch, err := routeEngine.Start(context.Background(), layout, staticLocation("/other"))
		if err != nil {
			t.Errorf("start: %v", err)
		}
		started <- dispatch
	}()
	<-entered

	if _, err := routeEngine.Start(context.Background(), readyLayout, staticLocation("/info.html")); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected concurrent start to be rejected, got %v", err)
	}

	close(release)
	waitDispatch(t, <-started)
	if got := log.snapshot(); len(got) != 1 || got[0] != "default" {
		t.Fatalf("expected only the first start to load, got %v", got)
	}
}

func TestStartRetriesAfterLayoutFailure(t *testing.T) {
	log := &callLog{}
	routeEngine, err := New(Config{Routes: pageRoutes(log)})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, err = routeEngine.Start(
		context.Background(),
		func(context.Context) (*framework.Module, error) { return nil, errors.New("offline") },
		staticLocation("/info.html"),
	)
	if !errors.Is(err, ErrLayoutFailed) {
		t.Fatalf("expected layout failure, got %v", err)
	}

	waitDispatch(t, mustStart(t, routeEngine, context.Background(), "/info.html"))
	if got := log.snapshot(); len(got) != 1 || got[0] != "info" {
		t.Fatalf("expected info load after retry, got %v", got)
	}
}
