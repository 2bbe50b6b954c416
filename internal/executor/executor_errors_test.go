package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/modgraph/internal/module"
)

func failing(err error) module.MockBody {
	return func(context.Context, module.Env) error { return err }
}

func TestExecute_Idempotent(t *testing.T) {
	e, c := newTestEngine(barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImport("barrel", "e", "a", "d")),
	}))
	ctx := context.Background()
	ns1, err := e.Execute(ctx, "entry")
	require.NoError(t, err)
	first := c.Executed()
	ns2, err := e.Execute(ctx, "entry")
	require.NoError(t, err)
	require.Equal(t, first, c.Executed())
	require.Same(t, ns1, ns2)
}

func TestExecute_ErrorRecordedOnceAndReplayed(t *testing.T) {
	boom := errors.New("boom")
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("mid"))},
		"mid":   {Decls: module.MockDecls(module.MockImport("bad"))},
		"bad":   {Body: failing(boom)},
		"other": {Decls: module.MockDecls(module.MockImport("bad"))},
	})
	ctx := context.Background()

	_, err := e.Execute(ctx, "entry")
	var eerr *module.ExecutionError
	require.True(t, errors.As(err, &eerr))
	require.Equal(t, module.Identity("entry"), eerr.Module)
	require.Equal(t, module.Identity("mid"), eerr.Dependency)
	require.ErrorIs(t, err, module.ErrDependencyFailed)
	require.ErrorIs(t, err, boom)

	bad, _ := e.Store().Get("bad")
	require.Equal(t, module.ExecErrored, bad.ExecState())
	recorded := bad.ExecErr()

	_, err = e.Execute(ctx, "bad")
	require.Same(t, recorded, err)

	_, err = e.Execute(ctx, "other")
	require.ErrorIs(t, err, module.ErrDependencyFailed)
	require.True(t, errors.As(err, &eerr))
	require.Equal(t, module.Identity("bad"), eerr.Dependency)

	require.Equal(t, []module.Identity{"bad"}, c.Executed())
	require.Equal(t, module.ExecErrored, execState(t, e, "mid"))
}

func TestExecute_DeferredTriggerFailurePoisonsImporter(t *testing.T) {
	boom := errors.New("boom")
	mods := barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImport("barrel", "a")),
	})
	mods["a"] = &module.MockModule{Decls: module.MockDecls(module.MockExport("a")), Body: failing(boom)}
	e, c := newTestEngine(mods)

	_, err := e.Execute(context.Background(), "entry")
	var eerr *module.ExecutionError
	require.True(t, errors.As(err, &eerr))
	require.Equal(t, module.Identity("entry"), eerr.Module)
	require.Equal(t, module.Identity("a"), eerr.Dependency)
	require.Equal(t, module.ExecExecuted, execState(t, e, "barrel"))
	require.Equal(t, []module.Identity{"b", "d", "barrel", "a"}, c.Executed())

	ns, err := e.Namespace("barrel")
	require.NoError(t, err)
	_, err = ns.Get(context.Background(), "a")
	require.ErrorIs(t, err, boom)
}

func TestExecute_DeferredLoadFailureSurfacesOnAccess(t *testing.T) {
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"m": {Decls: module.MockDecls(module.MockReExportDefer("broken", "x"), module.MockExport("ok")), Body: defines("ok")},
	})
	ctx := context.Background()

	ns, err := e.Execute(ctx, "m")
	require.NoError(t, err)
	require.Equal(t, []module.Identity{"m"}, c.Executed())
	require.Equal(t, []string{"ok", "x"}, ns.Keys())

	v, err := ns.Get(ctx, "ok")
	require.NoError(t, err)
	require.Equal(t, "m.ok", v)

	_, err = ns.Get(ctx, "x")
	var lerr *module.LoadError
	require.True(t, errors.As(err, &lerr))
	require.Equal(t, module.Identity("broken"), lerr.Module)
	require.Equal(t, module.ExecExecuted, execState(t, e, "m"))
}

func TestExecute_LinkErrorAbortsBeforeExecution(t *testing.T) {
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("dep"), module.MockImport("lib", "nope"))},
		"dep":   {},
		"lib":   leaf("yes"),
	})
	_, err := e.Execute(context.Background(), "entry")
	var lerr module.LinkError
	require.True(t, errors.As(err, &lerr))
	require.Len(t, lerr, 1)
	require.Empty(t, c.Executed())
}

func TestExecute_LoadErrorAbortsBeforeExecution(t *testing.T) {
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("dep"), module.MockImport("missing"))},
		"dep":   {},
	})
	_, err := e.Execute(context.Background(), "entry")
	var lerr *module.LoadError
	require.True(t, errors.As(err, &lerr))
	require.Empty(t, c.Executed())
}

func TestExecute_CycleTreatsExecutingAsSatisfied(t *testing.T) {
	var readErr error
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"a": {Decls: module.MockDecls(module.MockImport("b"), module.MockExport("x")), Body: defines("x")},
		"b": {
			Decls: module.MockDecls(module.MockImport("a", "x")),
			Body: func(ctx context.Context, env module.Env) error {
				_, readErr = env.Lookup(ctx, "x")
				return nil
			},
		},
	})
	_, err := e.Execute(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []module.Identity{"b", "a"}, c.Executed())
	require.ErrorIs(t, readErr, module.ErrUninitialized)
}

func TestExecute_ConcurrentCallersRunEachModuleOnce(t *testing.T) {
	e, c := newTestEngine(barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImport("barrel", "e", "a", "d")),
	}))
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(context.Background(), "entry")
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, []module.Identity{"b", "d", "barrel", "a", "e", "entry"}, c.Executed())
}

func TestExecute_ReentrantTriggerFromBody(t *testing.T) {
	mods := barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImportNamespace("barrel", "ns")),
		Body: func(ctx context.Context, env module.Env) error {
			v, err := env.Lookup(ctx, "ns")
			if err != nil {
				return err
			}
			ns := v.(module.Namespace)
			for _, name := range []string{"e", "c", "e"} {
				if _, err := ns.Get(ctx, name); err != nil {
					return err
				}
			}
			return nil
		},
	})
	e, c := newTestEngine(mods)
	_, err := e.Execute(context.Background(), "entry")
	require.NoError(t, err)
	require.Equal(t, []module.Identity{"b", "d", "barrel", "entry", "e", "c"}, c.Executed())
	require.Equal(t, module.ExecNotStarted, execState(t, e, "a"))
}

type recordingHost struct {
	mu  sync.Mutex
	ids []module.Identity
}

func (h *recordingHost) Schedule(ctx context.Context, rec *module.Record, run func(context.Context) error) error {
	h.mu.Lock()
	h.ids = append(h.ids, rec.ID)
	h.mu.Unlock()
	return run(ctx)
}

func TestExecute_HostSchedulerSeesEveryBody(t *testing.T) {
	host := &recordingHost{}
	e, c := newTestEngine(barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImport("barrel", "d")),
	}), WithHostScheduler(host))
	_, err := e.Execute(context.Background(), "entry")
	require.NoError(t, err)
	require.Equal(t, c.Executed(), host.ids)
}

func TestNamespace_KeysDoNotExecute(t *testing.T) {
	e, _ := newTestEngine(barrelGraph(&module.MockModule{
		Decls: module.MockDecls(module.MockImport("barrel", "d")),
	}))
	_, err := e.Execute(context.Background(), "entry")
	require.NoError(t, err)

	ns, err := e.Namespace("barrel")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ns.Keys())
	for _, id := range []module.Identity{"a", "c", "e"} {
		require.Equal(t, module.ExecNotStarted, execState(t, e, id), id)
	}

	v, err := ns.Get(context.Background(), "c")
	require.NoError(t, err)
	require.Equal(t, "c.c", v)
	require.Equal(t, module.ExecExecuted, execState(t, e, "c"))

	_, err = ns.Get(context.Background(), "zzz")
	require.ErrorIs(t, err, module.ErrNoExport)
}

func TestNamespace_RequiresLoadedModule(t *testing.T) {
	e, _ := newTestEngine(map[module.Identity]*module.MockModule{})
	_, err := e.Namespace("nowhere")
	require.ErrorIs(t, err, module.ErrNotLoaded)
}

// finishes runs fn and fails the test if it has not returned within a second.
func finishes(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("still blocked after 1s")
	}
}

func TestExecute_NestedReadWithFreshContext(t *testing.T) {
	var got any
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"entry": {
			Decls: module.MockDecls(module.MockImportDefer("lazy", "ns")),
			Body: func(ctx context.Context, env module.Env) error {
				v, err := env.Lookup(context.Background(), "ns")
				if err != nil {
					return err
				}
				got, err = v.(module.Namespace).Get(context.Background(), "x")
				return err
			},
		},
		"lazy": leaf("x"),
	})
	var err error
	finishes(t, func() { _, err = e.Execute(context.Background(), "entry") })
	require.NoError(t, err)
	require.Equal(t, "lazy.x", got)
	require.Equal(t, []module.Identity{"entry", "lazy"}, c.Executed())
}

func TestExecute_CycleReadWithFreshContext(t *testing.T) {
	var readErr error
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"a": {Decls: module.MockDecls(module.MockImport("b"), module.MockExport("x")), Body: defines("x")},
		"b": {
			Decls: module.MockDecls(module.MockImportDefer("a", "ns")),
			Body: func(ctx context.Context, env module.Env) error {
				v, err := env.Lookup(ctx, "ns")
				if err != nil {
					return err
				}
				_, readErr = v.(module.Namespace).Get(context.Background(), "x")
				return nil
			},
		},
	})
	var err error
	finishes(t, func() { _, err = e.Execute(context.Background(), "a") })
	require.NoError(t, err)
	require.ErrorIs(t, readErr, module.ErrUninitialized)
	require.Equal(t, []module.Identity{"b", "a"}, c.Executed())
}

func TestExecute_WaitsForModuleRunningElsewhere(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	e, c := newTestEngine(map[module.Identity]*module.MockModule{
		"slow": {
			Decls: module.MockDecls(module.MockExport("v")),
			Body: func(ctx context.Context, env module.Env) error {
				close(started)
				<-release
				env.Define("v", "ready")
				return nil
			},
		},
		"user": {
			Decls: module.MockDecls(module.MockImport("slow", "v")),
			Body: func(ctx context.Context, env module.Env) error {
				v, err := env.Lookup(ctx, "v")
				if err != nil {
					return err
				}
				env.Define("seen", v)
				return nil
			},
		},
	})
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, "slow")
		slowDone <- err
	}()
	<-started

	userDone := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, "user")
		userDone <- err
	}()
	select {
	case err := <-userDone:
		t.Fatalf("user finished before slow: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-slowDone)
	require.NoError(t, <-userDone)
	require.Equal(t, []module.Identity{"slow", "user"}, c.Executed())

	user, _ := e.Store().Get("user")
	seen, ok := user.Value("seen")
	require.True(t, ok)
	require.Equal(t, "ready", seen)
}

func TestExecute_WaitHonoursContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	e, _ := newTestEngine(map[module.Identity]*module.MockModule{
		"slow": {Body: func(ctx context.Context, env module.Env) error {
			close(started)
			<-release
			return nil
		}},
		"user": {Decls: module.MockDecls(module.MockImport("slow"))},
	})
	go func() { _, _ = e.Execute(context.Background(), "slow") }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, "user")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
