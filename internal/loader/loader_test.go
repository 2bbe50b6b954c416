package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/modgraph/internal/module"
)

func ids(recs []*module.Record) []module.Identity {
	out := make([]module.Identity, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func newTestLoader(mods map[module.Identity]*module.MockModule, opts ...Option) (*Loader, *module.Store, *module.MockCompiler) {
	store := module.NewStore()
	c := module.NewMockCompiler(mods)
	return New(store, module.MockResolver{}, c, opts...), store, c
}

func TestLoad_WalksEagerAndDeferredEdges(t *testing.T) {
	l, store, c := newTestLoader(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("a", "x"), module.MockImportDefer("b", "ns"))},
		"a":     {Decls: module.MockDecls(module.MockImport("c", "y"), module.MockExport("x"))},
		"b":     {Decls: module.MockDecls(module.MockImport("c", "y"))},
		"c":     {Decls: module.MockDecls(module.MockExport("y"))},
	})
	g, err := l.Load(context.Background(), "entry")
	require.NoError(t, err)

	if diff := cmp.Diff([]module.Identity{"entry", "a", "b", "c"}, ids(g.Records)); diff != "" {
		t.Fatalf("discovery order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]module.Identity{"a", "b", "c", "entry"}, c.Compiled()); diff != "" {
		t.Fatalf("each module must compile once (-want +got):\n%s", diff)
	}
	for _, r := range store.Records() {
		require.Equal(t, module.LoadLoaded, r.LoadState(), r.ID)
		require.Equal(t, module.ExecNotStarted, r.ExecState(), r.ID)
	}
	require.Equal(t, Stats{Compiled: 4}, l.Stats())
}

func TestLoad_CycleLoadsOnce(t *testing.T) {
	l, _, c := newTestLoader(map[module.Identity]*module.MockModule{
		"a": {Decls: module.MockDecls(module.MockImport("b"))},
		"b": {Decls: module.MockDecls(module.MockImport("a"))},
	})
	g, err := l.Load(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, g.Records, 2)
	require.Equal(t, []module.Identity{"a", "b"}, c.Compiled())
}

func TestLoad_SecondLoadReusesRecords(t *testing.T) {
	l, _, c := newTestLoader(map[module.Identity]*module.MockModule{
		"a": {Decls: module.MockDecls(module.MockImport("b"))},
		"b": {},
	})
	_, err := l.Load(context.Background(), "a")
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, []module.Identity{"a", "b"}, c.Compiled())
	require.Equal(t, int64(2), l.Stats().Reused)
}

func TestLoad_EagerFailureAbortsEntry(t *testing.T) {
	boom := errors.New("syntax error")
	l, store, _ := newTestLoader(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("mid"))},
		"mid":   {Decls: module.MockDecls(module.MockImport("bad"), module.MockImport("ok"))},
		"bad":   {Err: boom},
		"ok":    {},
	})
	g, err := l.Load(context.Background(), "entry")
	require.Nil(t, g)

	var lerr *module.LoadError
	require.True(t, errors.As(err, &lerr))
	require.Equal(t, module.Identity("entry"), lerr.Module)
	require.Equal(t, module.Identity("mid"), lerr.Dependency)
	require.ErrorIs(t, err, module.ErrDependencyFailed)
	require.ErrorIs(t, err, boom)

	want := map[module.Identity]module.LoadState{
		"entry": module.LoadErrored,
		"mid":   module.LoadErrored,
		"bad":   module.LoadErrored,
		"ok":    module.LoadLoaded,
	}
	for id, st := range want {
		r, ok := store.Get(id)
		require.True(t, ok)
		require.Equal(t, st, r.LoadState(), id)
	}
}

func TestLoad_DeferredFailureIsNotForced(t *testing.T) {
	l, store, _ := newTestLoader(map[module.Identity]*module.MockModule{
		"m": {Decls: module.MockDecls(module.MockReExportDefer("broken", "x"))},
	})
	g, err := l.Load(context.Background(), "m")
	require.NoError(t, err)
	require.Equal(t, module.LoadLoaded, g.Entry.LoadState())

	broken, _ := store.Get("broken")
	require.Equal(t, module.LoadErrored, broken.LoadState())
	require.ErrorIs(t, broken.LoadErr(), module.ErrMockNotFound)
}

func TestLoad_ResolutionErrorAbortsEntry(t *testing.T) {
	store := module.NewStore()
	c := module.NewMockCompiler(map[module.Identity]*module.MockModule{
		"entry": {Decls: module.MockDecls(module.MockImport("ghost"))},
	})
	l := New(store, module.MockResolver{Missing: map[string]bool{"ghost": true}}, c)
	_, err := l.Load(context.Background(), "entry")
	var rerr *module.ResolutionError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "ghost", rerr.Specifier)
}

func TestLoad_MaxDepth(t *testing.T) {
	l, store, _ := newTestLoader(map[module.Identity]*module.MockModule{
		"a": {Decls: module.MockDecls(module.MockImport("b"))},
		"b": {Decls: module.MockDecls(module.MockImport("c"))},
		"c": {},
	}, WithMaxDepth(1))
	_, err := l.Load(context.Background(), "a")
	require.ErrorIs(t, err, ErrTooDeep)
	for _, id := range []module.Identity{"a", "b"} {
		r, _ := store.Get(id)
		require.Equal(t, module.LoadErrored, r.LoadState(), id)
	}
}

func TestLoad_ConcurrentLoadsShareRecords(t *testing.T) {
	mods := map[module.Identity]*module.MockModule{
		"shared": {},
	}
	for _, id := range []module.Identity{"x", "y", "z"} {
		mods[id] = &module.MockModule{Decls: module.MockDecls(module.MockImport("shared"))}
	}
	l, _, c := newTestLoader(mods, WithWorkers(2))

	errs := make(chan error, 3)
	for _, id := range []module.Identity{"x", "y", "z"} {
		go func(id module.Identity) {
			_, err := l.Load(context.Background(), id)
			errs <- err
		}(id)
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, []module.Identity{"shared", "x", "y", "z"}, c.Compiled())
}
