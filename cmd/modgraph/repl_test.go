package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/modgraph/internal/source"
)

func newTestSession(t *testing.T, root string) *session {
	t.Helper()
	scratch := source.NewInMemory(nil)
	p, err := openProject("repl", replUsage, []string{"-root", root}, scratch)
	require.NoError(t, err)
	t.Cleanup(p.close)
	return &session{p: p, scratch: scratch}
}

func TestRepl_KeepsImportsAndBindings(t *testing.T) {
	root := barrelTree(t)
	out, err := capture(t, func() error {
		s := newTestSession(t, root)
		ctx := context.Background()
		for _, line := range []string{
			`import * as lib from "./lib/barrel.js"`,
			`const tail = lib.e + "!"`,
			`tail`,
		} {
			require.False(t, s.handle(ctx, line), line)
		}
		require.Equal(t, []string{`import * as lib from "./lib/barrel.js"`, `const tail = lib.e + "!"`}, s.kept)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, out, "repl-3.js: E!")
}

func TestRepl_Commands(t *testing.T) {
	root := barrelTree(t)
	out, err := capture(t, func() error {
		s := newTestSession(t, root)
		ctx := context.Background()
		require.False(t, s.handle(ctx, ":run entry.js"))
		require.False(t, s.handle(ctx, ":keys lib/barrel.js"))
		require.False(t, s.handle(ctx, ":get lib/barrel.js c"))
		require.False(t, s.handle(ctx, ":graph"))
		require.False(t, s.handle(ctx, ":frobnicate"))
		require.True(t, s.handle(ctx, ":quit"))
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, out, "entry.js: entry A E D")
	require.Contains(t, out, "a, b, c, d, e")
	require.Contains(t, out, "C\n")
	require.Contains(t, out, "lib/barrel.js [loaded]")
	require.Contains(t, out, "unknown command :frobnicate")
}

func TestRepl_FailedLinesAreNotKept(t *testing.T) {
	root := barrelTree(t)
	out, err := capture(t, func() error {
		s := newTestSession(t, root)
		ctx := context.Background()
		require.False(t, s.handle(ctx, `const x = nothing`))
		require.False(t, s.handle(ctx, `import { missing } from "./lib/a.js"`))
		require.False(t, s.handle(ctx, `export const y = 1`))
		require.False(t, s.handle(ctx, `log(`))
		require.Empty(t, s.kept)
		return nil
	})
	require.NoError(t, err)
	require.Contains(t, out, "Execution Error")
	require.Contains(t, out, "Link Error")
	require.Contains(t, out, "exports are not available in the repl")
}
