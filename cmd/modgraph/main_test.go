package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()
	err := fn()
	return pterm.RemoveColorFromString(buf.String()), err
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func barrelTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"entry.js": `import { e, a, d } from "./lib/barrel"
log("entry", a, e, d)`,
		"lib/barrel.js": `export defer { a } from "./a.js"
export { b } from "./b.js"
export defer { c } from "./c.js"
export { d } from "./d.js"
export defer { e } from "./e.js"`,
		"lib/a.js": `export const a = "A"`,
		"lib/b.js": `export const b = "B"`,
		"lib/c.js": `export const c = "C"`,
		"lib/d.js": `export const d = "D"`,
		"lib/e.js": `export const e = "E"`,
	})
}

func TestHelp(t *testing.T) {
	out, err := capture(t, func() error { return run([]string{"help", "run"}) })
	require.NoError(t, err)
	require.Contains(t, out, "run FLAGS")

	_, err = capture(t, func() error { return run([]string{"help", "nope"}) })
	require.Error(t, err)
}

func TestUnknownCommand(t *testing.T) {
	require.Error(t, run([]string{"frobnicate"}))
	require.Error(t, run(nil))
}

func TestRun_PrintsExecutionOrder(t *testing.T) {
	root := barrelTree(t)
	out, err := capture(t, func() error { return run([]string{"run", "-root", root, "./entry.js"}) })
	require.NoError(t, err)
	require.Contains(t, out, "entry.js: entry A E D")
	require.Contains(t, out, "lib/b.js -> lib/d.js -> lib/barrel.js -> lib/a.js -> lib/e.js -> entry.js")
}

func TestRun_ReportsLinkErrors(t *testing.T) {
	root := writeTree(t, map[string]string{
		"main.js": `import { missing } from "./dep.js"`,
		"dep.js":  `export const present = 1`,
	})
	out, err := capture(t, func() error { return run([]string{"run", "-root", root, "main.js"}) })
	require.Error(t, err)
	require.Contains(t, out, "Link Error")
	require.Contains(t, out, `has no export named "missing"`)
}

func TestRun_UsesProjectFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"modgraph.toml":      "root = \"src\"\nentry = \"main\"\n\n[aliases]\n\"util\" = \"/shared/util.js\"\n",
		"src/main.js":        "import { twice } from \"util\"\nexport const answer = twice",
		"src/shared/util.js": "export const twice = 21 + 21",
	})
	out, err := capture(t, func() error {
		return run([]string{"run", "-config", filepath.Join(root, "modgraph.toml")})
	})
	require.NoError(t, err)
	require.Contains(t, out, "shared/util.js -> main.js")
	require.Contains(t, out, "answer")
}

func TestGraph_DoesNotExecute(t *testing.T) {
	root := barrelTree(t)
	out, err := capture(t, func() error { return run([]string{"graph", "-root", root, "entry.js"}) })
	require.NoError(t, err)
	require.Contains(t, out, "lib/barrel.js [loaded]")
	require.Contains(t, out, "-> lib/a.js (deferred, line 1)")
	require.Contains(t, out, "-> lib/b.js (eager, line 2)")
	require.Contains(t, out, "export a = lib/a.js.a (deferred)")
	require.NotContains(t, out, "entry.js: entry")
}
