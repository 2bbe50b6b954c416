package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const sample = `
root = "src"
entry = "main.js"
extensions = [".js", ".mjs"]
workers = 8

[aliases]
"lodash" = "/vendor/lodash.js"
"react/" = "/vendor/react/"

[remote]
endpoints = ["127.0.0.1:7070"]
timeout = "5s"

[telemetry]
endpoint = "localhost:4317"
service = "modgraph-dev"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample), "/work/proj/modgraph.toml")
	require.NoError(t, err)

	want := &Config{
		Root:       "/work/proj/src",
		Entry:      "main.js",
		Extensions: []string{".js", ".mjs"},
		Aliases:    map[string]string{"lodash": "/vendor/lodash.js", "react/": "/vendor/react/"},
		Workers:    8,
		Remote:     &Remote{Endpoints: []string{"127.0.0.1:7070"}, Timeout: "5s"},
		Telemetry:  &Telemetry{Endpoint: "localhost:4317", Service: "modgraph-dev"},
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	d, err := c.Remote.RPCTimeout()
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, d)
}

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(`entry = "index.js"`), "")
	require.NoError(t, err)
	require.Equal(t, ".", c.Root)
	require.Equal(t, 4, c.Workers)
	require.Nil(t, c.Remote)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"syntax":        `root = `,
		"workers":       `workers = -1`,
		"extension":     `extensions = ["js"]`,
		"no endpoints":  "[remote]\ntimeout = \"1s\"",
		"bad timeout":   "[remote]\nendpoints = [\"x:1\"]\ntimeout = \"soon\"",
		"negative deep": `max-depth = -3`,
	}
	for name, src := range cases {
		_, err := Parse([]byte(src), "p/modgraph.toml")
		var cerr *Error
		require.True(t, errors.As(err, &cerr), "%s: %v", name, err)
		require.Equal(t, "p/modgraph.toml", cerr.Path, name)
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(`entry = "main.js"`), 0o644))

	p, err := Find(nested)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, FileName), p)

	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, root, c.Root)
	require.Equal(t, "main.js", c.Entry)
}
