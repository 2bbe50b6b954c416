package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
)

// FileName is the name of the project file looked up by Find.
const FileName = "modgraph.toml"

// ErrNoConfig is returned by Find when no project file exists up to the
// filesystem root.
var ErrNoConfig = errors.New("config: no " + FileName + " found")

// Config is a modgraph project as it is encoded in TOML.
type Config struct {
	// Root is the directory module identities are relative to. A relative
	// root is taken relative to the project file.
	Root  string `toml:"root"`
	Entry string `toml:"entry"`

	Extensions []string          `toml:"extensions,omitempty"`
	IndexFiles []string          `toml:"index-files,omitempty"`
	Aliases    map[string]string `toml:"aliases,omitempty"`

	Workers  int `toml:"workers"`
	MaxDepth int `toml:"max-depth"`

	Remote    *Remote    `toml:"remote"`
	Telemetry *Telemetry `toml:"telemetry"`
}

// Remote points module loading at a source service instead of the local
// filesystem.
type Remote struct {
	Endpoints []string `toml:"endpoints"`
	Timeout   string   `toml:"timeout"`
	MaxConns  int      `toml:"max-conns"`
}

// Telemetry configures OTLP span export.
type Telemetry struct {
	Endpoint string `toml:"endpoint"`
	Service  string `toml:"service"`
}

// Error reports an invalid project file.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Path, e.Message)
}

// Default returns the configuration used when no project file exists.
func Default() *Config {
	return &Config{Root: ".", Workers: 4}
}

// Load reads and validates the project file at path.
func Load(path string) (*Config, error) {
	buff, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(buff, path)
}

// Parse decodes a project file. path locates the file for relative roots
// and error messages; it may be empty.
func Parse(buff []byte, path string) (*Config, error) {
	c := &Config{}
	if err := toml.Unmarshal(buff, c); err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	def := Default()
	if c.Root == "" {
		c.Root = def.Root
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if path != "" && !filepath.IsAbs(c.Root) {
		c.Root = filepath.Join(filepath.Dir(path), c.Root)
	}
	if err := c.Validate(); err != nil {
		if ce, ok := err.(*Error); ok {
			ce.Path = path
		}
		return nil, err
	}
	return c, nil
}

// Validate checks field values that decoding alone cannot catch.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return &Error{Message: "workers must not be negative"}
	}
	if c.MaxDepth < 0 {
		return &Error{Message: "max-depth must not be negative"}
	}
	for _, ext := range c.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return &Error{Message: fmt.Sprintf("extension %q must start with a dot", ext)}
		}
	}
	if c.Remote != nil {
		if len(c.Remote.Endpoints) == 0 {
			return &Error{Message: "remote requires at least one endpoint"}
		}
		if _, err := c.Remote.RPCTimeout(); err != nil {
			return &Error{Message: err.Error()}
		}
	}
	return nil
}

// RPCTimeout parses Timeout. An empty value yields zero.
func (r *Remote) RPCTimeout() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, fmt.Errorf("remote timeout %q: %w", r.Timeout, err)
	}
	return d, nil
}

// Find searches dir and its parents for a project file and returns its path.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		p := filepath.Join(abs, FileName)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNoConfig
		}
		abs = parent
	}
}
