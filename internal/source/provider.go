package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotFound indicates no source exists for an identity.
	ErrNotFound = errors.New("source: not found")
	// ErrOutsideRoot indicates a path that escapes the provider root.
	ErrOutsideRoot = errors.New("source: path escapes root")
)

// Provider serves module source text keyed by slash-separated paths relative
// to a root. Implementations should be safe for concurrent use.
type Provider interface {
	Read(ctx context.Context, id string) (string, error)
	Has(ctx context.Context, id string) (bool, error)
}

// InMemory is a Provider backed by a map, mostly for tests.
type InMemory struct {
	mu    sync.RWMutex
	files map[string]string
}

func NewInMemory(files map[string]string) *InMemory {
	m := &InMemory{files: make(map[string]string, len(files))}
	for k, v := range files {
		m.files[path.Clean(k)] = v
	}
	return m
}

// Set adds or replaces one file.
func (m *InMemory) Set(id, content string) {
	m.mu.Lock()
	m.files[path.Clean(id)] = content
	m.mu.Unlock()
}

func (m *InMemory) Read(ctx context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[path.Clean(id)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return content, nil
}

func (m *InMemory) Has(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[path.Clean(id)]
	return ok, nil
}

// Paths lists every stored path, sorted.
func (m *InMemory) Paths() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// FileSystem is a Provider reading from an fs.FS.
type FileSystem struct {
	fsys fs.FS
}

func NewFileSystem(fsys fs.FS) *FileSystem { return &FileSystem{fsys: fsys} }

// NewDir returns a FileSystem rooted at a directory of the OS file system.
func NewDir(root string) *FileSystem { return &FileSystem{fsys: os.DirFS(root)} }

func (f *FileSystem) Read(ctx context.Context, id string) (string, error) {
	name, err := fsName(id)
	if err != nil {
		return "", err
	}
	b, err := fs.ReadFile(f.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", id, err)
	}
	return string(b), nil
}

func (f *FileSystem) Has(ctx context.Context, id string) (bool, error) {
	name, err := fsName(id)
	if err != nil {
		return false, err
	}
	st, err := fs.Stat(f.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !st.IsDir(), nil
}

func fsName(id string) (string, error) {
	name := path.Clean(strings.TrimPrefix(id, "/"))
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, id)
	}
	return name, nil
}

// Overlay serves files from top first and falls back to base.
type Overlay struct {
	top, base Provider
}

func NewOverlay(top, base Provider) *Overlay { return &Overlay{top: top, base: base} }

func (o *Overlay) Read(ctx context.Context, id string) (string, error) {
	content, err := o.top.Read(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return o.base.Read(ctx, id)
	}
	return content, err
}

func (o *Overlay) Has(ctx context.Context, id string) (bool, error) {
	ok, err := o.top.Has(ctx, id)
	if err != nil || ok {
		return ok, err
	}
	return o.base.Has(ctx, id)
}
