package module

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrMockNotFound is returned by MockCompiler and MockResolver for unknown modules.
var ErrMockNotFound = errors.New("mock: module not found")

// MockBody is the top-level code of a mock module.
type MockBody func(ctx context.Context, env Env) error

// MockModule describes one module served by MockCompiler. A non-nil Err fails
// its compilation.
type MockModule struct {
	Decls Declarations
	Body  MockBody
	Err   error
}

// MockCompiler implements Compiler from a fixed module table and keeps a log
// of compiled and executed modules.
type MockCompiler struct {
	mu       sync.Mutex
	modules  map[Identity]*MockModule
	compiled []Identity
	executed []Identity
}

func NewMockCompiler(modules map[Identity]*MockModule) *MockCompiler {
	m := &MockCompiler{modules: make(map[Identity]*MockModule, len(modules))}
	for k, v := range modules {
		m.modules[k] = v
	}
	return m
}

func (m *MockCompiler) Compile(ctx context.Context, id Identity) (*Declarations, Unit, error) {
	m.mu.Lock()
	mod, ok := m.modules[id]
	m.compiled = append(m.compiled, id)
	m.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrMockNotFound, id)
	}
	if mod.Err != nil {
		return nil, nil, mod.Err
	}
	decls := mod.Decls
	unit := UnitFunc(func(ctx context.Context, env Env) error {
		m.mu.Lock()
		m.executed = append(m.executed, id)
		m.mu.Unlock()
		if mod.Body != nil {
			return mod.Body(ctx, env)
		}
		return nil
	})
	return &decls, unit, nil
}

// Executed returns module identities in the order their bodies started.
func (m *MockCompiler) Executed() []Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Identity(nil), m.executed...)
}

// Compiled returns every compiled identity, sorted, one entry per compile.
func (m *MockCompiler) Compiled() []Identity {
	m.mu.Lock()
	out := append([]Identity(nil), m.compiled...)
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MockResolver maps every specifier to the identity of the same name, except
// the ones listed in Missing.
type MockResolver struct {
	Missing map[string]bool
}

func (r MockResolver) Resolve(ctx context.Context, specifier string, referrer Identity) (Identity, error) {
	if r.Missing[specifier] {
		return "", fmt.Errorf("%w: %s", ErrMockNotFound, specifier)
	}
	return Identity(specifier), nil
}

// MockDecls builds Declarations from ImportDecl and ExportDecl values,
// numbering lines in argument order.
func MockDecls(ds ...any) Declarations {
	var out Declarations
	for i, d := range ds {
		switch d := d.(type) {
		case ImportDecl:
			d.Line = i + 1
			out.Imports = append(out.Imports, d)
		case ExportDecl:
			d.Line = i + 1
			out.Exports = append(out.Exports, d)
		default:
			panic(fmt.Sprintf("mock: unexpected declaration %T", d))
		}
	}
	return out
}

// MockImport is `import { names } from spec`. A name may be written "a as b".
func MockImport(spec string, names ...string) ImportDecl {
	d := ImportDecl{Specifier: spec}
	for _, n := range names {
		from, to := splitAs(n)
		d.Names = append(d.Names, ImportName{Imported: from, Local: to})
	}
	return d
}

// MockImportNamespace is `import * as ns from spec`.
func MockImportNamespace(spec, ns string) ImportDecl {
	return ImportDecl{Specifier: spec, Namespace: ns}
}

// MockImportDefer is `import defer * as ns from spec`.
func MockImportDefer(spec, ns string) ImportDecl {
	return ImportDecl{Specifier: spec, Namespace: ns, Deferred: true}
}

// MockReExport is `export { names } from spec`.
func MockReExport(spec string, names ...string) ExportDecl {
	return ExportDecl{From: spec, Names: exportNames(names)}
}

// MockReExportDefer is `export defer { names } from spec`.
func MockReExportDefer(spec string, names ...string) ExportDecl {
	return ExportDecl{From: spec, Names: exportNames(names), Deferred: true}
}

// MockExportStar is `export * from spec`.
func MockExportStar(spec string) ExportDecl {
	return ExportDecl{From: spec, Star: true}
}

// MockExport is `export { names }`.
func MockExport(names ...string) ExportDecl {
	return ExportDecl{Names: exportNames(names)}
}

func exportNames(names []string) []ExportName {
	out := make([]ExportName, 0, len(names))
	for _, n := range names {
		from, to := splitAs(n)
		out = append(out, ExportName{Local: from, Exported: to})
	}
	return out
}

func splitAs(n string) (string, string) {
	if from, to, ok := strings.Cut(n, " as "); ok {
		return strings.TrimSpace(from), strings.TrimSpace(to)
	}
	return n, n
}
