package module

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Identity is the canonical key of a module. Two specifiers that resolve to
// the same Identity denote the same module.
type Identity string

type LoadState int32

const (
	LoadUnresolved LoadState = iota
	LoadLoading
	LoadLoaded
	LoadErrored
)

func (s LoadState) String() string {
	switch s {
	case LoadUnresolved:
		return "unresolved"
	case LoadLoading:
		return "loading"
	case LoadLoaded:
		return "loaded"
	case LoadErrored:
		return "errored"
	default:
		return fmt.Sprintf("LoadState(%d)", int32(s))
	}
}

type ExecState int32

const (
	ExecNotStarted ExecState = iota
	ExecExecuting
	ExecExecuted
	ExecErrored
)

func (s ExecState) String() string {
	switch s {
	case ExecNotStarted:
		return "not-started"
	case ExecExecuting:
		return "executing"
	case ExecExecuted:
		return "executed"
	case ExecErrored:
		return "errored"
	default:
		return fmt.Sprintf("ExecState(%d)", int32(s))
	}
}

// EdgeKind tells whether the target of an edge runs before its source
// (Eager) or only when one of its bindings is touched (Deferred).
type EdgeKind int

const (
	Eager EdgeKind = iota
	Deferred
)

func (k EdgeKind) String() string {
	if k == Deferred {
		return "deferred"
	}
	return "eager"
}

// Edge is a dependency of Source on Target. Position is the declared order of
// the edge within Source, starting at zero.
type Edge struct {
	Source    Identity
	Target    Identity
	Specifier string
	Kind      EdgeKind
	Position  int
	Line      int
}

// ExportEntry maps an exported name to either a local binding of the module
// (Local set) or a re-export of Imported from Target. Star entries forward
// every name of Target except "default".
type ExportEntry struct {
	Name     string
	Local    string
	Target   Identity
	Imported string
	Star     bool
	Kind     EdgeKind
	// EdgePos is the Position of the edge a re-export travels through.
	EdgePos int
	Line    int
}

// IsReExport reports whether e forwards a binding of another module.
func (e ExportEntry) IsReExport() bool { return e.Target != "" }

// ImportEntry binds a local name of the importing module. Namespace entries
// bind the whole namespace object of Target; Deferred is only meaningful for
// namespace entries.
type ImportEntry struct {
	Local     string
	Target    Identity
	Imported  string
	Namespace bool
	Deferred  bool
	// Statement groups entries written in the same import declaration.
	Statement int
	// After is the number of edges of the module declared up to and
	// including this entry's statement.
	After int
	Line  int
}

// Hop locates the first deferred edge on a resolution chain.
type Hop struct {
	Host     *Record
	Position int
}

// Binding is the link-time resolution of a name to the module that owns its
// storage. Chain lists every module from the exposing module to Owner.
type Binding struct {
	Name     string
	Owner    *Record
	Local    string
	Chain    []*Record
	Deferred bool
	Hop      *Hop
	// Err is set when the chain enters a module that failed to load.
	Err error
}

// Record is the per-identity state shared by every consumer of a module.
type Record struct {
	ID Identity

	load atomic.Int32
	exec atomic.Int32

	mu       sync.RWMutex
	edges    []Edge
	exports  []ExportEntry
	imports  []ImportEntry
	unit     Unit
	loadErr  error
	execErr  error
	values   map[string]any
	linked   bool
	bindings map[string]*Binding // imported local name
	table    map[string]*Binding // exported name
	linkErrs []*Violation

	compiled chan struct{}
	once     sync.Once
	done     chan struct{}
}

func newRecord(id Identity) *Record {
	return &Record{
		ID:       id,
		values:   make(map[string]any),
		compiled: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Record) LoadState() LoadState { return LoadState(r.load.Load()) }
func (r *Record) ExecState() ExecState { return ExecState(r.exec.Load()) }

// BeginLoad moves the record from Unresolved to Loading. Only the caller that
// wins the transition owns compilation; everyone else waits on Compiled.
func (r *Record) BeginLoad() bool {
	return r.load.CompareAndSwap(int32(LoadUnresolved), int32(LoadLoading))
}

// Compiled is closed once the owning loader stored the compile result.
func (r *Record) Compiled() <-chan struct{} { return r.compiled }

// SetCompiled stores the result of resolving and compiling the module. A
// non-nil err marks the compile as failed; FinishLoad must still be called.
func (r *Record) SetCompiled(edges []Edge, exports []ExportEntry, imports []ImportEntry, unit Unit, err error) {
	r.mu.Lock()
	r.edges = edges
	r.exports = exports
	r.imports = imports
	r.unit = unit
	if err != nil && r.loadErr == nil {
		r.loadErr = err
	}
	r.mu.Unlock()
	r.once.Do(func() { close(r.compiled) })
}

// FinishLoad settles the load state. A record settles at most once; later
// calls are ignored and return false.
func (r *Record) FinishLoad(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if !r.load.CompareAndSwap(int32(LoadLoading), int32(LoadErrored)) {
			return false
		}
		r.loadErr = err
		return true
	}
	return r.load.CompareAndSwap(int32(LoadLoading), int32(LoadLoaded))
}

func (r *Record) Edges() []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.edges
}

func (r *Record) Exports() []ExportEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.exports
}

func (r *Record) Imports() []ImportEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.imports
}

func (r *Record) Unit() Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unit
}

// LoadErr returns the compile error, or the load error once the record settled.
func (r *Record) LoadErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadErr
}

// BeginExec claims the single execution of the record.
func (r *Record) BeginExec() bool {
	return r.exec.CompareAndSwap(int32(ExecNotStarted), int32(ExecExecuting))
}

// FinishExec records the outcome of the execution claimed by BeginExec and
// releases everyone waiting on Done. It must be called exactly once.
func (r *Record) FinishExec(err error) {
	r.mu.Lock()
	if err != nil {
		r.execErr = err
		r.exec.Store(int32(ExecErrored))
	} else {
		r.exec.Store(int32(ExecExecuted))
	}
	r.mu.Unlock()
	close(r.done)
}

// Done is closed once the record left Executing.
func (r *Record) Done() <-chan struct{} { return r.done }

func (r *Record) ExecErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.execErr
}

func (r *Record) SetValue(name string, v any) {
	r.mu.Lock()
	r.values[name] = v
	r.mu.Unlock()
}

// Value reads a local binding. The second result is false until the module
// assigned the name.
func (r *Record) Value(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// Linked reports whether SetLinked ran for the record.
func (r *Record) Linked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linked
}

// SetLinked stores the link result. Only the first call has effect.
func (r *Record) SetLinked(bindings, table map[string]*Binding, violations []*Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked {
		return
	}
	r.linked = true
	r.bindings = bindings
	r.table = table
	r.linkErrs = violations
}

// ImportBinding returns the resolved binding of an imported local name.
func (r *Record) ImportBinding(local string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[local]
	return b, ok
}

// ExportBinding returns the resolved binding behind an exported name.
func (r *Record) ExportBinding(name string) (*Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.table[name]
	return b, ok
}

// ExportNames returns every name in the export table, unsorted.
func (r *Record) ExportNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.table))
	for name := range r.table {
		out = append(out, name)
	}
	return out
}

func (r *Record) LinkViolations() []*Violation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.linkErrs
}
