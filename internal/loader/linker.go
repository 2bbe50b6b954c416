package loader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hanpama/modgraph/internal/module"
)

var (
	errNotFound  = errors.New("not found")
	errAmbiguous = errors.New("ambiguous")
	errCycle     = errors.New("cycle")
)

type resolveKey struct {
	id   module.Identity
	name string
}

// Linker resolves every import and export name of a loaded graph to the
// module that owns the binding, and caches the resulting chains on the
// records. A record is linked once; later graphs reuse the result.
type Linker struct {
	store *module.Store
}

func NewLinker(store *module.Store) *Linker { return &Linker{store: store} }

// Link links every loaded record of g and returns a module.LinkError listing
// all problems found in the graph.
func (l *Linker) Link(g *Graph) error {
	for _, rec := range g.Records {
		if rec.LoadState() == module.LoadLoaded && !rec.Linked() {
			l.linkRecord(rec)
		}
	}
	var errs module.LinkError
	for _, rec := range g.Records {
		errs = append(errs, rec.LinkViolations()...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (l *Linker) linkRecord(rec *module.Record) {
	var violations []*module.Violation

	table := make(map[string]*module.Binding)
	explicit := make(map[string]module.ExportEntry)
	for _, e := range rec.Exports() {
		if !e.Star {
			explicit[e.Name] = e
		}
	}
	for _, name := range l.exportNames(rec, map[module.Identity]bool{}) {
		b, err := l.resolveExport(rec, name, map[resolveKey]bool{})
		if err == nil {
			table[name] = b
			continue
		}
		e, ok := explicit[name]
		if !ok {
			// Conflicting star exports are dropped from the namespace.
			continue
		}
		src := rec.ID
		if e.IsReExport() {
			src = e.Target
		}
		violations = append(violations, violationFor(err, rec.ID, src, e.Imported, e.Line))
	}

	bindings := make(map[string]*module.Binding)
	for _, ie := range rec.Imports() {
		if ie.Namespace {
			continue
		}
		target := l.store.GetOrCreate(ie.Target)
		b, err := l.resolveExport(target, ie.Imported, map[resolveKey]bool{})
		if err != nil {
			violations = append(violations, violationFor(err, rec.ID, ie.Target, ie.Imported, ie.Line))
			continue
		}
		bindings[ie.Local] = b
	}

	rec.SetLinked(bindings, table, violations)
}

// exportNames lists the explicit names of rec followed by the names it
// forwards through star exports, sorted and without duplicates.
func (l *Linker) exportNames(rec *module.Record, visited map[module.Identity]bool) []string {
	if visited[rec.ID] || rec.LoadState() == module.LoadErrored {
		return nil
	}
	visited[rec.ID] = true
	set := make(map[string]bool)
	for _, e := range rec.Exports() {
		if !e.Star {
			set[e.Name] = true
			continue
		}
		for _, n := range l.exportNames(l.store.GetOrCreate(e.Target), visited) {
			if n != "default" {
				set[n] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// resolveExport follows re-exports of name starting at rec. Deferredness is
// the OR of every hop; Hop records the deferred edge closest to rec.
func (l *Linker) resolveExport(rec *module.Record, name string, visiting map[resolveKey]bool) (*module.Binding, error) {
	if rec.LoadState() == module.LoadErrored {
		return &module.Binding{Name: name, Chain: []*module.Record{rec}, Err: rec.LoadErr()}, nil
	}
	k := resolveKey{rec.ID, name}
	if visiting[k] {
		return nil, errCycle
	}
	visiting[k] = true
	defer delete(visiting, k)

	for _, e := range rec.Exports() {
		if e.Star || e.Name != name {
			continue
		}
		if !e.IsReExport() {
			return &module.Binding{Name: name, Owner: rec, Local: e.Local, Chain: []*module.Record{rec}}, nil
		}
		sub, err := l.resolveExport(l.store.GetOrCreate(e.Target), e.Imported, visiting)
		if err != nil {
			return nil, err
		}
		b := extend(rec, name, sub)
		if e.Kind == module.Deferred {
			b.Deferred = true
			b.Hop = &module.Hop{Host: rec, Position: e.EdgePos}
		}
		return b, nil
	}

	if name == "default" {
		return nil, errNotFound
	}
	var found *module.Binding
	for _, e := range rec.Exports() {
		if !e.Star {
			continue
		}
		target := l.store.GetOrCreate(e.Target)
		if target.LoadState() == module.LoadErrored {
			continue
		}
		sub, err := l.resolveExport(target, name, visiting)
		if errors.Is(err, errNotFound) || errors.Is(err, errCycle) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if found == nil {
			found = extend(rec, name, sub)
			continue
		}
		if found.Owner != sub.Owner || found.Local != sub.Local {
			return nil, errAmbiguous
		}
	}
	if found == nil {
		return nil, errNotFound
	}
	return found, nil
}

func extend(rec *module.Record, name string, sub *module.Binding) *module.Binding {
	chain := make([]*module.Record, 0, len(sub.Chain)+1)
	chain = append(chain, rec)
	chain = append(chain, sub.Chain...)
	return &module.Binding{
		Name:     name,
		Owner:    sub.Owner,
		Local:    sub.Local,
		Chain:    chain,
		Deferred: sub.Deferred,
		Hop:      sub.Hop,
		Err:      sub.Err,
	}
}

func violationFor(err error, at, source module.Identity, name string, line int) *module.Violation {
	var msg string
	switch {
	case errors.Is(err, errAmbiguous):
		msg = fmt.Sprintf("Export %q of module %q is ambiguous", name, source)
	case errors.Is(err, errCycle):
		msg = fmt.Sprintf("Cyclic re-export of %q through module %q", name, source)
	default:
		msg = fmt.Sprintf("Module %q has no export named %q", source, name)
	}
	return &module.Violation{Message: msg, Module: at, Line: line}
}
