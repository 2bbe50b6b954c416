package loader

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanpama/modgraph/internal/module"
)

type request struct {
	line   int
	export bool
	index  int
}

type edgeKey struct {
	target module.Identity
	kind   module.EdgeKind
}

// Resolve turns the parsed declarations of id into its outgoing edges, its
// export entries and its import entries. Requests are ordered by source line;
// requesting the same target twice with the same kind yields one edge.
func Resolve(ctx context.Context, id module.Identity, decls *module.Declarations, r module.IdentityResolver) ([]module.Edge, []module.ExportEntry, []module.ImportEntry, error) {
	if decls == nil {
		return nil, nil, nil, nil
	}

	reqs := make([]request, 0, len(decls.Imports)+len(decls.Exports))
	for i, d := range decls.Imports {
		reqs = append(reqs, request{line: d.Line, index: i})
	}
	for i, d := range decls.Exports {
		if d.From != "" {
			reqs = append(reqs, request{line: d.Line, export: true, index: i})
		}
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].line < reqs[j].line })

	targets := make(map[string]module.Identity)
	resolve := func(spec string) (module.Identity, error) {
		if t, ok := targets[spec]; ok {
			return t, nil
		}
		t, err := r.Resolve(ctx, spec, id)
		if err != nil {
			return "", &module.ResolutionError{Specifier: spec, Referrer: id, Err: err}
		}
		targets[spec] = t
		return t, nil
	}

	var edges []module.Edge
	positions := make(map[edgeKey]int)
	addEdge := func(spec string, kind module.EdgeKind, line int) (module.Identity, int, error) {
		target, err := resolve(spec)
		if err != nil {
			return "", 0, err
		}
		k := edgeKey{target, kind}
		if pos, ok := positions[k]; ok {
			return target, pos, nil
		}
		pos := len(edges)
		positions[k] = pos
		edges = append(edges, module.Edge{
			Source:    id,
			Target:    target,
			Specifier: spec,
			Kind:      kind,
			Position:  pos,
			Line:      line,
		})
		return target, pos, nil
	}

	var (
		imports []module.ImportEntry
		exports []module.ExportEntry
		named   = make(map[string]module.ImportEntry)
		edgePos = make(map[string]int) // imported local name -> edge position
		names   = make(map[string]bool)
	)
	addExport := func(e module.ExportEntry) error {
		if names[e.Name] {
			return fmt.Errorf("%s:%d: duplicate export %q", id, e.Line, e.Name)
		}
		names[e.Name] = true
		exports = append(exports, e)
		return nil
	}

	for _, rq := range reqs {
		if !rq.export {
			d := decls.Imports[rq.index]
			if d.Deferred && (d.Namespace == "" || len(d.Names) > 0) {
				return nil, nil, nil, fmt.Errorf("%s:%d: deferred import of %q must bind a namespace only", id, d.Line, d.Specifier)
			}
			kind := module.Eager
			if d.Deferred {
				kind = module.Deferred
			}
			target, pos, err := addEdge(d.Specifier, kind, d.Line)
			if err != nil {
				return nil, nil, nil, err
			}
			for _, n := range d.Names {
				ie := module.ImportEntry{Local: n.Local, Target: target, Imported: n.Imported, Statement: rq.index, After: len(edges), Line: d.Line}
				imports = append(imports, ie)
				named[n.Local] = ie
				edgePos[n.Local] = pos
			}
			if d.Namespace != "" {
				imports = append(imports, module.ImportEntry{
					Local:     d.Namespace,
					Target:    target,
					Namespace: true,
					Deferred:  d.Deferred,
					Statement: rq.index,
					After:     len(edges),
					Line:      d.Line,
				})
			}
			continue
		}

		d := decls.Exports[rq.index]
		kind := module.Eager
		if d.Deferred {
			if d.Star {
				return nil, nil, nil, fmt.Errorf("%s:%d: star re-export of %q cannot be deferred", id, d.Line, d.From)
			}
			kind = module.Deferred
		}
		target, pos, err := addEdge(d.From, kind, d.Line)
		if err != nil {
			return nil, nil, nil, err
		}
		if d.Star {
			exports = append(exports, module.ExportEntry{Target: target, Star: true, Kind: module.Eager, EdgePos: pos, Line: d.Line})
			continue
		}
		for _, n := range d.Names {
			if err := addExport(module.ExportEntry{
				Name:     n.Exported,
				Target:   target,
				Imported: n.Local,
				Kind:     kind,
				EdgePos:  pos,
				Line:     d.Line,
			}); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	// Local exports of an imported name forward the import.
	for _, d := range decls.Exports {
		if d.From != "" {
			continue
		}
		for _, n := range d.Names {
			e := module.ExportEntry{Name: n.Exported, Local: n.Local, Line: d.Line}
			if ie, ok := named[n.Local]; ok {
				e = module.ExportEntry{
					Name:     n.Exported,
					Target:   ie.Target,
					Imported: ie.Imported,
					Kind:     module.Eager,
					EdgePos:  edgePos[n.Local],
					Line:     d.Line,
				}
			}
			if err := addExport(e); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	return edges, exports, imports, nil
}
