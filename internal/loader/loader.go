package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/module"
)

// ErrTooDeep is returned when a graph exceeds Options.MaxDepth.
var ErrTooDeep = errors.New("loader: graph exceeds maximum depth")

// Graph is the set of records reached from Entry, in discovery order.
type Graph struct {
	Entry   *module.Record
	Records []*module.Record
}

// Stats counts loader work since creation.
type Stats struct {
	Compiled int64
	Failed   int64
	Reused   int64
}

// Loader walks the graph of an entry module breadth first. Every wave of
// newly discovered modules is compiled concurrently and joined before the
// next wave starts; no record settles before the whole walk is done.
type Loader struct {
	store    *module.Store
	resolver module.IdentityResolver
	compiler module.Compiler
	opts     *Options

	compiled atomic.Int64
	failed   atomic.Int64
	reused   atomic.Int64
}

func New(store *module.Store, resolver module.IdentityResolver, compiler module.Compiler, opts ...Option) *Loader {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	return &Loader{store: store, resolver: resolver, compiler: compiler, opts: o}
}

func (l *Loader) Stats() Stats {
	return Stats{Compiled: l.compiled.Load(), Failed: l.failed.Load(), Reused: l.reused.Load()}
}

// Load brings entry and everything reachable from it, through eager and
// deferred edges alike, to Loaded or Errored. It fails when the entry cannot
// be loaded, including when an eager dependency of it failed. Failures behind
// deferred edges only are left on their records.
func (l *Loader) Load(ctx context.Context, entry module.Identity) (*Graph, error) {
	root := l.store.GetOrCreate(entry)
	seen := map[module.Identity]bool{entry: true}
	var (
		order []*module.Record
		owned []*module.Record
	)
	wave := []*module.Record{root}
	for depth := 0; len(wave) > 0; depth++ {
		var err error
		if l.opts.MaxDepth > 0 && depth > l.opts.MaxDepth {
			err = fmt.Errorf("%w (%d)", ErrTooDeep, l.opts.MaxDepth)
		} else if cerr := ctx.Err(); cerr != nil {
			err = cerr
		}
		if err != nil {
			l.abort(owned, err)
			return nil, &module.LoadError{Module: entry, Err: err}
		}

		claimed, err := l.compileWave(ctx, wave)
		owned = append(owned, claimed...)
		if err != nil {
			l.abort(owned, err)
			return nil, &module.LoadError{Module: entry, Err: err}
		}
		order = append(order, wave...)

		var next []*module.Record
		for _, rec := range wave {
			for _, e := range rec.Edges() {
				if seen[e.Target] {
					continue
				}
				seen[e.Target] = true
				next = append(next, l.store.GetOrCreate(e.Target))
			}
		}
		wave = next
	}

	l.settle(order)
	if root.LoadState() == module.LoadErrored {
		return nil, root.LoadErr()
	}
	return &Graph{Entry: root, Records: order}, nil
}

// compileWave compiles every record of wave this call claims and waits for
// records another load is compiling. It returns the claimed records.
func (l *Loader) compileWave(ctx context.Context, wave []*module.Record) ([]*module.Record, error) {
	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, l.opts.Workers)
		claimed []*module.Record
		waiting []*module.Record
	)
	for _, rec := range wave {
		if !rec.BeginLoad() {
			if rec.LoadState() == module.LoadLoading {
				waiting = append(waiting, rec)
			} else {
				l.reused.Add(1)
			}
			continue
		}
		claimed = append(claimed, rec)
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *module.Record) {
			defer func() { <-sem; wg.Done() }()
			l.compile(ctx, rec)
		}(rec)
	}
	wg.Wait()
	for _, rec := range waiting {
		select {
		case <-rec.Compiled():
		case <-ctx.Done():
			return claimed, ctx.Err()
		}
	}
	return claimed, nil
}

func (l *Loader) compile(ctx context.Context, rec *module.Record) {
	start := time.Now()
	eventbus.Publish(ctx, events.ModuleLoadStart{Module: string(rec.ID)})

	var (
		edges   []module.Edge
		exports []module.ExportEntry
		imports []module.ImportEntry
	)
	decls, unit, err := l.compiler.Compile(ctx, rec.ID)
	if err != nil {
		err = &module.LoadError{Module: rec.ID, Err: err}
	} else {
		edges, exports, imports, err = Resolve(ctx, rec.ID, decls, l.resolver)
		if err != nil {
			var rerr *module.ResolutionError
			if !errors.As(err, &rerr) {
				err = &module.LoadError{Module: rec.ID, Err: err}
			}
		}
	}
	if err != nil {
		edges, exports, imports, unit = nil, nil, nil, nil
		l.failed.Add(1)
	} else {
		l.compiled.Add(1)
	}
	rec.SetCompiled(edges, exports, imports, unit, err)

	eventbus.Publish(ctx, events.ModuleLoadFinish{
		Module:   string(rec.ID),
		Edges:    len(edges),
		Err:      err,
		Duration: time.Since(start),
	})
}

// settle propagates failures backwards along eager edges until nothing
// changes, then moves every record still Loading to its final state.
func (l *Loader) settle(order []*module.Record) {
	failed := make(map[module.Identity]error)
	for _, rec := range order {
		if rec.LoadState() == module.LoadLoaded {
			continue
		}
		if err := rec.LoadErr(); err != nil {
			failed[rec.ID] = err
		}
	}
	for changed := true; changed; {
		changed = false
		for _, rec := range order {
			if failed[rec.ID] != nil || rec.LoadState() != module.LoadLoading {
				continue
			}
			for _, e := range rec.Edges() {
				if e.Kind != module.Eager {
					continue
				}
				if ferr := failed[e.Target]; ferr != nil {
					failed[rec.ID] = &module.LoadError{Module: rec.ID, Dependency: e.Target, Err: ferr}
					changed = true
					break
				}
			}
		}
	}
	for _, rec := range order {
		if rec.LoadState() == module.LoadLoading {
			rec.FinishLoad(failed[rec.ID])
		}
	}
}

func (l *Loader) abort(owned []*module.Record, err error) {
	for _, rec := range owned {
		rec.FinishLoad(&module.LoadError{Module: rec.ID, Err: err})
	}
}
