package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/loader"
	"github.com/hanpama/modgraph/internal/module"
	"github.com/hanpama/modgraph/internal/runid"
)

// Engine loads, links and executes module graphs that share one record store.
type Engine struct {
	store    *module.Store
	resolver module.IdentityResolver
	loader   *loader.Loader
	linker   *loader.Linker
	sched    *scheduler

	linkMu sync.Mutex
}

func New(resolver module.IdentityResolver, compiler module.Compiler, opts ...Option) *Engine {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if o.Store == nil {
		o.Store = module.NewStore()
	}
	if o.Host == nil {
		o.Host = module.SyncScheduler{}
	}
	return &Engine{
		store:    o.Store,
		resolver: resolver,
		loader:   loader.New(o.Store, resolver, compiler, o.LoaderOptions...),
		linker:   loader.NewLinker(o.Store),
		sched:    newScheduler(o.Store, o.Host),
	}
}

func (e *Engine) Store() *module.Store { return e.store }

// LoaderStats reports the work done by the graph loader so far.
func (e *Engine) LoaderStats() loader.Stats { return e.loader.Stats() }

// Resolve maps an entry specifier to an identity with the engine's resolver.
func (e *Engine) Resolve(ctx context.Context, specifier string) (module.Identity, error) {
	id, err := e.resolver.Resolve(ctx, specifier, "")
	if err != nil {
		return "", &module.ResolutionError{Specifier: specifier, Err: err}
	}
	return id, nil
}

// LoadGraph loads and links the graph of id without executing anything.
func (e *Engine) LoadGraph(ctx context.Context, id module.Identity) (*loader.Graph, error) {
	ctx, _ = runid.Ensure(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.GraphLoadStart{Entry: string(id)})

	g, err := e.loader.Load(ctx, id)
	if err == nil {
		e.linkMu.Lock()
		err = e.linker.Link(g)
		e.linkMu.Unlock()
		violations := 0
		if lerr, ok := err.(module.LinkError); ok {
			violations = len(lerr)
		}
		eventbus.Publish(ctx, events.GraphLinked{Entry: string(id), Violations: violations})
	}

	n := 0
	if g != nil {
		n = len(g.Records)
	}
	eventbus.Publish(ctx, events.GraphLoadFinish{
		Entry:    string(id),
		Modules:  n,
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Execute loads and links the graph of id, executes id and returns its
// namespace. Executing an already executed module only returns the namespace.
func (e *Engine) Execute(ctx context.Context, id module.Identity) (module.Namespace, error) {
	ctx, _ = runid.Ensure(ctx)
	g, err := e.LoadGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = enter(ctx, true)
	if err := e.sched.execute(ctx, g.Entry); err != nil {
		return nil, err
	}
	return e.sched.namespace(g.Entry, false), nil
}

// Namespace returns the namespace of a loaded module without executing it.
// Reading eager names of a module that has not run yields ErrUninitialized.
func (e *Engine) Namespace(id module.Identity) (module.Namespace, error) {
	rec, ok := e.store.Get(id)
	if !ok || rec.LoadState() != module.LoadLoaded {
		return nil, fmt.Errorf("%w: %s", module.ErrNotLoaded, id)
	}
	return e.sched.namespace(rec, false), nil
}

// DeferredNamespace returns the view an `import defer * as` declaration
// gets: the module runs on the first Get.
func (e *Engine) DeferredNamespace(id module.Identity) (module.Namespace, error) {
	rec, ok := e.store.Get(id)
	if !ok || rec.LoadState() == module.LoadUnresolved {
		return nil, fmt.Errorf("%w: %s", module.ErrNotLoaded, id)
	}
	return e.sched.namespace(rec, true), nil
}
