package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/module"
)

type taskKey struct{}

// task is one chain of execution: an Engine.Execute call, or a namespace read
// made outside of one, together with every nested read issued with its
// context. Records claimed on a task's stack are owned by that task.
type task struct {
	// wait allows the task to block on records other tasks are running.
	wait bool
}

type nsKey struct {
	id       module.Identity
	deferred bool
}

type scheduler struct {
	store *module.Store
	host  module.HostScheduler

	mu      sync.Mutex
	owners  map[*module.Record]*task
	waiting map[*task]*module.Record

	nsMu       sync.Mutex
	namespaces map[nsKey]*namespace
}

func newScheduler(store *module.Store, host module.HostScheduler) *scheduler {
	return &scheduler{
		store:      store,
		host:       host,
		owners:     make(map[*module.Record]*task),
		waiting:    make(map[*task]*module.Record),
		namespaces: make(map[nsKey]*namespace),
	}
}

// enter returns ctx bound to a task, starting a new one unless ctx already
// carries one.
func enter(ctx context.Context, wait bool) context.Context {
	if _, ok := ctx.Value(taskKey{}).(*task); ok {
		return ctx
	}
	return context.WithValue(ctx, taskKey{}, &task{wait: wait})
}

// within binds ctx to t unless ctx already carries a task.
func within(ctx context.Context, t *task) context.Context {
	if _, ok := ctx.Value(taskKey{}).(*task); ok || t == nil {
		return ctx
	}
	return context.WithValue(ctx, taskKey{}, t)
}

func taskOf(ctx context.Context) *task {
	t, _ := ctx.Value(taskKey{}).(*task)
	return t
}

// execute runs rec after its eager dependencies, at most once. A record that
// is already executing on the same task is part of a cycle and counts as
// satisfied; one running on another task is awaited.
func (s *scheduler) execute(ctx context.Context, rec *module.Record) error {
	switch rec.LoadState() {
	case module.LoadLoaded:
	case module.LoadErrored:
		return rec.LoadErr()
	default:
		return fmt.Errorf("%w: %s", module.ErrNotLoaded, rec.ID)
	}

	t := taskOf(ctx)
	s.mu.Lock()
	won := rec.BeginExec()
	if won {
		s.owners[rec] = t
	}
	s.mu.Unlock()
	if !won {
		return s.await(ctx, t, rec)
	}

	start := time.Now()
	err := s.run(ctx, rec)
	s.mu.Lock()
	delete(s.owners, rec)
	s.mu.Unlock()
	rec.FinishExec(err)
	eventbus.Publish(ctx, events.ModuleExecuteFinish{
		Module:   string(rec.ID),
		Err:      err,
		Duration: time.Since(start),
	})
	return err
}

// await blocks until rec, claimed by some task, leaves Executing.
func (s *scheduler) await(ctx context.Context, t *task, rec *module.Record) error {
	if rec.ExecState() == module.ExecExecuting {
		if !s.block(t, rec) {
			return nil
		}
		select {
		case <-rec.Done():
			s.unblock(t)
		case <-ctx.Done():
			s.unblock(t)
			return &module.ExecutionError{Module: rec.ID, Err: ctx.Err()}
		}
	}
	if rec.ExecState() == module.ExecErrored {
		return rec.ExecErr()
	}
	return nil
}

// block registers t as waiting for rec. It reports false when the wait could
// never end: rec runs on t itself, t may not wait, or the tasks running rec
// are themselves waiting on t.
func (s *scheduler) block(t *task, rec *module.Record) bool {
	if t == nil || !t.wait {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for r := rec; ; {
		owner, ok := s.owners[r]
		if !ok {
			break
		}
		if owner == t {
			return false
		}
		next, ok := s.waiting[owner]
		if !ok {
			break
		}
		r = next
	}
	s.waiting[t] = rec
	return true
}

func (s *scheduler) unblock(t *task) {
	s.mu.Lock()
	delete(s.waiting, t)
	s.mu.Unlock()
}

func (s *scheduler) run(ctx context.Context, rec *module.Record) error {
	for _, ie := range rec.Imports() {
		if !ie.Namespace {
			continue
		}
		if target, ok := s.store.Get(ie.Target); ok {
			rec.SetValue(ie.Local, s.namespace(target, ie.Deferred))
		}
	}

	groups := deferredImports(rec)
	runGroups := func(after int) error {
		for len(groups) > 0 && groups[0].after <= after {
			for _, b := range groups[0].bindings {
				if err := s.trigger(ctx, rec.ID, b); err != nil {
					return dependencyFailed(rec.ID, err)
				}
			}
			groups = groups[1:]
		}
		return nil
	}
	for _, e := range rec.Edges() {
		if e.Kind == module.Eager {
			dep, ok := s.store.Get(e.Target)
			if !ok {
				return &module.ExecutionError{Module: rec.ID, Err: fmt.Errorf("%w: %s", module.ErrNotLoaded, e.Target)}
			}
			if err := s.execute(ctx, dep); err != nil {
				return dependencyFailed(rec.ID, err)
			}
		}
		if err := runGroups(e.Position + 1); err != nil {
			return err
		}
	}
	if err := runGroups(len(rec.Edges())); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return &module.ExecutionError{Module: rec.ID, Err: err}
	}
	unit := rec.Unit()
	if unit == nil {
		return nil
	}
	eventbus.Publish(ctx, events.ModuleExecuteStart{Module: string(rec.ID)})
	err := s.host.Schedule(ctx, rec, func(ctx context.Context) error {
		return unit.Execute(ctx, &env{s: s, rec: rec, task: taskOf(ctx)})
	})
	if err == nil {
		return nil
	}
	if failedElsewhere(rec.ID, err) {
		return dependencyFailed(rec.ID, err)
	}
	return &module.ExecutionError{Module: rec.ID, Err: err}
}

// trigger executes every module on the chain of a deferred binding, in chain
// order.
func (s *scheduler) trigger(ctx context.Context, host module.Identity, b *module.Binding) error {
	owner := ""
	if b.Owner != nil {
		owner = string(b.Owner.ID)
	}
	eventbus.Publish(ctx, events.DeferredTrigger{Host: string(host), Owner: owner, Name: b.Name})
	if b.Err != nil {
		return b.Err
	}
	for _, r := range b.Chain {
		if err := s.execute(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// read returns the live value of a binding, triggering it first if deferred.
func (s *scheduler) read(ctx context.Context, host module.Identity, b *module.Binding) (any, error) {
	if b.Deferred || b.Err != nil {
		if err := s.trigger(ctx, host, b); err != nil {
			return nil, err
		}
	}
	v, ok := b.Owner.Value(b.Local)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", module.ErrUninitialized, b.Local, b.Owner.ID)
	}
	return v, nil
}

func (s *scheduler) namespace(rec *module.Record, deferred bool) *namespace {
	k := nsKey{rec.ID, deferred}
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	ns, ok := s.namespaces[k]
	if !ok {
		ns = &namespace{s: s, rec: rec, deferred: deferred}
		s.namespaces[k] = ns
	}
	return ns
}

// importGroup is the deferred named-import bindings of one import statement.
type importGroup struct {
	after    int
	bindings []*module.Binding
}

// deferredImports returns the deferred named-import bindings of rec grouped
// by import statement, in statement order. A group becomes due once the
// first after edges of rec ran. Inside a group, bindings sharing a host module
// are ordered by the position of the deferred edge in that host; hosts keep
// the order they first appear in.
func deferredImports(rec *module.Record) []importGroup {
	var (
		groups []importGroup
		stmt   = -1
	)
	for _, ie := range rec.Imports() {
		if ie.Namespace {
			continue
		}
		b, ok := rec.ImportBinding(ie.Local)
		if !ok || !(b.Deferred || b.Err != nil) {
			continue
		}
		if ie.Statement != stmt {
			groups = append(groups, importGroup{after: ie.After})
			stmt = ie.Statement
		}
		g := &groups[len(groups)-1]
		g.bindings = append(g.bindings, b)
	}
	for _, grp := range groups {
		g := grp.bindings
		rank := make(map[*module.Record]int)
		for _, b := range g {
			h, _ := hop(b)
			if _, ok := rank[h]; !ok {
				rank[h] = len(rank)
			}
		}
		sort.SliceStable(g, func(i, j int) bool {
			hi, pi := hop(g[i])
			hj, pj := hop(g[j])
			if hi != hj {
				return rank[hi] < rank[hj]
			}
			return pi < pj
		})
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].after < groups[j].after })
	return groups
}

func hop(b *module.Binding) (*module.Record, int) {
	if b.Hop == nil {
		return nil, 0
	}
	return b.Hop.Host, b.Hop.Position
}

// failedElsewhere reports whether err was recorded for another module.
func failedElsewhere(id module.Identity, err error) bool {
	var eerr *module.ExecutionError
	if errors.As(err, &eerr) {
		return eerr.Module != id
	}
	var lerr *module.LoadError
	return errors.As(err, &lerr)
}

func dependencyFailed(id module.Identity, err error) error {
	var dep module.Identity
	var eerr *module.ExecutionError
	var lerr *module.LoadError
	switch {
	case errors.As(err, &eerr):
		dep = eerr.Module
	case errors.As(err, &lerr):
		dep = lerr.Module
	default:
		return &module.ExecutionError{Module: id, Err: err}
	}
	return &module.ExecutionError{Module: id, Dependency: dep, Err: err}
}
