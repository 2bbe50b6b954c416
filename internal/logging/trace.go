package logging

import (
	"context"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
)

// Trace prints loader, executor and remote source events through l when it
// runs at LevelVerbose. It returns a function removing the subscriptions.
func Trace(l *Logger) (detach func()) {
	if l.Level() < LevelVerbose {
		return func() {}
	}
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.GraphLoadStart) {
			l.Tracef("load %s", e.Entry)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ModuleLoadFinish) {
			if e.Err != nil {
				l.Tracef("  compile %s failed after %s: %v", e.Module, e.Duration, e.Err)
				return
			}
			l.Tracef("  compile %s (%d edges, %s)", e.Module, e.Edges, e.Duration)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphLinked) {
			l.Tracef("link %s (%d violations)", e.Entry, e.Violations)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphLoadFinish) {
			l.Tracef("loaded %d modules in %s", e.Modules, e.Duration)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ModuleExecuteStart) {
			l.Tracef("exec %s", e.Module)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.ModuleExecuteFinish) {
			if e.Err != nil {
				l.Tracef("exec %s failed: %v", e.Module, e.Err)
			}
		}),
		eventbus.Subscribe(func(_ context.Context, e events.DeferredTrigger) {
			l.Tracef("trigger %s from %s -> %s", e.Name, e.Host, e.Owner)
		}),
		eventbus.Subscribe(func(_ context.Context, e events.SourceFetchFinish) {
			l.Tracef("  fetch %s %s from %s: %s (%s)", e.Method, e.Module, e.Target, e.Code, e.Duration)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
