// Package executor drives execution of a linked module graph, including
// deferred imports (`import defer * as ns`) and deferred re-exports
// (`export defer { x } from`), and exposes the Engine facade that loads,
// links and runs a graph.
//
// # Overview
//
// Loading and execution are separate. The loader brings every module
// reachable from an entry to Loaded, following eager and deferred edges
// alike; the linker resolves every imported and exported name to the module
// that owns its storage and caches the resolution chain. Execution then
// decides when each module's top-level code runs:
//
//  1. Executing M first executes, in declared order, every module reachable
//     from M through eager edges only (depth-first post-order, memoized).
//  2. Named imports of M whose chain crosses a deferred edge are triggered
//     next, statement by statement. Names of one statement that share a
//     host module run in the order the host declares its deferred edges,
//     not in the order they are listed at the import site.
//  3. M's own body runs.
//
// A deferred target otherwise runs only when a consumer reads one of its
// bindings, through a namespace object or an imported name. The trigger
// executes every module on the chain in chain order using the same rules,
// so a deferred re-export always runs after the module declaring it.
//
// # Example
//
// A barrel module re-exports a (deferred), b, c (deferred), d and
// e (deferred); entry imports { e, a, d } from it. Executing entry runs
//
//	b, d, barrel, a, e, entry
//
// b and d run as eager dependencies of barrel, barrel runs, then the two
// deferred names are triggered in barrel's order before entry's body.
// Deferred names run right after the eager target of the import statement
// that names them, before any later import of the same module.
//
// # States and errors
//
// Each record carries an ExecState that only advances:
// NotStarted -> Executing -> Executed | Errored. The NotStarted ->
// Executing step is a compare-and-swap, so a module body runs at most once
// even when triggers race. A module found in Executing is part of a cycle
// and is treated as satisfied; reading a binding it has not assigned yet
// returns module.ErrUninitialized.
//
// A body that returns an error leaves its module Errored with a
// module.ExecutionError. Every later trigger replays that error, and every
// module whose eager path or trigger passes through it fails with an
// ExecutionError wrapping module.ErrDependencyFailed. Nothing is retried.
// Reading a deferred binding whose module failed to load returns that
// module's LoadError without failing the module that re-exports it.
//
// # Reentrancy
//
// Module code may touch deferred bindings while it runs. Every Execute call
// and every namespace read made outside of one runs as a task that travels
// in the context. The task that wins a record's compare-and-swap runs it;
// reaching a record its own task is running is a cycle and counts as
// satisfied, while Execute calls on other tasks wait for the record to
// finish. Env.Lookup keeps the task of the body even when given a fresh
// context. A namespace read on a fresh context never waits: a record that
// is still executing counts as satisfied and its unassigned names read as
// module.ErrUninitialized.
//
// The actual invocation of a body goes through module.HostScheduler; the
// default runs it synchronously.
package executor
