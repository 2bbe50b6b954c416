package module

import "context"

// IdentityResolver maps a specifier written in referrer to a module identity.
// referrer is empty for entry specifiers.
type IdentityResolver interface {
	Resolve(ctx context.Context, specifier string, referrer Identity) (Identity, error)
}

// Compiler fetches and parses a module. It returns the static import/export
// declarations and the executable unit for the module's top-level code.
// Implementations must be safe for concurrent use.
type Compiler interface {
	Compile(ctx context.Context, id Identity) (*Declarations, Unit, error)
}

// Unit is a compiled module body. Execute runs the top-level code exactly once.
type Unit interface {
	Execute(ctx context.Context, env Env) error
}

// UnitFunc adapts a function to Unit.
type UnitFunc func(ctx context.Context, env Env) error

func (f UnitFunc) Execute(ctx context.Context, env Env) error { return f(ctx, env) }

// Env is the view a running unit has on its own module scope.
//
// Lookup reads a local name: an own binding, an imported binding (touching a
// deferred binding executes its chain first) or a namespace import.
type Env interface {
	Module() Identity
	Define(name string, v any)
	Lookup(ctx context.Context, name string) (any, error)
}

// Namespace is the object importers observe a module through.
//
// Get on a deferred binding drives execution of the modules behind it before
// reading. Keys lists every export name, deferred ones included, and never
// executes anything.
type Namespace interface {
	Module() Identity
	Get(ctx context.Context, name string) (any, error)
	Keys() []string
}

// HostScheduler decides when a claimed module body actually runs. The core
// waits for run to finish before continuing.
type HostScheduler interface {
	Schedule(ctx context.Context, rec *Record, run func(context.Context) error) error
}

// SyncScheduler runs bodies immediately on the calling goroutine.
type SyncScheduler struct{}

func (SyncScheduler) Schedule(ctx context.Context, _ *Record, run func(context.Context) error) error {
	return run(ctx)
}
