package executor

import (
	"context"
	"fmt"

	"github.com/hanpama/modgraph/internal/module"
)

// env is the scope a running module body sees.
type env struct {
	s    *scheduler
	rec  *module.Record
	task *task
}

var _ module.Env = (*env)(nil)

func (e *env) Module() module.Identity { return e.rec.ID }

func (e *env) Define(name string, v any) { e.rec.SetValue(name, v) }

func (e *env) Lookup(ctx context.Context, name string) (any, error) {
	if b, ok := e.rec.ImportBinding(name); ok {
		return e.s.read(within(ctx, e.task), e.rec.ID, b)
	}
	if v, ok := e.rec.Value(name); ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s in %s", module.ErrUndefined, name, e.rec.ID)
}
