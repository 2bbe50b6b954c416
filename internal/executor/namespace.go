package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/module"
)

// namespace is the object importers observe a module through. The deferred
// view executes its module on the first Get.
type namespace struct {
	s        *scheduler
	rec      *module.Record
	deferred bool
}

var _ module.Namespace = (*namespace)(nil)

func (n *namespace) Module() module.Identity { return n.rec.ID }

// Deferred reports whether n is an `import defer * as` view.
func (n *namespace) Deferred() bool { return n.deferred }

func (n *namespace) Get(ctx context.Context, name string) (any, error) {
	ctx = enter(ctx, false)

	if n.deferred {
		if n.rec.ExecState() == module.ExecNotStarted {
			eventbus.Publish(ctx, events.DeferredTrigger{Host: string(n.rec.ID), Owner: string(n.rec.ID), Name: name})
		}
		if err := n.s.execute(ctx, n.rec); err != nil {
			return nil, err
		}
	}
	b, ok := n.rec.ExportBinding(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", module.ErrNoExport, name, n.rec.ID)
	}
	return n.s.read(ctx, n.rec.ID, b)
}

func (n *namespace) Keys() []string {
	keys := n.rec.ExportNames()
	sort.Strings(keys)
	return keys
}

func (n *namespace) String() string {
	if n.deferred {
		return fmt.Sprintf("[deferred namespace %s]", n.rec.ID)
	}
	return fmt.Sprintf("[namespace %s]", n.rec.ID)
}
