package language

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hanpama/modgraph/internal/module"
)

// ThrowError is returned by a module whose code ran a throw statement.
type ThrowError struct {
	Module string
	Line   int
	Value  any
}

func (e *ThrowError) Error() string {
	return fmt.Sprintf("%s:%d: uncaught %s", e.Module, e.Line, Format(e.Value))
}

type unit struct {
	prog    *Program
	console Console
}

func (u *unit) Execute(ctx context.Context, env module.Env) error {
	for _, st := range u.prog.Stmts {
		switch st.Kind {
		case StmtBind:
			v, err := eval(ctx, env, st.Args[0])
			if err != nil {
				return u.wrap(st, err)
			}
			env.Define(st.Name, v)
		case StmtLog:
			parts := make([]string, 0, len(st.Args))
			for _, a := range st.Args {
				v, err := eval(ctx, env, a)
				if err != nil {
					return u.wrap(st, err)
				}
				parts = append(parts, Format(v))
			}
			u.console(env.Module(), strings.Join(parts, " "))
		case StmtThrow:
			v, err := eval(ctx, env, st.Args[0])
			if err != nil {
				return u.wrap(st, err)
			}
			return &ThrowError{Module: u.prog.Name, Line: st.Line, Value: v}
		case StmtExpr:
			if _, err := eval(ctx, env, st.Args[0]); err != nil {
				return u.wrap(st, err)
			}
		}
	}
	return nil
}

func (u *unit) wrap(st *Stmt, err error) error {
	return fmt.Errorf("%s:%d: %w", u.prog.Name, st.Line, err)
}

func eval(ctx context.Context, env module.Env, e Expr) (any, error) {
	var (
		vals    = make([]any, 0, len(e))
		numeric = true
	)
	for _, t := range e {
		v, err := evalTerm(ctx, env, t)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(float64); !ok {
			numeric = false
		}
		vals = append(vals, v)
	}
	if len(vals) == 1 {
		return vals[0], nil
	}
	if numeric {
		sum := 0.0
		for _, v := range vals {
			sum += v.(float64)
		}
		return sum, nil
	}
	var sb strings.Builder
	for _, v := range vals {
		sb.WriteString(Format(v))
	}
	return sb.String(), nil
}

func evalTerm(ctx context.Context, env module.Env, t Term) (any, error) {
	if t.Kind != TermRef {
		return t.Value, nil
	}
	v, err := env.Lookup(ctx, t.Path[0])
	if err != nil {
		return nil, err
	}
	for i, member := range t.Path[1:] {
		switch x := v.(type) {
		case module.Namespace:
			v, err = x.Get(ctx, member)
			if err != nil {
				return nil, err
			}
		case map[string]any:
			v = x[member]
		default:
			return nil, fmt.Errorf("cannot read %q of %s (%s)", member, strings.Join(t.Path[:i+1], "."), Format(v))
		}
	}
	return v, nil
}

// Format renders a runtime value the way log prints it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
