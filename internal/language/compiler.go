package language

import (
	"context"

	"github.com/hanpama/modgraph/internal/module"
)

// Reader fetches module source text by identity.
type Reader interface {
	Read(ctx context.Context, id string) (string, error)
}

// Console receives the output of log statements.
type Console func(id module.Identity, line string)

// Options configures a Compiler.
//
// Defaults:
// - Console: discards output
type Options struct {
	Console Console
}

// Option mutates Options.
type Option func(*Options)

func WithConsole(c Console) Option { return func(o *Options) { o.Console = c } }

// Compiler implements module.Compiler for the module dialect.
type Compiler struct {
	src  Reader
	opts *Options
}

var _ module.Compiler = (*Compiler)(nil)

func NewCompiler(src Reader, opts ...Option) *Compiler {
	o := &Options{Console: func(module.Identity, string) {}}
	for _, f := range opts {
		f(o)
	}
	if o.Console == nil {
		o.Console = func(module.Identity, string) {}
	}
	return &Compiler{src: src, opts: o}
}

func (c *Compiler) Compile(ctx context.Context, id module.Identity) (*module.Declarations, module.Unit, error) {
	text, err := c.src.Read(ctx, string(id))
	if err != nil {
		return nil, nil, err
	}
	prog, err := Parse(string(id), text)
	if err != nil {
		return nil, nil, err
	}
	return &prog.Decls, &unit{prog: prog, console: c.opts.Console}, nil
}
