package loader

// Options configures the graph loader.
//
// Defaults:
// - Workers:  4 concurrent compiles per wave
// - MaxDepth: 0 (unbounded)
type Options struct {
	Workers  int
	MaxDepth int
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Workers: 4}
}

func WithWorkers(n int) Option  { return func(o *Options) { o.Workers = n } }
func WithMaxDepth(n int) Option { return func(o *Options) { o.MaxDepth = n } }
