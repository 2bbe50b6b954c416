package executor

import (
	"github.com/hanpama/modgraph/internal/loader"
	"github.com/hanpama/modgraph/internal/module"
)

// Options configures an Engine.
//
// Defaults:
// - Host:  module.SyncScheduler (bodies run on the calling goroutine)
// - Store: a fresh module.Store
//
// LoaderOptions are passed through to the graph loader.
type Options struct {
	Host          module.HostScheduler
	Store         *module.Store
	LoaderOptions []loader.Option
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{Host: module.SyncScheduler{}}
}

func WithHostScheduler(h module.HostScheduler) Option { return func(o *Options) { o.Host = h } }
func WithStore(s *module.Store) Option                { return func(o *Options) { o.Store = s } }
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(o *Options) { o.LoaderOptions = append(o.LoaderOptions, opts...) }
}
