package grpcsrc

import (
	"time"

	"google.golang.org/grpc"
)

// Options configures the remote source client.
//
// Defaults:
// - MaxConnsPerEndpoint: 2 (shared by concurrent calls, dialed on first use)
// - RPCTimeout:          3s (used only if incoming context has no deadline)
// - DialOptions:         insecure credentials
//
// At least one endpoint must be given.
type Options struct {
	Endpoints []string

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	DialOptions []grpc.DialOption
}

// Option mutates Options
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
	}
}

func WithEndpoints(endpoints ...string) Option {
	return func(o *Options) { o.Endpoints = append([]string(nil), endpoints...) }
}
func WithMaxConnsPerEndpoint(n int) Option  { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option { return func(o *Options) { o.RPCTimeout = d } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
