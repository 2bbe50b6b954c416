package grpcsrc

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/source"
)

// Client is a source.Provider backed by a remote SourceService. Each
// endpoint keeps a small set of lazily dialed connections that calls share.
type Client struct {
	opts      *Options
	desc      *descriptors
	endpoints []*endpoint
	closed    atomic.Bool
}

var _ source.Provider = (*Client)(nil)

func NewClient(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	d, err := loadDescriptors()
	if err != nil {
		return nil, err
	}
	c := &Client{opts: o, desc: d}
	for _, addr := range o.Endpoints {
		c.endpoints = append(c.endpoints, newEndpoint(addr, o.MaxConnsPerEndpoint))
	}
	return c, nil
}

// Read fetches the source text of id.
func (c *Client) Read(ctx context.Context, id string) (string, error) {
	resp, err := c.call(ctx, c.desc.read, id)
	if err != nil {
		return "", err
	}
	return resp.Get(field(c.desc.read.Output())).String(), nil
}

// Has reports whether the remote side holds a module for id.
func (c *Client) Has(ctx context.Context, id string) (bool, error) {
	resp, err := c.call(ctx, c.desc.has, id)
	if err != nil {
		return false, err
	}
	return resp.Get(field(c.desc.has.Output())).Bool(), nil
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	var first error
	for _, ep := range c.endpoints {
		if err := ep.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Client) call(ctx context.Context, md protoreflect.MethodDescriptor, id string) (protoreflect.Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if _, ok := ctx.Deadline(); !ok && c.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RPCTimeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, "x-modgraph-module", id)

	ep := c.endpoints[rand.Intn(len(c.endpoints))]
	cc, err := ep.conn(ctx, c.opts.DialOptions)
	if err != nil {
		return nil, err
	}

	req := dynamicpb.NewMessage(md.Input())
	req.Set(field(md.Input()), protoreflect.ValueOfString(id))
	resp := dynamicpb.NewMessage(md.Output())

	start := time.Now()
	method := string(md.Name())
	eventbus.Publish(ctx, events.SourceFetchStart{Method: method, Target: ep.addr, Module: id})
	err = cc.Invoke(ctx, fullMethod(md), req, resp)
	eventbus.Publish(ctx, events.SourceFetchFinish{
		Method:   method,
		Target:   ep.addr,
		Module:   id,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		return nil, fromStatus(id, err)
	}
	return resp, nil
}

// endpoint spreads calls round robin over up to n connections to one
// address. A connection is dialed on first use and stays open until Close.
type endpoint struct {
	addr string
	next atomic.Uint32

	mu     sync.Mutex
	conns  []*grpc.ClientConn
	closed bool
}

func newEndpoint(addr string, n int) *endpoint {
	if n <= 0 {
		n = 1
	}
	return &endpoint{addr: addr, conns: make([]*grpc.ClientConn, n)}
}

func (e *endpoint) conn(ctx context.Context, dialOpts []grpc.DialOption) (*grpc.ClientConn, error) {
	i := int(e.next.Add(1)-1) % len(e.conns)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.conns[i] == nil {
		cc, err := grpc.DialContext(ctx, e.addr, dialOpts...)
		if err != nil {
			return nil, err
		}
		e.conns[i] = cc
	}
	return e.conns[i], nil
}

func (e *endpoint) close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	var first error
	for i, cc := range e.conns {
		if cc == nil {
			continue
		}
		if err := cc.Close(); err != nil && first == nil {
			first = err
		}
		e.conns[i] = nil
	}
	return first
}
