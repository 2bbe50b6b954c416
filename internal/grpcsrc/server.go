package grpcsrc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/modgraph/internal/source"
)

// Register exposes p as a SourceService on s.
func Register(s grpc.ServiceRegistrar, p source.Provider) error {
	d, err := loadDescriptors()
	if err != nil {
		return err
	}
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*source.Provider)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Read", Handler: unary(d.read, func(ctx context.Context, p source.Provider, id string) (protoreflect.Value, error) {
				content, err := p.Read(ctx, id)
				return protoreflect.ValueOfString(content), err
			})},
			{MethodName: "Has", Handler: unary(d.has, func(ctx context.Context, p source.Provider, id string) (protoreflect.Value, error) {
				ok, err := p.Has(ctx, id)
				return protoreflect.ValueOfBool(ok), err
			})},
		},
		Metadata: protoPath,
	}, p)
	return nil
}

type handleFunc func(ctx context.Context, p source.Provider, id string) (protoreflect.Value, error)

func unary(md protoreflect.MethodDescriptor, h handleFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	handle := func(ctx context.Context, srv any, req *dynamicpb.Message) (any, error) {
		id := req.Get(field(md.Input())).String()
		v, err := h(ctx, srv.(source.Provider), id)
		if err != nil {
			return nil, toStatus(err)
		}
		resp := dynamicpb.NewMessage(md.Output())
		resp.Set(field(md.Output()), v)
		return resp, nil
	}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := dynamicpb.NewMessage(md.Input())
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return handle(ctx, srv, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(md)}
		return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
			return handle(ctx, srv, r.(*dynamicpb.Message))
		})
	}
}
