package server

import (
	"context"

	"google.golang.org/grpc"
)

// Unary builds a MethodDesc for a handler taking *Req and returning *Resp.
// Registered interceptors see the full method name "/service/method".
func Unary[Req, Resp any](service, method string, fn func(ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, r any) (any, error) {
				return fn(ctx, r.(*Req))
			}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// Service describes a hand-written gRPC service whose handlers are closures.
func Service(name string, methods ...grpc.MethodDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    name,
	}
}

// Invoke calls service/method on conn using the JSON codec.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, service, method string, req, resp any, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	return conn.Invoke(ctx, "/"+service+"/"+method, req, resp, opts...)
}
