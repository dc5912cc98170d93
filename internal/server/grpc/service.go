package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "gophauth.v1.SessionService"

const (
	MethodRegister              = "/" + ServiceName + "/Register"
	MethodAuthenticate          = "/" + ServiceName + "/Authenticate"
	MethodIntrospect            = "/" + ServiceName + "/Introspect"
	MethodRefresh               = "/" + ServiceName + "/Refresh"
	MethodLogout                = "/" + ServiceName + "/Logout"
	MethodFederatedAuthenticate = "/" + ServiceName + "/FederatedAuthenticate"
	MethodOutboundAuthenticate  = "/" + ServiceName + "/OutboundAuthenticate"
	MethodWhoAmI                = "/" + ServiceName + "/WhoAmI"
)

// sessionServer is what the service descriptor dispatches to. Requests and
// responses are plain structpb.Struct values so no generated code is needed.
type sessionServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Authenticate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Introspect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FederatedAuthenticate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OutboundAuthenticate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(sessionServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(sessionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(sessionServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*sessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Register", sessionServer.Register),
		unaryMethod("Authenticate", sessionServer.Authenticate),
		unaryMethod("Introspect", sessionServer.Introspect),
		unaryMethod("Refresh", sessionServer.Refresh),
		unaryMethod("Logout", sessionServer.Logout),
		unaryMethod("FederatedAuthenticate", sessionServer.FederatedAuthenticate),
		unaryMethod("OutboundAuthenticate", sessionServer.OutboundAuthenticate),
		unaryMethod("WhoAmI", sessionServer.WhoAmI),
	},
	Streams: []grpc.StreamDesc{},
}
