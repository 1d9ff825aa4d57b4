// Package dfs is the distributed-storage endpoint the VMM talks to. This build
// acknowledges every call and keeps a ledger of what it was asked to do.
package dfs

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "libretto.dfs.DfsService"

// Full method names.
const (
	StoreMethod     = "/" + ServiceName + "/Store"
	LaunchMethod    = "/" + ServiceName + "/Launch"
	HeartbeatMethod = "/" + ServiceName + "/Heartbeat"
	ReplicateMethod = "/" + ServiceName + "/Replicate"
)

// InstanceMetadataKey carries the instance name on streaming calls.
const InstanceMetadataKey = "libretto-instance"

type (
	StoreServer     = grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.BoolValue]
	ReplicateServer = grpc.ClientStreamingServer[wrapperspb.BytesValue, wrapperspb.BoolValue]
)

// DfsServer is the server API for the storage service.
type DfsServer interface {
	// Store receives an instance image as a stream of chunks.
	Store(StoreServer) error
	// Launch asks for the named instance to be started.
	Launch(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Heartbeat reports a node as alive.
	Heartbeat(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	// Replicate receives instance data to replicate as a stream of chunks.
	Replicate(ReplicateServer) error
}

// RegisterDfsServer registers srv on s.
func RegisterDfsServer(s grpc.ServiceRegistrar, srv DfsServer) {
	s.RegisterService(&DfsService_ServiceDesc, srv)
}

func _DfsService_Store_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(DfsServer).Store(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BoolValue]{ServerStream: stream})
}

func _DfsService_Replicate_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(DfsServer).Replicate(&grpc.GenericServerStream[wrapperspb.BytesValue, wrapperspb.BoolValue]{ServerStream: stream})
}

func _DfsService_Launch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DfsServer).Launch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: LaunchMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DfsServer).Launch(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _DfsService_Heartbeat_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DfsServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HeartbeatMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DfsServer).Heartbeat(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// DfsService_ServiceDesc describes the storage service. The messages are the
// well-known wrapper types, so no generated code is needed.
var DfsService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DfsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Launch",
			Handler:    _DfsService_Launch_Handler,
		},
		{
			MethodName: "Heartbeat",
			Handler:    _DfsService_Heartbeat_Handler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Store",
			Handler:       _DfsService_Store_Handler,
			ClientStreams: true,
		},
		{
			StreamName:    "Replicate",
			Handler:       _DfsService_Replicate_Handler,
			ClientStreams: true,
		},
	},
	Metadata: "libretto/dfs.proto",
}
