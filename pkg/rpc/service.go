package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "whiteboard.v1.SnapshotStore"

// SnapshotStoreServer is implemented by the server side of the service
type SnapshotStoreServer interface {
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
	List(context.Context, *ListRequest) (*ListResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	GetCurrent(context.Context, *GetCurrentRequest) (*GetCurrentResponse, error)
	PutCurrent(context.Context, *PutCurrentRequest) (*PutCurrentResponse, error)
	ListVersions(context.Context, *ListVersionsRequest) (*ListVersionsResponse, error)
	Restore(context.Context, *RestoreRequest) (*RestoreResponse, error)
}

// RegisterSnapshotStoreServer registers srv on s
func RegisterSnapshotStoreServer(s grpc.ServiceRegistrar, srv SnapshotStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary builds a method handler for one request type
func unary[Req any, Resp any](method string, call func(SnapshotStoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SnapshotStoreServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SnapshotStoreServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the service for grpc.Server registration
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SnapshotStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Create", SnapshotStoreServer.Create),
		unary("List", SnapshotStoreServer.List),
		unary("Get", SnapshotStoreServer.Get),
		unary("GetCurrent", SnapshotStoreServer.GetCurrent),
		unary("PutCurrent", SnapshotStoreServer.PutCurrent),
		unary("ListVersions", SnapshotStoreServer.ListVersions),
		unary("Restore", SnapshotStoreServer.Restore),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "whiteboard/v1/snapshot_store.json",
}
