package manager

import (
	"context"

	"google.golang.org/grpc"
)

// emptyReply is the JSON-codec equivalent of google.protobuf.Empty for
// handlers that return nothing but an error.
type emptyReply struct{}

func _Cluster_JoinCluster_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(joinClusterRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.joinCluster(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sokovan.Cluster/JoinCluster"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.joinCluster(ctx, req.(*joinClusterRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Cluster_GenerateJoinToken_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(generateJoinTokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.generateJoinToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sokovan.Cluster/GenerateJoinToken"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.generateJoinToken(ctx, req.(*generateJoinTokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Cluster_GetClusterInfo_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptyReply)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.getClusterInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sokovan.Cluster/GetClusterInfo"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.getClusterInfo(ctx, req.(*emptyReply))
	}
	return interceptor(ctx, in, info, handler)
}

var clusterServiceDesc = grpc.ServiceDesc{
	ServiceName: "sokovan.Cluster",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "JoinCluster", Handler: _Cluster_JoinCluster_Handler},
		{MethodName: "GenerateJoinToken", Handler: _Cluster_GenerateJoinToken_Handler},
		{MethodName: "GetClusterInfo", Handler: _Cluster_GetClusterInfo_Handler},
	},
	Metadata: "sokovan/cluster",
}

func _Enrollment_RequestCertificate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(requestCertificateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.requestCertificate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sokovan.Enrollment/RequestCertificate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.requestCertificate(ctx, req.(*requestCertificateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var enrollmentServiceDesc = grpc.ServiceDesc{
	ServiceName: "sokovan.Enrollment",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestCertificate", Handler: _Enrollment_RequestCertificate_Handler},
	},
	Metadata: "sokovan/enrollment",
}

func _Agent_ReportKernelEvent_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(reportKernelEventRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.reportKernelEvent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/sokovan.Agent/ReportKernelEvent"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.reportKernelEvent(ctx, req.(*reportKernelEventRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var agentEventServiceDesc = grpc.ServiceDesc{
	ServiceName: "sokovan.AgentEvents",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReportKernelEvent", Handler: _Agent_ReportKernelEvent_Handler},
	},
	Metadata: "sokovan/agentevents",
}
