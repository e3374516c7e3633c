// Package anomalyv1 declares the koperasi.anomaly.v1.AnomalyEngine gRPC service. Messages are
// google.protobuf.Struct values so the service needs no generated message types.
package anomalyv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "koperasi.anomaly.v1.AnomalyEngine"

// Full method names.
const (
	MethodDetectAnomalies   = "/" + ServiceName + "/DetectAnomalies"
	MethodSetThreshold      = "/" + ServiceName + "/SetThreshold"
	MethodGetThreshold      = "/" + ServiceName + "/GetThreshold"
	MethodGetConfig         = "/" + ServiceName + "/GetConfig"
	MethodUpdateConfig      = "/" + ServiceName + "/UpdateConfig"
	MethodGetLastAlert      = "/" + ServiceName + "/GetLastAlert"
	MethodClearAlertHistory = "/" + ServiceName + "/ClearAlertHistory"
	MethodListAlerts        = "/" + ServiceName + "/ListAlerts"
	MethodGetAlertDigest    = "/" + ServiceName + "/GetAlertDigest"
	MethodWatchAlerts       = "/" + ServiceName + "/WatchAlerts"
)

// AnomalyEngineServer is the server API for the AnomalyEngine service.
type AnomalyEngineServer interface {
	DetectAnomalies(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLastAlert(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearAlertHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAlerts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAlertDigest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchAlerts(*structpb.Struct, AnomalyEngine_WatchAlertsServer) error
}

// AnomalyEngine_WatchAlertsServer is the server side of the WatchAlerts stream.
type AnomalyEngine_WatchAlertsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// UnimplementedAnomalyEngineServer returns Unimplemented for every method.
type UnimplementedAnomalyEngineServer struct{}

func (UnimplementedAnomalyEngineServer) DetectAnomalies(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method DetectAnomalies not implemented")
}
func (UnimplementedAnomalyEngineServer) SetThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SetThreshold not implemented")
}
func (UnimplementedAnomalyEngineServer) GetThreshold(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetThreshold not implemented")
}
func (UnimplementedAnomalyEngineServer) GetConfig(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConfig not implemented")
}
func (UnimplementedAnomalyEngineServer) UpdateConfig(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateConfig not implemented")
}
func (UnimplementedAnomalyEngineServer) GetLastAlert(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLastAlert not implemented")
}
func (UnimplementedAnomalyEngineServer) ClearAlertHistory(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ClearAlertHistory not implemented")
}
func (UnimplementedAnomalyEngineServer) ListAlerts(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListAlerts not implemented")
}
func (UnimplementedAnomalyEngineServer) GetAlertDigest(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetAlertDigest not implemented")
}
func (UnimplementedAnomalyEngineServer) WatchAlerts(*structpb.Struct, AnomalyEngine_WatchAlertsServer) error {
	return status.Error(codes.Unimplemented, "method WatchAlerts not implemented")
}

// RegisterAnomalyEngineServer registers srv on s.
func RegisterAnomalyEngineServer(s grpc.ServiceRegistrar, srv AnomalyEngineServer) {
	s.RegisterService(&AnomalyEngine_ServiceDesc, srv)
}

type unaryCall func(AnomalyEngineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// methodHandler matches grpc.MethodDesc.Handler; grpc v1.66 does not export a name for it.
type methodHandler = func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error)

func unaryHandler(fullMethod string, call unaryCall) methodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AnomalyEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(AnomalyEngineServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchAlertsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AnomalyEngineServer).WatchAlerts(in, &watchAlertsServer{stream})
}

type watchAlertsServer struct {
	grpc.ServerStream
}

func (x *watchAlertsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// AnomalyEngine_ServiceDesc is the grpc.ServiceDesc for the AnomalyEngine service.
var AnomalyEngine_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnomalyEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DetectAnomalies", Handler: unaryHandler(MethodDetectAnomalies, AnomalyEngineServer.DetectAnomalies)},
		{MethodName: "SetThreshold", Handler: unaryHandler(MethodSetThreshold, AnomalyEngineServer.SetThreshold)},
		{MethodName: "GetThreshold", Handler: unaryHandler(MethodGetThreshold, AnomalyEngineServer.GetThreshold)},
		{MethodName: "GetConfig", Handler: unaryHandler(MethodGetConfig, AnomalyEngineServer.GetConfig)},
		{MethodName: "UpdateConfig", Handler: unaryHandler(MethodUpdateConfig, AnomalyEngineServer.UpdateConfig)},
		{MethodName: "GetLastAlert", Handler: unaryHandler(MethodGetLastAlert, AnomalyEngineServer.GetLastAlert)},
		{MethodName: "ClearAlertHistory", Handler: unaryHandler(MethodClearAlertHistory, AnomalyEngineServer.ClearAlertHistory)},
		{MethodName: "ListAlerts", Handler: unaryHandler(MethodListAlerts, AnomalyEngineServer.ListAlerts)},
		{MethodName: "GetAlertDigest", Handler: unaryHandler(MethodGetAlertDigest, AnomalyEngineServer.GetAlertDigest)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchAlerts", Handler: watchAlertsHandler, ServerStreams: true},
	},
	Metadata: "koperasi/anomaly/v1/anomaly.proto",
}
