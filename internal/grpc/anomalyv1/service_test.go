package anomalyv1

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type configServer struct {
	UnimplementedAnomalyEngineServer
	got *structpb.Struct
}

func (s *configServer) GetConfig(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s.got = req
	return structpb.NewStruct(map[string]interface{}{"minDataPoints": 10})
}

func methodByName(t *testing.T, name string) grpc.MethodDesc {
	t.Helper()
	for _, m := range AnomalyEngine_ServiceDesc.Methods {
		if m.MethodName == name {
			return m
		}
	}
	t.Fatalf("method %s not registered", name)
	return grpc.MethodDesc{}
}

func decodeInto(src *structpb.Struct) func(interface{}) error {
	return func(dst interface{}) error {
		proto.Merge(dst.(*structpb.Struct), src)
		return nil
	}
}

func TestServiceDescRegistersEveryMethod(t *testing.T) {
	want := []string{"DetectAnomalies", "SetThreshold", "GetThreshold", "GetConfig", "UpdateConfig",
		"GetLastAlert", "ClearAlertHistory", "ListAlerts", "GetAlertDigest"}
	for _, name := range want {
		if m := methodByName(t, name); m.Handler == nil {
			t.Fatalf("method %s has no handler", name)
		}
	}
	if len(AnomalyEngine_ServiceDesc.Streams) != 1 || AnomalyEngine_ServiceDesc.Streams[0].StreamName != "WatchAlerts" {
		t.Fatalf("unexpected streams %+v", AnomalyEngine_ServiceDesc.Streams)
	}
}

func TestUnaryHandlerWithoutInterceptor(t *testing.T) {
	srv := &configServer{}
	req, _ := structpb.NewStruct(map[string]interface{}{"metric": "cash_balance"})

	out, err := methodByName(t, "GetConfig").Handler(srv, context.Background(), decodeInto(req), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.(*structpb.Struct).GetFields()["minDataPoints"].GetNumberValue() != 10 {
		t.Fatalf("unexpected response %v", out)
	}
	if !proto.Equal(srv.got, req) {
		t.Fatalf("server received %v, want %v", srv.got, req)
	}
}

func TestUnaryHandlerRunsInterceptor(t *testing.T) {
	srv := &configServer{}
	var seen string
	interceptor := func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		seen = info.FullMethod
		return handler(ctx, req)
	}

	if _, err := methodByName(t, "GetConfig").Handler(srv, context.Background(), decodeInto(&structpb.Struct{}), interceptor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != MethodGetConfig {
		t.Fatalf("interceptor saw %q, want %q", seen, MethodGetConfig)
	}
}

func TestUnimplementedMethodsReturnUnimplemented(t *testing.T) {
	_, err := methodByName(t, "ListAlerts").Handler(&configServer{}, context.Background(), decodeInto(&structpb.Struct{}), nil)
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}
