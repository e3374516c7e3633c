package anomalyv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AnomalyEngineClient is the client API for the AnomalyEngine service.
type AnomalyEngineClient interface {
	DetectAnomalies(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetThreshold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetThreshold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetConfig(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateConfig(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetLastAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ClearAlertHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAlertDigest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	WatchAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (AnomalyEngine_WatchAlertsClient, error)
}

// AnomalyEngine_WatchAlertsClient is the client side of the WatchAlerts stream.
type AnomalyEngine_WatchAlertsClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type anomalyEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewAnomalyEngineClient wraps cc.
func NewAnomalyEngineClient(cc grpc.ClientConnInterface) AnomalyEngineClient {
	return &anomalyEngineClient{cc}
}

func (c *anomalyEngineClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *anomalyEngineClient) DetectAnomalies(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodDetectAnomalies, in, opts)
}

func (c *anomalyEngineClient) SetThreshold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodSetThreshold, in, opts)
}

func (c *anomalyEngineClient) GetThreshold(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetThreshold, in, opts)
}

func (c *anomalyEngineClient) GetConfig(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetConfig, in, opts)
}

func (c *anomalyEngineClient) UpdateConfig(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodUpdateConfig, in, opts)
}

func (c *anomalyEngineClient) GetLastAlert(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetLastAlert, in, opts)
}

func (c *anomalyEngineClient) ClearAlertHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodClearAlertHistory, in, opts)
}

func (c *anomalyEngineClient) ListAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodListAlerts, in, opts)
}

func (c *anomalyEngineClient) GetAlertDigest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodGetAlertDigest, in, opts)
}

func (c *anomalyEngineClient) WatchAlerts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (AnomalyEngine_WatchAlertsClient, error) {
	stream, err := c.cc.NewStream(ctx, &AnomalyEngine_ServiceDesc.Streams[0], MethodWatchAlerts, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchAlertsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type watchAlertsClient struct {
	grpc.ClientStream
}

func (x *watchAlertsClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
