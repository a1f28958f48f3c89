package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const billingServiceName = "billing.BillingService"

// BillingServiceServer is the server API for billing.BillingService. Messages travel as
// google.protobuf.Struct and are decoded into the HTTP request types.
type BillingServiceServer interface {
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunBillingCycle(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChargeSubscription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSubscription(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ManageSubscription(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structMethod func(BillingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func structHandler(method string, call structMethod) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BillingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + billingServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BillingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var BillingServiceDesc = grpc.ServiceDesc{
	ServiceName: billingServiceName,
	HandlerType: (*BillingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Health", Handler: structHandler("Health", BillingServiceServer.Health)},
		{MethodName: "RunBillingCycle", Handler: structHandler("RunBillingCycle", BillingServiceServer.RunBillingCycle)},
		{MethodName: "ChargeSubscription", Handler: structHandler("ChargeSubscription", BillingServiceServer.ChargeSubscription)},
		{MethodName: "GetSubscription", Handler: structHandler("GetSubscription", BillingServiceServer.GetSubscription)},
		{MethodName: "ManageSubscription", Handler: structHandler("ManageSubscription", BillingServiceServer.ManageSubscription)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "billing.proto",
}

func RegisterBillingServiceServer(s grpc.ServiceRegistrar, srv BillingServiceServer) {
	s.RegisterService(&BillingServiceDesc, srv)
}

// BillingServiceClient calls billing.BillingService over an existing connection.
type BillingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBillingServiceClient(cc grpc.ClientConnInterface) *BillingServiceClient {
	return &BillingServiceClient{cc: cc}
}

func (c *BillingServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+billingServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
