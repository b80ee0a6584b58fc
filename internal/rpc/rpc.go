// Package rpc declares the paywall.v1.Paywall gRPC service. Messages are the
// protobuf well-known wrapper types; structured payloads travel as JSON in a
// BytesValue so the gRPC and HTTP transports share one encoding.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "paywall.v1.Paywall"

// Full method names, as seen by interceptors.
const (
	MethodSubmitTransaction = "/" + ServiceName + "/SubmitTransaction"
	MethodGetAccount        = "/" + ServiceName + "/GetAccount"
	MethodHasPurchased      = "/" + ServiceName + "/HasPurchased"
	MethodHealth            = "/" + ServiceName + "/Health"
)

// PaywallServer is implemented by the server.
type PaywallServer interface {
	// SubmitTransaction takes a JSON instruction.Transaction and returns the
	// JSON ledger.Result.
	SubmitTransaction(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	// GetAccount takes a base58 address and returns the JSON model.Account.
	GetAccount(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	// HasPurchased takes a JSON PurchaseQuery.
	HasPurchased(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
	Health(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// PurchaseQuery is the HasPurchased request payload.
type PurchaseQuery struct {
	Article string `json:"article"`
	Buyer   string `json:"buyer"`
}

// unary builds a grpc.MethodHandler that decodes a Req and dispatches to call
// through the interceptor chain.
func unary[Req, Resp any](method string, call func(PaywallServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PaywallServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PaywallServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the Paywall service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaywallServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitTransaction", Handler: unary(MethodSubmitTransaction, PaywallServer.SubmitTransaction)},
		{MethodName: "GetAccount", Handler: unary(MethodGetAccount, PaywallServer.GetAccount)},
		{MethodName: "HasPurchased", Handler: unary(MethodHasPurchased, PaywallServer.HasPurchased)},
		{MethodName: "Health", Handler: unary(MethodHealth, PaywallServer.Health)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "paywall/v1/paywall.proto",
}

// RegisterPaywallServer registers srv with s.
func RegisterPaywallServer(s grpc.ServiceRegistrar, srv PaywallServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// PaywallClient calls the Paywall service over a client connection.
type PaywallClient struct {
	cc grpc.ClientConnInterface
}

func NewPaywallClient(cc grpc.ClientConnInterface) *PaywallClient {
	return &PaywallClient{cc: cc}
}

func (c *PaywallClient) SubmitTransaction(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, MethodSubmitTransaction, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaywallClient) GetAccount(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, MethodGetAccount, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaywallClient) HasPurchased(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MethodHasPurchased, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaywallClient) Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodHealth, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
