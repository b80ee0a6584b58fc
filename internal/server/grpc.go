package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/rpc"
)

var _ rpc.PaywallServer = (*PaywallServer)(nil)

// NewGRPCServer creates a gRPC server with standard interceptors and
// registers the Paywall service. A nil limiter disables rate limiting.
func NewGRPCServer(s *PaywallServer, authToken string, limiter *RateLimiter) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		RecoveryInterceptor,
		LoggingInterceptor,
		s.metrics.UnaryInterceptor,
		AuthInterceptor(authToken),
	}
	if limiter != nil {
		interceptors = append(interceptors, limiter.UnaryInterceptor)
	}
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	rpc.RegisterPaywallServer(srv, s)
	return srv
}

// SubmitTransaction verifies and applies a JSON-encoded signed transaction.
func (s *PaywallServer) SubmitTransaction(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var tx instruction.Transaction
	if err := json.Unmarshal(req.GetValue(), &tx); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid transaction: %v", err)
	}

	res, err := s.ledger.Execute(ctx, &tx)
	s.metrics.observeTransaction(tx.Instruction.Kind, err)
	if err != nil {
		return nil, toStatus(err)
	}
	return marshalValue(res)
}

// GetAccount returns the account at a base58 address.
func (s *PaywallServer) GetAccount(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	addr, err := model.ParseAddress(req.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "address: %v", err)
	}
	acct, err := s.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, toStatus(err)
	}
	return marshalValue(acct)
}

// HasPurchased reports whether a receipt exists for the queried pair.
func (s *PaywallServer) HasPurchased(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	var q rpc.PurchaseQuery
	if err := json.Unmarshal(req.GetValue(), &q); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid query: %v", err)
	}
	article, err := model.ParseAddress(q.Article)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "article: %v", err)
	}
	buyer, err := model.ParseAddress(q.Buyer)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "buyer: %v", err)
	}
	ok, err := s.ledger.HasPurchased(ctx, article, buyer)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

// Health returns the service health status.
func (s *PaywallServer) Health(_ context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("ok"), nil
}

func marshalValue(v any) (*wrapperspb.BytesValue, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}
