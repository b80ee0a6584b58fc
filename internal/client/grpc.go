package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/rpc"
)

// GRPCClient implements Client using the gRPC transport.
type GRPCClient struct {
	conn   *grpc.ClientConn
	client *rpc.PaywallClient
	token  string
}

var _ Client = (*GRPCClient)(nil)

// NewGRPCClient connects to the given gRPC address and returns a client.
func NewGRPCClient(addr, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &GRPCClient{
		conn:   conn,
		client: rpc.NewPaywallClient(conn),
		token:  token,
	}, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCClient) Submit(ctx context.Context, tx *instruction.Transaction) (*ledger.Result, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshaling transaction: %w", err)
	}
	resp, err := c.client.SubmitTransaction(c.outgoing(ctx), wrapperspb.Bytes(data))
	if err != nil {
		return nil, fromStatus(err)
	}
	var res ledger.Result
	if err := json.Unmarshal(resp.GetValue(), &res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return &res, nil
}

func (c *GRPCClient) GetAccount(ctx context.Context, addr model.Address) (*model.Account, error) {
	resp, err := c.client.GetAccount(c.outgoing(ctx), wrapperspb.String(addr.String()))
	if err != nil {
		return nil, fromStatus(err)
	}
	var acct model.Account
	if err := json.Unmarshal(resp.GetValue(), &acct); err != nil {
		return nil, fmt.Errorf("decoding account: %w", err)
	}
	return &acct, nil
}

func (c *GRPCClient) HasPurchased(ctx context.Context, article, buyer model.Address) (bool, error) {
	q, err := json.Marshal(rpc.PurchaseQuery{Article: article.String(), Buyer: buyer.String()})
	if err != nil {
		return false, err
	}
	resp, err := c.client.HasPurchased(c.outgoing(ctx), wrapperspb.Bytes(q))
	if err != nil {
		return false, fromStatus(err)
	}
	return resp.GetValue(), nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	resp, err := c.client.Health(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return "", fromStatus(err)
	}
	return resp.GetValue(), nil
}

func (c *GRPCClient) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

// fromStatus converts a gRPC status into an APIError carrying the ledger
// code the server put at the front of the message.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	apiErr := &APIError{StatusCode: httpStatusOf(st.Code()), Message: st.Message()}
	if code, _, _ := strings.Cut(st.Message(), ":"); ledger.Code(code).IsValid() {
		apiErr.Code = ledger.Code(code)
	}
	return apiErr
}

// httpStatusOf maps gRPC codes onto the statuses the HTTP API uses, so
// callers can treat both transports alike.
func httpStatusOf(c codes.Code) int {
	switch c {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
