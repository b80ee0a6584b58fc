package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/rpc"
)

// LoggingInterceptor logs every unary RPC. Calls the ledger rejected (a
// purchase of an owned article, a bad signature) log at warn with the
// ledger code; failures without a code log at error.
func LoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}

	switch {
	case err == nil:
		slog.Info("rpc completed", attrs...)
	case statusLedgerCode(err) != "":
		slog.Warn("rpc rejected", append(attrs, "code", statusLedgerCode(err), "error", err)...)
	default:
		slog.Error("rpc failed", append(attrs, "error", err)...)
	}
	return resp, err
}

// statusLedgerCode recovers the ledger code that toStatus puts at the front
// of a status message.
func statusLedgerCode(err error) ledger.Code {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	code, _, _ := strings.Cut(st.Message(), ":")
	if c := ledger.Code(code); c.IsValid() {
		return c
	}
	return ""
}

// RecoveryInterceptor turns a panic in a handler into codes.Internal.
func RecoveryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic recovered in gRPC handler",
				"method", info.FullMethod,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = status.Errorf(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// Bearer token failures, shared by both transports.
var (
	errMissingAuth  = errors.New("missing authorization header")
	errAuthScheme   = errors.New("invalid authorization scheme")
	errInvalidToken = errors.New("invalid token")
)

// checkBearer validates an Authorization header value against token in
// constant time.
func checkBearer(header, token string) error {
	if header == "" {
		return errMissingAuth
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errAuthScheme
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return errInvalidToken
	}
	return nil
}

// AuthInterceptor returns a gRPC unary interceptor that requires
// "authorization: Bearer <token>" metadata. An empty token disables auth.
// Health is always exempt.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if token == "" || info.FullMethod == rpc.MethodHealth {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		if err := checkBearer(header, token); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

// UnaryInterceptor counts RPCs by method and status code.
func (m *Metrics) UnaryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	m.rpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}

// publicRoutes are served without a bearer token.
var publicRoutes = map[string]bool{
	"/v1/health": true,
	"/metrics":   true,
}

// AuthMiddleware requires "Authorization: Bearer <token>" on every request
// except GETs of the public routes. An empty token disables auth.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && publicRoutes[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if err := checkBearer(r.Header.Get("Authorization"), token); err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
