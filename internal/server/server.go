// Package server exposes the ledger over HTTP and gRPC. Transports only
// decode requests, call the ledger, and map ledger error codes to status
// codes; all state changes happen inside the ledger.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/paywall/internal/ledger"
)

// PaywallServer implements the HTTP handlers and rpc.PaywallServer.
type PaywallServer struct {
	ledger  *ledger.Ledger
	hub     *EventHub
	metrics *Metrics
}

// NewPaywallServer returns a server for l. hub should also be among the
// ledger's publishers so committed events reach SSE clients. A nil hub or
// metrics gets a private instance.
func NewPaywallServer(l *ledger.Ledger, hub *EventHub, m *Metrics) *PaywallServer {
	if hub == nil {
		hub = NewEventHub()
	}
	if m == nil {
		m = NewMetrics()
	}
	m.trackSSEClients(hub)
	return &PaywallServer{ledger: l, hub: hub, metrics: m}
}

// Metrics returns the server's collectors.
func (s *PaywallServer) Metrics() *Metrics {
	return s.metrics
}

// inputError indicates invalid user input.
// Transport layers map this to 400 / InvalidArgument.
type inputError string

func (e inputError) Error() string { return string(e) }

// httpStatus maps a ledger code to an HTTP status.
func httpStatus(code ledger.Code) int {
	if code.IsNotFound() {
		return http.StatusNotFound
	}
	switch code.Category() {
	case ledger.CategoryAuthorization:
		return http.StatusForbidden
	case ledger.CategoryState:
		return http.StatusConflict
	case ledger.CategoryResource:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// grpcCode maps a ledger code to a gRPC status code.
func grpcCode(code ledger.Code) codes.Code {
	if code.IsNotFound() {
		return codes.NotFound
	}
	switch code.Category() {
	case ledger.CategoryAuthorization:
		return codes.PermissionDenied
	case ledger.CategoryState, ledger.CategoryResource:
		return codes.FailedPrecondition
	}
	return codes.InvalidArgument
}

// toStatus converts an error from the ledger into a gRPC status. The ledger
// code leads the message so clients can recover it.
func toStatus(err error) error {
	if code := ledger.CodeOf(err); code != "" {
		return status.Error(grpcCode(code), err.Error())
	}
	var ie inputError
	if errors.As(err, &ie) {
		return status.Error(codes.InvalidArgument, ie.Error())
	}
	slog.Error("internal error", "error", err)
	return status.Error(codes.Internal, "internal server error")
}
