package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/paywall/internal/ledger"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token> header.
// A nil limiter disables rate limiting.
func (s *PaywallServer) NewHTTPHandler(authToken string, limiter *RateLimiter) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transactions", s.handleSubmitTransaction)
	mux.HandleFunc("GET /v1/accounts/{address}", s.handleGetAccount)
	mux.HandleFunc("GET /v1/accounts/{address}/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/articles", s.handleListArticles)
	mux.HandleFunc("GET /v1/articles/{address}", s.handleGetArticle)
	mux.HandleFunc("GET /v1/articles/{address}/purchasers/{buyer}", s.handleHasPurchased)
	mux.HandleFunc("GET /v1/articles/{address}/receipts", s.handleListArticleReceipts)
	mux.HandleFunc("GET /v1/receipts/{address}", s.handleGetReceipt)
	mux.HandleFunc("GET /v1/buyers/{buyer}/receipts", s.handleListBuyerReceipts)
	mux.HandleFunc("GET /v1/fee-config", s.handleGetFeeConfig)
	mux.HandleFunc("GET /v1/token-accounts", s.handleListTokenAccounts)
	mux.HandleFunc("GET /v1/token-accounts/{address}", s.handleGetTokenAccount)
	mux.HandleFunc("GET /v1/access-tokens/{address}", s.handleGetAccessToken)
	mux.HandleFunc("GET /v1/addresses/{kind}", s.handleDeriveAddress)
	mux.HandleFunc("GET /v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = AuthMiddleware(authToken, mux)
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	return s.metrics.InstrumentHandler(h)
}

// handleHealth handles GET /v1/health.
func (s *PaywallServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeLedgerError writes err with the status its ledger code maps to.
// Errors without a code are input errors (400) or internal failures (500).
func writeLedgerError(w http.ResponseWriter, err error) {
	if code := ledger.CodeOf(err); code != "" {
		writeJSON(w, httpStatus(code), errorBody{Error: err.Error(), Code: string(code)})
		return
	}
	var ie inputError
	if errors.As(err, &ie) {
		writeError(w, http.StatusBadRequest, ie.Error())
		return
	}
	slog.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
