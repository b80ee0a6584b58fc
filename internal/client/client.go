// Package client provides a transport-agnostic interface to the paywall
// service and HTTP/JSON and gRPC implementations of it.
package client

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// Client is what the pw CLI needs from any transport: submitting signed
// transactions and the point lookups a buyer or creator performs.
type Client interface {
	Submit(ctx context.Context, tx *instruction.Transaction) (*ledger.Result, error)
	GetAccount(ctx context.Context, addr model.Address) (*model.Account, error)
	HasPurchased(ctx context.Context, article, buyer model.Address) (bool, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// ListArticlesResponse is the response from ListArticles.
type ListArticlesResponse struct {
	Articles []*model.Article `json:"articles"`
	Total    int              `json:"total"`
}

// APIError is a rejection reported by the server. Code is the ledger error
// code when the server supplied one.
type APIError struct {
	StatusCode int
	Code       ledger.Code
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap exposes the ledger code so errors.Is matches ledger sentinels.
func (e *APIError) Unwrap() error {
	if e.Code == "" {
		return nil
	}
	return &ledger.Error{Code: e.Code}
}
