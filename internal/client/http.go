package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
)

// HTTPClient implements Client using the paywall HTTP/JSON REST API, and
// adds the list and lookup views only that API serves.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Transactions ---

func (c *HTTPClient) Submit(ctx context.Context, tx *instruction.Transaction) (*ledger.Result, error) {
	var res ledger.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/transactions", tx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Accounts ---

func (c *HTTPClient) GetAccount(ctx context.Context, addr model.Address) (*model.Account, error) {
	var acct model.Account
	if err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+addr.String(), nil, &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, addr model.Address) ([]*model.Event, error) {
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/accounts/"+addr.String()+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// --- Articles ---

func (c *HTTPClient) GetArticle(ctx context.Context, addr model.Address) (*model.Article, error) {
	var a model.Article
	if err := c.doJSON(ctx, http.MethodGet, "/v1/articles/"+addr.String(), nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *HTTPClient) ListArticles(ctx context.Context, filter model.ArticleFilter) (*ListArticlesResponse, error) {
	q := url.Values{}
	if filter.Creator != nil {
		q.Set("creator", filter.Creator.String())
	}
	setPage(q, filter.Limit, filter.Offset)

	var resp ListArticlesResponse
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/articles", q), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) HasPurchased(ctx context.Context, article, buyer model.Address) (bool, error) {
	var resp struct {
		Purchased bool `json:"purchased"`
	}
	path := "/v1/articles/" + article.String() + "/purchasers/" + buyer.String()
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Purchased, nil
}

// --- Receipts ---

func (c *HTTPClient) GetReceipt(ctx context.Context, addr model.Address) (*model.Receipt, error) {
	var r model.Receipt
	if err := c.doJSON(ctx, http.MethodGet, "/v1/receipts/"+addr.String(), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReceipts lists receipts by buyer or, when only Article is set, by article.
func (c *HTTPClient) ListReceipts(ctx context.Context, filter model.ReceiptFilter) ([]*model.Receipt, error) {
	var path string
	switch {
	case filter.Buyer != nil:
		path = "/v1/buyers/" + filter.Buyer.String() + "/receipts"
	case filter.Article != nil:
		path = "/v1/articles/" + filter.Article.String() + "/receipts"
	default:
		return nil, fmt.Errorf("list receipts: buyer or article is required")
	}
	q := url.Values{}
	setPage(q, filter.Limit, filter.Offset)

	var resp struct {
		Receipts []*model.Receipt `json:"receipts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery(path, q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

// --- Fees and tokens ---

func (c *HTTPClient) GetFeeConfig(ctx context.Context) (*model.FeeConfig, error) {
	var cfg model.FeeConfig
	if err := c.doJSON(ctx, http.MethodGet, "/v1/fee-config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) GetTokenAccount(ctx context.Context, addr model.Address) (*model.TokenAccount, error) {
	var t model.TokenAccount
	if err := c.doJSON(ctx, http.MethodGet, "/v1/token-accounts/"+addr.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) ListTokenAccounts(ctx context.Context, filter model.TokenAccountFilter) ([]*model.TokenAccount, error) {
	q := url.Values{}
	if filter.Owner != nil {
		q.Set("owner", filter.Owner.String())
	}
	if filter.Asset != nil {
		q.Set("asset", filter.Asset.String())
	}
	var resp struct {
		TokenAccounts []*model.TokenAccount `json:"token_accounts"`
	}
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/token-accounts", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.TokenAccounts, nil
}

func (c *HTTPClient) GetAccessToken(ctx context.Context, addr model.Address) (*model.AccessToken, error) {
	var t model.AccessToken
	if err := c.doJSON(ctx, http.MethodGet, "/v1/access-tokens/"+addr.String(), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeriveAddress asks the server for the address of kind given its seeds,
// e.g. {"creator": ..., "sequence": "1"} for an article.
func (c *HTTPClient) DeriveAddress(ctx context.Context, kind model.AccountKind, seeds map[string]string) (model.Address, error) {
	q := url.Values{}
	for k, v := range seeds {
		q.Set(k, v)
	}
	var resp struct {
		Address model.Address `json:"address"`
	}
	path := withQuery("/v1/addresses/"+url.PathEscape(string(kind)), q)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return model.Address{}, err
	}
	return resp.Address, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- Snapshot ---

// Snapshot copies the server's JSONL ledger snapshot to w and returns its
// digest.
func (c *HTTPClient) Snapshot(ctx context.Context, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/snapshot", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", decodeAPIError(resp.StatusCode, body)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("reading snapshot: %w", err)
	}
	return strings.Trim(resp.Header.Get("ETag"), `"`), nil
}

// --- internal helpers ---

func setPage(q url.Values, limit, offset int) {
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// decodeAPIError builds an APIError from an error response body, keeping
// the ledger code when the server sent one.
func decodeAPIError(status int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: status, Code: ledger.Code(errResp.Code), Message: errResp.Error}
	}
	return &APIError{StatusCode: status, Message: string(body)}
}
