package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
	paywallsync "github.com/alfredjeanlab/paywall/internal/sync"
)

// maxTransactionBytes bounds a submitted transaction body. The largest
// instruction carries a 256-byte content locator.
const maxTransactionBytes = 16 << 10

// handleSubmitTransaction handles POST /v1/transactions.
func (s *PaywallServer) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var tx instruction.Transaction
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTransactionBytes)).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.ledger.Execute(r.Context(), &tx)
	s.metrics.observeTransaction(tx.Instruction.Kind, err)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// handleGetAccount handles GET /v1/accounts/{address}.
func (s *PaywallServer) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	acct, err := s.ledger.GetAccount(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// handleGetEvents handles GET /v1/accounts/{address}/events.
func (s *PaywallServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	evts, err := s.ledger.Events(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleListArticles handles GET /v1/articles.
func (s *PaywallServer) handleListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter model.ArticleFilter
	if v := q.Get("creator"); v != "" {
		creator, err := model.ParseAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "creator: "+err.Error())
			return
		}
		filter.Creator = &creator
	}
	filter.Limit, filter.Offset = pageParams(r)

	articles, total, err := s.ledger.ListArticles(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	// Ensure articles is never null in JSON output.
	if articles == nil {
		articles = []*model.Article{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"articles": articles,
		"total":    total,
	})
}

// handleGetArticle handles GET /v1/articles/{address}.
func (s *PaywallServer) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	a, err := s.ledger.GetArticle(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleHasPurchased handles GET /v1/articles/{address}/purchasers/{buyer}.
func (s *PaywallServer) handleHasPurchased(w http.ResponseWriter, r *http.Request) {
	article, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	buyer, err := pathAddress(r, "buyer")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ok, err := s.ledger.HasPurchased(r.Context(), article, buyer)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"purchased": ok,
		"receipt":   s.ledger.Addresses().Receipt(article, buyer),
	})
}

// handleListArticleReceipts handles GET /v1/articles/{address}/receipts.
func (s *PaywallServer) handleListArticleReceipts(w http.ResponseWriter, r *http.Request) {
	article, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	filter := model.ReceiptFilter{Article: &article}
	filter.Limit, filter.Offset = pageParams(r)
	s.writeReceipts(w, r, filter)
}

// handleListBuyerReceipts handles GET /v1/buyers/{buyer}/receipts.
func (s *PaywallServer) handleListBuyerReceipts(w http.ResponseWriter, r *http.Request) {
	buyer, err := pathAddress(r, "buyer")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	filter := model.ReceiptFilter{Buyer: &buyer}
	filter.Limit, filter.Offset = pageParams(r)
	s.writeReceipts(w, r, filter)
}

func (s *PaywallServer) writeReceipts(w http.ResponseWriter, r *http.Request, filter model.ReceiptFilter) {
	receipts, err := s.ledger.ListReceipts(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if receipts == nil {
		receipts = []*model.Receipt{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

// handleGetReceipt handles GET /v1/receipts/{address}.
func (s *PaywallServer) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	rec, err := s.ledger.GetReceipt(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetFeeConfig handles GET /v1/fee-config.
func (s *PaywallServer) handleGetFeeConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.ledger.GetFeeConfig(r.Context())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleListTokenAccounts handles GET /v1/token-accounts?owner=&asset=.
func (s *PaywallServer) handleListTokenAccounts(w http.ResponseWriter, r *http.Request) {
	var filter model.TokenAccountFilter
	for _, p := range []struct {
		name string
		dst  **model.Address
	}{{"owner", &filter.Owner}, {"asset", &filter.Asset}} {
		v := r.URL.Query().Get(p.name)
		if v == "" {
			continue
		}
		addr, err := model.ParseAddress(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, p.name+": "+err.Error())
			return
		}
		*p.dst = &addr
	}

	accounts, err := s.ledger.ListTokenAccounts(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*model.TokenAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"token_accounts": accounts})
}

// handleGetTokenAccount handles GET /v1/token-accounts/{address}.
func (s *PaywallServer) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	t, err := s.ledger.GetTokenAccount(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleGetAccessToken handles GET /v1/access-tokens/{address}.
func (s *PaywallServer) handleGetAccessToken(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "address")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	t, err := s.ledger.GetAccessToken(r.Context(), addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleSnapshot handles GET /v1/snapshot. The ETag is the snapshot digest,
// so a client holding the current state gets 304 Not Modified.
func (s *PaywallServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := paywallsync.Take(r.Context(), s.ledger, time.Now())
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	etag := `"` + snap.Digest + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Data)
}

// handleDeriveAddress handles GET /v1/addresses/{kind}. It computes an
// address from query seeds without touching the store.
func (s *PaywallServer) handleDeriveAddress(w http.ResponseWriter, r *http.Request) {
	kind := model.AccountKind(r.PathValue("kind"))
	q := r.URL.Query()
	d := s.ledger.Addresses()

	addrs := map[string]model.Address{}
	need := func(names ...string) error {
		for _, name := range names {
			v := q.Get(name)
			if v == "" {
				return inputError(name + " is required")
			}
			a, err := model.ParseAddress(v)
			if err != nil {
				return inputError(name + ": " + err.Error())
			}
			addrs[name] = a
		}
		return nil
	}

	var (
		out model.Address
		err error
	)
	switch kind {
	case model.AccountArticle:
		var seq uint64
		if err = need("creator"); err != nil {
			break
		}
		if seq, err = strconv.ParseUint(q.Get("sequence"), 10, 64); err != nil {
			err = inputError("sequence must be an unsigned integer")
			break
		}
		out = d.Article(addrs["creator"], seq)
	case model.AccountReceipt:
		if err = need("article", "buyer"); err == nil {
			out = d.Receipt(addrs["article"], addrs["buyer"])
		}
	case model.AccountAccessToken:
		if err = need("article", "buyer"); err == nil {
			out = d.AccessToken(addrs["article"], addrs["buyer"])
		}
	case model.AccountTokenAccount:
		if err = need("owner", "asset"); err == nil {
			out = d.TokenAccount(addrs["owner"], addrs["asset"])
		}
	case model.AccountFeeConfig:
		out = d.FeeConfig()
	default:
		err = inputError("unknown account kind " + strconv.Quote(string(kind)))
	}
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "address": out})
}

// pathAddress parses the named path value as an address.
func pathAddress(r *http.Request, name string) (model.Address, error) {
	v := r.PathValue(name)
	if v == "" {
		return model.Address{}, inputError(name + " is required")
	}
	a, err := model.ParseAddress(v)
	if err != nil {
		return model.Address{}, inputError(name + ": " + err.Error())
	}
	return a, nil
}

// pageParams reads limit and offset, ignoring malformed values.
func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}
