package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func testAddress(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}
	return a
}

func TestAccountKind_IsValid(t *testing.T) {
	for _, tc := range []struct {
		kind AccountKind
		want bool
	}{
		{AccountArticle, true},
		{AccountReceipt, true},
		{AccountFeeConfig, true},
		{AccountTokenAccount, true},
		{AccountAccessToken, true},
		{AccountKind(""), false},
		{AccountKind("mint"), false},
	} {
		if got := tc.kind.IsValid(); got != tc.want {
			t.Errorf("AccountKind(%q).IsValid() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestAddress_RoundTrip(t *testing.T) {
	a := testAddress(7)
	parsed, err := ParseAddress(a.String())
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch: %s != %s", parsed, a)
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"`+a.String()+`"` {
		t.Fatalf("json = %s, want quoted base58", data)
	}
	var back Address
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != a {
		t.Fatalf("json round trip mismatch")
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"0OIl",   // not in the base58 alphabet
		"3yZe7d", // valid base58, wrong length
		strings.Repeat("1", 40),
	} {
		if _, err := ParseAddress(in); err == nil {
			t.Errorf("ParseAddress(%q): expected error", in)
		}
	}
}

func TestAddress_Scan(t *testing.T) {
	a := testAddress(3)
	var got Address
	if err := got.Scan(a.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if got != a {
		t.Fatal("scan string mismatch")
	}
	if err := got.Scan([]byte(a.String())); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if err := got.Scan(nil); err == nil {
		t.Fatal("expected error scanning NULL")
	}
	if err := got.Scan(42); err == nil {
		t.Fatal("expected error scanning int")
	}
}

func TestAddress_Short(t *testing.T) {
	a := testAddress(9)
	if got := a.Short(8); len(got) != 8 || !strings.HasPrefix(a.String(), got) {
		t.Fatalf("Short(8) = %q", got)
	}
	if got := a.Short(1000); got != a.String() {
		t.Fatalf("Short(1000) = %q, want full string", got)
	}
}

func TestAccount_Validate(t *testing.T) {
	art := &Article{Address: testAddress(1)}
	rec := &Receipt{Address: testAddress(2)}

	if err := ArticleAccount(art).Validate(); err != nil {
		t.Fatalf("article account: %v", err)
	}
	if err := ReceiptAccount(rec).Validate(); err != nil {
		t.Fatalf("receipt account: %v", err)
	}

	for name, acct := range map[string]*Account{
		"empty":        {Kind: AccountArticle},
		"two payloads": {Kind: AccountArticle, Article: art, Receipt: rec},
		"wrong kind":   {Kind: AccountReceipt, Article: art},
		"unknown kind": {Kind: "mint", Article: art},
	} {
		if err := acct.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestAccount_Address(t *testing.T) {
	for _, acct := range []*Account{
		ArticleAccount(&Article{Address: testAddress(1)}),
		ReceiptAccount(&Receipt{Address: testAddress(1)}),
		FeeConfigAccount(&FeeConfig{Address: testAddress(1)}),
		TokenAccountAccount(&TokenAccount{Address: testAddress(1)}),
		AccessTokenAccount(&AccessToken{Address: testAddress(1)}),
	} {
		if acct.Address() != testAddress(1) {
			t.Errorf("%s: Address() mismatch", acct.Kind)
		}
	}
}

func TestAccount_UnmarshalJSONRejectsMismatch(t *testing.T) {
	data, err := json.Marshal(ArticleAccount(&Article{Address: testAddress(1), Price: 5}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if acct.Kind != AccountArticle || acct.Article.Price != 5 {
		t.Fatalf("got %+v", acct)
	}

	bad := strings.Replace(string(data), `"kind":"article"`, `"kind":"receipt"`, 1)
	if err := json.Unmarshal([]byte(bad), &acct); err == nil {
		t.Fatal("expected error for kind/payload mismatch")
	}
}

func TestAccessTokenMetadata(t *testing.T) {
	a := testAddress(5)
	if got := AccessTokenName(a); got != "Access to Article #"+a.String()[:8] {
		t.Errorf("AccessTokenName = %q", got)
	}
	if got := AccessTokenURI("lit://abc"); got != "lit://abc?access_token=true" {
		t.Errorf("AccessTokenURI = %q", got)
	}
}
