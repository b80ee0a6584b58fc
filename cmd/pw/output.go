package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

var out io.Writer = os.Stdout

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(out, string(data))
}

func printResult(r *ledger.Result) {
	if jsonOutput {
		printJSON(r)
		return
	}
	fmt.Fprintf(out, "%s %s\n", ui.RenderOK("committed"), ui.RenderMuted(r.TxID))
	for _, a := range r.Accounts {
		fmt.Fprintln(out)
		printAccount(a)
	}
}

func printAccount(a *model.Account) {
	switch a.Kind {
	case model.AccountArticle:
		printArticle(a.Article)
	case model.AccountReceipt:
		printReceipt(a.Receipt)
	case model.AccountFeeConfig:
		printFeeConfig(a.FeeConfig)
	case model.AccountTokenAccount:
		printTokenAccount(a.TokenAccount)
	case model.AccountAccessToken:
		printAccessToken(a.AccessToken)
	}
}

func printArticle(a *model.Article) {
	fmt.Fprintf(out, "Article:       %s\n", ui.RenderAccent(a.Address.String()))
	fmt.Fprintf(out, "Creator:       %s\n", a.Creator)
	fmt.Fprintf(out, "Sequence:      %d\n", a.Sequence)
	fmt.Fprintf(out, "Content:       %s\n", a.ContentLocator)
	fmt.Fprintf(out, "Price:         %d\n", a.Price)
	fmt.Fprintf(out, "Asset:         %s\n", a.PaymentAsset)
	fmt.Fprintf(out, "Royalty:       %s\n", bps(a.RoyaltyBps))
	fmt.Fprintf(out, "Transferable:  %t\n", a.Transferable)
	fmt.Fprintf(out, "Sales:         %d\n", a.Sales)
	if !a.CreatedAt.IsZero() {
		fmt.Fprintf(out, "Created At:    %s\n", a.CreatedAt.Format(timeLayout))
	}
	if !a.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated At:    %s\n", a.UpdatedAt.Format(timeLayout))
	}
}

func printReceipt(r *model.Receipt) {
	fmt.Fprintf(out, "Receipt:       %s\n", ui.RenderAccent(r.Address.String()))
	fmt.Fprintf(out, "Article:       %s\n", r.Article)
	fmt.Fprintf(out, "Buyer:         %s\n", r.Buyer)
	fmt.Fprintf(out, "Paid:          %d\n", r.PaidAmount)
	fmt.Fprintf(out, "Purchased At:  %s\n", r.PurchasedAt.Format(timeLayout))
}

func printFeeConfig(f *model.FeeConfig) {
	fmt.Fprintf(out, "Fee Config:    %s\n", ui.RenderAccent(f.Address.String()))
	fmt.Fprintf(out, "Admin:         %s\n", f.Admin)
	fmt.Fprintf(out, "Protocol Fee:  %s\n", bps(f.ProtocolFeeBps))
	fmt.Fprintf(out, "Referrer Fee:  %s\n", bps(f.ReferrerFeeBps))
	fmt.Fprintf(out, "Treasury:      %s\n", f.Treasury)
}

func printTokenAccount(t *model.TokenAccount) {
	fmt.Fprintf(out, "Token Account: %s\n", ui.RenderAccent(t.Address.String()))
	fmt.Fprintf(out, "Owner:         %s\n", t.Owner)
	fmt.Fprintf(out, "Asset:         %s\n", t.Asset)
	fmt.Fprintf(out, "Balance:       %d\n", t.Amount)
}

func printAccessToken(t *model.AccessToken) {
	fmt.Fprintf(out, "Access Token:  %s\n", ui.RenderAccent(t.Address.String()))
	fmt.Fprintf(out, "Name:          %s\n", t.Name)
	fmt.Fprintf(out, "URI:           %s\n", t.URI)
	fmt.Fprintf(out, "Buyer:         %s\n", t.Buyer)
	fmt.Fprintf(out, "Transferable:  %t\n", t.Transferable)
}

func printArticleList(articles []*model.Article, total int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSEQ\tPRICE\tROYALTY\tSALES\tCONTENT")
	for _, a := range articles {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%s\n",
			a.Address, a.Sequence, a.Price, bps(a.RoyaltyBps), a.Sales, truncate(a.ContentLocator, locatorWidth()))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d articles (%d total)\n", len(articles), total)
}

func printReceiptList(receipts []*model.Receipt) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIPT\tARTICLE\tBUYER\tPAID\tPURCHASED")
	for _, r := range receipts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.Address.Short(12), r.Article.Short(12), r.Buyer.Short(12), r.PaidAmount, r.PurchasedAt.Format(timeLayout))
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d receipts\n", len(receipts))
}

func printTokenAccountList(accounts []*model.TokenAccount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tOWNER\tASSET\tBALANCE")
	for _, t := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.Address.Short(12), t.Owner.Short(12), t.Asset.Short(12), t.Amount)
	}
	w.Flush()
}

// bps renders basis points as a percentage, e.g. 250 -> "2.50%".
func bps(v uint16) string {
	return fmt.Sprintf("%d.%02d%%", v/100, v%100)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// locatorWidth fits the CONTENT column of the article table to the
// terminal; the columns before it take about 85.
func locatorWidth() int {
	return min(max(ui.Width(out, 125)-85, 20), 120)
}
