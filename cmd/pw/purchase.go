package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/ui"
)

var purchaseCmd = &cobra.Command{
	Use:     "purchase <article>",
	Short:   "Buy an article with your keypair",
	GroupID: "market",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		article, err := parseAddress("article", args[0])
		if err != nil {
			return err
		}
		referrer, err := addressFlag(cmd, "referrer")
		if err != nil {
			return err
		}

		asset, err := addressFlag(cmd, "asset")
		if err != nil {
			return err
		}
		if asset == nil {
			// Pay in whatever the article is priced in.
			acct, err := api.GetAccount(ctx, article)
			if err != nil {
				return err
			}
			if acct.Kind != model.AccountArticle {
				return fmt.Errorf("%s is a %s account, not an article", article, acct.Kind)
			}
			asset = &acct.Article.PaymentAsset
		}

		res, err := submit(ctx, instruction.NewPurchase(instruction.Purchase{
			Article:      article,
			PaymentAsset: *asset,
			Referrer:     referrer,
		}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var hasPurchasedCmd = &cobra.Command{
	Use:     "has-purchased <article>",
	Short:   "Check whether a buyer holds a receipt for an article",
	GroupID: "market",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		article, err := parseAddress("article", args[0])
		if err != nil {
			return err
		}
		buyer, err := addressOrSelf(cmd, "buyer")
		if err != nil {
			return err
		}
		ok, err := api.HasPurchased(cmd.Context(), article, buyer)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]any{"article": article, "buyer": buyer, "purchased": ok})
			return nil
		}
		if ok {
			fmt.Fprintln(out, ui.RenderOK("purchased"))
		} else {
			fmt.Fprintln(out, ui.RenderFail("not purchased"))
		}
		return nil
	},
}

var receiptCmd = &cobra.Command{
	Use:     "receipt",
	Short:   "Inspect purchase receipts",
	GroupID: "market",
}

var receiptShowCmd = &cobra.Command{
	Use:   "show <receipt>",
	Short: "Show a receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress("receipt", args[0])
		if err != nil {
			return err
		}
		r, err := httpAPI.GetReceipt(cmd.Context(), addr)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(r)
			return nil
		}
		printReceipt(r)
		return nil
	},
}

var receiptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List receipts held by a buyer (default: your keypair)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		buyer, err := addressOrSelf(cmd, "buyer")
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		receipts, err := httpAPI.ListReceipts(cmd.Context(), model.ReceiptFilter{Buyer: &buyer, Limit: limit, Offset: offset})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(receipts)
			return nil
		}
		printReceiptList(receipts)
		return nil
	},
}

func init() {
	purchaseCmd.Flags().String("referrer", "", "referrer paid the referral fee")
	purchaseCmd.Flags().String("asset", "", "payment asset (default: the article's)")

	hasPurchasedCmd.Flags().String("buyer", "", "buyer to check (default: your keypair)")

	receiptListCmd.Flags().String("buyer", "", "buyer (default: your keypair)")
	receiptListCmd.Flags().Int("limit", 50, "maximum receipts to return")
	receiptListCmd.Flags().Int("offset", 0, "receipts to skip")

	receiptCmd.AddCommand(receiptShowCmd)
	receiptCmd.AddCommand(receiptListCmd)
}
