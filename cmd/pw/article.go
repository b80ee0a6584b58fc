package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
)

var articleCmd = &cobra.Command{
	Use:     "article",
	Short:   "Create, reprice, and browse articles",
	GroupID: "market",
}

var articleCreateCmd = &cobra.Command{
	Use:   "create <content-locator>",
	Short: "Register a new article signed by your keypair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		price, _ := cmd.Flags().GetUint64("price")
		royalty, _ := cmd.Flags().GetUint16("royalty")
		transferable, _ := cmd.Flags().GetBool("transferable")

		asset, err := addressFlag(cmd, "asset")
		if err != nil {
			return err
		}
		if asset == nil {
			return fmt.Errorf("--asset is required")
		}

		seq, _ := cmd.Flags().GetInt64("sequence")
		if seq < 0 {
			// Next free sequence: creators number their articles from zero.
			creator, err := selfAddress()
			if err != nil {
				return err
			}
			resp, err := httpAPI.ListArticles(ctx, model.ArticleFilter{Creator: &creator, Limit: 1})
			if err != nil {
				return fmt.Errorf("finding next sequence: %w", err)
			}
			seq = int64(resp.Total)
		}

		res, err := submit(ctx, instruction.NewCreateArticle(instruction.CreateArticle{
			Sequence:       uint64(seq),
			ContentLocator: args[0],
			PaymentAsset:   *asset,
			Price:          price,
			RoyaltyBps:     royalty,
			Transferable:   transferable,
		}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var articlePriceCmd = &cobra.Command{
	Use:   "price <article> <new-price>",
	Short: "Change the price of one of your articles",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		article, err := parseAddress("article", args[0])
		if err != nil {
			return err
		}
		price, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("new-price: %w", err)
		}
		res, err := submit(cmd.Context(), instruction.NewSetArticlePrice(instruction.SetArticlePrice{
			Article:  article,
			NewPrice: price,
		}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var articleShowCmd = &cobra.Command{
	Use:   "show <article>",
	Short: "Show an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress("article", args[0])
		if err != nil {
			return err
		}
		acct, err := api.GetAccount(cmd.Context(), addr)
		if err != nil {
			return err
		}
		if acct.Kind != model.AccountArticle {
			return fmt.Errorf("%s is a %s account, not an article", addr, acct.Kind)
		}
		if jsonOutput {
			printJSON(acct.Article)
			return nil
		}
		printArticle(acct.Article)
		return nil
	},
}

var articleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List articles, optionally by creator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		creator, err := addressFlag(cmd, "creator")
		if err != nil {
			return err
		}
		mine, _ := cmd.Flags().GetBool("mine")
		if mine {
			self, err := selfAddress()
			if err != nil {
				return err
			}
			creator = &self
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := httpAPI.ListArticles(cmd.Context(), model.ArticleFilter{Creator: creator, Limit: limit, Offset: offset})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printArticleList(resp.Articles, resp.Total)
		return nil
	},
}

var articleReceiptsCmd = &cobra.Command{
	Use:   "receipts <article>",
	Short: "List the receipts issued for an article",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		article, err := parseAddress("article", args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		receipts, err := httpAPI.ListReceipts(cmd.Context(), model.ReceiptFilter{Article: &article, Limit: limit, Offset: offset})
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
	articleCreateCmd.Flags().Uint64("price", 0, "price in the payment asset's smallest unit")
	articleCreateCmd.Flags().String("asset", "", "payment asset (mint address)")
	articleCreateCmd.Flags().Uint16("royalty", 0, "resale royalty in basis points")
	articleCreateCmd.Flags().Bool("transferable", false, "allow the access token to be transferred")
	articleCreateCmd.Flags().Int64("sequence", -1, "article sequence number (default: next free)")
	_ = articleCreateCmd.MarkFlagRequired("price")

	articleListCmd.Flags().String("creator", "", "only articles by this creator")
	articleListCmd.Flags().Bool("mine", false, "only articles by your keypair")
	articleListCmd.Flags().Int("limit", 50, "maximum articles to return")
	articleListCmd.Flags().Int("offset", 0, "articles to skip")

	articleReceiptsCmd.Flags().Int("limit", 50, "maximum receipts to return")
	articleReceiptsCmd.Flags().Int("offset", 0, "receipts to skip")

	articleCmd.AddCommand(articleCreateCmd)
	articleCmd.AddCommand(articlePriceCmd)
	articleCmd.AddCommand(articleShowCmd)
	articleCmd.AddCommand(articleListCmd)
	articleCmd.AddCommand(articleReceiptsCmd)
}
