package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/model"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Short:   "Manage token accounts and balances",
	GroupID: "accounts",
}

var accountOpenCmd = &cobra.Command{
	Use:   "open <asset>",
	Short: "Open a token account for an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		res, err := submit(cmd.Context(), instruction.NewOpenTokenAccount(instruction.OpenTokenAccount{Asset: asset}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit <owner> <asset> <amount>",
	Short: "Credit a token account (fee admin only)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := parseAddress("owner", args[0])
		if err != nil {
			return err
		}
		asset, err := parseAddress("asset", args[1])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		res, err := submit(cmd.Context(), instruction.NewDeposit(instruction.Deposit{Owner: owner, Asset: asset, Amount: amount}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

var accountBalanceCmd = &cobra.Command{
	Use:   "balance <asset>",
	Short: "Show the balance of an owner's token account (default: your keypair)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		owner, err := addressOrSelf(cmd, "owner")
		if err != nil {
			return err
		}
		addr, err := httpAPI.DeriveAddress(ctx, model.AccountTokenAccount, map[string]string{
			"owner": owner.String(),
			"asset": asset.String(),
		})
		if err != nil {
			return err
		}
		acct, err := api.GetAccount(ctx, addr)
		if err != nil {
			return err
		}
		if acct.Kind != model.AccountTokenAccount {
			return fmt.Errorf("%s is a %s account, not a token account", addr, acct.Kind)
		}
		if jsonOutput {
			printJSON(acct.TokenAccount)
			return nil
		}
		printTokenAccount(acct.TokenAccount)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List token accounts by owner or asset (default: your keypair)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := addressFlag(cmd, "owner")
		if err != nil {
			return err
		}
		asset, err := addressFlag(cmd, "asset")
		if err != nil {
			return err
		}
		if owner == nil && asset == nil {
			self, err := selfAddress()
			if err != nil {
				return err
			}
			owner = &self
		}
		accounts, err := httpAPI.ListTokenAccounts(cmd.Context(), model.TokenAccountFilter{Owner: owner, Asset: asset})
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(accounts)
			return nil
		}
		printTokenAccountList(accounts)
		return nil
	},
}

var feesCmd = &cobra.Command{
	Use:     "fees",
	Short:   "Show or change the fee schedule",
	GroupID: "accounts",
}

var feesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the fee schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := httpAPI.GetFeeConfig(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cfg)
			return nil
		}
		printFeeConfig(cfg)
		return nil
	},
}

var feesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update the fee schedule (first signer becomes admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, _ := cmd.Flags().GetUint16("protocol")
		referrer, _ := cmd.Flags().GetUint16("referrer")
		treasury, err := addressOrSelf(cmd, "treasury")
		if err != nil {
			return err
		}
		res, err := submit(cmd.Context(), instruction.NewSetFeeConfig(instruction.SetFeeConfig{
			ProtocolFeeBps: protocol,
			ReferrerFeeBps: referrer,
			Treasury:       treasury,
		}))
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

func init() {
	accountBalanceCmd.Flags().String("owner", "", "account owner (default: your keypair)")
	accountListCmd.Flags().String("owner", "", "only accounts owned by this address")
	accountListCmd.Flags().String("asset", "", "only accounts for this asset")

	accountCmd.AddCommand(accountOpenCmd)
	accountCmd.AddCommand(accountDepositCmd)
	accountCmd.AddCommand(accountBalanceCmd)
	accountCmd.AddCommand(accountListCmd)

	feesSetCmd.Flags().Uint16("protocol", 0, "protocol fee in basis points")
	feesSetCmd.Flags().Uint16("referrer", 0, "referrer fee in basis points")
	feesSetCmd.Flags().String("treasury", "", "protocol treasury (default: your keypair)")

	feesCmd.AddCommand(feesShowCmd)
	feesCmd.AddCommand(feesSetCmd)
}
