package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/ui"
)

var showCmd = &cobra.Command{
	Use:     "show <address>",
	Short:   "Show any ledger account",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		addr, err := parseAddress("address", args[0])
		if err != nil {
			return err
		}
		acct, err := api.GetAccount(ctx, addr)
		if err != nil {
			return err
		}

		withEvents, _ := cmd.Flags().GetBool("events")
		var evs []*model.Event
		if withEvents {
			if evs, err = httpAPI.GetEvents(ctx, addr); err != nil {
				return err
			}
		}

		if jsonOutput {
			if withEvents {
				printJSON(map[string]any{"account": acct, "events": evs})
			} else {
				printJSON(acct)
			}
			return nil
		}
		printAccount(acct)
		if withEvents && len(evs) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Events:")
			printEventList(evs)
		}
		return nil
	},
}

func printEventList(evs []*model.Event) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range evs {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(timeLayout), ui.RenderAccent(e.Topic), e.Actor.Short(12), ui.RenderMuted(e.TxID))
	}
	w.Flush()
}

var deriveCmd = &cobra.Command{
	Use:   "derive <kind> [seed=value ...]",
	Short: "Compute the address of an account from its seeds",
	Long: `Compute the address of an account from its seeds.

Kinds and their seeds:
  article        creator, sequence
  receipt        article, buyer
  access_token   article, buyer
  token_account  owner, asset
  fee_config     (none)`,
	GroupID: "views",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := model.AccountKind(args[0])
		if !kind.IsValid() {
			return fmt.Errorf("unknown account kind %q", args[0])
		}
		seeds := make(map[string]string, len(args)-1)
		for _, kv := range args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return fmt.Errorf("seed %q: expected name=value", kv)
			}
			seeds[k] = v
		}
		addr, err := httpAPI.DeriveAddress(cmd.Context(), kind, seeds)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]any{"kind": kind, "address": addr})
			return nil
		}
		fmt.Fprintln(out, addr)
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the server is up",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"status": status})
			return nil
		}
		fmt.Fprintln(out, ui.RenderOK(status))
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Download a JSONL snapshot of the ledger",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("output")
		if path == "" || path == "-" {
			_, err := httpAPI.Snapshot(cmd.Context(), out)
			return err
		}

		// Write beside the target and rename so a failed download never
		// leaves a truncated snapshot behind.
		tmp, err := os.CreateTemp(filepath.Dir(path), ".pw-export-*")
		if err != nil {
			return err
		}
		defer os.Remove(tmp.Name())
		digest, err := httpAPI.Snapshot(cmd.Context(), tmp)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"path": path, "digest": digest})
			return nil
		}
		fmt.Fprintf(out, "%s snapshot %s written to %s\n", ui.RenderOK("✓"), ui.RenderAccent(shortDigest(digest)), path)
		return nil
	},
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func init() {
	showCmd.Flags().Bool("events", false, "include the account's event history")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
}
