package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/instruction"
	"github.com/alfredjeanlab/paywall/internal/ledger"
	"github.com/alfredjeanlab/paywall/internal/model"
	"github.com/alfredjeanlab/paywall/internal/wallet"
)

func resolveKeypairPath() string {
	if keypairPath != "" {
		return keypairPath
	}
	if os.Getenv("PAYWALL_KEYPAIR") == "" {
		if p := currentProfile().Keypair; p != "" {
			return p
		}
	}
	return wallet.DefaultPath()
}

func loadKeypair() (*wallet.Keypair, error) {
	path := resolveKeypairPath()
	k, err := wallet.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no keypair at %s; run 'pw keygen' first", path)
	}
	return k, err
}

// selfAddress returns the address of the configured keypair.
func selfAddress() (model.Address, error) {
	k, err := loadKeypair()
	if err != nil {
		return model.Address{}, err
	}
	return k.Address(), nil
}

// submit signs in with the configured keypair and sends it.
func submit(ctx context.Context, in instruction.Instruction) (*ledger.Result, error) {
	k, err := loadKeypair()
	if err != nil {
		return nil, err
	}
	tx, err := k.Sign(in)
	if err != nil {
		return nil, err
	}
	return api.Submit(ctx, tx)
}

// parseAddress decodes a base58 argument, naming it in the error.
func parseAddress(name, s string) (model.Address, error) {
	a, err := model.ParseAddress(s)
	if err != nil {
		return a, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// addressFlag reads an optional base58 address flag. It returns nil when
// the flag is empty.
func addressFlag(cmd *cobra.Command, name string) (*model.Address, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return nil, nil
	}
	a, err := parseAddress("--"+name, v)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// addressOrSelf returns the named address flag, falling back to the
// configured keypair's address.
func addressOrSelf(cmd *cobra.Command, name string) (model.Address, error) {
	a, err := addressFlag(cmd, name)
	if err != nil {
		return model.Address{}, err
	}
	if a != nil {
		return *a, nil
	}
	return selfAddress()
}

var keygenCmd = &cobra.Command{
	Use:               "keygen",
	Short:             "Generate a signing keypair",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := wallet.Generate()
		if err != nil {
			return err
		}
		path := resolveKeypairPath()
		if err := wallet.Save(path, k); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(map[string]string{"address": k.Address().String(), "path": path})
			return nil
		}
		fmt.Fprintf(out, "Wrote keypair to %s\n", path)
		fmt.Fprintf(out, "Address: %s\n", k.Address())
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:               "whoami",
	Short:             "Print the address of the signing keypair",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := selfAddress()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, a)
		return nil
	},
}
