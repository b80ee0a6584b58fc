package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/client"
	"github.com/alfredjeanlab/paywall/internal/ui"
)

var (
	httpURL     string
	serverAddr  string
	transport   string
	jsonOutput  bool
	keypairPath string
	authToken   string

	// api carries transactions and point lookups over --transport.
	api client.Client
	// httpAPI serves listings and derivations, which only HTTP exposes.
	httpAPI *client.HTTPClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("PAYWALL_HTTP_URL"); s != "" {
		return s
	}
	if u := currentProfile().HTTPURL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("PAYWALL_SERVER"); s != "" {
		return s
	}
	if a := currentProfile().GRPCAddr; a != "" {
		return a
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("PAYWALL_TOKEN"); s != "" {
		return s
	}
	return currentProfile().Token
}

var rootCmd = &cobra.Command{
	Use:           "pw <command>",
	Short:         "CLI client for the paywall ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configureOutput()
		httpAPI = client.NewHTTPClient(httpURL, authToken)
		switch transport {
		case "http":
			api = httpAPI
		case "grpc":
			c, err := client.NewGRPCClient(serverAddr, authToken)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			api = c
		default:
			return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if api != nil {
			api.Close()
		}
	},
}

// noClient skips client setup for commands that never reach a server.
func noClient(cmd *cobra.Command, args []string) error {
	configureOutput()
	return nil
}

// configureOutput enables color only for human output on a terminal.
func configureOutput() {
	ui.SetColor(!jsonOutput && ui.ColorEnabled(out))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&keypairPath, "keypair", "", "signing keypair file (default: the profile's, $PAYWALL_KEYPAIR, or ~/.config/paywall/id.json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "market", Title: "Marketplace:"},
		&cobra.Group{ID: "accounts", Title: "Accounts:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Marketplace
	rootCmd.AddCommand(articleCmd)
	rootCmd.AddCommand(purchaseCmd)
	rootCmd.AddCommand(hasPurchasedCmd)
	rootCmd.AddCommand(receiptCmd)

	// Accounts
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(feesCmd)

	// Views
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
