package main

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/paywall/internal/ui"
	"github.com/alfredjeanlab/paywall/internal/wallet"
)

var profileCmd = &cobra.Command{
	Use:               "profile",
	Short:             "Manage named server profiles",
	GroupID:           "system",
	PersistentPreRunE: noClient,
}

var profileAddCmd = &cobra.Command{
	Use:   "add <name> <http-url>",
	Short: "Add or replace a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := checkServerURL(args[1]); err != nil {
			return err
		}
		p := Profile{HTTPURL: strings.TrimRight(args[1], "/")}
		p.GRPCAddr, _ = cmd.Flags().GetString("grpc")
		p.NATSURL, _ = cmd.Flags().GetString("nats")
		p.Token, _ = cmd.Flags().GetString("bearer")

		if signer, _ := cmd.Flags().GetString("signer"); signer != "" {
			abs, err := filepath.Abs(signer)
			if err != nil {
				return err
			}
			if _, err := wallet.Load(abs); err != nil {
				return err
			}
			p.Keypair = abs
		}

		f, err := readProfiles()
		if err != nil {
			return err
		}
		f.Profiles[name] = p
		if use, _ := cmd.Flags().GetBool("use"); use || f.Current == "" {
			f.Current = name
		}
		if err := f.save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s profile %s saved (signer %s)\n", ui.RenderOK("✓"), name, signerOf(p, 12))
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		if _, err := f.lookup(args[0]); err != nil {
			return err
		}
		delete(f.Profiles, args[0])
		if f.Current == args[0] {
			f.Current = ""
		}
		if err := f.save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s profile %s removed\n", ui.RenderOK("✓"), args[0])
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		if _, err := f.lookup(args[0]); err != nil {
			return err
		}
		f.Current = args[0]
		if err := f.save(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s using profile %s\n", ui.RenderOK("✓"), args[0])
		return nil
	},
}

// profileView is how list and show report a profile. The token is masked.
type profileView struct {
	Name     string `json:"name"`
	Current  bool   `json:"current"`
	HTTPURL  string `json:"http_url"`
	GRPCAddr string `json:"grpc_addr,omitempty"`
	NATSURL  string `json:"nats_url,omitempty"`
	Token    string `json:"token,omitempty"`
	Keypair  string `json:"keypair,omitempty"`
	Signer   string `json:"signer"`
}

func viewProfile(f *profileFile, name string, p Profile) profileView {
	return profileView{
		Name:     name,
		Current:  name == f.Current,
		HTTPURL:  p.HTTPURL,
		GRPCAddr: p.GRPCAddr,
		NATSURL:  p.NATSURL,
		Token:    maskToken(p.Token),
		Keypair:  p.Keypair,
		Signer:   signerOf(p, 0),
	}
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		views := make([]profileView, 0, len(f.Profiles))
		for _, name := range f.names() {
			views = append(views, viewProfile(f, name, f.Profiles[name]))
		}
		if jsonOutput {
			printJSON(views)
			return nil
		}
		if len(views) == 0 {
			fmt.Fprintln(out, "no profiles; add one with 'pw profile add <name> <http-url>'")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tHTTP\tSIGNER")
		for _, v := range views {
			marker := "  "
			if v.Current {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, v.Name, v.HTTPURL, signerOf(f.Profiles[v.Name], 12))
		}
		return w.Flush()
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a profile (default: the current one)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := readProfiles()
		if err != nil {
			return err
		}
		name := f.Current
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no current profile; name one or run 'pw profile use <name>'")
		}
		p, err := f.lookup(name)
		if err != nil {
			return err
		}
		v := viewProfile(f, name, p)
		if jsonOutput {
			printJSON(v)
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		title := v.Name
		if v.Current {
			title += ui.RenderMuted(" (current)")
		}
		fmt.Fprintf(w, "profile:\t%s\n", title)
		fmt.Fprintf(w, "http:\t%s\n", v.HTTPURL)
		for _, row := range [][2]string{
			{"grpc", v.GRPCAddr}, {"nats", v.NATSURL}, {"token", v.Token}, {"keypair", v.Keypair},
		} {
			if row[1] != "" {
				fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
			}
		}
		fmt.Fprintf(w, "signer:\t%s\n", v.Signer)
		return w.Flush()
	},
}

// checkServerURL accepts absolute http and https URLs.
func checkServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL %q: want http(s)://host[:port]", raw)
	}
	return nil
}

// signerOf names the address a profile signs as, shortened to n
// characters when n > 0.
func signerOf(p Profile, n int) string {
	if p.Keypair == "" {
		return "default keypair"
	}
	k, err := wallet.Load(p.Keypair)
	if err != nil {
		return "unreadable keypair"
	}
	if n > 0 {
		return k.Address().Short(n)
	}
	return k.Address().String()
}

func maskToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return strings.Repeat("*", len(tok))
	}
	return tok[:4] + strings.Repeat("*", len(tok)-4)
}

func init() {
	profileAddCmd.Flags().String("grpc", "", "gRPC address for --transport grpc")
	profileAddCmd.Flags().String("nats", "", "NATS URL for 'pw watch'")
	profileAddCmd.Flags().String("bearer", "", "bearer token the server expects")
	profileAddCmd.Flags().String("signer", "", "keypair file to sign with")
	profileAddCmd.Flags().Bool("use", false, "make the profile current")

	profileCmd.AddCommand(profileAddCmd, profileUseCmd, profileListCmd, profileShowCmd, profileRemoveCmd)
}
