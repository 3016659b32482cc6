// Copyright 2025 Dominik Schlosser
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
	"github.com/dominikschlosser/mdoc-holder/internal/output"
	"github.com/dominikschlosser/mdoc-holder/internal/wallet"
)

var walletDir string

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the local mdoc wallet",
	Long:  "File-backed wallet holding mdoc credentials and the device keys they are bound to. Credentials are issued by a local test issuer.",
}

func init() {
	walletCmd.PersistentFlags().StringVar(&walletDir, "wallet-dir", "", "Wallet storage directory (default ~/.mdoc-holder/wallet/)")
	walletCmd.AddCommand(walletListCmd())
	walletCmd.AddCommand(walletShowCmd())
	walletCmd.AddCommand(walletRemoveCmd())
	walletCmd.AddCommand(walletGenerateCmd())
	walletCmd.AddCommand(walletIssuerCmd())
	walletCmd.AddCommand(walletDiscloseCmd())
	rootCmd.AddCommand(walletCmd)
}

// loadStore creates a Store from the --wallet-dir flag, falling back to the settings file.
func loadStore() *wallet.Store {
	dir := walletDir
	if dir == "" {
		dir = settings.WalletDir
	}
	return wallet.NewStore(dir, logger)
}

// loadWallet loads the wallet from the store.
func loadWallet() (*wallet.Wallet, *wallet.Store, error) {
	store := loadStore()
	w, err := store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading wallet: %w", err)
	}
	return w, store, nil
}

// --- wallet list ---

func walletListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, _, err := loadWallet()
			if err != nil {
				return err
			}

			creds := w.Credentials()
			if jsonOutput {
				out := make([]map[string]any, 0, len(creds))
				for _, c := range creds {
					if m := c.Mdoc(); m != nil {
						out = append(out, output.BuildMdocJSON(c.ID, m))
					}
				}
				output.PrintJSON(out)
				return nil
			}
			if len(creds) == 0 {
				fmt.Println("No credentials stored.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDOCTYPE\tATTRIBUTES\tADDED")
			for _, c := range creds {
				attrs := 0
				if m := c.Mdoc(); m != nil {
					attrs = len(m.AttributeIdentifiers())
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.DocType, attrs, c.AddedAt.Format(time.DateTime))
			}
			tw.Flush()
			return nil
		},
	}
}

// --- wallet show ---

func walletShowCmd() *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, store, err := loadWallet()
			if err != nil {
				return err
			}
			cred, ok := findCredential(w, args[0])
			if !ok {
				return fmt.Errorf("credential %s not found", args[0])
			}
			m := cred.Mdoc()
			if m == nil {
				return fmt.Errorf("credential %s could not be decoded", args[0])
			}

			opts := outputOptions()
			output.PrintMdoc(cred.ID, m, opts)
			if !verify {
				return nil
			}

			anchors, err := issuerAnchors(store)
			if err != nil {
				return err
			}
			result, err := m.IssuerSigned.Verify(m.DocType, certificate.SystemClock, anchors)
			if err != nil {
				return fmt.Errorf("verifying issuer signature: %w", err)
			}
			output.PrintVerifyResult(result, opts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Verify the issuer signature against the configured issuer trust anchors")
	return cmd
}

func findCredential(w *wallet.Wallet, id string) (wallet.StoredCredential, bool) {
	for _, c := range w.Credentials() {
		if c.ID == id {
			return c, true
		}
	}
	return wallet.StoredCredential{}, false
}

// issuerAnchors returns the configured issuer trust anchors, or the wallet's test issuer CA
// if none are configured.
func issuerAnchors(store *wallet.Store) ([]*certificate.TrustAnchor, error) {
	anchors, err := settings.LoadIssuerTrustAnchors(logger)
	if err != nil {
		return nil, err
	}
	if len(anchors) > 0 {
		return anchors, nil
	}
	issuer, err := store.LoadOrCreateIssuer()
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("issuer", issuer.CA.CommonName()).Msg("no issuer trust anchors configured, trusting the test issuer")
	return issuer.TrustAnchors(), nil
}

// --- wallet remove ---

func walletRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove credential by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, store, err := loadWallet()
			if err != nil {
				return err
			}

			if !w.Remove(args[0]) {
				return fmt.Errorf("credential %s not found", args[0])
			}

			if err := store.Save(w); err != nil {
				return fmt.Errorf("saving wallet: %w", err)
			}

			fmt.Printf("Removed credential %s\n", args[0])
			return nil
		},
	}
}

// --- wallet generate ---

// exampleCredential returns doc type, name space and attributes of a named example.
func exampleCredential(kind string) (string, string, []mock.Attribute, error) {
	switch strings.ToLower(kind) {
	case "mdl":
		return mock.ExampleDocType, mock.ExampleNameSpace, mock.ExampleAttributes(), nil
	case "pid":
		return mock.PIDDocType, mock.PIDNameSpace, mock.PIDAttributes(), nil
	default:
		return "", "", nil, fmt.Errorf("unknown credential kind %q (use mdl or pid)", kind)
	}
}

// omitAttributes drops the named attributes, trimming whitespace around names.
func omitAttributes(attrs []mock.Attribute, omit []string) []mock.Attribute {
	names := make([]string, 0, len(omit))
	for _, n := range omit {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return mock.WithoutAttributes(attrs, names...)
}

func walletGenerateCmd() *cobra.Command {
	var omit []string

	cmd := &cobra.Command{
		Use:   "generate <mdl|pid>",
		Short: "Issue an example credential from the local test issuer",
		Long:  "Issues an example mDL or EUDI PID into the wallet, bound to a fresh device key. Use --omit to leave out attributes, e.g. to test requests the wallet cannot satisfy.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docType, nameSpace, attrs, err := exampleCredential(args[0])
			if err != nil {
				return err
			}
			attrs = omitAttributes(attrs, omit)
			if len(attrs) == 0 {
				return fmt.Errorf("no attributes left to issue")
			}

			w, store, err := loadWallet()
			if err != nil {
				return err
			}
			issuer, err := store.LoadOrCreateIssuer()
			if err != nil {
				return fmt.Errorf("loading test issuer: %w", err)
			}
			id, err := w.Issue(issuer, docType, nameSpace, attrs)
			if err != nil {
				return fmt.Errorf("issuing credential: %w", err)
			}
			if err := store.Save(w); err != nil {
				return fmt.Errorf("saving wallet: %w", err)
			}

			fmt.Printf("Issued %s credential %s (%d attributes)\n", docType, id, len(attrs))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&omit, "omit", nil, "Attributes to leave out (comma-separated)")
	return cmd
}

// --- wallet issuer ---

func walletIssuerCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Print the test issuer CA certificate",
		Long:  "Prints the PEM of the CA that signs example credentials, for use as an issuer trust anchor of a reader.",
		RunE: func(cmd *cobra.Command, args []string) error {
			issuer, err := loadStore().LoadOrCreateIssuer()
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Print(string(issuer.CA.PEM()))
				return nil
			}
			if err := os.WriteFile(out, issuer.CA.PEM(), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Printf("Wrote issuer CA to %s\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the PEM to a file instead of stdout")
	return cmd
}
