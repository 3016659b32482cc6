// Copyright 2026 Dominik Schlosser
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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/keys"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Generate test CAs, reader certificates and document signer certificates",
}

func init() {
	certCmd.AddCommand(certCACmd())
	certCmd.AddCommand(certIssueCmd())
	rootCmd.AddCommand(certCmd)
}

// writePEMPair writes a certificate and its key as <name>.pem and <name>-key.pem.
func writePEMPair(dir, name string, cert *certificate.Certificate, keyPEM []byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	certPath := filepath.Join(dir, name+".pem")
	if err := os.WriteFile(certPath, cert.PEM(), 0o644); err != nil {
		return fmt.Errorf("writing certificate: %w", err)
	}
	keyPath := filepath.Join(dir, name+"-key.pem")
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	fmt.Printf("Wrote %s and %s\n", certPath, keyPath)
	return nil
}

// --- cert ca ---

func certCACmd() *cobra.Command {
	var (
		commonName string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "ca",
		Short: "Generate a self-signed P-256 CA",
		RunE: func(cmd *cobra.Command, args []string) error {
			ca, key, err := certificate.NewCA(commonName)
			if err != nil {
				return err
			}
			keyPEM, err := keys.MarshalPrivateKeyPEM(key)
			if err != nil {
				return err
			}
			return writePEMPair(outDir, "ca", ca, keyPEM)
		},
	}

	cmd.Flags().StringVar(&commonName, "cn", mock.ReaderCACommonName, "Subject common name")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Output directory")
	return cmd
}

// --- cert issue ---

func parseUsage(s string) (certificate.Usage, error) {
	switch strings.ToLower(s) {
	case "reader", "reader-auth":
		return certificate.UsageReaderAuth, nil
	case "mdl", "issuer":
		return certificate.UsageMdl, nil
	default:
		return 0, fmt.Errorf("unknown usage %q (use reader or mdl)", s)
	}
}

// certificateType builds the certificate type for usage with the registration read from
// regFile, or the example reader registration when example is set.
func certificateType(usage certificate.Usage, regFile string, example bool) (certificate.Type, error) {
	typ := certificate.Type{Usage: usage}
	if example && usage == certificate.UsageReaderAuth {
		typ.ReaderRegistration = mock.ExampleReaderRegistration()
		return typ, nil
	}
	if regFile == "" {
		return typ, nil
	}

	data, err := os.ReadFile(regFile)
	if err != nil {
		return typ, fmt.Errorf("reading registration: %w", err)
	}
	switch usage {
	case certificate.UsageReaderAuth:
		var reg certificate.ReaderRegistration
		if err := json.Unmarshal(data, &reg); err != nil {
			return typ, fmt.Errorf("parsing reader registration: %w", err)
		}
		typ.ReaderRegistration = &reg
	case certificate.UsageMdl:
		var reg certificate.IssuerRegistration
		if err := json.Unmarshal(data, &reg); err != nil {
			return typ, fmt.Errorf("parsing issuer registration: %w", err)
		}
		typ.IssuerRegistration = &reg
	}
	return typ, nil
}

func certIssueCmd() *cobra.Command {
	var (
		caFile     string
		caKeyFile  string
		commonName string
		usage      string
		regFile    string
		example    bool
		outDir     string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a reader authentication or document signer certificate",
		Long:  "Issues an end-entity certificate from a CA generated with 'cert ca'. The registration file is the JSON reader or issuer registration embedded as a certificate extension.",
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := parseUsage(usage)
			if err != nil {
				return err
			}
			typ, err := certificateType(u, regFile, example)
			if err != nil {
				return err
			}

			caData, err := os.ReadFile(caFile)
			if err != nil {
				return fmt.Errorf("reading CA certificate: %w", err)
			}
			ca, err := certificate.ParseAny(caData)
			if err != nil {
				return err
			}
			caKey, err := keys.LoadPrivateKey(caKeyFile)
			if err != nil {
				return err
			}

			cert, key, err := certificate.New(ca, caKey, commonName, typ)
			if err != nil {
				return err
			}
			keyPEM, err := keys.MarshalPrivateKeyPEM(key)
			if err != nil {
				return err
			}
			return writePEMPair(outDir, name, cert, keyPEM)
		},
	}

	cmd.Flags().StringVar(&caFile, "ca", "ca.pem", "CA certificate file")
	cmd.Flags().StringVar(&caKeyFile, "ca-key", "ca-key.pem", "CA private key file")
	cmd.Flags().StringVar(&commonName, "cn", mock.ReaderCommonName, "Subject common name")
	cmd.Flags().StringVar(&usage, "usage", "reader", "Certificate usage: reader or mdl")
	cmd.Flags().StringVar(&regFile, "registration", "", "Registration JSON file")
	cmd.Flags().BoolVar(&example, "example-registration", false, "Embed the example reader registration")
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Output directory")
	cmd.Flags().StringVar(&name, "name", "cert", "Output file name prefix")
	return cmd
}
