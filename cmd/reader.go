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
	"context"
	"crypto"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/keys"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
	"github.com/dominikschlosser/mdoc-holder/internal/output"
	"github.com/dominikschlosser/mdoc-holder/internal/qr"
	"github.com/dominikschlosser/mdoc-holder/internal/verifier"
	"github.com/dominikschlosser/mdoc-holder/internal/wallet"
)

var readerCmd = &cobra.Command{
	Use:   "reader",
	Short: "Run a test mdoc reader",
}

func init() {
	readerCmd.AddCommand(readerServeCmd())
	rootCmd.AddCommand(readerCmd)
}

// readerIdentity is the key and chain the reader signs its requests with.
type readerIdentity struct {
	key   crypto.Signer
	chain [][]byte
}

// loadReaderIdentity loads the reader key and certificate, or generates an example reader
// whose CA is written to caOut so holders can trust it.
func loadReaderIdentity(keyFile, certFile, caOut string) (*readerIdentity, error) {
	if keyFile != "" || certFile != "" {
		if keyFile == "" || certFile == "" {
			return nil, fmt.Errorf("--key and --cert must be given together")
		}
		key, err := keys.LoadPrivateKey(keyFile)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(certFile)
		if err != nil {
			return nil, fmt.Errorf("reading reader certificate: %w", err)
		}
		cert, err := certificate.ParseAny(data)
		if err != nil {
			return nil, err
		}
		return &readerIdentity{key: key, chain: [][]byte{cert.DER()}}, nil
	}

	reader, err := mock.NewReader(mock.ExampleReaderRegistration())
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(caOut, reader.CA.PEM(), 0o644); err != nil {
		return nil, fmt.Errorf("writing reader CA: %w", err)
	}
	logger.Info().Str("file", caOut).Msg("generated example reader, trust its CA with 'wallet disclose --trust'")
	return &readerIdentity{key: reader.Key, chain: reader.Chain()}, nil
}

// parseItems turns "namespace/attribute" or bare attribute names into an items request.
func parseItems(docType, defaultNameSpace string, attrs []string) (mdoc.ItemsRequest, error) {
	if len(attrs) == 0 {
		return mdoc.ItemsRequest{}, fmt.Errorf("at least one attribute is required")
	}
	var order []string
	byNameSpace := map[string][]string{}
	for _, a := range attrs {
		a = strings.TrimSpace(a)
		ns, name := defaultNameSpace, a
		if i := strings.LastIndex(a, "/"); i >= 0 {
			ns, name = a[:i], a[i+1:]
		}
		if ns == "" || name == "" {
			return mdoc.ItemsRequest{}, fmt.Errorf("invalid attribute %q", a)
		}
		if _, ok := byNameSpace[ns]; !ok {
			order = append(order, ns)
		}
		byNameSpace[ns] = append(byNameSpace[ns], name)
	}

	items := mdoc.NewItemsRequest(docType, order[0], byNameSpace[order[0]]...)
	for _, ns := range order[1:] {
		other := mdoc.NewItemsRequest(docType, ns, byNameSpace[ns]...)
		elements, _ := other.NameSpaces.Get(ns)
		items.NameSpaces.Set(ns, elements)
	}
	return items, nil
}

// baseURLFor derives the externally reachable URL of a listen address.
func baseURLFor(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://localhost" + listen
	}
	return "http://" + listen
}

// --- reader serve ---

func readerServeCmd() *cobra.Command {
	var (
		listen     string
		baseURL    string
		metrics    string
		keyFile    string
		certFile   string
		caOut      string
		issuerCAs  []string
		docType    string
		nameSpace  string
		attributes []string
		keep       bool
		sessionTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a reader session and print its engagement QR code",
		Long: `Starts a reader that requests attributes from a holder over the REST API device
retrieval method. The engagement is printed as a terminal QR code and as an "mdoc:" URI for
'wallet disclose'. Disclosed documents are verified against the issuer trust anchors.

Attributes are given as names in --namespace or as namespace/attribute.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = settings.Reader.ListenAddress
			}
			if baseURL == "" {
				baseURL = settings.Reader.BaseURL
			}
			if baseURL == "" {
				baseURL = baseURLFor(listen)
			}
			if !cmd.Flags().Changed("metrics") {
				metrics = settings.Reader.MetricsAddress
			}

			items, err := parseItems(docType, nameSpace, attributes)
			if err != nil {
				return err
			}
			identity, err := loadReaderIdentity(keyFile, certFile, caOut)
			if err != nil {
				return err
			}
			anchors, err := readerIssuerAnchors(issuerCAs)
			if err != nil {
				return err
			}

			srv := verifier.NewServer(baseURL, verifier.Config{
				SessionType:        mdoc.CrossDevice,
				Handover:           mdoc.QRHandover(),
				Items:              []mdoc.ItemsRequest{items},
				ReaderKey:          identity.key,
				ReaderChain:        identity.chain,
				IssuerTrustAnchors: anchors,
				Logger:             logger,
			})
			srv.SetSessionTTL(sessionTTL)
			_, session, err := srv.NewSession()
			if err != nil {
				return err
			}
			if err := printEngagementQR(session.EngagementURI()); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			group, groupCtx := errgroup.WithContext(ctx)

			logger.Info().Str("address", listen).Str("url", session.SessionURL()).Msg("Starting reader server")
			verifier.Run(groupCtx, srv.App(), listen, group)
			if metrics != "" {
				logger.Info().Str("address", metrics).Msg("Starting monitoring server")
				verifier.Run(groupCtx, verifier.NewMonitoringApp(), metrics, group)
			}
			group.Go(func() error {
				if err := awaitResult(groupCtx, session); err != nil {
					return nil
				}
				output.PrintReaderResult(session.Result(), outputOptions())
				if !keep {
					stop()
				}
				return nil
			})
			return group.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from settings, :8085)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Externally reachable URL of the reader (default derived from --listen)")
	cmd.Flags().StringVar(&metrics, "metrics", "", "Monitoring listen address, empty to disable (default from settings, :8888)")
	cmd.Flags().StringVar(&keyFile, "key", "", "Reader private key (PEM)")
	cmd.Flags().StringVar(&certFile, "cert", "", "Reader authentication certificate (PEM or DER)")
	cmd.Flags().StringVar(&caOut, "ca-out", "reader-ca.pem", "Where to write the CA of a generated example reader")
	cmd.Flags().StringSliceVar(&issuerCAs, "issuer-ca", nil, "Issuer CA certificate files, added to the settings file anchors")
	cmd.Flags().StringVar(&docType, "doctype", mock.ExampleDocType, "Requested document type")
	cmd.Flags().StringVar(&nameSpace, "namespace", mock.ExampleNameSpace, "Name space of bare attribute names")
	cmd.Flags().StringSliceVar(&attributes, "attributes", mock.ExampleAttributeNames, "Requested attributes")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep serving after the session finished")
	cmd.Flags().DurationVar(&sessionTTL, "session-ttl", verifier.DefaultSessionTTL, "How long a session stays reachable after it was created")
	return cmd
}

// awaitResult blocks until the session finished or ctx is cancelled.
func awaitResult(ctx context.Context, session *verifier.Session) error {
	select {
	case <-session.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printEngagementQR(uri string) error {
	if !jsonOutput {
		code, err := qr.Terminal(uri)
		if err != nil {
			return err
		}
		fmt.Println(code)
	}
	fmt.Println(uri)
	return nil
}

// readerIssuerAnchors combines the issuer trust anchors of the settings file with extra
// files. Without any, the wallet's test issuer is trusted.
func readerIssuerAnchors(files []string) ([]*certificate.TrustAnchor, error) {
	anchors, err := settings.LoadIssuerTrustAnchors(logger)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading issuer CA: %w", err)
		}
		anchor, err := certificate.ParseTrustAnchor(data)
		if err != nil {
			return nil, fmt.Errorf("parsing issuer CA %s: %w", f, err)
		}
		anchors = append(anchors, anchor)
	}
	if len(anchors) > 0 {
		return anchors, nil
	}
	return issuerAnchors(wallet.NewStore(settings.WalletDir, logger))
}
