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
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/format"
	"github.com/dominikschlosser/mdoc-holder/internal/holder"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/output"
	"github.com/dominikschlosser/mdoc-holder/internal/qr"
	"github.com/dominikschlosser/mdoc-holder/internal/transport"
)

var errDeclined = errors.New("disclosure declined")

// --- wallet disclose ---

func walletDiscloseCmd() *cobra.Command {
	var (
		qrImage   string
		screen    bool
		trust     []string
		yes       bool
		originURL string
	)

	cmd := &cobra.Command{
		Use:   "disclose [engagement]",
		Short: "Answer a reader's request with stored credentials",
		Long: `Engages with a reader, shows who asks for which attributes, and discloses the matching
credentials after confirmation.

The reader engagement is an "mdoc:" URI, hex or base64url CBOR, a file, a URL, or stdin.
Use --qr to read it from a QR code image or --screen to scan the screen.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := ""
			if len(args) > 0 {
				input = args[0]
			}
			engagement, err := readEngagement(input, qrImage, screen)
			if err != nil {
				return err
			}

			anchors, err := readerAnchors(trust)
			if err != nil {
				return err
			}
			w, _, err := loadWallet()
			if err != nil {
				return err
			}

			cfg := holder.Config{
				SessionType:  mdoc.CrossDevice,
				Handover:     mdoc.QRHandover(),
				OriginURL:    originURL,
				TrustAnchors: anchors,
				Storage:      w,
				Keys:         w.Keys(),
				Transport:    transport.New(logger),
				Logger:       logger,
			}
			confirm := func() bool {
				return yes || askConfirm(cmd.InOrStdin(), cmd.ErrOrStderr(), "Share these attributes?")
			}
			return disclose(cmd.Context(), cfg, engagement, confirm)
		},
	}

	cmd.Flags().StringVar(&qrImage, "qr", "", "Read the engagement from a QR code image")
	cmd.Flags().BoolVar(&screen, "screen", false, "Scan the screen for the engagement QR code")
	cmd.Flags().StringSliceVar(&trust, "trust", nil, "Reader CA certificate files (PEM or DER), added to the settings file anchors")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Disclose without asking")
	cmd.Flags().StringVar(&originURL, "origin", "", "Origin URL advertised in the device engagement")
	return cmd
}

// disclose runs one holder session against the reader named by engagement.
func disclose(ctx context.Context, cfg holder.Config, engagement *mdoc.Engagement, confirm func() bool) error {
	opts := outputOptions()

	awaiting, err := holder.Start(ctx, cfg, engagement.Bytes())
	if err != nil {
		return describe(err)
	}
	matched, err := awaiting.MatchRequest(ctx)
	if err != nil {
		return describe(err)
	}
	output.PrintMatches(matched.Reader(), matched.Matches(), opts)

	if _, err := matched.Selected(); err != nil {
		if _, cerr := matched.Cancel(ctx); cerr != nil {
			logger.Debug().Err(cerr).Msg("cancelling session failed")
		}
		return describe(err)
	}

	if !confirm() {
		terminated, err := matched.Cancel(ctx)
		if err != nil {
			return describe(err)
		}
		output.PrintTerminated(terminated, opts)
		return errDeclined
	}

	terminated, err := matched.Disclose(ctx)
	if err != nil {
		return describe(err)
	}
	output.PrintTerminated(terminated, opts)
	return nil
}

// describe prefixes a session error with its category.
func describe(err error) error {
	return fmt.Errorf("%s: %w", holder.Category(err), err)
}

// readEngagement decodes the reader engagement from a QR image, the screen, or CLI input.
func readEngagement(input, qrImage string, screen bool) (*mdoc.Engagement, error) {
	switch {
	case qrImage != "":
		e, err := qr.ScanEngagement(qrImage)
		if err != nil {
			return nil, fmt.Errorf("scanning QR: %w", err)
		}
		return e, nil
	case screen:
		e, err := qr.ScanScreenEngagement()
		if err != nil {
			return nil, fmt.Errorf("scanning QR: %w", err)
		}
		return e, nil
	}

	raw, err := format.ReadInput(input)
	if err != nil {
		return nil, err
	}
	return parseEngagement(raw)
}

func parseEngagement(raw string) (*mdoc.Engagement, error) {
	switch format.Detect(raw) {
	case format.KindEngagementURI:
		return mdoc.ParseEngagementURI(raw)
	case format.KindCBOR:
		data, err := format.DecodeCBOR(raw)
		if err != nil {
			return nil, err
		}
		return mdoc.ParseEngagement(data)
	default:
		return nil, fmt.Errorf("input is not a reader engagement (expected an mdoc: URI or CBOR)")
	}
}

// readerAnchors combines the reader trust anchors of the settings file with extra files.
func readerAnchors(files []string) ([]*certificate.TrustAnchor, error) {
	anchors, err := settings.LoadTrustAnchors(logger)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading trust anchor: %w", err)
		}
		anchor, err := certificate.ParseTrustAnchor(data)
		if err != nil {
			return nil, fmt.Errorf("parsing trust anchor %s: %w", f, err)
		}
		anchors = append(anchors, anchor)
	}
	if len(anchors) == 0 {
		logger.Warn().Msg("no reader trust anchors configured, every reader will be rejected")
	}
	return anchors, nil
}

// askConfirm asks a yes/no question; anything but y or yes is a no.
func askConfirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
