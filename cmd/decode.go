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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/format"
	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
	"github.com/dominikschlosser/mdoc-holder/internal/output"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [input]",
	Short: "Auto-detect and decode an mdoc, an engagement, or a certificate",
	Long:  "Decodes an \"mdoc:\" engagement URI, a PEM or DER certificate, or a CBOR mdoc or engagement given as hex or base64url. Input can be a file path, URL, raw string, or piped via stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	input := ""
	if len(args) > 0 {
		input = args[0]
	}

	raw, err := format.ReadInput(input)
	if err != nil {
		return err
	}
	opts := outputOptions()

	switch format.Detect(raw) {
	case format.KindEngagementURI:
		e, err := mdoc.ParseEngagementURI(raw)
		if err != nil {
			return err
		}
		output.PrintEngagement(e, opts)

	case format.KindPEM:
		cert, err := certificate.ParsePEM([]byte(raw))
		if err != nil {
			return err
		}
		output.PrintCertificate(cert, opts)

	case format.KindCBOR:
		data, err := format.DecodeCBOR(raw)
		if err != nil {
			return err
		}
		if m, err := mdoc.ParseMdoc(data); err == nil && m.DocType != "" {
			output.PrintMdoc("", m, opts)
			return nil
		}
		e, err := mdoc.ParseEngagement(data)
		if err != nil {
			return fmt.Errorf("CBOR input is neither an mdoc nor an engagement: %w", err)
		}
		output.PrintEngagement(e, opts)

	default:
		data, err := format.DecodeHexOrBase64URL(raw)
		if err != nil {
			return fmt.Errorf("unable to auto-detect input (not an engagement, mdoc, or certificate)")
		}
		cert, err := certificate.Parse(data)
		if err != nil {
			return fmt.Errorf("unable to auto-detect input (not an engagement, mdoc, or certificate)")
		}
		output.PrintCertificate(cert, opts)
	}

	return nil
}
