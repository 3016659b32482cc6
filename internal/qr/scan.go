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

// Package qr scans and renders the QR codes that carry mdoc reader engagements.
package qr

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/dominikschlosser/mdoc-holder/internal/mdoc"
)

var (
	ErrNoQRCode      = errors.New("no QR code found in image")
	ErrNotEngagement = errors.New("QR code does not hold an mdoc: engagement URI")
)

// ScanFile decodes the QR code in the PNG or JPEG image at path.
func ScanFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening image file: %w", err)
	}
	defer f.Close()
	return Scan(f)
}

// Scan decodes the QR code in a PNG or JPEG image.
func Scan(r io.Reader) (string, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}
	return decodeQR(img)
}

// ScanEngagement decodes the reader engagement from a QR image file.
func ScanEngagement(path string) (*mdoc.Engagement, error) {
	text, err := ScanFile(path)
	if err != nil {
		return nil, err
	}
	return engagementFromText(text)
}

func engagementFromText(text string) (*mdoc.Engagement, error) {
	if !strings.HasPrefix(strings.ToLower(text), "mdoc:") {
		return nil, ErrNotEngagement
	}
	return mdoc.ParseEngagementURI(text)
}

func decodeQR(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("creating bitmap: %w", err)
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoQRCode, err)
	}
	return result.GetText(), nil
}
