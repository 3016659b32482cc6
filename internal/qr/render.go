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

package qr

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Encode renders content as a size x size QR code image.
func Encode(content string, size int) (image.Image, error) {
	return encode(content, size, 4)
}

func encode(content string, size, margin int) (*gozxing.BitMatrix, error) {
	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_MARGIN: margin,
	}
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, size, size, hints)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	return matrix, nil
}

// WritePNG writes content as a QR code PNG to w.
func WritePNG(w io.Writer, content string, size int) error {
	img, err := Encode(content, size)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// Terminal renders content with Unicode half blocks, two modules per character row.
func Terminal(content string) (string, error) {
	matrix, err := encode(content, 0, 1)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	width, height := matrix.GetWidth(), matrix.GetHeight()
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			top := matrix.Get(x, y)
			bottom := y+1 < height && matrix.Get(x, y+1)
			switch {
			case top && bottom:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bottom:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
