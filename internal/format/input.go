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

package format

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

const maxInputSize = 1 << 20

var httpClient = &http.Client{
	Timeout: 15 * time.Second,
}

// ReadInput reads CLI input from a URL, a file path, "-" or "" for stdin, or a raw string.
// Binary content such as DER certificates or raw CBOR is returned hex encoded, so Detect
// and DecodeCBOR see the same text form for every source.
func ReadInput(input string) (string, error) {
	input = strings.TrimSpace(input)

	switch {
	case input == "-" || input == "":
		return readStdin()
	case strings.HasPrefix(input, "https://") || strings.HasPrefix(input, "http://"):
		return fetchURL(input)
	}
	if info, err := os.Stat(input); err == nil && !info.IsDir() {
		return readFile(input)
	}
	return input, nil
}

func readStdin() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", fmt.Errorf("cannot read stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return "", fmt.Errorf("no input provided (use an mdoc: URI, a file path, a URL, or pipe to stdin)")
	}
	b, err := io.ReadAll(io.LimitReader(os.Stdin, maxInputSize))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return asText(b), nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading file %s: %w", path, err)
	}
	return asText(b), nil
}

func fetchURL(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: HTTP %d", url, resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxInputSize))
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w", url, err)
	}
	return asText(b), nil
}

// asText trims textual content and hex encodes anything else.
func asText(b []byte) string {
	if utf8.Valid(b) && !strings.ContainsRune(string(b), 0) {
		return strings.TrimSpace(string(b))
	}
	return hex.EncodeToString(b)
}
