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

// Package transport posts session messages to a reader over HTTP.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	ContentTypeCBOR = "application/cbor"
	DefaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

var ErrResponseTooLarge = errors.New("response too large")

// HTTP posts CBOR bodies. It implements holder.Transport.
type HTTP struct {
	Client *http.Client
	Log    zerolog.Logger
}

// New returns an HTTP transport with DefaultTimeout.
func New(log zerolog.Logger) *HTTP {
	return &HTTP{Client: &http.Client{Timeout: DefaultTimeout}, Log: log}
}

// Post sends body to url and returns the response body. Non-2xx answers are errors.
func (t *HTTP) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeCBOR)
	req.Header.Set("Accept", ContentTypeCBOR)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, maxResponseSize)
	}
	t.Log.Debug().
		Str("url", url).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("posted session message")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
