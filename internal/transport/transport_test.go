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

package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentTypeCBOR, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", ContentTypeCBOR)
		_, _ = w.Write(append([]byte{0xa1}, body...))
	}))
	defer srv.Close()

	resp, err := New(zerolog.Nop()).Post(context.Background(), srv.URL, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0x01}, resp)
}

func TestPost_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unknown session", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(zerolog.Nop()).Post(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "unknown session")
}

func TestPost_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(zerolog.Nop()).Post(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPost_ZeroValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte{0xf6})
	}))
	defer srv.Close()

	var tr HTTP
	resp, err := tr.Post(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf6}, resp)
}

func TestPost_ResponseLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size := maxResponseSize
		if r.URL.Path == "/large" {
			size++
		}
		_, _ = w.Write(make([]byte, size))
	}))
	defer srv.Close()
	client := New(zerolog.Nop())

	resp, err := client.Post(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Len(t, resp, maxResponseSize)

	_, err = client.Post(context.Background(), srv.URL+"/large", nil)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}
