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

package wallet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominikschlosser/mdoc-holder/internal/certificate"
	"github.com/dominikschlosser/mdoc-holder/internal/mock"
)

func TestStore_LoadEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())

	w, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, w.Credentials())
}

func TestStore_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, zerolog.Nop())
	issuer, err := store.LoadOrCreateIssuer()
	require.NoError(t, err)

	w := New()
	id, err := w.Issue(issuer, mock.ExampleDocType, mock.ExampleNameSpace, mock.ExampleAttributes())
	require.NoError(t, err)
	require.NoError(t, store.Save(w))

	w2, err := store.Load()
	require.NoError(t, err)
	creds := w2.Credentials()
	require.Len(t, creds, 1)
	assert.Equal(t, id, creds[0].ID)
	require.NotNil(t, creds[0].Mdoc())

	_, err = creds[0].Mdoc().IssuerSigned.Verify(mock.ExampleDocType, certificate.SystemClock, issuer.TrustAnchors())
	require.NoError(t, err)

	pub, err := creds[0].Mdoc().IssuerSigned.PublicKey()
	require.NoError(t, err)
	handle := w2.Keys().GenerateExisting(creds[0].PrivateKeyID, pub)
	_, err = handle.Sign(context.Background(), []byte("challenge"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "keys", creds[0].PrivateKeyID+".pem"))
	assert.NoError(t, err)
}

func TestStore_IssuerIsStable(t *testing.T) {
	store := NewStore(t.TempDir(), zerolog.Nop())

	first, err := store.LoadOrCreateIssuer()
	require.NoError(t, err)
	second, err := store.LoadOrCreateIssuer()
	require.NoError(t, err)

	assert.True(t, first.CA.Equal(second.CA))
	assert.True(t, first.Certificate.Equal(second.Certificate))
	assert.True(t, first.Key.Equal(second.Key))
}
