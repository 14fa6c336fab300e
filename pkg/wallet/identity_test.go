package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaspoon-world/tmcp/pkg/did"
)

func TestGetOrCreateIdentityMints(t *testing.T) {
	store, resolver := newTestStore(t)

	var published atomic.Int64
	var lastDoc did.Document
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		published.Add(1)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastDoc))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	settings := IdentitySettings{
		PublishURL: ts.URL,
		Prefix:     "tmcp_server",
		Transport:  "http://localhost:8000/sse",
	}

	ctx := context.Background()
	didStr, err := GetOrCreateIdentity(ctx, store, "demo", settings)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(didStr, "did:web:did.teaspoon.world:endpoint:tmcp_server-demo-"))
	assert.Equal(t, int64(1), published.Load())
	assert.Equal(t, didStr, lastDoc.ID)
	assert.True(t, store.Holds(didStr))

	endpoint, err := lastDoc.TransportEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/sse", endpoint)

	// once the DID resolves, the same alias returns the same identity
	// without publishing again
	resolver.add(&lastDoc)
	again, err := GetOrCreateIdentity(ctx, store, "demo", settings)
	require.NoError(t, err)
	assert.Equal(t, didStr, again)
	assert.Equal(t, int64(1), published.Load())
}

func TestGetOrCreateIdentityRemintsPurged(t *testing.T) {
	store, _ := newTestStore(t)

	var published atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		published.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	settings := DefaultClientSettings()
	settings.PublishURL = ts.URL

	ctx := context.Background()
	first, err := GetOrCreateIdentity(ctx, store, "alice", settings)
	require.NoError(t, err)

	// the resolver never learns the DID, simulating a purge on the DID
	// support server, so a second call mints a replacement
	second, err := GetOrCreateIdentity(ctx, store, "alice", settings)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, int64(2), published.Load())
	assert.True(t, strings.Contains(second, "tmcp_client-alice-"))
}

func TestGetOrCreateIdentityPublishFailure(t *testing.T) {
	store, _ := newTestStore(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	settings := DefaultClientSettings()
	settings.PublishURL = ts.URL

	_, err := GetOrCreateIdentity(context.Background(), store, "alice", settings)
	require.Error(t, err)

	var pubErr *did.PublishError
	assert.ErrorAs(t, err, &pubErr)

	// nothing is stored when publishing fails
	aliases, aerr := store.Aliases()
	require.NoError(t, aerr)
	assert.Empty(t, aliases)
}
