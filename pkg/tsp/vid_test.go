package tsp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaspoon-world/tmcp/pkg/did"
)

const testDID = "did:web:did.teaspoon.world:endpoint:tmcp_server-demo-0001"

func TestBind(t *testing.T) {
	vid, err := Bind(testDID, "http://localhost:8000/sse")
	require.NoError(t, err)

	assert.Equal(t, testDID, vid.DID)
	assert.Equal(t, "http://localhost:8000/sse", vid.Transport)
	assert.NotNil(t, vid.SigningKey)
	assert.NotNil(t, vid.KeyAgreementKey)
}

func TestBindInvalidDID(t *testing.T) {
	_, err := Bind("not-a-did", "http://localhost:8000/sse")
	assert.ErrorIs(t, err, did.ErrInvalidDID)
}

func TestDocument(t *testing.T) {
	vid, err := Bind(testDID, "http://localhost:8000/sse")
	require.NoError(t, err)

	doc := vid.Document()
	assert.Equal(t, testDID, doc.ID)

	sig, err := doc.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, vid.SigningKey.Public(), sig)

	ka, err := doc.KeyAgreementKey()
	require.NoError(t, err)
	assert.True(t, ka.Equal(&vid.KeyAgreementKey.PublicKey))

	endpoint, err := doc.TransportEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/sse", endpoint)
}

func TestOwnedVIDJSONRoundTrip(t *testing.T) {
	vid, err := Bind(testDID, "tmcpclient://")
	require.NoError(t, err)

	data, err := json.Marshal(vid)
	require.NoError(t, err)

	var restored OwnedVID
	require.NoError(t, json.Unmarshal(data, &restored))

	assert.Equal(t, vid.DID, restored.DID)
	assert.Equal(t, vid.Transport, restored.Transport)
	assert.Equal(t, vid.SigningKey, restored.SigningKey)
	assert.True(t, restored.KeyAgreementKey.Equal(vid.KeyAgreementKey))

	// restored keys still seal and open
	sealed, err := Seal(&restored, vid.Document(), []byte("ping"))
	require.NoError(t, err)
	payload, err := Open(vid, restored.Document(), sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), payload)
}
