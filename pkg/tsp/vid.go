// Package tsp implements Trust Spanning Protocol identities and the
// sealed message envelope TMCP tunnels MCP traffic through.
//
// An envelope is signed by the sender's Ed25519 key and encrypted to the
// receiver's P-256 key agreement key (JWS nested in JWE, compact
// serialization). Both endpoint addresses ride in the outer header so a
// relay can route without key material.
package tsp

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/teaspoon-world/tmcp/pkg/did"
)

var (
	ErrMissingSigningKey      = errors.New("owned VID has no signing key")
	ErrMissingKeyAgreementKey = errors.New("owned VID has no key agreement key")
)

// OwnedVID is a verifiable identifier together with its private key
// material and transport binding. This is the local half of an identity;
// the public half is the DID document produced by Document.
type OwnedVID struct {
	// DID is the did:web identifier.
	DID string

	// Transport is the endpoint bound to this identity. Servers bind the
	// URL clients should connect to; clients bind a placeholder scheme.
	Transport string

	// SigningKey signs outgoing envelopes.
	SigningKey ed25519.PrivateKey

	// KeyAgreementKey decrypts envelopes sealed to this identity.
	KeyAgreementKey *ecdsa.PrivateKey
}

// Bind creates a new identity for the given DID with fresh key material
// bound to a transport endpoint.
func Bind(didStr, transport string) (*OwnedVID, error) {
	if _, err := did.Parse(didStr); err != nil {
		return nil, err
	}

	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	agreementKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key agreement key: %w", err)
	}

	return &OwnedVID{
		DID:             didStr,
		Transport:       transport,
		SigningKey:      signingKey,
		KeyAgreementKey: agreementKey,
	}, nil
}

// Document renders the publishable DID document for this identity.
func (v *OwnedVID) Document() *did.Document {
	sigID := v.DID + did.SigningKeyFragment
	kaID := v.DID + did.KeyAgreementKeyFragment

	return &did.Document{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      v.DID,
		VerificationMethod: []did.VerificationMethod{
			{
				ID:         sigID,
				Type:       "JsonWebKey2020",
				Controller: v.DID,
				PublicKeyJWK: &jose.JSONWebKey{
					Key:       v.SigningKey.Public(),
					KeyID:     sigID,
					Algorithm: string(jose.EdDSA),
					Use:       "sig",
				},
			},
			{
				ID:         kaID,
				Type:       "JsonWebKey2020",
				Controller: v.DID,
				PublicKeyJWK: &jose.JSONWebKey{
					Key:       &v.KeyAgreementKey.PublicKey,
					KeyID:     kaID,
					Algorithm: string(jose.ECDH_ES_A256KW),
					Use:       "enc",
				},
			},
		},
		Authentication: []string{sigID},
		KeyAgreement:   []string{kaID},
		Service: []did.Service{
			{
				ID:              v.DID + did.TransportFragment,
				Type:            did.TransportServiceType,
				ServiceEndpoint: v.Transport,
			},
		},
	}
}

// ownedVIDJSON is the wallet storage format for a private VID.
type ownedVIDJSON struct {
	DID             string          `json:"did"`
	Transport       string          `json:"transport"`
	SigningKey      json.RawMessage `json:"signing_key"`
	KeyAgreementKey json.RawMessage `json:"key_agreement_key"`
}

// MarshalJSON serializes the identity including private keys (JWK form).
// Only the wallet should persist this.
func (v *OwnedVID) MarshalJSON() ([]byte, error) {
	sig, err := json.Marshal(jose.JSONWebKey{Key: v.SigningKey, Algorithm: string(jose.EdDSA), Use: "sig"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signing key: %w", err)
	}
	ka, err := json.Marshal(jose.JSONWebKey{Key: v.KeyAgreementKey, Algorithm: string(jose.ECDH_ES_A256KW), Use: "enc"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key agreement key: %w", err)
	}
	return json.Marshal(ownedVIDJSON{
		DID:             v.DID,
		Transport:       v.Transport,
		SigningKey:      sig,
		KeyAgreementKey: ka,
	})
}

// UnmarshalJSON restores an identity from wallet storage.
func (v *OwnedVID) UnmarshalJSON(data []byte) error {
	var raw ownedVIDJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var sigJWK jose.JSONWebKey
	if err := json.Unmarshal(raw.SigningKey, &sigJWK); err != nil {
		return fmt.Errorf("failed to parse signing key: %w", err)
	}
	signingKey, ok := sigJWK.Key.(ed25519.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrMissingSigningKey, sigJWK.Key)
	}

	var kaJWK jose.JSONWebKey
	if err := json.Unmarshal(raw.KeyAgreementKey, &kaJWK); err != nil {
		return fmt.Errorf("failed to parse key agreement key: %w", err)
	}
	agreementKey, ok := kaJWK.Key.(*ecdsa.PrivateKey)
	if !ok {
		return fmt.Errorf("%w: got %T", ErrMissingKeyAgreementKey, kaJWK.Key)
	}

	v.DID = raw.DID
	v.Transport = raw.Transport
	v.SigningKey = signingKey
	v.KeyAgreementKey = agreementKey
	return nil
}
