package tsp

import (
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/teaspoon-world/tmcp/pkg/did"
)

// Envelope header keys. The receiver DID rides in the standard kid slot;
// the sender DID in skid so relays can route without decrypting.
const (
	senderHeader = "skid"

	envelopeType = "tsp+jwe"
	payloadType  = "tsp+jws"
)

var (
	ErrMissingSender   = errors.New("envelope has no sender address")
	ErrMissingReceiver = errors.New("envelope has no receiver address")
	ErrSenderMismatch  = errors.New("inner signature kid does not match envelope sender")
)

var (
	keyAlgs     = []jose.KeyAlgorithm{jose.ECDH_ES_A256KW}
	contentEncs = []jose.ContentEncryption{jose.A256GCM}
	sigAlgs     = []jose.SignatureAlgorithm{jose.EdDSA}
)

// Seal signs payload with the sender's key and encrypts it to the
// receiver's key agreement key. The result is a compact JWE string:
// URL-safe ASCII, so it can ride an SSE data field or a POST body as-is.
func Seal(sender *OwnedVID, receiver *did.Document, payload []byte) (string, error) {
	if sender.SigningKey == nil {
		return "", ErrMissingSigningKey
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{
			Algorithm: jose.EdDSA,
			Key:       jose.JSONWebKey{Key: sender.SigningKey, KeyID: sender.DID},
		},
		(&jose.SignerOptions{}).WithType(payloadType),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}
	inner, err := jws.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize signature: %w", err)
	}

	receiverKey, err := receiver.KeyAgreementKey()
	if err != nil {
		return "", err
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{
			Algorithm: jose.ECDH_ES_A256KW,
			Key:       receiverKey,
			KeyID:     receiver.ID,
		},
		(&jose.EncrypterOptions{}).
			WithType(envelopeType).
			WithHeader(jose.HeaderKey(senderHeader), sender.DID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create encrypter: %w", err)
	}

	jwe, err := encrypter.Encrypt([]byte(inner))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt payload: %w", err)
	}

	return jwe.CompactSerialize()
}

// PeekAddresses extracts the sender and receiver DIDs from an envelope
// without decrypting it.
func PeekAddresses(raw string) (sender, receiver string, err error) {
	jwe, err := jose.ParseEncrypted(raw, keyAlgs, contentEncs)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse envelope: %w", err)
	}

	receiver = jwe.Header.KeyID
	if receiver == "" {
		return "", "", ErrMissingReceiver
	}

	sender, _ = jwe.Header.ExtraHeaders[jose.HeaderKey(senderHeader)].(string)
	if sender == "" {
		return "", "", ErrMissingSender
	}

	return sender, receiver, nil
}

// Open decrypts an envelope with the receiver's private key and verifies
// the inner signature against the sender's published signing key.
// It returns the plaintext payload.
func Open(receiver *OwnedVID, sender *did.Document, raw string) ([]byte, error) {
	if receiver.KeyAgreementKey == nil {
		return nil, ErrMissingKeyAgreementKey
	}

	jwe, err := jose.ParseEncrypted(raw, keyAlgs, contentEncs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}

	inner, err := jwe.Decrypt(receiver.KeyAgreementKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt envelope: %w", err)
	}

	jws, err := jose.ParseSigned(string(inner), sigAlgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse inner signature: %w", err)
	}

	if len(jws.Signatures) > 0 && jws.Signatures[0].Header.KeyID != sender.ID {
		return nil, fmt.Errorf("%w: %q", ErrSenderMismatch, jws.Signatures[0].Header.KeyID)
	}

	senderKey, err := sender.SigningKey()
	if err != nil {
		return nil, err
	}

	payload, err := jws.Verify(senderKey)
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	return payload, nil
}
