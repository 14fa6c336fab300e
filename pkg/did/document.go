package did

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Well-known fragments for the two verification methods every TMCP
// identity carries.
const (
	SigningKeyFragment      = "#signing-key"
	KeyAgreementKeyFragment = "#key-agreement"
	TransportFragment       = "#transport"
)

// TransportServiceType identifies the service entry holding the
// identity's transport endpoint.
const TransportServiceType = "TrustSpanningProtocol"

var (
	ErrNoSigningKey      = errors.New("DID document has no Ed25519 signing key")
	ErrNoKeyAgreementKey = errors.New("DID document has no key agreement key")
	ErrNoTransport       = errors.New("DID document has no transport service endpoint")
)

// VerificationMethod is a single public key entry in a DID document.
type VerificationMethod struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	Controller   string           `json:"controller"`
	PublicKeyJWK *jose.JSONWebKey `json:"publicKeyJwk"`
}

// Service is a service entry in a DID document.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Document is the subset of a W3C DID document that TMCP produces and
// consumes. It is what the DID support server stores under did.json.
type Document struct {
	Context            []string             `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication,omitempty"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// findMethod returns the verification method whose id ends with fragment.
func (doc *Document) findMethod(fragment string) *VerificationMethod {
	for i := range doc.VerificationMethod {
		vm := &doc.VerificationMethod[i]
		if vm.ID == doc.ID+fragment || vm.ID == fragment {
			return vm
		}
	}
	return nil
}

// SigningKey extracts the Ed25519 public key used to verify signatures
// from this identity.
func (doc *Document) SigningKey() (ed25519.PublicKey, error) {
	vm := doc.findMethod(SigningKeyFragment)
	if vm == nil || vm.PublicKeyJWK == nil {
		return nil, ErrNoSigningKey
	}
	pub, ok := vm.PublicKeyJWK.Key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrNoSigningKey, vm.PublicKeyJWK.Key)
	}
	return pub, nil
}

// KeyAgreementKey extracts the ECDSA public key used to encrypt messages
// to this identity.
func (doc *Document) KeyAgreementKey() (*ecdsa.PublicKey, error) {
	vm := doc.findMethod(KeyAgreementKeyFragment)
	if vm == nil || vm.PublicKeyJWK == nil {
		return nil, ErrNoKeyAgreementKey
	}
	pub, ok := vm.PublicKeyJWK.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrNoKeyAgreementKey, vm.PublicKeyJWK.Key)
	}
	return pub, nil
}

// TransportEndpoint returns the identity's transport URL. For servers this
// is the SSE endpoint clients connect to; clients advertise a placeholder
// scheme since they are not publicly reachable.
func (doc *Document) TransportEndpoint() (string, error) {
	for _, svc := range doc.Service {
		if svc.Type == TransportServiceType && svc.ServiceEndpoint != "" {
			return svc.ServiceEndpoint, nil
		}
	}
	return "", ErrNoTransport
}
