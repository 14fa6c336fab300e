// Package did provides parsing, resolution and publication of did:web
// identifiers as used by the TMCP transport.
package did

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Common errors returned by this package.
var (
	ErrInvalidDID        = errors.New("invalid DID format")
	ErrUnsupportedMethod = errors.New("unsupported DID method (only did:web supported)")
	ErrNotFound          = errors.New("DID not found")
)

// DefaultDomain is the domain of the public DID support server.
const DefaultDomain = "did.teaspoon.world"

// DID represents a parsed did:web identifier.
//
// Format: did:web:<domain>[:<path segment>...]
type DID struct {
	// Domain is the domain hosting the DID Document.
	Domain string

	// PathSegments are the colon-separated segments after the domain
	// (e.g., ["endpoint", "demo-1f2e..."]).
	PathSegments []string

	// Raw is the original DID string.
	Raw string
}

// Parse parses a did:web identifier into its components.
//
// Returns ErrInvalidDID if the format is invalid and ErrUnsupportedMethod
// for methods other than "web".
//
// Example: did:web:did.teaspoon.world:endpoint:tmcp_server-demo-2f9c...
func Parse(did string) (*DID, error) {
	if did == "" {
		return nil, ErrInvalidDID
	}

	parts := strings.Split(did, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: expected at least 3 parts, got %d", ErrInvalidDID, len(parts))
	}

	if parts[0] != "did" {
		return nil, fmt.Errorf("%w: must start with 'did:'", ErrInvalidDID)
	}

	if parts[1] != "web" {
		return nil, fmt.Errorf("%w: got did:%s", ErrUnsupportedMethod, parts[1])
	}

	// did:web uses percent-encoding for special characters in the domain
	domain, err := url.PathUnescape(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid domain encoding: %v", ErrInvalidDID, err)
	}
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", ErrInvalidDID)
	}

	return &DID{
		Domain:       domain,
		PathSegments: parts[3:],
		Raw:          strings.Join(parts, ":"),
	}, nil
}

// IsDID reports whether s looks like a DID rather than a plain URL.
func IsDID(s string) bool {
	return strings.HasPrefix(s, "did:")
}

// String returns the canonical DID string.
func (d *DID) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	encoded := strings.ReplaceAll(url.PathEscape(d.Domain), ":", "%3A")
	parts := []string{"did", "web", encoded}
	parts = append(parts, d.PathSegments...)
	return strings.Join(parts, ":")
}

// DocumentURL returns the HTTPS URL for the DID Document per the did:web spec.
//
//	did:web:did.teaspoon.world:endpoint:demo-1
//	  → https://did.teaspoon.world/endpoint/demo-1/did.json
//
// Uses HTTP for localhost domains, HTTPS otherwise.
func (d *DID) DocumentURL() string {
	path := strings.Join(d.PathSegments, "/")
	if path != "" {
		path = "/" + path
	}

	scheme := "https"
	if strings.HasPrefix(d.Domain, "localhost") || strings.HasPrefix(d.Domain, "127.0.0.1") {
		scheme = "http"
	}

	return fmt.Sprintf("%s://%s%s/did.json", scheme, d.Domain, path)
}

// NewEndpointDID mints a fresh did:web under the DID support server's
// endpoint namespace. Each call produces a unique identifier.
//
// Returns: did:web:<domain>:endpoint:<prefix>-<name>-<uuid>
func NewEndpointDID(domain, prefix, name string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	encoded := strings.ReplaceAll(url.PathEscape(domain), ":", "%3A")
	return fmt.Sprintf("did:web:%s:endpoint:%s-%s-%s", encoded, prefix, name, uuid.New())
}
