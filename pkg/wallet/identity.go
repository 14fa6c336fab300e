package wallet

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/teaspoon-world/tmcp/pkg/did"
	"github.com/teaspoon-world/tmcp/pkg/tsp"
)

// IdentitySettings controls how new identities are minted and published.
type IdentitySettings struct {
	// PublishURL is the DID support server's registration endpoint.
	// Empty selects did.DefaultPublishURL.
	PublishURL string

	// Domain hosts the minted did:web. Empty selects did.DefaultDomain.
	Domain string

	// Prefix namespaces the identifier (e.g. "tmcp_server", "tmcp_client").
	Prefix string

	// Transport is the endpoint bound into the identity. Clients are not
	// publicly reachable and advertise the placeholder scheme.
	Transport string
}

// ClientTransport is the placeholder transport bound to client
// identities, which are not publicly accessible.
const ClientTransport = "tmcpclient://"

// DefaultClientSettings mints client identities against the public DID
// support server.
func DefaultClientSettings() IdentitySettings {
	return IdentitySettings{
		Prefix:    "tmcp_client",
		Transport: ClientTransport,
	}
}

// GetOrCreateIdentity returns the DID registered under alias, minting,
// publishing and storing a fresh identity when the alias is unknown or
// its DID has been purged from the DID support server.
func GetOrCreateIdentity(ctx context.Context, store *SecureStore, alias string, settings IdentitySettings) (string, error) {
	didStr, err := store.ResolveAlias(alias)
	if err != nil {
		return "", err
	}

	if didStr != "" {
		// Verify the DID still exists; a 404 means the support server
		// purged it and a new identity is needed.
		switch err := store.VerifyVID(ctx, didStr); {
		case err == nil:
			log.Printf("Using existing DID: %s", didStr)
			return didStr, nil
		case errors.Is(err, did.ErrNotFound):
			didStr = ""
		default:
			return "", err
		}
	}

	didStr = did.NewEndpointDID(settings.Domain, settings.Prefix, alias)
	identity, err := tsp.Bind(didStr, settings.Transport)
	if err != nil {
		return "", fmt.Errorf("failed to bind identity: %w", err)
	}

	publisher := did.NewPublisher(settings.PublishURL)
	if err := publisher.Publish(ctx, identity.Document()); err != nil {
		return "", err
	}
	log.Printf("Published %s DID: %s", settings.Prefix, didStr)

	if err := store.AddPrivateVID(identity, alias); err != nil {
		return "", err
	}

	return didStr, nil
}
