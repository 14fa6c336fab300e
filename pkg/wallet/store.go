// Package wallet provides the secure store backing TMCP identities:
// private VIDs and their aliases on disk, peer DID documents resolved
// and cached on demand, and seal/open of transport envelopes.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/teaspoon-world/tmcp/pkg/did"
	"github.com/teaspoon-world/tmcp/pkg/tsp"
)

// Common errors returned by this package.
var (
	ErrVIDNotFound     = errors.New("private VID not found in wallet")
	ErrUnknownReceiver = errors.New("message receiver is not held in this wallet")
	ErrUnknownSender   = errors.New("message sender could not be resolved")
)

// SecureStore is a file-backed wallet. Layout under the wallet directory:
//
//	aliases.json          alias → DID map
//	<did>.vid.json        private VID (keys included, 0600)
type SecureStore struct {
	dir      string
	mu       sync.RWMutex
	resolver did.Resolver
}

// DefaultDir returns the default wallet directory.
func DefaultDir() string {
	if envPath := os.Getenv("TMCP_WALLET_PATH"); envPath != "" {
		return envPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tmcp/wallet"
	}
	return filepath.Join(home, ".tmcp", "wallet")
}

// NewSecureStore opens (creating if needed) a wallet at dir. An empty dir
// selects DefaultDir.
func NewSecureStore(dir string) (*SecureStore, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create wallet directory: %w", err)
	}

	return &SecureStore{
		dir:      dir,
		resolver: did.NewWebResolver(),
	}, nil
}

// SetResolver replaces the DID resolver (used by tests).
func (s *SecureStore) SetResolver(r did.Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

func (s *SecureStore) vidPath(didStr string) string {
	return filepath.Join(s.dir, sanitizeFilename(didStr)+".vid.json")
}

func (s *SecureStore) aliasesPath() string {
	return filepath.Join(s.dir, "aliases.json")
}

// AddPrivateVID stores an identity and registers it under alias.
func (s *SecureStore) AddPrivateVID(vid *tsp.OwnedVID, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(vid, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal VID: %w", err)
	}

	// Contains private keys
	if err := os.WriteFile(s.vidPath(vid.DID), data, 0600); err != nil {
		return fmt.Errorf("failed to write VID: %w", err)
	}

	aliases, err := s.loadAliases()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if aliases == nil {
		aliases = make(map[string]string)
	}
	aliases[alias] = vid.DID
	return s.saveAliases(aliases)
}

// ResolveAlias returns the DID registered under alias, or "" when the
// alias is unknown.
func (s *SecureStore) ResolveAlias(alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aliases, err := s.loadAliases()
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return aliases[alias], nil
}

// Aliases returns a copy of the alias → DID map.
func (s *SecureStore) Aliases() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aliases, err := s.loadAliases()
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out, nil
}

// PrivateVID loads the identity stored for didStr.
func (s *SecureStore) PrivateVID(didStr string) (*tsp.OwnedVID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.vidPath(didStr))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrVIDNotFound, didStr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read VID: %w", err)
	}

	var vid tsp.OwnedVID
	if err := json.Unmarshal(data, &vid); err != nil {
		return nil, fmt.Errorf("failed to parse VID: %w", err)
	}
	return &vid, nil
}

// Holds reports whether the wallet stores a private VID for didStr.
func (s *SecureStore) Holds(didStr string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.vidPath(didStr))
	return err == nil
}

// VerifyVID checks that a DID is still resolvable. A purged identity
// surfaces as did.ErrNotFound.
func (s *SecureStore) VerifyVID(ctx context.Context, didStr string) error {
	_, err := s.resolver.Resolve(ctx, didStr)
	return err
}

// ResolveDIDWeb resolves a peer's did:web document (cached by the
// underlying resolver) and returns it alongside its transport endpoint.
func (s *SecureStore) ResolveDIDWeb(ctx context.Context, didStr string) (*did.Document, string, error) {
	doc, err := s.resolver.Resolve(ctx, didStr)
	if err != nil {
		return nil, "", err
	}
	endpoint, err := doc.TransportEndpoint()
	if err != nil {
		return nil, "", err
	}
	return doc, endpoint, nil
}

// SealMessage seals payload from one of the wallet's identities to a
// resolvable receiver DID.
func (s *SecureStore) SealMessage(ctx context.Context, senderDID, receiverDID string, payload []byte) (string, error) {
	sender, err := s.PrivateVID(senderDID)
	if err != nil {
		return "", err
	}

	receiver, err := s.resolver.Resolve(ctx, receiverDID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownSender, err)
	}

	return tsp.Seal(sender, receiver, payload)
}

// OpenMessage opens an envelope sealed to one of the wallet's identities
// and returns the plaintext plus the verified sender DID.
func (s *SecureStore) OpenMessage(ctx context.Context, raw string) ([]byte, string, error) {
	senderDID, receiverDID, err := tsp.PeekAddresses(raw)
	if err != nil {
		return nil, "", err
	}

	receiver, err := s.PrivateVID(receiverDID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownReceiver, receiverDID)
	}

	senderDoc, err := s.resolver.Resolve(ctx, senderDID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnknownSender, err)
	}

	payload, err := tsp.Open(receiver, senderDoc, raw)
	if err != nil {
		return nil, "", err
	}
	return payload, senderDID, nil
}

// GetSenderReceiver reads the envelope addresses without opening it.
func (s *SecureStore) GetSenderReceiver(raw string) (sender, receiver string, err error) {
	return tsp.PeekAddresses(raw)
}

func (s *SecureStore) loadAliases() (map[string]string, error) {
	data, err := os.ReadFile(s.aliasesPath())
	if err != nil {
		return nil, err
	}

	var aliases map[string]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("failed to parse aliases file: %w", err)
	}
	return aliases, nil
}

func (s *SecureStore) saveAliases(aliases map[string]string) error {
	data, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal aliases: %w", err)
	}
	if err := os.WriteFile(s.aliasesPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write aliases file: %w", err)
	}
	return nil
}

// sanitizeFilename converts a DID to a safe filename.
func sanitizeFilename(didStr string) string {
	safe := make([]byte, 0, len(didStr))
	for _, c := range []byte(didStr) {
		switch c {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '%':
			safe = append(safe, '_')
		default:
			safe = append(safe, c)
		}
	}
	return string(safe)
}
