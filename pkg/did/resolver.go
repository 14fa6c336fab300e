package did

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Resolver fetches DID documents for did:web identifiers.
type Resolver interface {
	Resolve(ctx context.Context, did string) (*Document, error)
}

type cacheEntry struct {
	doc       *Document
	expiresAt time.Time
}

// WebResolver is the default did:web resolver. Resolved documents are
// cached with a TTL so repeated seals to the same peer do not hit the
// network.
type WebResolver struct {
	client *http.Client
	cache  map[string]cacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
}

// NewWebResolver creates a resolver with a default HTTP client and a
// 5 minute cache TTL.
func NewWebResolver() *WebResolver {
	return &WebResolver{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache: make(map[string]cacheEntry),
		ttl:   5 * time.Minute,
	}
}

// SetTTL configures the cache time-to-live.
func (r *WebResolver) SetTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttl = ttl
}

// FlushCache clears all cached documents.
func (r *WebResolver) FlushCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cacheEntry)
}

// Resolve fetches the DID document for a did:web identifier, using the
// cache if available. A 404 from the hosting server maps to ErrNotFound,
// which callers use to detect identities that have been purged.
func (r *WebResolver) Resolve(ctx context.Context, didStr string) (*Document, error) {
	parsed, err := Parse(didStr)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	entry, found := r.cache[parsed.Raw]
	r.mu.RUnlock()

	if found && time.Now().Before(entry.expiresAt) {
		return entry.doc, nil
	}

	docURL := parsed.DocumentURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DID document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parsed.Raw)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, docURL)
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse DID document: %w", err)
	}
	if doc.ID != parsed.Raw {
		return nil, fmt.Errorf("%w: document id %q does not match %q", ErrInvalidDID, doc.ID, parsed.Raw)
	}

	r.mu.Lock()
	r.cache[parsed.Raw] = cacheEntry{doc: &doc, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return &doc, nil
}
