package did

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultPublishURL is where the public DID support server accepts new
// identities. Publishing is non-standard and depends on the DID support
// server implementation.
const DefaultPublishURL = "https://" + DefaultDomain + "/add-vid"

// PublishError is returned when the DID support server rejects a document.
type PublishError struct {
	StatusCode int
	Body       string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("could not publish DID (status code: %d)", e.StatusCode)
}

// Publisher uploads DID documents to a DID support server.
type Publisher struct {
	url    string
	client *http.Client
}

// NewPublisher creates a publisher for the given endpoint. An empty URL
// selects DefaultPublishURL.
func NewPublisher(url string) *Publisher {
	if url == "" {
		url = DefaultPublishURL
	}
	return &Publisher{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Publish uploads the document so the DID becomes resolvable.
func (p *Publisher) Publish(ctx context.Context, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal DID document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to publish DID: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &PublishError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return nil
}
