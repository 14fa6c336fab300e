package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/teaspoon-world/tmcp/pkg/mcp"
	"github.com/teaspoon-world/tmcp/pkg/wallet"
)

// ClientConfig tunes the SSE client.
type ClientConfig struct {
	// ConnectTimeout bounds the initial GET and the wait for the
	// endpoint event. Default 5s.
	ConnectTimeout time.Duration

	// ReadTimeout disconnects the stream when no event arrives for this
	// long. Default 5m.
	ReadTimeout time.Duration

	// Headers are added to every HTTP request.
	Headers map[string]string
}

func (c *ClientConfig) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
}

// SSEClient is the client side of the SSE transport. It implements
// mcp.Transport: requests go out as POSTs, responses arrive on the
// event stream.
type SSEClient struct {
	codec      Codec
	peer       string
	cfg        ClientConfig
	httpClient *http.Client

	endpointURL string
	resp        *http.Response
	recv        chan *mcp.Message
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// Dial connects to a plain SSE endpoint URL.
func Dial(ctx context.Context, sseURL string, cfg ClientConfig) (*SSEClient, error) {
	return dial(ctx, sseURL, PlainCodec{}, "", cfg)
}

// DialDID connects to a server addressed by DID: the server's did:web
// document is resolved for its transport endpoint, the local DID rides
// the query string so the server can seal back, and all frames are
// sealed between the two identities.
func DialDID(ctx context.Context, store *wallet.SecureStore, localDID, serverDID string, cfg ClientConfig) (*SSEClient, error) {
	_, endpoint, err := store.ResolveDIDWeb(ctx, serverDID)
	if err != nil {
		return nil, err
	}
	log.Printf("Server endpoint: %s", endpoint)

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid server endpoint: %w", err)
	}
	q := u.Query()
	q.Set("did", localDID)
	u.RawQuery = q.Encode()

	return dial(ctx, u.String(), NewTSPCodec(store, localDID), serverDID, cfg)
}

func dial(ctx context.Context, sseURL string, codec Codec, peer string, cfg ClientConfig) (*SSEClient, error) {
	cfg.applyDefaults()

	base, err := url.Parse(sseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid SSE URL: %w", err)
	}

	c := &SSEClient{
		codec: codec,
		peer:  peer,
		cfg:   cfg,
		httpClient: &http.Client{
			// No overall timeout: the GET is a long-lived stream.
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.ConnectTimeout,
			},
		},
		recv: make(chan *mcp.Message, 16),
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	log.Printf("Connecting to SSE endpoint: %s", stripQuery(sseURL))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, sseURL, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("server returned status: %d", resp.StatusCode)
	}
	c.resp = resp

	endpointCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go c.readLoop(streamCtx, base, endpointCh, errCh)

	select {
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	case <-time.After(cfg.ConnectTimeout):
		c.Close()
		return nil, fmt.Errorf("timed out waiting for endpoint event")
	case err := <-errCh:
		c.Close()
		return nil, err
	case endpoint := <-endpointCh:
		c.endpointURL = endpoint
		log.Printf("Received endpoint URL: %s", endpoint)
		return c, nil
	}
}

// Receive implements mcp.Transport.
func (c *SSEClient) Receive() <-chan *mcp.Message {
	return c.recv
}

// Send implements mcp.Transport: the message is encoded (sealed in TSP
// mode) and POSTed to the session endpoint.
func (c *SSEClient) Send(ctx context.Context, msg *mcp.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	body, err := c.codec.EncodeBody(ctx, c.peer, payload)
	if err != nil {
		return err
	}

	contentType := "application/json"
	if _, sealed := c.codec.(*TSPCodec); sealed {
		contentType = "application/jose"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server rejected message (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// Close tears down the stream and the receive channel.
func (c *SSEClient) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.resp != nil {
			_ = c.resp.Body.Close()
		}
	})
	return nil
}

// readLoop parses the SSE stream, decodes frames and routes them.
func (c *SSEClient) readLoop(ctx context.Context, base *url.URL, endpointCh chan<- string, errCh chan<- error) {
	defer close(c.recv)

	// Watchdog: tear the stream down when the server goes silent.
	watchdog := time.AfterFunc(c.cfg.ReadTimeout, func() { c.Close() })
	defer watchdog.Stop()

	scanner := bufio.NewScanner(c.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var data []string

	flush := func() {
		if len(data) == 0 {
			name = ""
			return
		}
		ev := Event{Name: name, Data: strings.Join(data, "\n")}
		if ev.Name == "" {
			ev.Name = EventMessage
		}
		name = ""
		data = nil
		watchdog.Reset(c.cfg.ReadTimeout)
		c.handleEvent(ctx, ev, base, endpointCh, errCh)
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment/keepalive
		}
	}
	flush()
}

func (c *SSEClient) handleEvent(ctx context.Context, ev Event, base *url.URL, endpointCh chan<- string, errCh chan<- error) {
	decoded, err := c.codec.DecodeEvent(ctx, ev)
	if err != nil {
		log.Printf("Failed to decode SSE event: %v", err)
		return
	}

	switch decoded.Name {
	case EventEndpoint:
		ref, err := url.Parse(decoded.Data)
		if err != nil {
			errCh <- fmt.Errorf("invalid endpoint URL: %w", err)
			return
		}
		endpoint := base.ResolveReference(ref)
		if endpoint.Scheme != base.Scheme || endpoint.Host != base.Host {
			errCh <- fmt.Errorf("endpoint origin does not match connection origin: %s", endpoint)
			return
		}
		select {
		case endpointCh <- endpoint.String():
		default:
		}

	case EventMessage:
		msg, err := mcp.ParseMessage([]byte(decoded.Data))
		if err != nil {
			log.Printf("Error parsing server message: %v", err)
			return
		}
		select {
		case c.recv <- msg:
		case <-ctx.Done():
		}

	default:
		log.Printf("Unknown SSE event: %s", decoded.Name)
	}
}

// stripQuery removes query parameters for logging (the did parameter is
// not a secret, but logs stay readable).
func stripQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
