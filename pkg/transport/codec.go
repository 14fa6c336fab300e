// Package transport implements the SSE transport for MCP sessions, in a
// plain variant and a sealed variant that tunnels every frame through
// TSP envelopes between wallet identities.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/teaspoon-world/tmcp/pkg/tsp"
	"github.com/teaspoon-world/tmcp/pkg/wallet"
)

// SSE event names used on the wire and inside sealed frames.
const (
	EventEndpoint = "endpoint"
	EventMessage  = "message"
)

// Event is one logical SSE event.
type Event struct {
	Name string `json:"event"`
	Data string `json:"data"`
}

// ErrIncorrectReceiver is returned when a frame is sealed to a different
// identity than the local one.
var ErrIncorrectReceiver = errors.New("incorrect receiver")

// Codec translates between logical frames and what actually rides the
// wire. The plain codec is a passthrough; the TSP codec seals both
// directions.
type Codec interface {
	// Name identifies the codec in logs.
	Name() string

	// ValidatePeer is called when a peer attaches, before any frames
	// flow (sealed mode resolves the peer's DID document here).
	ValidatePeer(ctx context.Context, peer string) error

	// EncodeEvent prepares an SSE frame addressed to peer.
	EncodeEvent(ctx context.Context, peer string, ev Event) (Event, error)

	// DecodeEvent recovers the logical event from a received SSE frame.
	DecodeEvent(ctx context.Context, ev Event) (Event, error)

	// EncodeBody prepares a POST body addressed to peer.
	EncodeBody(ctx context.Context, peer string, payload []byte) ([]byte, error)

	// DecodeBody recovers a POST payload and the verified sender
	// address (empty in plain mode).
	DecodeBody(ctx context.Context, body []byte) ([]byte, string, error)
}

// PlainCodec passes JSON-RPC through unmodified.
type PlainCodec struct{}

func (PlainCodec) Name() string                                  { return "plain" }
func (PlainCodec) ValidatePeer(context.Context, string) error    { return nil }
func (PlainCodec) EncodeEvent(_ context.Context, _ string, ev Event) (Event, error) {
	return ev, nil
}
func (PlainCodec) DecodeEvent(_ context.Context, ev Event) (Event, error) {
	return ev, nil
}
func (PlainCodec) EncodeBody(_ context.Context, _ string, payload []byte) ([]byte, error) {
	return payload, nil
}
func (PlainCodec) DecodeBody(_ context.Context, body []byte) ([]byte, string, error) {
	return body, "", nil
}

// TSPCodec seals every frame between the local wallet identity and the
// peer. SSE events are wrapped as {"event":…,"data":…} JSON before
// sealing, so even the endpoint event is confidential; the outer SSE
// frame is always named "message".
type TSPCodec struct {
	store *wallet.SecureStore
	local string
}

// NewTSPCodec creates a sealing codec for the given local DID, which
// must be held in the wallet.
func NewTSPCodec(store *wallet.SecureStore, localDID string) *TSPCodec {
	return &TSPCodec{store: store, local: localDID}
}

func (c *TSPCodec) Name() string { return "tsp" }

// ValidatePeer resolves the peer's DID document so later seals hit the
// resolver cache.
func (c *TSPCodec) ValidatePeer(ctx context.Context, peer string) error {
	_, _, err := c.store.ResolveDIDWeb(ctx, peer)
	return err
}

func (c *TSPCodec) seal(ctx context.Context, peer string, payload []byte) (string, error) {
	log.Printf("Encoding TSP message: %s", payload)
	sealed, err := c.store.SealMessage(ctx, c.local, peer, payload)
	if err != nil {
		return "", err
	}
	log.Printf("Sending TSP message:\n%s", tsp.Describe(sealed))
	return sealed, nil
}

func (c *TSPCodec) open(ctx context.Context, raw string) ([]byte, string, error) {
	log.Printf("Received TSP message:\n%s", tsp.Describe(raw))
	payload, sender, err := c.store.OpenMessage(ctx, raw)
	if err != nil {
		if errors.Is(err, wallet.ErrUnknownReceiver) {
			_, receiver, peekErr := c.store.GetSenderReceiver(raw)
			if peekErr == nil && receiver != c.local {
				return nil, "", fmt.Errorf("%w: %s", ErrIncorrectReceiver, receiver)
			}
		}
		return nil, "", err
	}
	log.Printf("Decoded TSP message: %s", payload)
	return payload, sender, nil
}

func (c *TSPCodec) EncodeEvent(ctx context.Context, peer string, ev Event) (Event, error) {
	inner, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	sealed, err := c.seal(ctx, peer, inner)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: EventMessage, Data: sealed}, nil
}

func (c *TSPCodec) DecodeEvent(ctx context.Context, ev Event) (Event, error) {
	payload, _, err := c.open(ctx, ev.Data)
	if err != nil {
		return Event{}, err
	}
	var inner Event
	if err := json.Unmarshal(payload, &inner); err != nil {
		return Event{}, fmt.Errorf("failed to parse sealed event: %w", err)
	}
	return inner, nil
}

func (c *TSPCodec) EncodeBody(ctx context.Context, peer string, payload []byte) ([]byte, error) {
	sealed, err := c.seal(ctx, peer, payload)
	if err != nil {
		return nil, err
	}
	return []byte(sealed), nil
}

func (c *TSPCodec) DecodeBody(ctx context.Context, body []byte) ([]byte, string, error) {
	return c.open(ctx, string(body))
}
