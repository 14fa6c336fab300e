package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/teaspoon-world/tmcp/pkg/mcp"
)

// ServerConfig tunes the SSE server's HTTP surface.
type ServerConfig struct {
	// SSEPath is the event stream route. Default "/sse".
	SSEPath string

	// MessagePath is the client POST route. Default "/messages/".
	MessagePath string

	// AllowOrigins configures CORS. Empty allows all origins.
	AllowOrigins []string

	// MessageRate caps POSTs per client IP, in ulule/limiter format
	// (e.g. "240-M"). Default "240-M".
	MessageRate string
}

func (c *ServerConfig) applyDefaults() {
	if c.SSEPath == "" {
		c.SSEPath = "/sse"
	}
	if c.MessagePath == "" {
		c.MessagePath = "/messages/"
	}
	if c.MessageRate == "" {
		c.MessageRate = "240-M"
	}
}

// SSEServer exposes an mcp.Server over SSE. Responses flow back on the
// event stream of whichever session sent the request; in sealed mode
// sessions are keyed by the client's DID, otherwise by a generated
// session ID handed out in the endpoint event.
type SSEServer struct {
	mcpServer *mcp.Server
	codec     Codec
	cfg       ServerConfig
	sessions  *sessionManager
	engine    *gin.Engine

	// baseCtx outlives individual POST requests; tool handlers run on it.
	baseCtx context.Context
}

// NewSSEServer wires the MCP server to an SSE surface with the given
// codec.
func NewSSEServer(mcpServer *mcp.Server, codec Codec, cfg ServerConfig) (*SSEServer, error) {
	cfg.applyDefaults()

	rate, err := limiter.NewRateFromFormatted(cfg.MessageRate)
	if err != nil {
		return nil, err
	}

	s := &SSEServer{
		mcpServer: mcpServer,
		codec:     codec,
		cfg:       cfg,
		sessions:  newSessionManager(),
		baseCtx:   context.Background(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsCfg))

	engine.GET(cfg.SSEPath, s.handleSSE)
	engine.POST(cfg.MessagePath,
		mgin.NewMiddleware(limiter.New(memorystore.NewStore(), rate)),
		s.handlePostMessage)

	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler (for tests and embedding).
func (s *SSEServer) Handler() http.Handler {
	return s.engine
}

// Sessions reports the number of attached clients.
func (s *SSEServer) Sessions() int {
	return s.sessions.len()
}

// Run serves on addr until ctx is cancelled.
func (s *SSEServer) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log.Printf("%s serving MCP over SSE on %s (%s codec)", s.mcpServer.Name(), addr, s.codec.Name())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// sessionKey determines the identifier for an attaching client. Sealed
// sessions are keyed by the caller's DID, which is mandatory.
func (s *SSEServer) sessionKey(c *gin.Context) (string, bool) {
	if _, sealed := s.codec.(*TSPCodec); sealed {
		userDID := c.Query("did")
		if userDID == "" {
			log.Printf("Received request without user did")
			c.String(http.StatusBadRequest, "did is required")
			return "", false
		}
		return userDID, true
	}
	return uuid.New().String(), true
}

func (s *SSEServer) handleSSE(c *gin.Context) {
	key, ok := s.sessionKey(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := s.codec.ValidatePeer(ctx, key); err != nil {
		log.Printf("Failed to validate peer %s: %v", key, err)
		c.String(http.StatusBadRequest, "could not resolve peer")
		return
	}

	sess, err := s.sessions.add(key)
	if err != nil {
		c.String(http.StatusConflict, "session already exists")
		return
	}
	defer s.sessions.remove(key)
	log.Printf("Created new session with ID: %s", key)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// First event directs the client where to POST. Plain sessions get
	// their session ID here; sealed sessions are identified by the
	// envelope addresses instead.
	endpoint := s.cfg.MessagePath
	if _, sealed := s.codec.(*TSPCodec); !sealed {
		endpoint += "?session_id=" + key
	}
	ev, err := s.codec.EncodeEvent(ctx, key, Event{Name: EventEndpoint, Data: endpoint})
	if err != nil {
		log.Printf("Failed to encode endpoint event: %v", err)
		return
	}
	if !sess.push(ev) {
		return
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sess.done:
			return false
		case ev := <-sess.events:
			c.SSEvent(ev.Name, ev.Data)
			return true
		}
	})
}

func (s *SSEServer) handlePostMessage(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "could not read body")
		return
	}

	ctx := c.Request.Context()
	payload, sender, err := s.codec.DecodeBody(ctx, body)
	if err != nil {
		if errors.Is(err, ErrIncorrectReceiver) {
			log.Printf("Received message intended for another receiver: %v", err)
			c.String(http.StatusBadRequest, "Incorrect receiver")
			return
		}
		log.Printf("Failed to open message: %v", err)
		c.String(http.StatusBadRequest, "Could not open message")
		return
	}

	key := sender
	if key == "" {
		key = c.Query("session_id")
	}
	sess := s.sessions.get(key)
	if sess == nil {
		log.Printf("Could not find session for ID: %s", key)
		c.String(http.StatusNotFound, "Could not find session")
		return
	}

	msg, err := mcp.ParseMessage(payload)
	if err != nil {
		log.Printf("Failed to parse message: %v", err)
		c.String(http.StatusBadRequest, "Could not parse message")
		return
	}

	c.String(http.StatusAccepted, "Accepted")

	// The 202 acknowledges receipt; the reply flows back over the SSE
	// stream once the tool finishes.
	go s.dispatch(sess, msg)
}

func (s *SSEServer) dispatch(sess *session, msg *mcp.Message) {
	resp := s.mcpServer.Handle(s.baseCtx, msg)
	if resp == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("Failed to marshal response: %v", err)
		return
	}

	ev, err := s.codec.EncodeEvent(s.baseCtx, sess.id, Event{Name: EventMessage, Data: string(data)})
	if err != nil {
		log.Printf("Failed to encode response for %s: %v", sess.id, err)
		return
	}
	if !sess.push(ev) {
		log.Printf("Session %s closed before response could be sent", sess.id)
	}
}
