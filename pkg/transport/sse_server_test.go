package transport

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaspoon-world/tmcp/pkg/mcp"
	"github.com/teaspoon-world/tmcp/pkg/tsp"
)

func demoServer(t *testing.T) *mcp.Server {
	t.Helper()
	s := mcp.NewServer("Demo", "0.1.0")
	s.RegisterTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo the input text",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]mcp.Property{
				"text": {Type: "string"},
			},
			Required: []string{"text"},
		},
	}, func(_ context.Context, args []byte) (string, error) {
		var in struct{ Text string }
		if err := mcp.DecodeArguments(args, &in); err != nil {
			return "", err
		}
		return in.Text, nil
	})
	return s
}

func plainTestServer(t *testing.T) (*SSEServer, *httptest.Server) {
	t.Helper()
	sse, err := NewSSEServer(demoServer(t), PlainCodec{}, ServerConfig{})
	require.NoError(t, err)
	ts := httptest.NewServer(sse.Handler())
	t.Cleanup(ts.Close)
	return sse, ts
}

func TestPlainEndToEnd(t *testing.T) {
	sse, ts := plainTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := Dial(ctx, ts.URL+"/sse", ClientConfig{})
	require.NoError(t, err)

	client := mcp.NewClient(stream, "test-client", "0.1.0")
	defer client.Close()

	info, err := client.Initialize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Demo", info.ServerInfo.Name)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)

	result, err := client.CallTool(ctx, "echo", map[string]string{"text": "hello"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "hello", result.Content[0].Text)

	assert.Equal(t, 1, sse.Sessions())
}

func TestSealedEndToEnd(t *testing.T) {
	// the server's transport URL is only known once the listener is up,
	// so route through a switchable handler
	var handler http.Handler
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	defer ts.Close()

	clientStore, serverStore := testPeers(t, ts.URL+"/sse")

	sse, err := NewSSEServer(demoServer(t), NewTSPCodec(serverStore, serverDID), ServerConfig{})
	require.NoError(t, err)
	handler = sse.Handler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := DialDID(ctx, clientStore, clientDID, serverDID, ClientConfig{})
	require.NoError(t, err)

	client := mcp.NewClient(stream, "test-client", "0.1.0")
	defer client.Close()

	_, err = client.Initialize(ctx)
	require.NoError(t, err)

	result, err := client.CallTool(ctx, "echo", map[string]string{"text": "sealed hello"})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "sealed hello", result.Content[0].Text)
}

func TestSealedRequiresDID(t *testing.T) {
	_, serverStore := testPeers(t, "http://localhost:8000/sse")

	sse, err := NewSSEServer(demoServer(t), NewTSPCodec(serverStore, serverDID), ServerConfig{})
	require.NoError(t, err)
	ts := httptest.NewServer(sse.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSealedRejectsWrongReceiver(t *testing.T) {
	clientStore, serverStore := testPeers(t, "http://localhost:8000/sse")

	sse, err := NewSSEServer(demoServer(t), NewTSPCodec(serverStore, serverDID), ServerConfig{})
	require.NoError(t, err)
	ts := httptest.NewServer(sse.Handler())
	defer ts.Close()

	// seal a message to the client itself rather than the server
	client, err := clientStore.PrivateVID(clientDID)
	require.NoError(t, err)
	sealed, err := tsp.Seal(client, client.Document(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/messages/", "application/jose", strings.NewReader(sealed))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Incorrect receiver", readBody(t, resp))
}

func TestPostUnknownSession(t *testing.T) {
	_, ts := plainTestServer(t)

	resp, err := http.Post(ts.URL+"/messages/?session_id=nope", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Could not find session", readBody(t, resp))
}

func TestPostUnparseableMessage(t *testing.T) {
	_, ts := plainTestServer(t)

	endpoint, closeStream := attachPlainSession(t, ts.URL)
	defer closeStream()

	resp, err := http.Post(endpoint, "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Could not parse message", readBody(t, resp))
}

func TestPostAccepted(t *testing.T) {
	_, ts := plainTestServer(t)

	endpoint, closeStream := attachPlainSession(t, ts.URL)
	defer closeStream()

	resp, err := http.Post(endpoint, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Accepted", readBody(t, resp))
}

func TestSessionClosesOnDisconnect(t *testing.T) {
	sse, ts := plainTestServer(t)

	_, closeStream := attachPlainSession(t, ts.URL)
	assert.Equal(t, 1, sse.Sessions())

	closeStream()
	require.Eventually(t, func() bool { return sse.Sessions() == 0 }, 5*time.Second, 10*time.Millisecond)
}

// attachPlainSession opens a raw SSE stream and returns the POST
// endpoint announced in the first event.
func attachPlainSession(t *testing.T, baseURL string) (endpoint string, closeStream func()) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, baseURL+"/sse", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			endpoint = baseURL + strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	require.NotEmpty(t, endpoint, "no endpoint event received")

	return endpoint, func() { resp.Body.Close() }
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
	}
	return sb.String()
}
