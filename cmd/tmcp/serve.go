package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teaspoon-world/tmcp/internal/config"
	"github.com/teaspoon-world/tmcp/pkg/mcp"
	"github.com/teaspoon-world/tmcp/pkg/transport"
	"github.com/teaspoon-world/tmcp/pkg/wallet"
)

var (
	serveAlias     string
	serveName      string
	serveHost      string
	servePort      int
	serveSecure    bool
	servePublicURL string
	serveConfig    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo tool server over SSE",
	Long: `Run an MCP server exposing the demo tools (add, multiply, echo)
on an SSE endpoint.

With --secure the server mints (or reuses) a did:web identity from the
wallet, publishes it to the DID support server, prints its DID, and
seals every message to the connecting client's DID.`,
	Example: `  # Plain SSE on :8000
  tmcp serve

  # Sealed transport, identity saved under the "demo" alias
  tmcp serve --secure --alias demo --public-url http://localhost:8000/sse`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()

		serverCfg := transport.ServerConfig{}
		if serveConfig != "" {
			sf, err := config.LoadServerFile(serveConfig)
			if err != nil {
				return err
			}
			if sf.Name != "" {
				serveName = sf.Name
			}
			if sf.Host != "" {
				serveHost = sf.Host
			}
			if sf.Port != 0 {
				servePort = sf.Port
			}
			serverCfg.SSEPath = sf.SSEPath
			serverCfg.MessagePath = sf.MessagePath
		}

		server := mcp.NewServer(serveName, "0.1.0")
		registerDemoTools(server)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var codec transport.Codec = transport.PlainCodec{}
		if serveSecure {
			store, err := wallet.NewSecureStore(cfg.WalletPath)
			if err != nil {
				return err
			}

			publicURL := servePublicURL
			if publicURL == "" {
				publicURL = fmt.Sprintf("http://localhost:%d/sse", servePort)
			}

			serverDID, err := wallet.GetOrCreateIdentity(ctx, store, serveAlias, wallet.IdentitySettings{
				PublishURL: cfg.DIDPublishURL,
				Domain:     cfg.DIDDomain,
				Prefix:     "tmcp_server",
				Transport:  publicURL,
			})
			if err != nil {
				return err
			}
			codec = transport.NewTSPCodec(store, serverDID)
		}

		sseServer, err := transport.NewSSEServer(server, codec, serverCfg)
		if err != nil {
			return err
		}

		err = sseServer.Run(ctx, fmt.Sprintf("%s:%d", serveHost, servePort))
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// registerDemoTools installs the demo tool set.
func registerDemoTools(server *mcp.Server) {
	server.RegisterTool(mcp.Tool{
		Name:        "add",
		Description: "Add two numbers",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]mcp.Property{
				"a": {Type: "number"},
				"b": {Type: "number"},
			},
			Required: []string{"a", "b"},
		},
	}, func(_ context.Context, args []byte) (string, error) {
		var in struct{ A, B float64 }
		if err := mcp.DecodeArguments(args, &in); err != nil {
			return "", err
		}
		return formatNumber(in.A + in.B), nil
	})

	server.RegisterTool(mcp.Tool{
		Name:        "multiply",
		Description: "Multiply two numbers",
		InputSchema: mcp.InputSchema{
			Type: "object",
			Properties: map[string]mcp.Property{
				"a": {Type: "number"},
				"b": {Type: "number"},
			},
			Required: []string{"a", "b"},
		},
	}, func(_ context.Context, args []byte) (string, error) {
		var in struct{ A, B float64 }
		if err := mcp.DecodeArguments(args, &in); err != nil {
			return "", err
		}
		return formatNumber(in.A * in.B), nil
	})

	server.RegisterTool(mcp.Tool{
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
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAlias, "alias", "demo", "Wallet alias for the server identity (secure mode)")
	serveCmd.Flags().StringVar(&serveName, "name", "Demo", "Server name advertised to clients")
	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "Listen host")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "Listen port")
	serveCmd.Flags().BoolVar(&serveSecure, "secure", false, "Seal all messages with the Trust Spanning Protocol")
	serveCmd.Flags().StringVar(&servePublicURL, "public-url", "", "Public SSE URL bound into the server's DID (secure mode)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Optional tmcp.yaml server config")
}
