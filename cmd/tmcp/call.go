package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teaspoon-world/tmcp/internal/config"
	"github.com/teaspoon-world/tmcp/pkg/did"
	"github.com/teaspoon-world/tmcp/pkg/mcp"
	"github.com/teaspoon-world/tmcp/pkg/transport"
	"github.com/teaspoon-world/tmcp/pkg/wallet"
)

var (
	callAlias string
	callTool  string
	callArgs  string
)

var callCmd = &cobra.Command{
	Use:   "call <server-url-or-did>",
	Short: "Connect to an MCP server and list or invoke its tools",
	Long: `Connect to an MCP server over SSE. The target is either a plain SSE
URL (http://host:port/sse) or a server DID (did:web:...); DID targets
are dialed through the sealed transport using a client identity from
the wallet.

Without --tool the command prints the server's tool catalog. With
--tool (and optional --args JSON) it invokes that tool and prints the
result.`,
	Example: `  tmcp call http://localhost:8000/sse
  tmcp call did:web:did.teaspoon.world:endpoint:tmcp_server-demo-42 \
    --tool add --args '{"a": 2, "b": 3}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		session, err := connect(ctx, args[0])
		if err != nil {
			return err
		}
		defer session.Close()

		if callTool == "" {
			tools, err := session.ListTools(ctx)
			if err != nil {
				return err
			}
			info := session.ServerInfo()
			fmt.Printf("Connected to %s %s\n", info.ServerInfo.Name, info.ServerInfo.Version)
			for _, t := range tools {
				fmt.Printf("  %s", t.Name)
				if t.Description != "" {
					fmt.Printf(" - %s", t.Description)
				}
				fmt.Println()
			}
			return nil
		}

		var toolArgs json.RawMessage = []byte("{}")
		if callArgs != "" {
			if !json.Valid([]byte(callArgs)) {
				return fmt.Errorf("--args is not valid JSON")
			}
			toolArgs = json.RawMessage(callArgs)
		}

		result, err := session.CallTool(ctx, callTool, toolArgs)
		if err != nil {
			return err
		}
		if result.IsError {
			return fmt.Errorf("tool error: %s", resultText(result))
		}
		fmt.Println(resultText(result))
		return nil
	},
}

// connect dials the target and completes the MCP handshake. DID targets
// use the sealed transport with a wallet-backed client identity.
func connect(ctx context.Context, target string) (*mcp.Client, error) {
	var (
		stream *transport.SSEClient
		err    error
	)

	if did.IsDID(target) {
		cfg := config.Load()
		store, werr := wallet.NewSecureStore(cfg.WalletPath)
		if werr != nil {
			return nil, werr
		}

		settings := wallet.DefaultClientSettings()
		settings.PublishURL = cfg.DIDPublishURL
		settings.Domain = cfg.DIDDomain

		localDID, werr := wallet.GetOrCreateIdentity(ctx, store, callAlias, settings)
		if werr != nil {
			return nil, werr
		}

		stream, err = transport.DialDID(ctx, store, localDID, target, transport.ClientConfig{})
	} else {
		stream, err = transport.Dial(ctx, target, transport.ClientConfig{})
	}
	if err != nil {
		return nil, err
	}

	session := mcp.NewClient(stream, "tmcp", "0.1.0")
	if _, err := session.Initialize(ctx); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVar(&callAlias, "alias", "client", "Wallet alias for the client identity (DID targets)")
	callCmd.Flags().StringVar(&callTool, "tool", "", "Tool to invoke; omit to list tools")
	callCmd.Flags().StringVar(&callArgs, "args", "", "Tool arguments as a JSON object")
}
