package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teaspoon-world/tmcp/internal/config"
	"github.com/teaspoon-world/tmcp/internal/llm"
)

var (
	agentPrompt string
	agentModel  string
)

var agentCmd = &cobra.Command{
	Use:   "agent <server-url-or-did>",
	Short: "Let a model drive the server's tools from a prompt",
	Long: `Connect to an MCP server, hand its tool catalog to the Anthropic
API, and run the tool-use loop until the model produces an answer.

Requires ANTHROPIC_API_KEY (read from the environment or a .env file).`,
	Example: `  tmcp agent http://localhost:8000/sse --prompt "What is 7 times 6?"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg := config.Load()
		apiKey, err := cfg.RequireAnthropicKey()
		if err != nil {
			return err
		}

		session, err := connect(ctx, args[0])
		if err != nil {
			return err
		}
		defer session.Close()

		client := llm.NewClient(llm.Config{APIKey: apiKey, Model: agentModel})
		answer, err := llm.RunToolLoop(ctx, client, session, agentPrompt)
		if err != nil {
			return err
		}

		fmt.Println(answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)

	agentCmd.Flags().StringVar(&agentPrompt, "prompt", "", "Prompt for the model")
	agentCmd.Flags().StringVar(&agentModel, "model", "", "Model name (default "+llm.DefaultModel+")")
	agentCmd.Flags().StringVar(&callAlias, "alias", "client", "Wallet alias for the client identity (DID targets)")
	_ = agentCmd.MarkFlagRequired("prompt")
}
