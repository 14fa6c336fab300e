// Package main is the entry point for the TMCP CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tmcp",
	Short: "MCP over the Trust Spanning Protocol",
	Long: `Serve and call Model Context Protocol tools over SSE, with an
optional secured mode that seals every message between did:web
identities held in a local wallet.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
