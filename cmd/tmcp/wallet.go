package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/teaspoon-world/tmcp/internal/config"
	"github.com/teaspoon-world/tmcp/pkg/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect and manage the local identity wallet",
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallet aliases and their DIDs",
	RunE: func(_ *cobra.Command, _ []string) error {
		store, err := openWallet()
		if err != nil {
			return err
		}

		aliases, err := store.Aliases()
		if err != nil {
			return err
		}
		if len(aliases) == 0 {
			fmt.Println("wallet is empty")
			return nil
		}

		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("%s\t%s\n", name, aliases[name])
		}
		return nil
	},
}

var walletResolveCmd = &cobra.Command{
	Use:   "resolve <did>",
	Short: "Resolve a DID and print its transport endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openWallet()
		if err != nil {
			return err
		}

		doc, endpoint, err := store.ResolveDIDWeb(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("DID:      %s\n", doc.ID)
		fmt.Printf("Endpoint: %s\n", endpoint)
		return nil
	},
}

var (
	walletNewTransport string
	walletNewPrefix    string
)

var walletNewCmd = &cobra.Command{
	Use:   "new <alias>",
	Short: "Mint and publish a new identity under an alias",
	Long: `Mint a fresh did:web identity, publish it to the DID support server
and store the private keys under the given alias. If the alias already
names a live identity it is reused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		store, err := wallet.NewSecureStore(cfg.WalletPath)
		if err != nil {
			return err
		}

		settings := wallet.IdentitySettings{
			PublishURL: cfg.DIDPublishURL,
			Domain:     cfg.DIDDomain,
			Prefix:     walletNewPrefix,
			Transport:  walletNewTransport,
		}

		didStr, err := wallet.GetOrCreateIdentity(cmd.Context(), store, args[0], settings)
		if err != nil {
			return err
		}

		fmt.Println(didStr)
		return nil
	},
}

func openWallet() (*wallet.SecureStore, error) {
	cfg := config.Load()
	return wallet.NewSecureStore(cfg.WalletPath)
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletListCmd)
	walletCmd.AddCommand(walletResolveCmd)
	walletCmd.AddCommand(walletNewCmd)

	walletNewCmd.Flags().StringVar(&walletNewTransport, "transport", wallet.ClientTransport, "Transport endpoint bound into the identity")
	walletNewCmd.Flags().StringVar(&walletNewPrefix, "prefix", "tmcp_client", "Identifier prefix for the new DID")
}
