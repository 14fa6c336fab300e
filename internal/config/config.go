// Package config loads TMCP configuration from the environment and
// optional YAML server files.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings shared by the CLI commands.
type Config struct {
	// AnthropicKey authenticates the agent command against the
	// Anthropic API. Only required there.
	AnthropicKey string

	// WalletPath overrides the wallet directory.
	WalletPath string

	// DIDPublishURL overrides the DID support server's registration
	// endpoint.
	DIDPublishURL string

	// DIDDomain overrides the domain new did:web identifiers are minted
	// under.
	DIDDomain string
}

// Load reads the environment, merging in a .env file when present
// (production environments may not have one, so a missing file is not
// an error).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		WalletPath:    os.Getenv("TMCP_WALLET_PATH"),
		DIDPublishURL: os.Getenv("TMCP_DID_PUBLISH_URL"),
		DIDDomain:     os.Getenv("TMCP_DID_DOMAIN"),
	}
}

// RequireAnthropicKey returns the API key or an error when unset.
func (c *Config) RequireAnthropicKey() (string, error) {
	if c.AnthropicKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
	}
	return c.AnthropicKey, nil
}

// ServerFile is the optional YAML configuration for tmcp serve.
type ServerFile struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	SSEPath     string `yaml:"sse_path"`
	MessagePath string `yaml:"message_path"`
}

// LoadServerFile parses a server YAML file.
func LoadServerFile(path string) (*ServerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read server config: %w", err)
	}

	var sf ServerFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	return &sf, nil
}
