package console

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level console configuration.
type Config struct {
	BaseURL      string            `yaml:"base_url"`
	APIKey       string            `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model        string            `yaml:"model"`
	Voice        string            `yaml:"voice"`
	Instructions string            `yaml:"instructions"`
	Modalities   []string          `yaml:"modalities"`
	MCPServers   []MCPServerConfig `yaml:"mcp_servers"`
}

// MCPServerConfig describes one MCP server to connect to. Exactly one of
// Command and URL must be set: Command spawns a stdio server, URL connects
// over SSE.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing, so API keys can live in the environment (e.g. loaded from a
// .env file) rather than in the config itself.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("console: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("console: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("console: config: base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("console: config: model is required")
	}

	names := make(map[string]struct{}, len(c.MCPServers))
	for _, m := range c.MCPServers {
		if m.Name == "" {
			return fmt.Errorf("console: config: mcp server name is required")
		}
		if _, dup := names[m.Name]; dup {
			return fmt.Errorf("console: config: duplicate mcp server name %q", m.Name)
		}
		names[m.Name] = struct{}{}

		switch {
		case m.Command == "" && m.URL == "":
			return fmt.Errorf("console: config: mcp server %q: command or url is required", m.Name)
		case m.Command != "" && m.URL != "":
			return fmt.Errorf("console: config: mcp server %q: command and url are mutually exclusive", m.Name)
		}
	}

	return nil
}
