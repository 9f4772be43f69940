package main

import (
	"testing"

	"github.com/speaches-ai/realtime-console/pkg/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMarshalWizardConfig(t *testing.T) {
	data, err := marshalWizardConfig(wizardConfig{
		BaseURL:      "http://localhost:8000/v1",
		APIKey:       "${OPENAI_API_KEY}",
		Model:        "gpt-4o-realtime-preview",
		Voice:        "alloy",
		Instructions: "Be brief.",
		Servers: []wizardServer{
			{Name: "files", Kind: "command", Command: "mcp-files", Args: "--root /tmp"},
			{Name: "remote", Kind: "url", URL: "http://localhost:9000/sse"},
		},
	})
	require.NoError(t, err)

	var cfg console.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))

	assert.Equal(t, "http://localhost:8000/v1", cfg.BaseURL)
	assert.Equal(t, "${OPENAI_API_KEY}", cfg.APIKey)
	assert.Equal(t, []string{"text"}, cfg.Modalities)
	require.Len(t, cfg.MCPServers, 2)
	assert.Equal(t, []string{"--root", "/tmp"}, cfg.MCPServers[0].Args)
	assert.Equal(t, "http://localhost:9000/sse", cfg.MCPServers[1].URL)

	// The wizard's output must pass the console's own validation.
	require.NoError(t, cfg.Validate())
}
