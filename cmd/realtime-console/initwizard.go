package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/speaches-ai/realtime-console/pkg/console"
	"gopkg.in/yaml.v3"
)

type wizardServer struct {
	Name    string
	Kind    string // "command" or "url"
	Command string
	Args    string // whitespace-separated
	URL     string
}

type wizardConfig struct {
	BaseURL      string
	APIKey       string //nolint:gosec // env var reference, not a secret
	Model        string
	Voice        string
	Instructions string
	Servers      []wizardServer
}

func runWizard() ([]byte, error) {
	cfg := wizardConfig{
		BaseURL: "http://localhost:8000/v1",
		APIKey:  "${OPENAI_API_KEY}",
	}

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Realtime API base URL").Value(&cfg.BaseURL).Validate(validateRequired),
		huh.NewInput().Title("API key (env var reference recommended)").Value(&cfg.APIKey),
		huh.NewSelect[string]().
			Title("Model").
			Options(
				huh.NewOption("gpt-4o-realtime-preview", "gpt-4o-realtime-preview"),
				huh.NewOption("gpt-4o-mini-realtime-preview", "gpt-4o-mini-realtime-preview"),
			).
			Value(&cfg.Model),
		huh.NewSelect[string]().
			Title("Voice").
			Options(
				huh.NewOption("alloy", "alloy"),
				huh.NewOption("echo", "echo"),
				huh.NewOption("shimmer", "shimmer"),
			).
			Value(&cfg.Voice),
		huh.NewText().Title("Instructions (optional)").Value(&cfg.Instructions),
	)).Run()
	if err != nil {
		return nil, err
	}

	if err := wizardServers(&cfg); err != nil {
		return nil, err
	}

	return marshalWizardConfig(cfg)
}

func wizardServers(cfg *wizardConfig) error {
	for {
		var more bool
		if err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title("Add an MCP server?").Value(&more),
		)).Run(); err != nil {
			return err
		}
		if !more {
			return nil
		}

		s, err := wizardPromptServer()
		if err != nil {
			return err
		}

		cfg.Servers = append(cfg.Servers, s)
	}
}

func wizardPromptServer() (wizardServer, error) {
	var s wizardServer

	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Server name").Value(&s.Name).Validate(validateRequired),
		huh.NewSelect[string]().
			Title("Connection").
			Options(
				huh.NewOption("Spawn a command (stdio)", "command"),
				huh.NewOption("Connect to a URL (SSE)", "url"),
			).
			Value(&s.Kind),
	)).Run()
	if err != nil {
		return wizardServer{}, err
	}

	if s.Kind == "command" {
		err = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Command").Value(&s.Command).Validate(validateRequired),
			huh.NewInput().Title("Arguments (space-separated)").Value(&s.Args),
		)).Run()
	} else {
		err = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("URL").Value(&s.URL).Validate(validateRequired),
		)).Run()
	}
	if err != nil {
		return wizardServer{}, err
	}

	return s, nil
}

func validateRequired(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func marshalWizardConfig(cfg wizardConfig) ([]byte, error) {
	out := console.Config{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		Model:        cfg.Model,
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
		Modalities:   []string{"text"},
	}

	for _, s := range cfg.Servers {
		sc := console.MCPServerConfig{Name: s.Name}
		if s.Kind == "command" {
			sc.Command = s.Command
			sc.Args = strings.Fields(s.Args)
		} else {
			sc.URL = s.URL
		}
		out.MCPServers = append(out.MCPServers, sc)
	}

	return yaml.Marshal(out)
}
