package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/speaches-ai/realtime-console/pkg/console"
)

func main() {
	// Handle subcommands before flag parsing.
	if len(os.Args) > 1 && os.Args[1] == "init" {
		initCmd := flag.NewFlagSet("init", flag.ExitOnError)
		initCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: realtime-console init [flags]\n\nCreate a config file interactively.\n\nFlags:\n")
			initCmd.PrintDefaults()
		}
		out := initCmd.String("o", "realtime-console.yaml", "path to write the config file")
		_ = initCmd.Parse(os.Args[2:])

		if err := runInit(*out); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: realtime-console [flags]\n       realtime-console <command> [flags]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n  init    Create a config file interactively\n")
	}

	configPath := flag.String("config", "", "path to configuration file (default: realtime-console.yaml or config.yaml)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	verbose := flag.Bool("verbose", false, "show function calls and the protocol event log")
	logFile := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *logFile, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(outPath string) error {
	configYAML, err := runWizard()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, configYAML, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Wrote %s\n", outPath)

	return nil
}

func run(configPath, logFile string, verbose bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := console.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return err
	}

	log, closeLog, err := newLogger(logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	con, err := console.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = con.Close() }()

	model := newAppModel(ctx, con, verbose)

	p := tea.NewProgram(model, tea.WithAltScreen())

	// Send the program reference so the model can start the bridge.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	return err
}

// newLogger builds the application logger. The TUI owns the terminal, so
// logs either go to a file or are discarded.
func newLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.DiscardHandler), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return log, func() { _ = f.Close() }, nil
}
