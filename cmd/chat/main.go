// Package main provides a terminal chat client that answers questions
// in-process from the local index.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/civic-assistant/internal/app"
	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/tui"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the Civic Assistant in the terminal",
	Long: `Opens an interactive chat over the ingested Constitution. Run the
ingest command first; until then every question is answered with a setup
message.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	rootCmd.AddCommand(askCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newAssistant(ctx context.Context) (*app.Assistant, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	// The TUI owns the terminal, so only warnings and above are logged.
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	a, err := app.NewAssistant(ctx, cfg, cfg.Logger())
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, cfg, err := newAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	m := tui.New(a, "Civic Assistant", cfg.RequestTimeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, _, err := newAssistant(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(a.Answer(cmd.Context(), strings.Join(args, " ")))
	return nil
}
