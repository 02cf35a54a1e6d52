// Package main provides the ingestion CLI that builds the vector index from
// the source document.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/civic-assistant/internal/app"
	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/indexer"
	"github.com/bull/civic-assistant/internal/loader"
	"github.com/bull/civic-assistant/internal/watch"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Build the Constitution vector index",
	Long: `Loads the source document, splits it into overlapping chunks, embeds
every chunk and replaces the persisted index in one step. A failed run
leaves the previous index untouched.

The path defaults to SOURCE_DOCUMENT (constitution.pdf). PDF, markdown and
plain text are supported, as are github://owner/repo/path[@ref] locations.

Environment variables:
  EMBEDDING_PROVIDER  gemini | openai | hashing (default: gemini)
  GOOGLE_API_KEY      required for gemini
  OPENAI_API_KEY      required for openai
  INDEX_BACKEND       local | qdrant (default: local)
  INDEX_DIR           local index directory (default: faiss_index)
  CHUNK_SIZE          characters per chunk (default: 1000)
  CHUNK_OVERLAP       characters shared by adjacent chunks (default: 200)
  GITHUB_TOKEN        GitHub token for github:// sources (optional)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-ingest whenever the source document changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before re-ingesting")
	rootCmd.AddCommand(watchCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) (*config.Config, *app.Ingester, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, "", err
	}
	source := cfg.SourceDocument
	if len(args) == 1 {
		source = args[0]
	}

	ingester, err := app.NewIngester(cmd.Context(), cfg, cfg.Logger())
	if err != nil {
		return nil, nil, "", err
	}
	return cfg, ingester, source, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	cmd.SetContext(ctx)

	cfg, ingester, source, err := setup(cmd, args)
	if err != nil {
		return err
	}
	defer ingester.Close()

	fmt.Printf("Ingesting %s...\n", source)
	result, err := ingester.Pipeline.Run(ctx, source)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	printResult(result, cfg)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	cmd.SetContext(ctx)

	cfg, ingester, source, err := setup(cmd, args)
	if err != nil {
		return err
	}
	defer ingester.Close()
	if strings.HasPrefix(source, loader.GitHubScheme) {
		return fmt.Errorf("%w: watch needs a local file, got %s", config.ErrConfig, source)
	}

	reingest := func(ctx context.Context) error {
		result, err := ingester.Pipeline.Run(ctx, source)
		if err != nil {
			return err
		}
		printResult(result, cfg)
		return nil
	}

	// Build once up front so the server has an index before the first edit.
	if err := reingest(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "initial ingestion failed: %v\n", err)
	}

	w, err := watch.New(source, watchDebounce, cfg.Logger())
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %s for changes (Ctrl+C to stop)...\n", source)
	return w.Run(ctx, reingest)
}

func printResult(result *indexer.IndexResult, cfg *config.Config) {
	fmt.Println()
	fmt.Println("Ingestion complete!")
	fmt.Printf("  Source: %s\n", result.Source)
	fmt.Printf("  Segments: %d\n", result.Segments)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Provider: %s (%d dimensions)\n", result.Provider, result.Dimension)
	if cfg.Index.Backend == config.BackendQdrant {
		fmt.Printf("  Index: qdrant collection %s\n", cfg.Index.Qdrant.Collection)
	} else {
		fmt.Printf("  Index: %s\n", cfg.Index.Dir)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
}
