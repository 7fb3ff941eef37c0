// Package main provides the webrag binary entry point.
// Webrag ingests web pages into a vector store and answers
// natural-language queries against them.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/webrag/config"
	"github.com/c360studio/webrag/ingest"
	"github.com/c360studio/webrag/retrieve"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "webrag"

	timeRound = 10 * time.Millisecond
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "webrag",
		Short: "Web document ingestion and retrieval",
		Long: `Webrag fetches web pages, extracts their readable text, splits it
into token-bounded chunks, embeds each chunk, and stores the vectors
in Qdrant. Stored documents can then be searched with natural-language
queries.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(ingestCmd(&configPath))
	cmd.AddCommand(searchCmd(&configPath))

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

func ingestCmd(configPath *string) *cobra.Command {
	var (
		collection     string
		chunkSize      int
		chunkOverlap   int
		concurrency    int
		skipDuplicates bool
		urlsFile       string
	)

	cmd := &cobra.Command{
		Use:   "ingest [urls...]",
		Short: "Fetch, chunk, embed, and store web pages",
		Long: `Ingest processes each URL through the full pipeline. URLs can be
passed as arguments or read one per line from a file with --urls-file.
Failures are isolated per URL and reported in the final summary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := args
			if urlsFile != "" {
				fileURLs, err := readURLsFile(urlsFile)
				if err != nil {
					return err
				}
				urls = append(urls, fileURLs...)
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or via --urls-file")
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("collection") {
				cfg.Ingestion.Collection = collection
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.Ingestion.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				cfg.Ingestion.ChunkOverlap = chunkOverlap
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Ingestion.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			p := ingest.New(cfg)
			result, err := p.Run(ctx, urls, ingest.Options{SkipDuplicates: skipDuplicates})
			if err != nil {
				return err
			}

			printIngestSummary(result)
			if result.FailedCount > 0 && result.SuccessCount == 0 && result.SkippedCount == 0 {
				return fmt.Errorf("all %d URLs failed", result.FailedCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Target collection name")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in tokens")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in tokens")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max URLs processed in parallel")
	cmd.Flags().BoolVar(&skipDuplicates, "skip-duplicates", true, "Skip URLs already in the store")
	cmd.Flags().StringVar(&urlsFile, "urls-file", "", "File with one URL per line")

	return cmd
}

func searchCmd(configPath *string) *cobra.Command {
	var (
		collection     string
		topK           int
		scoreThreshold float64
		urlFilter      string
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored documents with a natural-language query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("collection") {
				cfg.Ingestion.Collection = collection
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			params := retrieve.DefaultParams()
			if cmd.Flags().Changed("top-k") {
				params.TopK = topK
			}
			if cmd.Flags().Changed("score-threshold") {
				params.ScoreThreshold = scoreThreshold
			}
			params.URLFilter = urlFilter

			r := retrieve.New(cfg)
			result, err := r.Retrieve(ctx, args[0], params)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			printSearchResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Collection to search")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Number of results to return (1-100)")
	cmd.Flags().Float64Var(&scoreThreshold, "score-threshold", 0.0, "Minimum similarity score (0.0-1.0)")
	cmd.Flags().StringVar(&urlFilter, "url-filter", "", "Restrict results to chunks from a matching URL")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	return cmd
}

func loadConfig(configPath string) (*config.Config, error) {
	loader := config.NewLoader(slog.Default())
	cfg, err := loader.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return urls, nil
}

func printIngestSummary(result *ingest.Result) {
	fmt.Printf("\nIngestion complete in %s\n", result.Duration.Round(timeRound))
	fmt.Printf("  succeeded: %d\n", result.SuccessCount)
	fmt.Printf("  skipped:   %d\n", result.SkippedCount)
	fmt.Printf("  failed:    %d\n", result.FailedCount)
	fmt.Printf("  chunks:    %d\n", result.TotalChunks)
	fmt.Printf("  success rate: %.1f%%\n", result.SuccessRate())

	if len(result.FailedURLs) > 0 {
		fmt.Println("\nFailures:")
		for _, f := range result.FailedURLs {
			fmt.Printf("  %s [%s] %s\n", f.URL, f.ErrorType, f.Message)
		}
	}
}

func printSearchResult(result *retrieve.Result) {
	if len(result.Chunks) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("%d results (top %.4f, avg %.4f, %s)\n\n",
		len(result.Chunks), result.TopScore, result.AvgScore, result.Latency.Round(timeRound))

	for i, c := range result.Chunks {
		fmt.Printf("%d. [%.4f] %s (chunk %d)\n", i+1, c.Score, c.URL, c.ChunkIndex)
		if c.Title != "" {
			fmt.Printf("   %s\n", c.Title)
		}
		fmt.Printf("   %s\n\n", truncate(c.ChunkText, 300))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
