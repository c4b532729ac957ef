package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/rag/internal/models"
	"github.com/xhad/rag/pkg/chunker"
	cfgPkg "github.com/xhad/rag/pkg/config"
	"github.com/xhad/rag/pkg/docsource"
	"github.com/xhad/rag/pkg/llm"
	"github.com/xhad/rag/pkg/metrics"
	"github.com/xhad/rag/pkg/pipeline"
	"github.com/xhad/rag/pkg/store"
	"github.com/xhad/rag/server"
)

type cliOptions struct {
	configPath string
	serve      bool
	indexIDs   string
	ask        string
	docs       string
	deleteID   string
}

func main() {
	opts := parseFlags()

	if err := run(opts); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() cliOptions {
	var opts cliOptions

	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.BoolVar(&opts.serve, "serve", false, "Run the HTTP server")
	flag.StringVar(&opts.indexIDs, "index", "", "Comma-separated document ids to index")
	flag.StringVar(&opts.ask, "ask", "", "One-shot question to answer")
	flag.StringVar(&opts.docs, "docs", "", "Comma-separated document ids to restrict queries to")
	flag.StringVar(&opts.deleteID, "delete", "", "Document id to remove from the index")
	flag.Parse()

	return opts
}

func run(opts cliOptions) error {
	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config error: %v", e)
		}
		return fmt.Errorf("invalid configuration")
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "rag",
	})

	chk, err := chunker.NewWithConfig(chunker.ChunkerConfig{
		ChunkSize:    cfg.Chunker.ChunkSize,
		ChunkOverlap: cfg.Chunker.ChunkOverlap,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize chunker: %w", err)
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:             cfg.Embedding.Model,
		BaseURL:           cfg.LLM.BaseURL,
		Token:             cfg.LLM.Token,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	synth, err := llm.NewSynthesizerWithConfig(llm.SynthesizerConfig{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Token:       cfg.LLM.Token,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize synthesizer: %w", err)
	}

	vectorStore, err := store.NewWithConfig(store.VectorStoreConfig{
		ConnString: cfg.Database.URL,
		TableName:  cfg.Database.TableName,
		VectorDim:  cfg.Database.VectorDim,
		BatchSize:  cfg.Database.BatchSize,
		TopK:       cfg.Database.TopK,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	// Provision once, up front. A store that cannot be provisioned
	// should stop the process here, not during a request.
	provisionCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = vectorStore.Provision(provisionCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to provision vector store: %w", err)
	}

	source := docsource.NewWithConfig(docsource.ClientConfig{
		BaseURL: cfg.Documents.BaseURL,
		Timeout: time.Duration(cfg.Documents.TimeoutSeconds) * time.Second,
	})

	reporter := metrics.NewWithConfig(metrics.ReporterConfig{
		SinkURL:   cfg.Metrics.SinkURL,
		AgentName: cfg.Metrics.AgentName,
		Timeout:   time.Duration(cfg.Metrics.TimeoutSeconds) * time.Second,
	}, logger)

	p := pipeline.New(pipeline.Config{TopK: cfg.Database.TopK},
		chk, embedder, vectorStore, synth, source, reporter, logger)

	switch {
	case opts.serve:
		srv := server.New(server.Config{Port: cfg.Server.Port}, p, logger)
		return srv.Start()
	case opts.deleteID != "":
		return deleteDocument(p, opts.deleteID)
	case opts.indexIDs != "":
		return indexDocuments(p, splitIDs(opts.indexIDs))
	case opts.ask != "":
		return askOnce(p, splitIDs(opts.docs), opts.ask)
	default:
		return interactiveLoop(p, splitIDs(opts.docs))
	}
}

func splitIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func indexDocuments(p *pipeline.Pipeline, ids []string) error {
	color.Blue("\nIndexing %d documents\n", len(ids))

	bar := getProgressBar(len(ids), "Indexing documents...")

	results, err := p.IndexDocuments(context.Background(), ids)
	if err != nil {
		return err
	}

	succeeded := 0
	for _, result := range results {
		bar.Add(1)
		if result.Status == models.IndexStatusSuccess {
			succeeded++
		}
	}
	bar.Finish()

	fmt.Println()
	for _, result := range results {
		if result.Status == models.IndexStatusSuccess {
			color.Green("✓ %s: %s", result.DocumentID, result.Message)
		} else {
			color.Red("✗ %s: %s", result.DocumentID, result.Message)
		}
	}
	color.Cyan("\nIndexed %d/%d documents\n", succeeded, len(results))

	return nil
}

func deleteDocument(p *pipeline.Pipeline, id string) error {
	if err := p.RemoveDocument(context.Background(), id); err != nil {
		return err
	}
	color.Green("✓ Removed document %s from the index\n", id)
	return nil
}

func askOnce(p *pipeline.Pipeline, docs []string, question string) error {
	spinner := getSpinner("Thinking...")
	result, err := p.QueryDocuments(context.Background(), docs, question)
	spinner.Finish()
	fmt.Print("\r")

	if errors.Is(err, pipeline.ErrNoMatches) {
		color.Yellow("No relevant content found.\n")
		return nil
	}
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func interactiveLoop(p *pipeline.Pipeline, docs []string) error {
	color.Cyan("\nAsk questions about your documents (type 'exit' to quit)")

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if strings.ToLower(question) == "exit" {
			break
		}

		spinner := getSpinner("Thinking...")
		result, err := p.QueryDocuments(context.Background(), docs, question)
		spinner.Finish()
		fmt.Print("\r")

		if errors.Is(err, pipeline.ErrNoMatches) {
			color.Yellow("No relevant content found.\n")
			continue
		}
		if err != nil {
			color.Red("Error: %v\n", err)
			continue
		}

		printResult(result)
	}

	return nil
}

func printResult(result *models.QueryResult) {
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()
	assistantPrompt("\nAssistant: %s\n", result.Answer)
	color.New(color.Faint).Printf("run %s · confidence %.2f · %d+%d tokens · %dms\n",
		result.RunID, result.ConfidenceScore,
		result.TokensConsumed, result.TokensGenerated, result.ResponseTimeMs)
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
