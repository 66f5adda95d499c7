package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/c360studio/docroute/batch"
	"github.com/c360studio/docroute/config"
	"github.com/c360studio/docroute/document"
	"github.com/c360studio/docroute/llm"
	"github.com/c360studio/docroute/obs"
	"github.com/c360studio/docroute/pipeline"
	"github.com/c360studio/docroute/profile"
	"github.com/c360studio/docroute/router"
	"github.com/c360studio/docroute/task"
	"github.com/c360studio/docroute/tokens"
	"github.com/c360studio/docroute/validate"
)

const (
	Version = "0.1.0"
	appName = "docroute"
)

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Document-processing control plane",
		Long: `Docroute dispatches text-understanding tasks (classification,
extraction, summarization, RAG) across a pool of language models while
respecting token budgets, latency targets, GPU memory, and output schemas.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCmd(&configPath, &logLevel))
	cmd.AddCommand(watchCmd(&configPath, &logLevel))
	cmd.AddCommand(benchmarkCmd(&configPath, &logLevel))
	cmd.AddCommand(profilesCmd(&configPath, &logLevel))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

// app bundles the wired pipeline and its flushable sinks.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	orch      *pipeline.Orchestrator
	decisions *router.DecisionLogger
	batches   *batch.BatchLogger
	records   *pipeline.PreprocessLogger
	summary   *pipeline.RunSummary
	events    *obs.Publisher
}

// newApp loads configuration and wires every pipeline component.
// schemaJSON optionally enables output schema validation.
func newApp(configPath, logLevel, schemaJSON string) (*app, error) {
	// A missing .env file is fine; explicit env vars still apply.
	_ = godotenv.Load()

	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, err
	}

	indexer := elasticIndexer()
	indexes := obs.IndexesFromEnv()
	metrics := obs.NewMetrics(nil)

	events, err := obs.NewPublisher(cfg.NATS.URL)
	if err != nil {
		logger.Warn("Event publishing disabled", "error", err)
	}

	logPath := func(name string) string {
		return filepath.Join(cfg.Logs.Dir, name)
	}
	decisions := router.NewDecisionLogger(logPath("router-decisions.json"), indexes.Router, indexer, logger)
	sampler := batch.NewNvidiaSMISampler(logger)
	batches := batch.NewBatchLogger(logPath("batch-events.json"), indexes.Batch, indexer, sampler, logger)
	records := pipeline.NewPreprocessLogger(logPath("preprocess-records.json"), indexes.Preprocess, indexer, logger)
	summary := pipeline.NewRunSummary(logPath("run-summary.json"), indexes.Runs, indexer, logger)

	store := profile.NewStore()
	if err := loadProfiles(store, logPath("benchmark-results.json"), logger); err != nil {
		logger.Warn("No benchmark profiles loaded", "error", err)
	}

	var schema *validate.SchemaValidator
	if schemaJSON != "" {
		schema, err = validate.NewSchemaValidator(schemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compile output schema: %w", err)
		}
	}

	client := llm.NewClient(llm.ConfigFromEnv(),
		llm.WithLogger(logger),
		llm.WithRegistry(llm.RegistryFromEnv()),
	)
	temperature := cfg.Inference.Temperature
	infer := func(ctx context.Context, modelID string, taskType task.Type, prompt string) (string, int, error) {
		resp, err := client.CompleteTask(ctx, taskType, llm.Request{
			Model:       modelID,
			Messages:    []llm.Message{{Role: "user", Content: prompt}},
			Temperature: &temperature,
		})
		if err != nil {
			return "", 0, err
		}
		return resp.Content, resp.Usage.CompletionTokens, nil
	}

	budgets := tokens.NewManager()
	for modelID, budget := range cfg.Budgets {
		budgets.Register(modelID, budget)
	}

	fallback := validate.NewOrchestrator(
		validate.Policy{RetryLimit: cfg.Fallback.RetryLimit},
		validate.WithOrchestratorLogger(logger),
		validate.WithFallbackMetrics(metrics),
	)

	orch := pipeline.New(
		pipeline.Deps{
			Router:   router.NewHeuristic(router.WithMinContextTokens(cfg.Routing.MinContextTokens), router.WithLogger(logger)),
			Profiles: store,
			Budgets:  budgets,
			Planner:  batch.NewPlanner(sampler, logger),
			Infer:    infer,
			Validate: validate.NewValidator(schema, validate.NewConsistencyChecker()),
			Fallback: fallback,
		},
		pipeline.WithLogger(logger),
		pipeline.WithEvents(events),
		pipeline.WithMetrics(metrics),
		pipeline.WithCaps(pipeline.Caps{
			MaxBatchSize:      cfg.Batch.MaxBatchSize,
			MaxTokensPerBatch: cfg.Batch.MaxTokensPerBatch,
			MinFreeMemoryMB:   cfg.Batch.MinFreeMemoryMB,
		}),
		pipeline.WithDecisionLogger(decisions),
		pipeline.WithBatchLogger(batches),
		pipeline.WithPreprocessLogger(records),
		pipeline.WithRunSummary(summary),
	)
	orch.RegisterCollector("file", fileCollector())

	return &app{
		cfg:       cfg,
		logger:    logger,
		orch:      orch,
		decisions: decisions,
		batches:   batches,
		records:   records,
		summary:   summary,
		events:    events,
	}, nil
}

// flush persists every log sink. Failures are warnings: log loss must not
// fail the run itself.
func (a *app) flush() {
	for name, fn := range map[string]func() error{
		"router-decisions": a.decisions.Flush,
		"batch-events":     a.batches.Flush,
		"preprocess":       a.records.Flush,
		"run-summary":      a.summary.Flush,
	} {
		if err := fn(); err != nil {
			a.logger.Warn("Failed to flush log", "log", name, "error", err)
		}
	}
	a.events.Close()
}

func runCmd(configPath, logLevel *string) *cobra.Command {
	var (
		taskType   string
		schemaPath string
	)

	cmd := &cobra.Command{
		Use:   "run [glob...]",
		Short: "Process documents matching the given glob patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedType := task.ParseType(taskType)
			if parsedType == "" {
				return fmt.Errorf("unknown task type %q", taskType)
			}

			schemaJSON, err := readOptionalFile(schemaPath)
			if err != nil {
				return err
			}

			a, err := newApp(*configPath, *logLevel, schemaJSON)
			if err != nil {
				return err
			}
			defer a.flush()

			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no documents matched %v", args)
			}

			ctx := cmd.Context()
			failures := 0
			for _, path := range paths {
				record := a.orch.Run(ctx, pipeline.Request{
					DocID:      docIDFor(path),
					SourceType: "file",
					Variant:    path,
					TaskType:   parsedType,
				})
				if !record.Succeeded() {
					failures++
					a.logger.Warn("Document failed",
						"doc_id", record.DocID,
						"status", record.Status,
						"validation_status", record.ValidationStatus)
				}
			}

			a.logger.Info("Run complete", "documents", len(paths), "failures", failures)
			if failures > 0 {
				return fmt.Errorf("%d of %d documents failed", failures, len(paths))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&taskType, "task", "t", "extraction", "Task type (classification, extraction, summarization, rag)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON schema file for output validation")
	return cmd
}

func watchCmd(configPath, logLevel *string) *cobra.Command {
	var taskType string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the inbox directory and process new documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedType := task.ParseType(taskType)
			if parsedType == "" {
				return fmt.Errorf("unknown task type %q", taskType)
			}

			a, err := newApp(*configPath, *logLevel, "")
			if err != nil {
				return err
			}
			defer a.flush()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			watcher, err := pipeline.NewWatcher(a.cfg.Inbox.Dir,
				pipeline.WithDebounce(time.Duration(a.cfg.Inbox.DebounceMS)*time.Millisecond),
				pipeline.WithWatcherLogger(a.logger),
			)
			if err != nil {
				return err
			}
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()

			a.logger.Info("Watching inbox", "dir", a.cfg.Inbox.Dir)
			for {
				select {
				case <-ctx.Done():
					a.logger.Info("Shutting down watcher")
					return nil
				case event, ok := <-watcher.Events():
					if !ok {
						return nil
					}
					record := a.orch.Run(ctx, pipeline.Request{
						DocID:      docIDFor(event.AbsPath),
						SourceType: "file",
						Variant:    event.AbsPath,
						TaskType:   parsedType,
					})
					a.logger.Info("Processed inbox document",
						"doc_id", record.DocID,
						"status", record.Status,
						"validation_status", record.ValidationStatus)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&taskType, "task", "t", "extraction", "Task type for inbox documents")
	return cmd
}

func benchmarkCmd(configPath, logLevel *string) *cobra.Command {
	var (
		models   []string
		taskType string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "benchmark [glob...]",
		Short: "Benchmark models against sample documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedType := task.ParseType(taskType)
			if parsedType == "" {
				return fmt.Errorf("unknown task type %q", taskType)
			}
			if len(models) == 0 {
				return fmt.Errorf("at least one --model is required")
			}

			a, err := newApp(*configPath, *logLevel, "")
			if err != nil {
				return err
			}

			paths, err := expandGlobs(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no documents matched %v", args)
			}

			if output == "" {
				output = filepath.Join(a.cfg.Logs.Dir, "benchmark-results.json")
			}

			client := llm.NewClient(llm.ConfigFromEnv(), llm.WithLogger(a.logger))
			invoke := func(ctx context.Context, modelID string, tt task.Type, doc string) (profile.InvokeResult, error) {
				resp, err := client.Complete(ctx, llm.Request{
					Model:    modelID,
					Messages: []llm.Message{{Role: "user", Content: doc}},
				})
				if err != nil {
					return profile.InvokeResult{}, err
				}
				return profile.InvokeResult{OutputTokens: resp.Usage.CompletionTokens}, nil
			}

			writer := profile.NewResultWriter(output, obs.IndexesFromEnv().Benchmarks, elasticIndexer(), a.logger)
			runner := profile.NewRunner(invoke, writer,
				profile.WithRunnerLogger(a.logger),
				profile.WithInvokeTimeout(time.Duration(a.cfg.Inference.TimeoutSeconds)*time.Second),
			)

			var requests []profile.BenchmarkRequest
			for _, model := range models {
				for _, path := range paths {
					requests = append(requests, profile.BenchmarkRequest{
						ModelID:      model,
						TaskType:     parsedType,
						DocumentID:   docIDFor(path),
						DocumentPath: path,
					})
				}
			}

			results, err := runner.Run(cmd.Context(), requests)
			if err != nil {
				return err
			}
			a.logger.Info("Benchmark complete", "invocations", len(results), "output", output)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&models, "model", "m", nil, "Model identifier (repeatable)")
	cmd.Flags().StringVarP(&taskType, "task", "t", "extraction", "Task type to benchmark")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Benchmark results output path")
	return cmd
}

func profilesCmd(configPath, logLevel *string) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Aggregate benchmark results into model profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath, *logLevel, "")
			if err != nil {
				return err
			}

			if input == "" {
				input = filepath.Join(a.cfg.Logs.Dir, "benchmark-results.json")
			}

			results, err := readBenchmarkResults(input)
			if err != nil {
				return err
			}

			profiles := profile.NewAggregator().Aggregate(results)
			encoded, err := json.MarshalIndent(profiles, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Benchmark results file")
	return cmd
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}

// elasticIndexer returns the configured index sink, or an untyped nil when
// indexing is disabled.
func elasticIndexer() obs.Indexer {
	if e := obs.NewElastic(obs.ElasticConfigFromEnv()); e != nil {
		return e
	}
	return nil
}

// fileCollector reads a document from disk. The request variant carries the
// file path; HTML is run through readability extraction, everything else is
// treated as markdown or plain text.
func fileCollector() pipeline.Collector {
	extractor := document.NewHTMLExtractor()
	return func(ctx context.Context, docID, variant string) ([]document.NormalizedSection, error) {
		raw, err := os.ReadFile(variant)
		if err != nil {
			return nil, err
		}

		ext := strings.ToLower(filepath.Ext(variant))
		if ext == ".html" || ext == ".htm" {
			return extractor.Extract(raw)
		}
		return textSections(string(raw)), nil
	}
}

// textSections splits plain text into one section of blank-line separated
// paragraphs.
func textSections(text string) []document.NormalizedSection {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	if len(paragraphs) == 0 {
		return nil
	}
	return []document.NormalizedSection{{Paragraphs: paragraphs}}
}

// expandGlobs resolves doublestar patterns into a de-duplicated file list.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			if !seen[match] {
				seen[match] = true
				paths = append(paths, match)
			}
		}
	}
	return paths, nil
}

// docIDFor derives a stable document ID from a file path.
func docIDFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// loadProfiles aggregates persisted benchmark results into the store.
func loadProfiles(store *profile.Store, path string, logger *slog.Logger) error {
	results, err := readBenchmarkResults(path)
	if err != nil {
		return err
	}
	profiles := profile.NewAggregator().Aggregate(results)
	store.Replace(profiles)
	logger.Info("Loaded model profiles", "models", len(profiles), "source", path)
	return nil
}

func readBenchmarkResults(path string) ([]profile.BenchmarkResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var results []profile.BenchmarkResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("parse benchmark results %s: %w", path, err)
	}
	return results, nil
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(raw), nil
}
