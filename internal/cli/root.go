// Package cli provides the command-line interface for patentgraph.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcdaddytn/patentgraph/internal/config"
	"github.com/mcdaddytn/patentgraph/internal/db"
	"github.com/mcdaddytn/patentgraph/internal/family"
	"github.com/mcdaddytn/patentgraph/internal/llm"
	"github.com/mcdaddytn/patentgraph/internal/metrics"
	"github.com/mcdaddytn/patentgraph/internal/patents"
	"github.com/mcdaddytn/patentgraph/internal/service"
	"github.com/mcdaddytn/patentgraph/internal/workflow"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and db client
	cfg        config.Config
	dbClient   *db.Client
	logCleanup func() error

	// Shared runtime pieces, built on first use
	collector *metrics.Collector
	model     *llm.Model
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "patentgraph",
	Short: "Patent portfolio research workstation",
	Long: `Patentgraph plans and runs LLM-scored patent research workflows
(tournaments, two-stage map-reduce, custom DAGs) and grows patent families
around seeds by iterative scored citation-graph expansion.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip DB connection for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Load config
		cfg = config.Load()
		collector = metrics.NewCollector()

		// Logs go to file; verbose also raises the stderr level
		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		logCleanup = cleanup

		// Connect to database
		ctx := context.Background()
		dbCfg := db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}

		var err error
		dbClient, err = db.NewClient(ctx, dbCfg, nil)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		// Initialize schema and built-in templates
		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		if err := dbClient.EnsureDefaultTemplates(ctx); err != nil {
			return fmt.Errorf("seed templates: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Close database connection
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		if logCleanup != nil {
			logCleanup()
		}
	},
}

// getWorkflowService builds the workflow service. Commands that execute jobs
// pass requireLLM=true; planning and inspection commands do not need a model.
func getWorkflowService(requireLLM bool) (*service.WorkflowService, error) {
	var scorer workflow.Scorer
	if requireLLM {
		if model == nil {
			var err error
			model, err = llm.NewModel(cfg)
			if err != nil {
				return nil, fmt.Errorf("init model: %w", err)
			}
		}
		scorer = llm.NewScorer(model, nil)
	}

	scheduler := workflow.New(dbClient, scorer, dbClient, patents.New(cfg), workflow.Config{
		Workers:     cfg.Workers,
		CallTimeout: cfg.CallTimeout,
		Metrics:     collector,
	})
	return service.NewWorkflowService(dbClient, scheduler, nil), nil
}

// getExplorationService builds the family exploration service.
func getExplorationService() *service.ExplorationService {
	client := patents.New(cfg)
	graph := family.NewCachedGraph(family.GraphConfig{
		Fetcher: client,
		Store:   dbClient,
		TTL:     cfg.CitationCacheTTL,
		Metrics: collector,
	})
	engine := family.NewEngine(family.Config{
		Graph:    graph,
		Resolver: client,
		Metrics:  collector,
	})
	return service.NewExplorationService(dbClient, engine, nil)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
