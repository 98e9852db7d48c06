package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deeptrail/internal/agents"
	"deeptrail/internal/budget"
	"deeptrail/internal/config"
	"deeptrail/internal/orchestrator"
)

var (
	// Global flags
	verbose    bool
	apiKey     string
	model      string
	preset     string
	configPath string
	timeout    time.Duration

	// Research flags
	checkpointPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deeptrail",
	Short: "deeptrail - autonomous deep research orchestrator",
	Long: `deeptrail runs multi-phase research sessions against an LLM backend.

A session moves through clarification, planning, parallel web searches,
quality evaluation, autonomous trail following, and report synthesis.
Every phase is metered against a resource budget, so a run can never
spend more tokens, API calls, or trail depth than you give it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// researchCmd runs a full research session
var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run a full research session for a query",
	Long: `Runs the complete research pipeline and streams progress to stdout.

The effective configuration is resolved in order: --config file,
--preset name, then RESEARCH_* environment overrides.

Examples:
  deeptrail research "impact of solid state batteries on EV adoption"
  deeptrail research --preset development "quick local smoke run"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

// agentsCmd lists the registered agent roster
var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Show the agent roster and capability coverage",
	RunE:  showAgents,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective resolved configuration",
	RunE:  showConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY env)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model name (default gemini-2.0-flash)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "Config preset: default, development, production, tight, generous")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Session timeout")

	researchCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "Write a JSON checkpoint here after the run")

	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveConfig builds the effective config from file, preset, and env.
func resolveConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	switch {
	case configPath != "":
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	case preset != "":
		cfg, err = config.ForPreset(preset)
		if err != nil {
			return nil, err
		}
	default:
		cfg = config.FromEnv()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	llm, err := agents.NewGenAIClient(ctx, key, model)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}
	logger.Info("Starting research session",
		zap.String("model", llm.Model()),
		zap.Bool("development_mode", cfg.DevelopmentMode))

	coordinator := orchestrator.New(orchestrator.Config{
		Research: cfg,
		LLM:      llm,
		Logger:   logger,
	})

	b := budget.New(
		cfg.Budget.MaxTokens,
		cfg.Budget.MaxTimeSeconds,
		cfg.Budget.MaxAPICalls,
		cfg.Budget.MaxTrailDepth)

	query := strings.Join(args, " ")
	for update := range coordinator.ConductResearch(ctx, query, b) {
		fmt.Println(update)
		fmt.Println()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session ended early: %w", err)
	}

	if checkpointPath != "" {
		if rc := coordinator.LastContext(); rc != nil {
			if err := coordinator.SaveCheckpoint(checkpointPath, rc, b); err != nil {
				return err
			}
			fmt.Printf("Checkpoint written to %s\n", checkpointPath)
		}
	}
	return nil
}

func showAgents(cmd *cobra.Command, args []string) error {
	coordinator := orchestrator.New(orchestrator.Config{Logger: logger})
	dir := coordinator.Directory()

	fmt.Printf("Registered agents: %d\n\n", dir.Len())
	health := dir.HealthStatus()
	ids := make([]string, 0, len(health))
	for id := range health {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h := health[id]
		fmt.Printf("  %-18s available=%-5v calls=%d success=%.0f%%\n",
			id, h.Available, h.CallCount, h.SuccessRate*100)
	}

	fmt.Println("\nCapability coverage:")
	for capability, count := range dir.CapabilityCoverage() {
		fmt.Printf("  %-15s %d agent(s)\n", capability, count)
	}
	return nil
}

func showConfig(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Budget:\n")
	fmt.Printf("  max_tokens:              %d\n", cfg.Budget.MaxTokens)
	fmt.Printf("  max_time_seconds:        %.0f\n", cfg.Budget.MaxTimeSeconds)
	fmt.Printf("  max_api_calls:           %d\n", cfg.Budget.MaxAPICalls)
	fmt.Printf("  max_trail_depth:         %d\n", cfg.Budget.MaxTrailDepth)
	fmt.Printf("  trail_budget_percentage: %.2f\n", cfg.Budget.TrailBudgetPercentage)
	fmt.Printf("Trails:\n")
	fmt.Printf("  min_relevance_score:     %.2f\n", cfg.Trail.MinRelevanceScore)
	fmt.Printf("  max_concurrent_trails:   %d\n", cfg.Trail.MaxConcurrentTrails)
	fmt.Printf("  enable_autonomous:       %v\n", cfg.Trail.EnableAutonomous)
	fmt.Printf("Clarification:\n")
	fmt.Printf("  max_questions:           %d\n", cfg.Clarification.MaxQuestions)
	fmt.Printf("  ambiguity_threshold:     %.2f\n", cfg.Clarification.AmbiguityThreshold)
	fmt.Printf("  enable_follow_up:        %v\n", cfg.Clarification.EnableFollowUp)
	fmt.Printf("development_mode: %v\n", cfg.DevelopmentMode)
	fmt.Printf("log_level:        %s\n", cfg.LogLevel)
	return nil
}
