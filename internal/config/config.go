// Package config holds runtime configuration for the research system,
// with presets, YAML file loading, and environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BudgetConfig caps a research run's resource consumption.
type BudgetConfig struct {
	MaxTokens             int     `yaml:"max_tokens"`
	MaxTimeSeconds        float64 `yaml:"max_time_seconds"`
	MaxAPICalls           int     `yaml:"max_api_calls"`
	MaxTrailDepth         int     `yaml:"max_trail_depth"`
	TrailBudgetPercentage float64 `yaml:"trail_budget_percentage"`
}

// QualityConfig sets minimum acceptable quality thresholds.
type QualityConfig struct {
	MinCompleteness float64 `yaml:"min_completeness"`
	MinCredibility  float64 `yaml:"min_credibility"`
	MinRelevance    float64 `yaml:"min_relevance"`
	MinConfidence   float64 `yaml:"min_confidence"`
	MinOverall      float64 `yaml:"min_overall"`
}

// ClarificationConfig tunes the clarification engine.
type ClarificationConfig struct {
	MaxQuestions       int     `yaml:"max_questions"`
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold"`
	EnableFollowUp     bool    `yaml:"enable_follow_up_questions"`
}

// TrailConfig tunes autonomous trail exploration.
type TrailConfig struct {
	MinRelevanceScore   float64 `yaml:"min_relevance_score"`
	MaxConcurrentTrails int     `yaml:"max_concurrent_trails"`
	EnableAutonomous    bool    `yaml:"enable_autonomous_trails"`
}

// Config is the full research system configuration.
type Config struct {
	Budget          BudgetConfig        `yaml:"budget"`
	Quality         QualityConfig       `yaml:"quality"`
	Clarification   ClarificationConfig `yaml:"clarification"`
	Trail           TrailConfig         `yaml:"trail"`
	DevelopmentMode bool                `yaml:"development_mode"`
	LogLevel        string              `yaml:"log_level"`
}

// Default returns the standard configuration tier.
func Default() *Config {
	return &Config{
		Budget: BudgetConfig{
			MaxTokens:             50000,
			MaxTimeSeconds:        300,
			MaxAPICalls:           50,
			MaxTrailDepth:         3,
			TrailBudgetPercentage: 0.2,
		},
		Quality: QualityConfig{
			MinCompleteness: 0.7,
			MinCredibility:  0.6,
			MinRelevance:    0.7,
			MinConfidence:   0.6,
			MinOverall:      0.65,
		},
		Clarification: ClarificationConfig{
			MaxQuestions:       5,
			AmbiguityThreshold: 0.5,
			EnableFollowUp:     true,
		},
		Trail: TrailConfig{
			MinRelevanceScore:   0.6,
			MaxConcurrentTrails: 3,
			EnableAutonomous:    true,
		},
		LogLevel: "info",
	}
}

// Development returns a tight-budget tier for local iteration.
func Development() *Config {
	c := Default()
	c.Budget.MaxTokens = 10000
	c.Budget.MaxTimeSeconds = 60
	c.Budget.MaxAPICalls = 10
	c.Budget.MaxTrailDepth = 1
	c.Quality = QualityConfig{
		MinCompleteness: 0.6,
		MinCredibility:  0.5,
		MinRelevance:    0.6,
		MinConfidence:   0.5,
		MinOverall:      0.55,
	}
	c.Clarification.MaxQuestions = 3
	c.Trail.MaxConcurrentTrails = 1
	c.Trail.EnableAutonomous = false
	c.DevelopmentMode = true
	c.LogLevel = "debug"
	return c
}

// Production returns the generous tier for real research runs.
func Production() *Config {
	c := Default()
	c.Budget.MaxTokens = 200000
	c.Budget.MaxTimeSeconds = 600
	c.Budget.MaxAPICalls = 200
	c.Budget.MaxTrailDepth = 5
	return c
}

// ForPreset maps a preset name to its configuration.
func ForPreset(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return Default(), nil
	case "development", "tight":
		return Development(), nil
	case "production", "generous":
		return Production(), nil
	default:
		return nil, fmt.Errorf("unknown config preset %q", name)
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// FromEnv builds a configuration from environment variables. The
// RESEARCH_MODE variable selects a preset; individual variables then
// override the preset's values.
func FromEnv() *Config {
	var c *Config
	switch strings.ToLower(os.Getenv("RESEARCH_MODE")) {
	case "development":
		c = Development()
	case "production":
		c = Production()
	default:
		c = Default()
	}

	c.Budget.MaxTokens = envInt("RESEARCH_MAX_TOKENS", c.Budget.MaxTokens)
	c.Budget.MaxTimeSeconds = envFloat("RESEARCH_MAX_TIME", c.Budget.MaxTimeSeconds)
	c.Budget.MaxAPICalls = envInt("RESEARCH_MAX_API_CALLS", c.Budget.MaxAPICalls)
	c.Budget.MaxTrailDepth = envInt("RESEARCH_MAX_TRAIL_DEPTH", c.Budget.MaxTrailDepth)
	c.Budget.TrailBudgetPercentage = envFloat("RESEARCH_TRAIL_BUDGET_PCT", c.Budget.TrailBudgetPercentage)
	c.Trail.MinRelevanceScore = envFloat("TRAIL_MIN_RELEVANCE", c.Trail.MinRelevanceScore)
	c.Trail.MaxConcurrentTrails = envInt("TRAIL_MAX_CONCURRENT", c.Trail.MaxConcurrentTrails)
	c.Clarification.MaxQuestions = envInt("CLARIFICATION_MAX_QUESTIONS", c.Clarification.MaxQuestions)
	c.Clarification.AmbiguityThreshold = envFloat("CLARIFICATION_AMBIGUITY_THRESHOLD", c.Clarification.AmbiguityThreshold)
	if v := os.Getenv("RESEARCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return c
}

// Validate rejects configurations that cannot drive a run.
func (c *Config) Validate() error {
	if c.Budget.MaxTokens <= 0 {
		return fmt.Errorf("budget max_tokens must be positive, got %d", c.Budget.MaxTokens)
	}
	if c.Budget.MaxTimeSeconds <= 0 {
		return fmt.Errorf("budget max_time_seconds must be positive, got %g", c.Budget.MaxTimeSeconds)
	}
	if c.Budget.MaxAPICalls <= 0 {
		return fmt.Errorf("budget max_api_calls must be positive, got %d", c.Budget.MaxAPICalls)
	}
	if c.Budget.TrailBudgetPercentage <= 0 || c.Budget.TrailBudgetPercentage > 1 {
		return fmt.Errorf("trail_budget_percentage must be in (0, 1], got %g", c.Budget.TrailBudgetPercentage)
	}
	if c.Trail.MaxConcurrentTrails < 1 {
		return fmt.Errorf("max_concurrent_trails must be at least 1, got %d", c.Trail.MaxConcurrentTrails)
	}
	return nil
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
