package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 50000, c.Budget.MaxTokens)
	assert.Equal(t, 300.0, c.Budget.MaxTimeSeconds)
	assert.Equal(t, 50, c.Budget.MaxAPICalls)
	assert.Equal(t, 3, c.Budget.MaxTrailDepth)
	assert.Equal(t, 0.2, c.Budget.TrailBudgetPercentage)
	assert.True(t, c.Trail.EnableAutonomous)
	require.NoError(t, c.Validate())
}

func TestDevelopment(t *testing.T) {
	c := Development()
	assert.Equal(t, 10000, c.Budget.MaxTokens)
	assert.Equal(t, 60.0, c.Budget.MaxTimeSeconds)
	assert.Equal(t, 10, c.Budget.MaxAPICalls)
	assert.Equal(t, 1, c.Budget.MaxTrailDepth)
	assert.Equal(t, 1, c.Trail.MaxConcurrentTrails)
	assert.False(t, c.Trail.EnableAutonomous)
	assert.True(t, c.DevelopmentMode)
	require.NoError(t, c.Validate())
}

func TestProduction(t *testing.T) {
	c := Production()
	assert.Equal(t, 200000, c.Budget.MaxTokens)
	assert.Equal(t, 600.0, c.Budget.MaxTimeSeconds)
	assert.Equal(t, 200, c.Budget.MaxAPICalls)
	assert.Equal(t, 5, c.Budget.MaxTrailDepth)
	require.NoError(t, c.Validate())
}

func TestForPreset(t *testing.T) {
	for _, name := range []string{"", "default", "tight", "development", "generous", "production"} {
		c, err := ForPreset(name)
		require.NoError(t, err, name)
		require.NotNil(t, c)
	}

	_, err := ForPreset("turbo")
	assert.ErrorContains(t, err, "unknown config preset")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "research.yaml")
	content := `
budget:
  max_tokens: 12345
  max_time_seconds: 120
  max_api_calls: 20
  max_trail_depth: 2
  trail_budget_percentage: 0.3
trail:
  min_relevance_score: 0.5
  max_concurrent_trails: 2
  enable_autonomous_trails: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12345, c.Budget.MaxTokens)
	assert.Equal(t, 0.3, c.Budget.TrailBudgetPercentage)
	assert.Equal(t, 2, c.Trail.MaxConcurrentTrails)
	// Sections absent from the file keep defaults.
	assert.Equal(t, 5, c.Clarification.MaxQuestions)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/research.yaml")
	assert.ErrorContains(t, err, "read config")
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget: [not a map"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestFromEnv(t *testing.T) {
	t.Setenv("RESEARCH_MODE", "development")
	t.Setenv("RESEARCH_MAX_TOKENS", "7777")
	t.Setenv("TRAIL_MAX_CONCURRENT", "4")

	c := FromEnv()
	assert.Equal(t, 7777, c.Budget.MaxTokens, "env overrides the preset")
	assert.Equal(t, 60.0, c.Budget.MaxTimeSeconds, "preset value stands without override")
	assert.Equal(t, 4, c.Trail.MaxConcurrentTrails)
	assert.True(t, c.DevelopmentMode)
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("RESEARCH_MAX_TOKENS", "lots")
	c := FromEnv()
	assert.Equal(t, 50000, c.Budget.MaxTokens)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Budget.MaxTokens = 0
	assert.ErrorContains(t, c.Validate(), "max_tokens")

	c = Default()
	c.Budget.TrailBudgetPercentage = 1.5
	assert.ErrorContains(t, c.Validate(), "trail_budget_percentage")

	c = Default()
	c.Trail.MaxConcurrentTrails = 0
	assert.ErrorContains(t, c.Validate(), "max_concurrent_trails")
}
