// Package orchestrator drives the full autonomous research workflow:
// clarify, plan, search, evaluate, follow trails, synthesize.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deeptrail/internal/agents"
	"deeptrail/internal/budget"
	"deeptrail/internal/cache"
	"deeptrail/internal/clarify"
	"deeptrail/internal/config"
	"deeptrail/internal/directory"
	"deeptrail/internal/evaluate"
	"deeptrail/internal/progress"
	"deeptrail/internal/research"
	"deeptrail/internal/trail"
	"deeptrail/internal/workflow"
)

// Per-phase operation estimates in tokens.
const (
	planningTokens  = 500
	searchTokens    = 2000
	synthesisTokens = 3000

	maxSearchesPerRun  = 5
	maxTrailsPerRun    = 2
	searchCacheTTL     = time.Hour
	orchestratorID     = "orchestrator"
	findingExcerptSize = 200
	maxFindingsInBrief = 10
)

// Config assembles everything a Coordinator needs. LLM is the only
// required field; the rest default sensibly.
type Config struct {
	Research *config.Config
	LLM      agents.LLMClient
	Logger   *zap.Logger
}

// Coordinator owns every subsystem for one research session and runs
// queries through the phase pipeline. A coordinator can serve multiple
// sequential runs; trail dedup state accumulates across them.
type Coordinator struct {
	cfg       *config.Config
	directory *directory.Directory
	handoffs  *directory.Coordinator
	trails    *trail.Manager
	discovery *trail.Discovery
	engine    *trail.Engine
	evaluator *evaluate.Engine
	clarifier *clarify.Engine
	monitor   *progress.Monitor
	cache     *cache.Cache
	logger    *zap.Logger

	mu      sync.Mutex
	lastRun *research.Context
}

// New builds a fully wired coordinator and registers the standard
// agent roster.
func New(cfg Config) *Coordinator {
	if cfg.Research == nil {
		cfg.Research = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dir := directory.New(cfg.Logger)
	agents.RegisterAll(dir, cfg.LLM, cfg.Logger)

	trails := trail.NewManager(cfg.Research.Trail.MaxConcurrentTrails, cfg.Logger)

	c := &Coordinator{
		cfg:       cfg.Research,
		directory: dir,
		handoffs:  directory.NewCoordinator(dir, 0, cfg.Logger),
		trails:    trails,
		discovery: trail.NewDiscovery(cfg.Research.Trail.MinRelevanceScore, cfg.Logger),
		engine:    trail.NewEngine(trails, dir, cfg.Logger),
		evaluator: evaluate.NewEngine(cfg.Logger),
		clarifier: clarify.NewEngine(
			cfg.Research.Clarification.MaxQuestions,
			cfg.Research.Clarification.AmbiguityThreshold,
			cfg.Research.Clarification.EnableFollowUp,
			cfg.Logger),
		monitor: progress.NewMonitor(cfg.Logger),
		cache:   cache.New(searchCacheTTL),
		logger:  cfg.Logger,
	}

	cfg.Logger.Info("research coordinator ready", zap.Int("agents", dir.Len()))
	return c
}

// Directory exposes the agent registry, mainly for health inspection.
func (c *Coordinator) Directory() *directory.Directory {
	return c.directory
}

// LastContext returns the context of the most recent run, or nil if no
// run has started.
func (c *Coordinator) LastContext() *research.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}

// Status snapshots the current run state.
func (c *Coordinator) Status(rc *research.Context, b *budget.Budget) progress.Snapshot {
	return c.monitor.CurrentStatus(rc, b, c.trails)
}

// ConductResearch runs the workflow for a query and streams
// human-readable status strings. The channel closes after the final
// report or a failure message; the run never panics past this call.
// Pass a nil budget to use the configured tier.
func (c *Coordinator) ConductResearch(ctx context.Context, query string, b *budget.Budget) <-chan string {
	if b == nil {
		if c.cfg.DevelopmentMode {
			b = budget.Tight()
		} else {
			b = budget.New(
				c.cfg.Budget.MaxTokens,
				c.cfg.Budget.MaxTimeSeconds,
				c.cfg.Budget.MaxAPICalls,
				c.cfg.Budget.MaxTrailDepth)
		}
	}

	updates := make(chan string)
	go func() {
		defer close(updates)
		c.run(ctx, query, b, updates)
	}()
	return updates
}

func (c *Coordinator) run(ctx context.Context, query string, b *budget.Budget, updates chan<- string) {
	rc := research.NewContext(query)
	c.mu.Lock()
	c.lastRun = rc
	c.mu.Unlock()
	machine := workflow.New(rc, c.logger)

	yield := func(msg string) bool {
		select {
		case updates <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("research run panicked", zap.Any("panic", r))
			machine.ForceFail(fmt.Sprintf("%v", r))
			yield(fmt.Sprintf("Research failed: %v", r))
		}
	}()

	fail := func(err error) {
		c.logger.Error("research failed", zap.Error(err))
		machine.ForceFail(err.Error())
		yield(fmt.Sprintf("Research failed: %v", err))
	}

	c.monitor.LogStatus("Starting research", rc, b, nil)
	if !yield(c.monitor.StatusMessage(rc, b)) {
		return
	}

	// Phase 1: clarification. Without an interactive caller the
	// questions are noted and the run proceeds with the raw query.
	if c.clarifier.NeedsClarification(query) {
		if err := machine.Transition(research.StateClarifying, "query is ambiguous"); err != nil {
			fail(err)
			return
		}
		if !yield("Analyzing query for clarifications...") {
			return
		}
		_, questions := c.clarifier.AnalyzeQuery(query)
		rc.SetMetadata("clarifying_questions", len(questions))
	}

	// Phase 2: planning.
	if err := machine.Transition(research.StatePlanning, "begin planning"); err != nil {
		fail(err)
		return
	}
	c.monitor.LogStatus("Planning research", rc, b, nil)
	if !yield(c.monitor.StatusMessage(rc, b)) {
		return
	}

	plan, err := c.planResearch(ctx, rc, b)
	if err != nil {
		fail(err)
		return
	}

	// Phase 3: searching.
	if err := machine.Transition(research.StateSearching, "execute search plan"); err != nil {
		fail(err)
		return
	}
	c.monitor.LogStatus("Executing searches", rc, b, nil)
	if !yield(c.monitor.StatusMessage(rc, b)) {
		return
	}
	c.executeSearches(ctx, rc, plan, b)

	// Phase 4: evaluation.
	if err := machine.Transition(research.StateEvaluating, "assess findings"); err != nil {
		fail(err)
		return
	}
	c.monitor.LogStatus("Evaluating quality", rc, b, nil)
	if !yield(c.monitor.StatusMessage(rc, b)) {
		return
	}
	score := c.evaluator.Evaluate(rc.Query, rc.Findings)
	rc.AddQualityScore(score)

	// Phase 5: trail following, gated on configuration, depth budget,
	// and detected gaps.
	if c.cfg.Trail.EnableAutonomous && b.CanAffordTrail() && len(score.Gaps) > 0 {
		if err := machine.Transition(research.StateTrailFollowing, "explore gaps"); err != nil {
			fail(err)
			return
		}
		c.monitor.LogStatus("Following research trails", rc, b, nil)
		if !yield(c.monitor.StatusMessage(rc, b)) {
			return
		}
		c.followTrails(ctx, rc, b)
	}

	// Phase 6: synthesis.
	if err := machine.Transition(research.StateSynthesizing, "write report"); err != nil {
		fail(err)
		return
	}
	c.monitor.LogStatus("Synthesizing report", rc, b, nil)
	if !yield(c.monitor.StatusMessage(rc, b)) {
		return
	}

	report, err := c.synthesizeReport(ctx, rc, b)
	if err != nil {
		fail(err)
		return
	}

	// Phase 7: done.
	if err := machine.Transition(research.StateCompleted, "research finished"); err != nil {
		fail(err)
		return
	}
	c.monitor.LogStatus("Research completed", rc, b, nil)

	snapshot := c.monitor.CurrentStatus(rc, b, c.trails)
	if !yield(progress.FormatSnapshot(snapshot, c.monitor.ProgressPercent(rc))) {
		return
	}
	yield(report)
}

// planResearch asks the dynamic planner for a search plan and charges
// the planning operation.
func (c *Coordinator) planResearch(ctx context.Context, rc *research.Context, b *budget.Budget) (*agents.SearchPlan, error) {
	raw, err := c.handoffs.HandoffToCapability(ctx, orchestratorID, research.CapabilityPlanning, &directory.Handoff{
		TaskDescription: "Plan research searches",
		Input:           "Query: " + rc.Query,
		Context:         rc,
	})
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	b.Consume(budget.NewOperation("planning", planningTokens))

	plan, err := agents.ParseSearchPlan(raw)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	return plan, nil
}

// executeSearches runs the planned searches until the plan, the
// per-run cap, or the budget runs out. Individual search failures are
// logged and skipped. Results are cached per query within the
// coordinator, and cache hits cost nothing.
func (c *Coordinator) executeSearches(ctx context.Context, rc *research.Context, plan *agents.SearchPlan, b *budget.Budget) {
	searches := plan.Searches
	if len(searches) > maxSearchesPerRun {
		searches = searches[:maxSearchesPerRun]
	}

	for _, item := range searches {
		key := cache.Key("search", item.Query)
		if cached, ok := c.cache.Get(key); ok {
			if content, ok := cached.(string); ok {
				c.logger.Debug("search cache hit", zap.String("query", item.Query))
				rc.AddFinding(c.searchFinding(item.Query, content, true))
				continue
			}
		}

		searchOp := budget.NewOperation("search", searchTokens)
		if !b.CanAfford(searchOp) {
			c.logger.Warn("budget exhausted, stopping searches")
			break
		}

		result, err := c.handoffs.HandoffToCapability(ctx, orchestratorID, research.CapabilitySearching, &directory.Handoff{
			TaskDescription: "Search: " + item.Query,
			Input:           fmt.Sprintf("Search term: %s\nReason: %s", item.Query, item.Reason),
			Context:         rc,
		})
		if err != nil {
			c.logger.Error("search failed", zap.String("query", item.Query), zap.Error(err))
			continue
		}

		rc.AddFinding(c.searchFinding(item.Query, result, false))
		b.Consume(searchOp)
		c.cache.Set(key, result)
	}
}

func (c *Coordinator) searchFinding(query, content string, cached bool) research.Finding {
	f := research.Finding{
		ID:         uuid.NewString(),
		Content:    content,
		Source:     "search:" + query,
		Timestamp:  time.Now().UTC(),
		Confidence: 0.8,
	}
	if cached {
		f.Metadata = map[string]any{"cached": true}
	}
	return f
}

// followTrails discovers tangents, creates trails against sub-budgets
// drawn from the parent's remaining capacity, and executes the batch
// in parallel. The parent depth counter is incremented once before
// the batch and decremented once after it; trails never touch it.
func (c *Coordinator) followTrails(ctx context.Context, rc *research.Context, b *budget.Budget) {
	suggestions := c.discovery.DiscoverTrails(rc.Query, rc.Findings, maxTrailsPerRun)

	var created []*research.Trail
	for _, s := range suggestions {
		if !b.CanAffordTrail() {
			break
		}
		sub := b.AllocateForTrail(c.cfg.Budget.TrailBudgetPercentage)
		t := c.trails.Create(s.Query, s.RelevanceScore, sub, "")
		if t == nil {
			continue
		}
		rc.AddTrail(t)
		created = append(created, t)
	}
	if len(created) == 0 {
		return
	}

	b.IncrementTrailDepth()
	executed := c.engine.ExecuteTrailsParallel(ctx, created, c.cfg.Trail.MaxConcurrentTrails)
	b.DecrementTrailDepth()

	for _, t := range executed {
		for _, f := range t.Findings {
			rc.AddFinding(f)
		}
	}
}

// synthesizeReport routes findings to the best writer and returns the
// markdown report.
func (c *Coordinator) synthesizeReport(ctx context.Context, rc *research.Context, b *budget.Budget) (string, error) {
	brief := "Original query: " + rc.Query + "\n\nFindings:\n"
	findings := rc.Findings
	if len(findings) > maxFindingsInBrief {
		findings = findings[:maxFindingsInBrief]
	}
	for i, f := range findings {
		excerpt := f.Content
		if len(excerpt) > findingExcerptSize {
			excerpt = excerpt[:findingExcerptSize]
		}
		brief += fmt.Sprintf("Finding %d: %s...\n\n", i+1, excerpt)
	}

	raw, err := c.handoffs.HandoffToCapability(ctx, orchestratorID, research.CapabilityWriting, &directory.Handoff{
		TaskDescription: "Synthesize research report",
		Input:           brief,
		Context:         rc,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}

	b.Consume(budget.NewOperation("synthesis", synthesisTokens))

	report, err := agents.ParseReport(raw)
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}
	return report.MarkdownReport, nil
}

// SaveCheckpoint writes the context and budget to a JSON file for
// offline inspection. Checkpoints are diagnostic, not resumable.
func (c *Coordinator) SaveCheckpoint(path string, rc *research.Context, b *budget.Budget) error {
	checkpoint := map[string]any{
		"context":  rc.ToMap(),
		"budget":   b.ToMap(),
		"trails":   c.trails.Statistics().ToMap(),
		"saved_at": time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	c.logger.Info("saved checkpoint", zap.String("path", path))
	return nil
}
