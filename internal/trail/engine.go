package trail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"deeptrail/internal/budget"
	"deeptrail/internal/directory"
	"deeptrail/internal/research"
)

const trailSearchTokens = 2000

// Engine executes trails against their allocated sub-budgets, routing
// search work through the executor directory.
type Engine struct {
	manager   *Manager
	directory *directory.Directory
	logger    *zap.Logger
}

// NewEngine creates an execution engine.
func NewEngine(manager *Manager, dir *directory.Directory, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{manager: manager, directory: dir, logger: logger}
}

// ExecuteTrail runs exactly one search for the trail. If the trail
// cannot be started the call is a no-op; the manager already logged
// the cause. If the trail's budget cannot afford the search it is
// abandoned with reason "budget exhausted". An invocation failure
// abandons the trail with the error's message and does not propagate.
// On success the finding is appended, the budget consumed, and the
// trail completed. One search per call: deeper iteration happens by
// spawning successor trails, never by looping the same one.
func (e *Engine) ExecuteTrail(ctx context.Context, t *research.Trail) *research.Trail {
	e.logger.Info("executing trail",
		zap.String("query", t.Query),
		zap.Int("budget_tokens", t.Budget.MaxTokens))

	if !e.manager.Start(t.ID) {
		e.logger.Error("failed to start trail", zap.String("trail_id", t.ID))
		return t
	}

	searchOp := budget.NewOperation("trail_search", trailSearchTokens)
	if !t.Budget.CanAfford(searchOp) {
		e.logger.Warn("trail out of budget", zap.String("trail_id", t.ID))
		e.manager.Abandon(t.ID, "budget exhausted")
		return t
	}

	finding, err := e.searchForTrail(ctx, t)
	if err != nil {
		e.logger.Error("trail execution failed", zap.Error(err))
		e.manager.Abandon(t.ID, err.Error())
		return t
	}

	// The manager holds the same trail pointer, so it is the single
	// writer of the findings slice.
	e.manager.AddFinding(t.ID, finding)
	t.Budget.Consume(searchOp)

	e.manager.Complete(t.ID)
	e.logger.Info("trail completed",
		zap.String("trail_id", t.ID),
		zap.Int("findings", len(t.Findings)))
	return t
}

func (e *Engine) searchForTrail(ctx context.Context, t *research.Trail) (research.Finding, error) {
	input := fmt.Sprintf("Search term: %s\nReason: Exploring research trail", t.Query)
	result, err := e.directory.InvokeCapability(ctx, research.CapabilitySearching, input, 0)
	if err != nil {
		return research.Finding{}, fmt.Errorf("trail search: %w", err)
	}

	return research.Finding{
		ID:         uuid.NewString(),
		Content:    result,
		Source:     "trail_search:" + t.Query,
		Timestamp:  time.Now().UTC(),
		Confidence: 0.7,
		Metadata: map[string]any{
			"trail_id":    t.ID,
			"trail_query": t.Query,
		},
	}, nil
}

// ExecuteTrailsParallel runs ExecuteTrail across the trails with at
// most maxConcurrent in flight. A trail whose execution panics is
// dropped from the results rather than failing the batch.
func (e *Engine) ExecuteTrailsParallel(ctx context.Context, trails []*research.Trail, maxConcurrent int) []*research.Trail {
	e.logger.Info("executing trails in parallel",
		zap.Int("trails", len(trails)),
		zap.Int("max_concurrent", maxConcurrent))

	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([]*research.Trail, len(trails))

	var wg sync.WaitGroup
	for i, t := range trails {
		if err := sem.Acquire(ctx, 1); err != nil {
			e.logger.Warn("trail dispatch cancelled", zap.Error(err))
			break
		}
		wg.Add(1)
		go func(i int, t *research.Trail) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("trail execution panicked",
						zap.String("trail_id", t.ID),
						zap.Any("panic", r))
				}
			}()
			results[i] = e.ExecuteTrail(ctx, t)
		}(i, t)
	}
	wg.Wait()

	completed := make([]*research.Trail, 0, len(trails))
	for _, t := range results {
		if t != nil {
			completed = append(completed, t)
		}
	}
	e.logger.Info("parallel trail batch finished", zap.Int("completed", len(completed)))
	return completed
}

// ShouldTerminate is an advisory predicate for callers iterating on a
// tangent across multiple trails. Conditions are checked in order:
// budget exhausted, minimum findings reached, elapsed time past 90% of
// the trail's own time cap. Returns the first true reason, or false
// with an empty reason.
func (e *Engine) ShouldTerminate(t *research.Trail, minFindings int) (bool, string) {
	if t.Budget.IsExhausted() {
		return true, "budget exhausted"
	}
	if len(t.Findings) >= minFindings {
		return true, "minimum findings reached"
	}
	if t.Budget.CurrentUsage.TimeSeconds > t.Budget.MaxTimeSeconds*0.9 {
		return true, "time limit approaching"
	}
	return false, ""
}

// Statistics reports one trail's execution state.
func (e *Engine) Statistics(t *research.Trail) map[string]any {
	return map[string]any{
		"trail_id":           t.ID,
		"query":              t.Query,
		"status":             string(t.Status),
		"findings_count":     len(t.Findings),
		"budget_used":        t.Budget.CurrentUsage.ToMap(),
		"budget_utilization": t.Budget.UtilizationPercent().ToMap(),
	}
}
