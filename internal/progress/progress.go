// Package progress tracks and formats research run status for
// streaming to callers and display layers.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"deeptrail/internal/budget"
	"deeptrail/internal/research"
	"deeptrail/internal/trail"
)

const nearLimitThreshold = 0.8

// Display phrasing, deliberately separate from the state machine's
// transition descriptions.
var stateDescriptions = map[research.State]string{
	research.StateInitializing:   "Initializing research...",
	research.StateClarifying:     "Asking clarifying questions...",
	research.StatePlanning:       "Planning research strategy...",
	research.StateSearching:      "Searching for information...",
	research.StateEvaluating:     "Evaluating research quality...",
	research.StateTrailFollowing: "Exploring research trails...",
	research.StateSynthesizing:   "Synthesizing findings...",
	research.StateCompleted:      "Research completed!",
	research.StateFailed:         "Research failed",
}

func describe(s research.State) string {
	if d, ok := stateDescriptions[s]; ok {
		return d
	}
	return "Unknown state"
}

// Update is one logged status event.
type Update struct {
	Timestamp         time.Time
	Message           string
	State             research.State
	BudgetUtilization budget.Utilization
	FindingsCount     int
	TrailsCount       int
	Metadata          map[string]any
}

// Snapshot is a structured view of the run at one moment.
type Snapshot struct {
	State             research.State
	StateDescription  string
	ElapsedSeconds    float64
	FindingsCount     int
	QualityScores     []research.QualityScore
	BudgetUtilization budget.Utilization
	BudgetRemaining   budget.Usage
	BudgetNearLimit   bool
	Handoffs          int
	Clarifications    int
	TrailStats        *trail.Stats
}

// AgentActivity is one handoff rendered for timelines.
type AgentActivity struct {
	Timestamp time.Time
	FromAgent string
	ToAgent   string
	Reason    string
}

// Monitor records status updates over the lifetime of a run.
type Monitor struct {
	mu        sync.Mutex
	updates   []Update
	startTime time.Time
	logger    *zap.Logger
}

// NewMonitor creates a monitor with the clock started now.
func NewMonitor(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{startTime: time.Now(), logger: logger}
}

// LogStatus records one update with a snapshot of context and budget
// counters.
func (m *Monitor) LogStatus(message string, rc *research.Context, b *budget.Budget, metadata map[string]any) {
	update := Update{
		Timestamp:         time.Now(),
		Message:           message,
		State:             rc.State,
		BudgetUtilization: b.UtilizationPercent(),
		FindingsCount:     len(rc.Findings),
		TrailsCount:       len(rc.Trails),
		Metadata:          metadata,
	}

	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()

	m.logger.Info(message, zap.String("state", string(rc.State)))
}

// CurrentStatus builds a snapshot. The trail manager is optional;
// pass nil when trails are not in play.
func (m *Monitor) CurrentStatus(rc *research.Context, b *budget.Budget, tm *trail.Manager) Snapshot {
	m.mu.Lock()
	elapsed := time.Since(m.startTime).Seconds()
	m.mu.Unlock()

	snapshot := Snapshot{
		State:             rc.State,
		StateDescription:  describe(rc.State),
		ElapsedSeconds:    elapsed,
		FindingsCount:     len(rc.Findings),
		QualityScores:     append([]research.QualityScore{}, rc.QualityScores...),
		BudgetUtilization: b.UtilizationPercent(),
		BudgetRemaining:   b.Remaining(),
		BudgetNearLimit:   b.IsNearLimit(nearLimitThreshold),
		Handoffs:          len(rc.HandoffHistory),
		Clarifications:    len(rc.Clarifications),
	}
	if tm != nil {
		stats := tm.Statistics()
		snapshot.TrailStats = &stats
	}
	return snapshot
}

// ProgressPercent maps the current state to a completion percentage.
func (m *Monitor) ProgressPercent(rc *research.Context) float64 {
	switch rc.State {
	case research.StateInitializing:
		return 5
	case research.StateClarifying:
		return 15
	case research.StatePlanning:
		return 25
	case research.StateSearching:
		return 50
	case research.StateEvaluating:
		return 65
	case research.StateTrailFollowing:
		return 75
	case research.StateSynthesizing:
		return 90
	case research.StateCompleted:
		return 100
	default:
		return 0
	}
}

// StatusMessage renders a one-line human-readable status.
func (m *Monitor) StatusMessage(rc *research.Context, b *budget.Budget) string {
	util := b.UtilizationPercent()
	return fmt.Sprintf("Progress: %.0f%% | %s | Findings: %d | Budget: %.0f%% tokens, %.0f%% calls",
		m.ProgressPercent(rc),
		describe(rc.State),
		len(rc.Findings),
		util.Tokens,
		util.APICalls)
}

// Timeline returns a copy of all recorded updates.
func (m *Monitor) Timeline() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Update, len(m.updates))
	copy(out, m.updates)
	return out
}

// AgentTimeline renders the context's handoff history.
func (m *Monitor) AgentTimeline(rc *research.Context) []AgentActivity {
	out := make([]AgentActivity, 0, len(rc.HandoffHistory))
	for _, h := range rc.HandoffHistory {
		out = append(out, AgentActivity{
			Timestamp: h.Timestamp,
			FromAgent: h.FromAgent,
			ToAgent:   h.ToAgent,
			Reason:    h.Reason,
		})
	}
	return out
}

// Reset clears the update log and restarts the clock.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = nil
	m.startTime = time.Now()
}

// FormatSnapshot renders a snapshot as markdown for display surfaces.
func FormatSnapshot(s Snapshot, progressPercent float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Research Status\n\n")
	fmt.Fprintf(&b, "**State:** %s\n", s.StateDescription)
	fmt.Fprintf(&b, "**Progress:** %.0f%%\n", progressPercent)
	fmt.Fprintf(&b, "**Elapsed Time:** %.1fs\n\n", s.ElapsedSeconds)
	fmt.Fprintf(&b, "### Findings\n")
	fmt.Fprintf(&b, "- Total findings: %d\n", s.FindingsCount)
	fmt.Fprintf(&b, "- Handoffs: %d\n", s.Handoffs)
	fmt.Fprintf(&b, "- Clarifications: %d\n\n", s.Clarifications)
	fmt.Fprintf(&b, "### Budget Utilization\n")
	fmt.Fprintf(&b, "- Tokens: %.1f%%\n", s.BudgetUtilization.Tokens)
	fmt.Fprintf(&b, "- API Calls: %.1f%%\n", s.BudgetUtilization.APICalls)
	fmt.Fprintf(&b, "- Time: %.1f%%\n", s.BudgetUtilization.Time)
	if s.TrailStats != nil {
		fmt.Fprintf(&b, "\n### Research Trails\n")
		fmt.Fprintf(&b, "- Active: %d\n", s.TrailStats.ActiveTrails)
		fmt.Fprintf(&b, "- Completed: %d\n", s.TrailStats.CompletedTrails)
		fmt.Fprintf(&b, "- Total findings from trails: %d\n", s.TrailStats.TotalFindings)
	}
	return b.String()
}

// FormatQualityScores renders the latest quality assessment as
// markdown.
func FormatQualityScores(scores []research.QualityScore) string {
	if len(scores) == 0 {
		return "No quality assessments yet"
	}

	latest := scores[len(scores)-1]
	var b strings.Builder
	fmt.Fprintf(&b, "### Quality Metrics\n")
	fmt.Fprintf(&b, "- Completeness: %.2f\n", latest.Completeness)
	fmt.Fprintf(&b, "- Credibility: %.2f\n", latest.Credibility)
	fmt.Fprintf(&b, "- Relevance: %.2f\n", latest.Relevance)
	fmt.Fprintf(&b, "- Confidence: %.2f\n", latest.Confidence)
	fmt.Fprintf(&b, "- **Overall: %.2f**", latest.Overall)
	if len(latest.Gaps) > 0 {
		fmt.Fprintf(&b, "\n\n**Gaps identified:** %d", len(latest.Gaps))
	}
	return b.String()
}
