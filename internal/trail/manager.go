package trail

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deeptrail/internal/budget"
	"deeptrail/internal/research"
)

// Stats aggregates trail counts across the active and completed lists.
type Stats struct {
	TotalTrails       int
	ActiveTrails      int
	PendingTrails     int
	CompletedTrails   int
	TotalFindings     int
	VisitedQueries    int
	ActiveBreadcrumbs int
}

// ToMap serializes stats for snapshots and checkpoints.
func (s Stats) ToMap() map[string]any {
	return map[string]any{
		"total_trails":       s.TotalTrails,
		"active_trails":      s.ActiveTrails,
		"pending_trails":     s.PendingTrails,
		"completed_trails":   s.CompletedTrails,
		"total_findings":     s.TotalFindings,
		"visited_queries":    s.VisitedQueries,
		"active_breadcrumbs": s.ActiveBreadcrumbs,
	}
}

// Manager owns trail lifecycle. The active list spans PENDING and
// ACTIVE trails, the completed list spans COMPLETED and ABANDONED.
// Visited queries never shrink within a run; breadcrumbs cover only
// currently-ACTIVE trail queries. Safe for concurrent use since
// parallel trail executions report back through it.
type Manager struct {
	mu                  sync.Mutex
	maxConcurrentTrails int
	active              []*research.Trail
	completed           []*research.Trail
	visited             map[string]bool
	breadcrumbs         map[string]bool
	logger              *zap.Logger
}

// NewManager creates a manager with the given concurrency cap.
func NewManager(maxConcurrentTrails int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		maxConcurrentTrails: maxConcurrentTrails,
		visited:             make(map[string]bool),
		breadcrumbs:         make(map[string]bool),
		logger:              logger,
	}
}

// Create makes a new PENDING trail unless one of three gates rejects
// it: the query matches a current breadcrumb (an active trail would be
// spawning a child chasing its own topic), the query was ever visited
// this run, or the active list is at the concurrency cap. The query is
// added to the visited set on creation but becomes a breadcrumb only
// when the trail starts.
func (m *Manager) Create(query string, relevance float64, b *budget.Budget, originFindingID string) *research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := strings.ToLower(query)
	if m.breadcrumbs[normalized] {
		m.logger.Info("skipping trail, would create loop", zap.String("query", query))
		return nil
	}
	if m.visited[normalized] {
		m.logger.Info("skipping trail, already explored", zap.String("query", query))
		return nil
	}
	if len(m.active) >= m.maxConcurrentTrails {
		m.logger.Warn("cannot create trail, at max concurrent limit",
			zap.Int("limit", m.maxConcurrentTrails))
		return nil
	}

	t := &research.Trail{
		ID:              uuid.NewString(),
		OriginFindingID: originFindingID,
		Query:           query,
		RelevanceScore:  relevance,
		Budget:          b,
		Status:          research.TrailPending,
	}
	m.active = append(m.active, t)
	m.visited[normalized] = true

	m.logger.Info("created trail",
		zap.String("query", query),
		zap.Float64("relevance", relevance),
		zap.String("trail_id", t.ID))
	return t
}

// Start flips a PENDING trail to ACTIVE and registers its breadcrumb.
// Returns false without mutating anything if the trail is missing or
// not pending.
func (m *Manager) Start(trailID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.findLocked(trailID)
	if t == nil {
		return false
	}
	if t.Status != research.TrailPending {
		m.logger.Warn("trail is not pending", zap.String("trail_id", trailID))
		return false
	}
	t.Status = research.TrailActive
	m.breadcrumbs[strings.ToLower(t.Query)] = true
	m.logger.Info("started trail", zap.String("trail_id", trailID))
	return true
}

// Complete moves a trail from the active list to the completed list
// with COMPLETED status and drops its breadcrumb.
func (m *Manager) Complete(trailID string) bool {
	return m.finish(trailID, research.TrailCompleted, "")
}

// Abandon is Complete with ABANDONED status and a logged reason.
func (m *Manager) Abandon(trailID, reason string) bool {
	return m.finish(trailID, research.TrailAbandoned, reason)
}

func (m *Manager) finish(trailID string, status research.TrailStatus, reason string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, t := range m.active {
		if t.ID == trailID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	t := m.active[idx]
	t.Status = status
	delete(m.breadcrumbs, strings.ToLower(t.Query))
	m.active = append(m.active[:idx], m.active[idx+1:]...)
	m.completed = append(m.completed, t)

	if status == research.TrailAbandoned {
		fields := []zap.Field{zap.String("trail_id", trailID)}
		if reason != "" {
			fields = append(fields, zap.String("reason", reason))
		}
		m.logger.Info("abandoned trail", fields...)
	} else {
		m.logger.Info("completed trail",
			zap.String("trail_id", trailID),
			zap.Int("findings", len(t.Findings)))
	}
	return true
}

// AddFinding appends a finding to the trail with the given id.
func (m *Manager) AddFinding(trailID string, f research.Finding) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.findLocked(trailID)
	if t == nil {
		return false
	}
	t.Findings = append(t.Findings, f)
	m.logger.Debug("added finding to trail", zap.String("trail_id", trailID))
	return true
}

// Get returns the trail with the given id from either list.
func (m *Manager) Get(trailID string) *research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(trailID)
}

func (m *Manager) findLocked(trailID string) *research.Trail {
	for _, t := range m.active {
		if t.ID == trailID {
			return t
		}
	}
	for _, t := range m.completed {
		if t.ID == trailID {
			return t
		}
	}
	return nil
}

// Active returns trails currently in ACTIVE status.
func (m *Manager) Active() []*research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterLocked(m.active, research.TrailActive)
}

// Pending returns trails currently in PENDING status.
func (m *Manager) Pending() []*research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filterLocked(m.active, research.TrailPending)
}

func (m *Manager) filterLocked(trails []*research.Trail, status research.TrailStatus) []*research.Trail {
	var out []*research.Trail
	for _, t := range trails {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

// Completed returns a copy of the completed list.
func (m *Manager) Completed() []*research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*research.Trail, len(m.completed))
	copy(out, m.completed)
	return out
}

// All returns every trail, active then completed.
func (m *Manager) All() []*research.Trail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*research.Trail, 0, len(m.active)+len(m.completed))
	out = append(out, m.active...)
	out = append(out, m.completed...)
	return out
}

// PrioritizePending returns PENDING trails sorted descending by
// relevance score. ACTIVE trails are excluded since they are already
// being worked.
func (m *Manager) PrioritizePending() []*research.Trail {
	pending := m.Pending()
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].RelevanceScore > pending[j].RelevanceScore
	})
	return pending
}

// Statistics aggregates counts without mutating state.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalTrails:       len(m.active) + len(m.completed),
		ActiveTrails:      len(m.filterLocked(m.active, research.TrailActive)),
		PendingTrails:     len(m.filterLocked(m.active, research.TrailPending)),
		CompletedTrails:   len(m.completed),
		VisitedQueries:    len(m.visited),
		ActiveBreadcrumbs: len(m.breadcrumbs),
	}
	for _, t := range m.active {
		stats.TotalFindings += len(t.Findings)
	}
	for _, t := range m.completed {
		stats.TotalFindings += len(t.Findings)
	}
	return stats
}

// CanCreateMore reports whether the active list is below the
// concurrency cap.
func (m *Manager) CanCreateMore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) < m.maxConcurrentTrails
}

// Len returns the total trail count across both lists.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) + len(m.completed)
}
