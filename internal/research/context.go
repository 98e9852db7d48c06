package research

import (
	"encoding/json"
	"errors"
	"time"

	"deeptrail/internal/budget"
)

// Clarification is one answered (or pending) clarifying question.
// Kept as an ordered list so the question order survives round-trips.
type Clarification struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Context is the top-level mutable aggregate for one research run.
// It is exclusively owned by a single orchestrator run; every mutator
// bumps UpdatedAt.
type Context struct {
	Query          string          `json:"query"`
	State          State           `json:"state"`
	Clarifications []Clarification `json:"clarifications,omitempty"`
	Findings       []Finding       `json:"findings,omitempty"`
	Trails         []*Trail        `json:"research_trails,omitempty"`
	BudgetUsed     budget.Usage    `json:"budget_used"`
	QualityScores  []QualityScore  `json:"quality_scores,omitempty"`
	HandoffHistory []HandoffRecord `json:"handoff_history,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewContext creates a context in the INITIALIZING state.
func NewContext(query string) *Context {
	now := time.Now()
	return &Context{
		Query:     query,
		State:     StateInitializing,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddFinding appends a finding.
func (c *Context) AddFinding(f Finding) {
	c.Findings = append(c.Findings, f)
	c.touch()
}

// AddTrail appends a research trail.
func (c *Context) AddTrail(t *Trail) {
	c.Trails = append(c.Trails, t)
	c.touch()
}

// AddHandoff records an agent handoff.
func (c *Context) AddHandoff(h HandoffRecord) {
	c.HandoffHistory = append(c.HandoffHistory, h)
	c.touch()
}

// AddQualityScore appends a quality assessment.
func (c *Context) AddQualityScore(q QualityScore) {
	c.QualityScores = append(c.QualityScores, q)
	c.touch()
}

// AddUsage accumulates consumed resources into the running total.
func (c *Context) AddUsage(u budget.Usage) {
	c.BudgetUsed.Add(u)
	c.touch()
}

// SetState updates the workflow state.
func (c *Context) SetState(s State) {
	c.State = s
	c.touch()
}

// AddClarification records a question/answer pair, replacing the
// answer if the question was already asked.
func (c *Context) AddClarification(question, answer string) {
	for i := range c.Clarifications {
		if c.Clarifications[i].Question == question {
			c.Clarifications[i].Answer = answer
			c.touch()
			return
		}
	}
	c.Clarifications = append(c.Clarifications, Clarification{Question: question, Answer: answer})
	c.touch()
}

// SetMetadata stores an open key/value annotation.
func (c *Context) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
	c.touch()
}

// Validate checks context integrity: non-empty query and a recognized
// workflow state.
func (c *Context) Validate() error {
	if c.Query == "" {
		return errors.New("research context requires a query")
	}
	if !c.State.Valid() {
		return errors.New("research context has unrecognized state " + string(c.State))
	}
	return nil
}

func (c *Context) touch() {
	c.UpdatedAt = time.Now()
}

// ToMap serializes the full context to a plain nested map.
func (c *Context) ToMap() map[string]any {
	clarifications := make([]map[string]any, 0, len(c.Clarifications))
	for _, cl := range c.Clarifications {
		clarifications = append(clarifications, map[string]any{
			"question": cl.Question,
			"answer":   cl.Answer,
		})
	}
	findings := make([]map[string]any, 0, len(c.Findings))
	for _, f := range c.Findings {
		findings = append(findings, f.ToMap())
	}
	trails := make([]map[string]any, 0, len(c.Trails))
	for _, t := range c.Trails {
		trails = append(trails, t.ToMap())
	}
	scores := make([]map[string]any, 0, len(c.QualityScores))
	for _, q := range c.QualityScores {
		scores = append(scores, q.ToMap())
	}
	handoffs := make([]map[string]any, 0, len(c.HandoffHistory))
	for _, h := range c.HandoffHistory {
		handoffs = append(handoffs, h.ToMap())
	}
	meta := c.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"query":           c.Query,
		"state":           string(c.State),
		"clarifications":  clarifications,
		"findings":        findings,
		"research_trails": trails,
		"budget_used":     c.BudgetUsed.ToMap(),
		"quality_scores":  scores,
		"handoff_history": handoffs,
		"metadata":        meta,
		"created_at":      c.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      c.UpdatedAt.Format(time.RFC3339Nano),
	}
}

// ContextFromMap reconstructs a Context from its map form.
func ContextFromMap(m map[string]any) *Context {
	c := &Context{
		Query:     mapString(m, "query"),
		State:     State(mapString(m, "state")),
		CreatedAt: mapTime(m, "created_at"),
		UpdatedAt: mapTime(m, "updated_at"),
		Metadata:  map[string]any{},
	}
	for _, raw := range mapSlice(m, "clarifications") {
		if cm, ok := raw.(map[string]any); ok {
			c.Clarifications = append(c.Clarifications, Clarification{
				Question: mapString(cm, "question"),
				Answer:   mapString(cm, "answer"),
			})
		}
	}
	for _, raw := range mapSlice(m, "findings") {
		if fm, ok := raw.(map[string]any); ok {
			c.Findings = append(c.Findings, FindingFromMap(fm))
		}
	}
	for _, raw := range mapSlice(m, "research_trails") {
		if tm, ok := raw.(map[string]any); ok {
			c.Trails = append(c.Trails, TrailFromMap(tm))
		}
	}
	if um, ok := m["budget_used"].(map[string]any); ok {
		c.BudgetUsed = budget.UsageFromMap(um)
	}
	for _, raw := range mapSlice(m, "quality_scores") {
		if qm, ok := raw.(map[string]any); ok {
			c.QualityScores = append(c.QualityScores, QualityScoreFromMap(qm))
		}
	}
	for _, raw := range mapSlice(m, "handoff_history") {
		if hm, ok := raw.(map[string]any); ok {
			c.HandoffHistory = append(c.HandoffHistory, HandoffRecordFromMap(hm))
		}
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		c.Metadata = meta
	}
	return c
}

// ToJSON serializes the context to indented JSON.
func (c *Context) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c.ToMap(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ContextFromJSON reconstructs a Context from its JSON form.
func ContextFromJSON(data string) (*Context, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return ContextFromMap(m), nil
}
