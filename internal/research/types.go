// Package research defines the data entities shared across the research
// pipeline: workflow states, findings, quality scores, trails, handoff
// records, and the top-level mutable research context.
//
// Every entity supports a structured round-trip through a plain
// map[string]any form, used for checkpointing and debugging.
package research

import (
	"time"
)

// State identifies a phase of the research workflow.
type State string

const (
	StateInitializing   State = "initializing"
	StateClarifying     State = "clarifying"
	StatePlanning       State = "planning"
	StateSearching      State = "searching"
	StateEvaluating     State = "evaluating"
	StateTrailFollowing State = "trail_following"
	StateSynthesizing   State = "synthesizing"
	StateCompleted      State = "completed"
	StateFailed         State = "failed"
)

// Valid reports whether s is a recognized workflow state.
func (s State) Valid() bool {
	switch s {
	case StateInitializing, StateClarifying, StatePlanning, StateSearching,
		StateEvaluating, StateTrailFollowing, StateSynthesizing,
		StateCompleted, StateFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends the workflow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// TrailStatus tracks a trail's lifecycle.
type TrailStatus string

const (
	TrailPending   TrailStatus = "pending"
	TrailActive    TrailStatus = "active"
	TrailCompleted TrailStatus = "completed"
	TrailAbandoned TrailStatus = "abandoned"
)

// Capability tags what kind of task an executor can perform, used for
// routing handoffs.
type Capability string

const (
	CapabilityPlanning      Capability = "planning"
	CapabilitySearching     Capability = "searching"
	CapabilityWriting       Capability = "writing"
	CapabilityEvaluation    Capability = "evaluation"
	CapabilityClarification Capability = "clarification"
	CapabilityEmail         Capability = "email"
)

// Finding is a single piece of collected research. Immutable once
// created; a finding discovered by a trail is copied, not moved, into
// the parent context.
type Finding struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToMap serializes to a plain map.
func (f Finding) ToMap() map[string]any {
	return map[string]any{
		"id":         f.ID,
		"content":    f.Content,
		"source":     f.Source,
		"timestamp":  f.Timestamp.Format(time.RFC3339Nano),
		"confidence": f.Confidence,
		"metadata":   f.Metadata,
	}
}

// FindingFromMap reconstructs a Finding from its map form.
func FindingFromMap(m map[string]any) Finding {
	f := Finding{
		ID:         mapString(m, "id"),
		Content:    mapString(m, "content"),
		Source:     mapString(m, "source"),
		Timestamp:  mapTime(m, "timestamp"),
		Confidence: mapFloat(m, "confidence"),
	}
	if meta, ok := m["metadata"].(map[string]any); ok {
		f.Metadata = meta
	}
	return f
}

// Gap describes a hole in research coverage with suggested follow-up
// queries.
type Gap struct {
	Description      string   `json:"description"`
	Priority         float64  `json:"priority"`
	SuggestedQueries []string `json:"suggested_queries,omitempty"`
}

// ToMap serializes to a plain map.
func (g Gap) ToMap() map[string]any {
	return map[string]any{
		"description":       g.Description,
		"priority":          g.Priority,
		"suggested_queries": copyStrings(g.SuggestedQueries),
	}
}

// GapFromMap reconstructs a Gap from its map form.
func GapFromMap(m map[string]any) Gap {
	return Gap{
		Description:      mapString(m, "description"),
		Priority:         mapFloat(m, "priority"),
		SuggestedQueries: mapStrings(m, "suggested_queries"),
	}
}

// QualityScore aggregates quality assessment dimensions plus the gaps
// identified alongside them.
type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Credibility  float64 `json:"credibility"`
	Relevance    float64 `json:"relevance"`
	Confidence   float64 `json:"confidence"`
	Overall      float64 `json:"overall"`
	Gaps         []Gap   `json:"gaps_identified,omitempty"`
}

// ToMap serializes to a plain map.
func (q QualityScore) ToMap() map[string]any {
	gaps := make([]map[string]any, 0, len(q.Gaps))
	for _, g := range q.Gaps {
		gaps = append(gaps, g.ToMap())
	}
	return map[string]any{
		"completeness":    q.Completeness,
		"credibility":     q.Credibility,
		"relevance":       q.Relevance,
		"confidence":      q.Confidence,
		"overall":         q.Overall,
		"gaps_identified": gaps,
	}
}

// QualityScoreFromMap reconstructs a QualityScore from its map form.
func QualityScoreFromMap(m map[string]any) QualityScore {
	q := QualityScore{
		Completeness: mapFloat(m, "completeness"),
		Credibility:  mapFloat(m, "credibility"),
		Relevance:    mapFloat(m, "relevance"),
		Confidence:   mapFloat(m, "confidence"),
		Overall:      mapFloat(m, "overall"),
	}
	for _, raw := range mapSlice(m, "gaps_identified") {
		if gm, ok := raw.(map[string]any); ok {
			q.Gaps = append(q.Gaps, GapFromMap(gm))
		}
	}
	return q
}

// HandoffRecord is an append-only audit entry for one delegation
// between agents. Never mutated after creation.
type HandoffRecord struct {
	FromAgent      string    `json:"from_agent"`
	ToAgent        string    `json:"to_agent"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
	ContextSummary string    `json:"context_summary"`
}

// ToMap serializes to a plain map.
func (h HandoffRecord) ToMap() map[string]any {
	return map[string]any{
		"from_agent":      h.FromAgent,
		"to_agent":        h.ToAgent,
		"reason":          h.Reason,
		"timestamp":       h.Timestamp.Format(time.RFC3339Nano),
		"context_summary": h.ContextSummary,
	}
}

// HandoffRecordFromMap reconstructs a HandoffRecord from its map form.
func HandoffRecordFromMap(m map[string]any) HandoffRecord {
	return HandoffRecord{
		FromAgent:      mapString(m, "from_agent"),
		ToAgent:        mapString(m, "to_agent"),
		Reason:         mapString(m, "reason"),
		Timestamp:      mapTime(m, "timestamp"),
		ContextSummary: mapString(m, "context_summary"),
	}
}

func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func mapTime(m map[string]any, key string) time.Time {
	s, ok := m[key].(string)
	if !ok {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func mapSlice(m map[string]any, key string) []any {
	switch v := m[key].(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	}
	return nil
}

func mapStrings(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return copyStrings(v)
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// copyStrings preserves nilness so a serialize/reconstruct cycle yields
// an equal value, not an empty-but-non-nil slice.
func copyStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return append([]string(nil), s...)
}
