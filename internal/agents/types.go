package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SearchItem is one planned web search.
type SearchItem struct {
	Reason   string  `json:"reason"`
	Query    string  `json:"query"`
	Priority float64 `json:"priority"`
}

// TrailSuggestion is a planner-proposed research tangent.
type TrailSuggestion struct {
	TrailQuery     string  `json:"trail_query"`
	RelevanceScore float64 `json:"relevance_score"`
	Reason         string  `json:"reason"`
}

// SearchPlan is the planner's structured output.
type SearchPlan struct {
	Searches           []SearchItem      `json:"searches"`
	SuggestedTrails    []TrailSuggestion `json:"suggested_trails,omitempty"`
	EstimatedTokenCost int               `json:"estimated_token_cost,omitempty"`
}

// SearchResult is the enhanced searcher's structured output.
type SearchResult struct {
	Summary           string   `json:"summary"`
	SourceCredibility float64  `json:"source_credibility"`
	Confidence        float64  `json:"confidence"`
	KeySources        []string `json:"key_sources,omitempty"`
}

// ReportData is the writer's structured output.
type ReportData struct {
	ShortSummary      string   `json:"short_summary"`
	MarkdownReport    string   `json:"markdown_report"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// EnhancedReportData extends ReportData with confidence metadata.
type EnhancedReportData struct {
	ShortSummary        string   `json:"short_summary"`
	MarkdownReport      string   `json:"markdown_report"`
	FollowUpQuestions   []string `json:"follow_up_questions,omitempty"`
	ConfidenceLevel     float64  `json:"confidence_level"`
	ContradictionsFound []string `json:"contradictions_found,omitempty"`
	KeySources          []string `json:"key_sources,omitempty"`
}

// ParseSearchPlan decodes a model response into a search plan.
func ParseSearchPlan(raw string) (*SearchPlan, error) {
	var plan SearchPlan
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &plan); err != nil {
		return nil, fmt.Errorf("parse search plan: %w", err)
	}
	if len(plan.Searches) == 0 {
		return nil, fmt.Errorf("search plan has no searches")
	}
	return &plan, nil
}

// ParseSearchResult decodes a model response into a search result.
func ParseSearchResult(raw string) (*SearchResult, error) {
	var result SearchResult
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &result); err != nil {
		return nil, fmt.Errorf("parse search result: %w", err)
	}
	if result.Summary == "" {
		return nil, fmt.Errorf("search result has no summary")
	}
	return &result, nil
}

// ParseReport decodes a model response into report data.
func ParseReport(raw string) (*ReportData, error) {
	var report ReportData
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	if report.MarkdownReport == "" {
		return nil, fmt.Errorf("report has no markdown body")
	}
	return &report, nil
}

// stripCodeFence removes a surrounding markdown code fence, which
// models emit even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
