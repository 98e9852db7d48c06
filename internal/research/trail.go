package research

import (
	"deeptrail/internal/budget"
)

// Trail is an autonomously spawned sub-investigation exploring a
// tangent discovered in prior findings, with its own delegated
// sub-budget. Lifecycle transitions are driven by the trail manager:
// PENDING on creation, ACTIVE on start, then COMPLETED or ABANDONED.
type Trail struct {
	ID              string         `json:"id"`
	OriginFindingID string         `json:"origin_finding_id,omitempty"`
	Query           string         `json:"trail_query"`
	RelevanceScore  float64        `json:"relevance_score"`
	Budget          *budget.Budget `json:"budget_allocated"`
	Findings        []Finding      `json:"findings,omitempty"`
	Status          TrailStatus    `json:"status"`
	Breadcrumbs     []string       `json:"breadcrumbs,omitempty"`
}

// ToMap serializes to a plain map.
func (t *Trail) ToMap() map[string]any {
	findings := make([]map[string]any, 0, len(t.Findings))
	for _, f := range t.Findings {
		findings = append(findings, f.ToMap())
	}
	var budgetMap map[string]any
	if t.Budget != nil {
		budgetMap = t.Budget.ToMap()
	}
	return map[string]any{
		"id":                t.ID,
		"origin_finding_id": t.OriginFindingID,
		"trail_query":       t.Query,
		"relevance_score":   t.RelevanceScore,
		"budget_allocated":  budgetMap,
		"findings":          findings,
		"status":            string(t.Status),
		"breadcrumbs":       copyStrings(t.Breadcrumbs),
	}
}

// TrailFromMap reconstructs a Trail from its map form.
func TrailFromMap(m map[string]any) *Trail {
	t := &Trail{
		ID:              mapString(m, "id"),
		OriginFindingID: mapString(m, "origin_finding_id"),
		Query:           mapString(m, "trail_query"),
		RelevanceScore:  mapFloat(m, "relevance_score"),
		Status:          TrailStatus(mapString(m, "status")),
		Breadcrumbs:     mapStrings(m, "breadcrumbs"),
	}
	if bm, ok := m["budget_allocated"].(map[string]any); ok {
		t.Budget = budget.FromMap(bm)
	}
	for _, raw := range mapSlice(m, "findings") {
		if fm, ok := raw.(map[string]any); ok {
			t.Findings = append(t.Findings, FindingFromMap(fm))
		}
	}
	return t
}
