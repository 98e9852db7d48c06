package research

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deeptrail/internal/budget"
)

var timeComparer = cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })

func sampleFinding(id string) Finding {
	return Finding{
		ID:         id,
		Content:    "quantum error correction is related to surface codes",
		Source:     "search:quantum computing",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Confidence: 0.8,
		Metadata:   map[string]any{"trail_query": "surface codes"},
	}
}

func TestContextMutatorsBumpUpdatedAt(t *testing.T) {
	c := NewContext("quantum computing")
	before := c.UpdatedAt

	time.Sleep(time.Millisecond)
	c.AddFinding(sampleFinding("f1"))
	assert.True(t, c.UpdatedAt.After(before))

	before = c.UpdatedAt
	time.Sleep(time.Millisecond)
	c.SetState(StatePlanning)
	assert.True(t, c.UpdatedAt.After(before))
	assert.Equal(t, StatePlanning, c.State)
}

func TestContextValidate(t *testing.T) {
	c := NewContext("quantum computing")
	require.NoError(t, c.Validate())

	c.Query = ""
	assert.Error(t, c.Validate())

	c.Query = "quantum computing"
	c.State = State("daydreaming")
	assert.Error(t, c.Validate())
}

func TestAddClarificationReplacesAnswer(t *testing.T) {
	c := NewContext("quantum computing")
	c.AddClarification("What depth?", "overview")
	c.AddClarification("What purpose?", "teaching")
	c.AddClarification("What depth?", "detailed")

	require.Len(t, c.Clarifications, 2)
	assert.Equal(t, "What depth?", c.Clarifications[0].Question)
	assert.Equal(t, "detailed", c.Clarifications[0].Answer)
}

func TestContextRoundTrip(t *testing.T) {
	c := NewContext("quantum computing")
	c.SetState(StateEvaluating)
	c.AddClarification("What depth?", "detailed")
	c.AddFinding(sampleFinding("f1"))
	c.AddQualityScore(QualityScore{
		Completeness: 0.8,
		Credibility:  0.7,
		Relevance:    0.9,
		Confidence:   0.75,
		Overall:      0.8,
		Gaps: []Gap{{
			Description:      "Insufficient research depth",
			Priority:         0.8,
			SuggestedQueries: []string{"Detailed analysis of quantum computing"},
		}},
	})
	c.AddHandoff(HandoffRecord{
		FromAgent:      "coordinator",
		ToAgent:        "search",
		Reason:         "execute search",
		Timestamp:      time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
		ContextSummary: "search the web",
	})
	c.AddUsage(budget.Usage{TokensUsed: 2500, APICalls: 2, TimeSeconds: 3.5})
	c.AddTrail(&Trail{
		ID:             "t1",
		Query:          "surface codes",
		RelevanceScore: 0.7,
		Budget:         budget.New(1000, 30.0, 5, 1),
		Status:         TrailCompleted,
		Findings:       []Finding{sampleFinding("f2")},
	})

	got := ContextFromMap(c.ToMap())
	if diff := cmp.Diff(c, got, timeComparer); diff != "" {
		t.Errorf("context round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestContextJSONRoundTrip(t *testing.T) {
	c := NewContext("quantum computing")
	c.AddFinding(sampleFinding("f1"))
	c.SetMetadata("failure_reason", "none")

	data, err := c.ToJSON()
	require.NoError(t, err)

	got, err := ContextFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, c.Query, got.Query)
	assert.Equal(t, c.State, got.State)
	require.Len(t, got.Findings, 1)
	assert.Equal(t, c.Findings[0].Content, got.Findings[0].Content)
	assert.True(t, c.Findings[0].Timestamp.Equal(got.Findings[0].Timestamp))
	assert.Equal(t, "none", got.Metadata["failure_reason"])
}

func TestTrailRoundTrip(t *testing.T) {
	b := budget.New(1500, 45.0, 8, 2)
	b.Consume(budget.NewOperation("trail_search", 200))
	trail := &Trail{
		ID:              "t1",
		OriginFindingID: "f1",
		Query:           "surface codes",
		RelevanceScore:  0.66,
		Budget:          b,
		Status:          TrailActive,
		Breadcrumbs:     []string{"surface codes"},
		Findings:        []Finding{sampleFinding("f2")},
	}

	got := TrailFromMap(trail.ToMap())
	if diff := cmp.Diff(trail, got, timeComparer); diff != "" {
		t.Errorf("trail round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFindingRoundTripKeepsNilMetadata(t *testing.T) {
	f := Finding{
		ID:         "f1",
		Content:    "no metadata attached",
		Source:     "search:q",
		Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Confidence: 0.8,
	}

	got := FindingFromMap(f.ToMap())
	assert.Nil(t, got.Metadata)
	if diff := cmp.Diff(f, got, timeComparer); diff != "" {
		t.Errorf("finding round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestQualityScoreRoundTrip(t *testing.T) {
	q := QualityScore{
		Completeness: 0.6,
		Credibility:  0.55,
		Relevance:    0.7,
		Confidence:   0.65,
		Overall:      0.62,
		Gaps:         []Gap{{Description: "Source credibility is low", Priority: 0.7}},
	}
	assert.Equal(t, q, QualityScoreFromMap(q.ToMap()))
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateSearching.Terminal())
	assert.True(t, StateTrailFollowing.Valid())
	assert.False(t, State("refactoring").Valid())
}
