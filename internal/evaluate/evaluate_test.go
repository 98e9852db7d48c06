package evaluate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deeptrail/internal/research"
)

func makeFindings(n int, confidence float64) []research.Finding {
	out := make([]research.Finding, n)
	for i := range out {
		out[i] = research.Finding{
			ID:         fmt.Sprintf("f%d", i),
			Content:    "climate change impacts on agriculture",
			Source:     "web",
			Confidence: confidence,
		}
	}
	return out
}

func TestAssessQualityEmpty(t *testing.T) {
	a := NewAssessor(zap.NewNop())
	score := a.AssessQuality("q", nil)
	assert.Zero(t, score.Overall)
	assert.Zero(t, score.Completeness)
}

func TestCompletenessTiers(t *testing.T) {
	a := NewAssessor(zap.NewNop())
	cases := []struct {
		count int
		want  float64
	}{
		{1, 0.4},
		{2, 0.4},
		{3, 0.6},
		{4, 0.6},
		{5, 0.8},
		{9, 0.8},
		{10, 0.9},
		{25, 0.9},
	}
	for _, tc := range cases {
		score := a.AssessQuality("unrelated query", makeFindings(tc.count, 0.5))
		assert.Equal(t, tc.want, score.Completeness, "count=%d", tc.count)
	}
}

func TestCredibilityIsAverageConfidence(t *testing.T) {
	a := NewAssessor(zap.NewNop())
	findings := []research.Finding{
		{ID: "a", Content: "x", Confidence: 0.4},
		{ID: "b", Content: "y", Confidence: 0.8},
	}
	score := a.AssessQuality("q", findings)
	assert.InDelta(t, 0.6, score.Credibility, 1e-9)
	assert.InDelta(t, 0.6, score.Confidence, 1e-9)
}

func TestRelevanceKeywordOverlap(t *testing.T) {
	a := NewAssessor(zap.NewNop())
	findings := []research.Finding{
		{ID: "a", Content: "climate change is accelerating", Confidence: 0.5},
		{ID: "b", Content: "completely unrelated topic", Confidence: 0.5},
	}
	score := a.AssessQuality("climate change", findings)
	// First finding overlaps both query terms, second overlaps none.
	assert.InDelta(t, 0.5, score.Relevance, 1e-9)
}

func TestOverallWeights(t *testing.T) {
	a := NewAssessor(zap.NewNop())
	findings := makeFindings(5, 1.0)
	score := a.AssessQuality("climate change impacts on agriculture", findings)

	want := score.Completeness*0.3 + score.Credibility*0.25 + score.Relevance*0.3 + score.Confidence*0.15
	assert.InDelta(t, want, score.Overall, 1e-9)
}

func TestDetectGaps(t *testing.T) {
	g := NewGapDetector(zap.NewNop())

	t.Run("all rules fire", func(t *testing.T) {
		score := research.QualityScore{Completeness: 0.4, Credibility: 0.5}
		gaps := g.DetectGaps("fusion power", makeFindings(2, 0.5), score)
		require.Len(t, gaps, 3)
		assert.Equal(t, "Research coverage is incomplete", gaps[0].Description)
		assert.Equal(t, 0.9, gaps[0].Priority)
		assert.Equal(t, "Source credibility is low", gaps[1].Description)
		assert.Equal(t, "Insufficient research depth", gaps[2].Description)
		assert.Contains(t, gaps[2].SuggestedQueries, "Expert perspectives on fusion power")
	})

	t.Run("no gaps for strong research", func(t *testing.T) {
		score := research.QualityScore{Completeness: 0.8, Credibility: 0.9}
		gaps := g.DetectGaps("fusion power", makeFindings(8, 0.9), score)
		assert.Empty(t, gaps)
	})
}

func TestScoreSource(t *testing.T) {
	var s CredibilityScorer
	cases := []struct {
		source string
		want   float64
	}{
		{"https://mit.edu/papers/qc", 0.9},
		{"https://nasa.gov/data", 0.9},
		{"en.wikipedia.org/wiki/Entropy", 0.9},
		{"Nature Journal vol 12", 0.9},
		{"https://example.org/report", 0.7},
		{"BBC News coverage", 0.7},
		{"someone's blog post", 0.5},
		{"forum thread", 0.5},
		{"unknown source", 0.6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.ScoreSource(tc.source), tc.source)
	}
}

func TestScoreFindings(t *testing.T) {
	var s CredibilityScorer
	findings := []research.Finding{
		{ID: "a", Source: "university.edu"},
		{ID: "b", Source: "random blog"},
	}
	scores := s.ScoreFindings(findings)
	assert.Equal(t, 0.9, scores["a"])
	assert.Equal(t, 0.5, scores["b"])
}

func TestSynthesisValidator(t *testing.T) {
	v := NewSynthesisValidator(zap.NewNop())

	assert.Equal(t, 1.0, v.CheckCoherence(makeFindings(1, 0.5)))
	assert.Equal(t, 0.8, v.CheckCoherence(makeFindings(3, 0.5)))

	result := v.Validate(makeFindings(3, 0.5))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Contradictions)
	assert.Equal(t, 0.8, result.CoherenceScore)
}

func TestEngineEvaluateAttachesGaps(t *testing.T) {
	e := NewEngine(zap.NewNop())

	score := e.Evaluate("rare earth mining", makeFindings(2, 0.5))
	assert.NotEmpty(t, score.Gaps)

	strong := make([]research.Finding, 8)
	for i := range strong {
		strong[i] = research.Finding{
			ID:         fmt.Sprintf("s%d", i),
			Content:    "rare earth mining output statistics",
			Source:     "geology journal",
			Confidence: 0.9,
		}
	}
	score = e.Evaluate("rare earth mining", strong)
	assert.Empty(t, score.Gaps)
	assert.Greater(t, score.Overall, 0.7)
}
