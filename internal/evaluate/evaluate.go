// Package evaluate scores research quality, detects coverage gaps,
// and rates source credibility. Everything here is a pure function
// over findings; no agent invocations, no budget consumption.
package evaluate

import (
	"strings"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

// Overall score weights.
const (
	completenessWeight = 0.3
	credibilityWeight  = 0.25
	relevanceWeight    = 0.3
	confidenceWeight   = 0.15
)

// Assessor scores findings across four dimensions and blends them
// into an overall quality score.
type Assessor struct {
	logger *zap.Logger
}

// NewAssessor creates a quality assessor.
func NewAssessor(logger *zap.Logger) *Assessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assessor{logger: logger}
}

// AssessQuality returns scores for completeness, credibility,
// relevance, and confidence, plus the weighted overall. No findings
// means zeros everywhere.
func (a *Assessor) AssessQuality(query string, findings []research.Finding) research.QualityScore {
	if len(findings) == 0 {
		a.logger.Warn("no findings to assess")
		return research.QualityScore{}
	}

	score := research.QualityScore{
		Completeness: a.assessCompleteness(findings),
		Credibility:  a.assessCredibility(findings),
		Relevance:    a.assessRelevance(query, findings),
		Confidence:   a.averageConfidence(findings),
	}
	score.Overall = score.Completeness*completenessWeight +
		score.Credibility*credibilityWeight +
		score.Relevance*relevanceWeight +
		score.Confidence*confidenceWeight

	a.logger.Info("quality assessment",
		zap.Float64("completeness", score.Completeness),
		zap.Float64("credibility", score.Credibility),
		zap.Float64("relevance", score.Relevance),
		zap.Float64("confidence", score.Confidence),
		zap.Float64("overall", score.Overall))
	return score
}

// assessCompleteness maps finding count to a tier, with diminishing
// returns past ten findings.
func (a *Assessor) assessCompleteness(findings []research.Finding) float64 {
	switch n := len(findings); {
	case n == 0:
		return 0.0
	case n < 3:
		return 0.4
	case n < 5:
		return 0.6
	case n < 10:
		return 0.8
	default:
		return 0.9
	}
}

// assessCredibility uses finding confidence as a proxy.
func (a *Assessor) assessCredibility(findings []research.Finding) float64 {
	return a.averageConfidence(findings)
}

// assessRelevance averages per-finding keyword overlap with the query.
func (a *Assessor) assessRelevance(query string, findings []research.Finding) float64 {
	queryTerms := termSet(query)
	denom := len(queryTerms)
	if denom < 1 {
		denom = 1
	}

	total := 0.0
	for _, f := range findings {
		contentTerms := termSet(f.Content)
		overlap := 0
		for term := range queryTerms {
			if contentTerms[term] {
				overlap++
			}
		}
		relevance := float64(overlap) / float64(denom)
		if relevance > 1.0 {
			relevance = 1.0
		}
		total += relevance
	}
	return total / float64(len(findings))
}

func (a *Assessor) averageConfidence(findings []research.Finding) float64 {
	total := 0.0
	for _, f := range findings {
		total += f.Confidence
	}
	return total / float64(len(findings))
}

// GapDetector flags weaknesses in coverage and suggests follow-up
// queries for each.
type GapDetector struct {
	logger *zap.Logger
}

// NewGapDetector creates a gap detector.
func NewGapDetector(logger *zap.Logger) *GapDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GapDetector{logger: logger}
}

// DetectGaps applies three independent checks: completeness below
// 0.7, credibility below 0.6, and fewer than five findings. Each
// firing check contributes one gap with its own priority and
// suggested queries.
func (g *GapDetector) DetectGaps(query string, findings []research.Finding, score research.QualityScore) []research.Gap {
	var gaps []research.Gap

	if score.Completeness < 0.7 {
		gaps = append(gaps, research.Gap{
			Description:      "Research coverage is incomplete",
			Priority:         0.9,
			SuggestedQueries: []string{"More information about " + query},
		})
	}
	if score.Credibility < 0.6 {
		gaps = append(gaps, research.Gap{
			Description:      "Source credibility is low",
			Priority:         0.7,
			SuggestedQueries: []string{"Authoritative sources on " + query},
		})
	}
	if len(findings) < 5 {
		gaps = append(gaps, research.Gap{
			Description: "Insufficient research depth",
			Priority:    0.8,
			SuggestedQueries: []string{
				"Detailed analysis of " + query,
				"Expert perspectives on " + query,
			},
		})
	}

	g.logger.Info("detected research gaps", zap.Int("count", len(gaps)))
	return gaps
}

// CredibilityScorer rates sources by tier.
type CredibilityScorer struct{}

var (
	highCredibility = []string{".edu", ".gov", "wikipedia", "scholar", "research", "journal"}
	medCredibility  = []string{".org", "news", "article"}
	lowCredibility  = []string{"blog", "forum", "social"}
)

// ScoreSource returns 0.9 for academic/government sources, 0.7 for
// organizational and news sources, 0.5 for blogs and social media,
// and 0.6 for anything unrecognized.
func (CredibilityScorer) ScoreSource(source string) float64 {
	sourceLower := strings.ToLower(source)
	for _, indicator := range highCredibility {
		if strings.Contains(sourceLower, indicator) {
			return 0.9
		}
	}
	for _, indicator := range medCredibility {
		if strings.Contains(sourceLower, indicator) {
			return 0.7
		}
	}
	for _, indicator := range lowCredibility {
		if strings.Contains(sourceLower, indicator) {
			return 0.5
		}
	}
	return 0.6
}

// ScoreFindings maps finding id to source credibility.
func (s CredibilityScorer) ScoreFindings(findings []research.Finding) map[string]float64 {
	out := make(map[string]float64, len(findings))
	for _, f := range findings {
		out[f.ID] = s.ScoreSource(f.Source)
	}
	return out
}

// Contradiction pairs two findings that disagree.
type Contradiction struct {
	FirstID     string
	SecondID    string
	Description string
}

// SynthesisResult reports whether a set of findings hangs together
// well enough to synthesize.
type SynthesisResult struct {
	CoherenceScore float64
	Contradictions []Contradiction
	Valid          bool
}

// SynthesisValidator sanity-checks findings before report writing.
type SynthesisValidator struct {
	logger *zap.Logger
}

// NewSynthesisValidator creates a validator.
func NewSynthesisValidator(logger *zap.Logger) *SynthesisValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisValidator{logger: logger}
}

// CheckCoherence returns 1.0 for fewer than two findings; otherwise a
// fixed 0.8. A semantic-similarity pass could replace the constant.
func (v *SynthesisValidator) CheckCoherence(findings []research.Finding) float64 {
	if len(findings) < 2 {
		return 1.0
	}
	return 0.8
}

// DetectContradictions scans finding pairs for conflicts. Lexical
// analysis alone cannot find real contradictions, so this reports
// none; the hook exists for the validation result shape.
func (v *SynthesisValidator) DetectContradictions(findings []research.Finding) []Contradiction {
	v.logger.Debug("checked findings for contradictions", zap.Int("count", len(findings)))
	return nil
}

// Validate combines coherence and contradiction checks.
func (v *SynthesisValidator) Validate(findings []research.Finding) SynthesisResult {
	coherence := v.CheckCoherence(findings)
	contradictions := v.DetectContradictions(findings)
	return SynthesisResult{
		CoherenceScore: coherence,
		Contradictions: contradictions,
		Valid:          coherence > 0.6 && len(contradictions) == 0,
	}
}

// Engine bundles the evaluation components behind one entry point.
type Engine struct {
	Assessor  *Assessor
	Gaps      *GapDetector
	Scorer    CredibilityScorer
	Validator *SynthesisValidator
	logger    *zap.Logger
}

// NewEngine creates a fully wired evaluation engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Assessor:  NewAssessor(logger),
		Gaps:      NewGapDetector(logger),
		Validator: NewSynthesisValidator(logger),
		logger:    logger,
	}
}

// Evaluate assesses quality and attaches detected gaps to the score.
func (e *Engine) Evaluate(query string, findings []research.Finding) research.QualityScore {
	e.logger.Info("evaluating findings",
		zap.Int("findings", len(findings)),
		zap.String("query", query))

	score := e.Assessor.AssessQuality(query, findings)
	score.Gaps = e.Gaps.DetectGaps(query, findings, score)

	credibility := e.Scorer.ScoreFindings(findings)
	e.logger.Debug("credibility scores", zap.Any("scores", credibility))
	return score
}

func termSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, term := range strings.Fields(strings.ToLower(s)) {
		out[term] = true
	}
	return out
}
