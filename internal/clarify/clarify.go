// Package clarify decides whether a research query needs clarifying
// questions before planning starts, generates those questions, and
// folds user answers back into an enhanced query.
package clarify

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

// Question is a clarifying question with a priority and the aspect of
// the query it probes.
type Question struct {
	Text     string
	Priority float64
	Context  string
}

func (q Question) String() string { return q.Text }

var (
	vagueTerms = []string{"something", "anything", "stuff", "things", "general", "overview"}
	broadTerms = []string{"everything", "all about", "comprehensive", "complete"}
	timeTerms  = []string{"history", "development", "evolution", "trend"}
)

// AmbiguityDetector scores queries on how much clarification they
// need before research should proceed.
type AmbiguityDetector struct {
	threshold float64
}

// NewAmbiguityDetector creates a detector with the given threshold.
func NewAmbiguityDetector(threshold float64) *AmbiguityDetector {
	return &AmbiguityDetector{threshold: threshold}
}

// DetectAmbiguity returns a score from 0 (clear) to 1 (very
// ambiguous). Heuristics stack: short queries, vague terms, terse
// questions, and broad-topic phrasing each add weight.
func (d *AmbiguityDetector) DetectAmbiguity(query string) float64 {
	score := 0.0
	queryLower := strings.ToLower(query)
	words := strings.Fields(query)

	if len(words) <= 4 {
		score += 0.3
	}
	for _, term := range vagueTerms {
		if strings.Contains(queryLower, term) {
			score += 0.4
			break
		}
	}
	if strings.Contains(query, "?") && len(words) < 5 {
		score += 0.2
	}
	for _, term := range broadTerms {
		if strings.Contains(queryLower, term) {
			score += 0.2
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// IsAmbiguous reports whether the score meets the threshold.
func (d *AmbiguityDetector) IsAmbiguous(query string) bool {
	return d.DetectAmbiguity(query) >= d.threshold
}

// QuestionGenerator produces clarifying questions for ambiguous
// queries.
type QuestionGenerator struct {
	maxQuestions int
	logger       *zap.Logger
}

// NewQuestionGenerator creates a generator capped at maxQuestions per
// call.
func NewQuestionGenerator(maxQuestions int, logger *zap.Logger) *QuestionGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionGenerator{maxQuestions: maxQuestions, logger: logger}
}

// GenerateQuestions builds clarifying questions for the query. A
// score under 0.3 means the query is clear enough and no questions
// come back. Generated questions all carry the ambiguity score as
// priority.
func (g *QuestionGenerator) GenerateQuestions(query string, ambiguityScore float64) []Question {
	if ambiguityScore < 0.3 {
		g.logger.Info("query is clear, no clarification needed")
		return nil
	}

	questions := g.basicQuestions(query)
	for i := range questions {
		questions[i].Priority = ambiguityScore
	}
	if len(questions) > g.maxQuestions {
		questions = questions[:g.maxQuestions]
	}

	g.logger.Info("generated clarifying questions", zap.Int("count", len(questions)))
	return questions
}

func (g *QuestionGenerator) basicQuestions(query string) []Question {
	questions := []Question{
		{
			Text:     fmt.Sprintf("What specific aspects of '%s' are you most interested in?", query),
			Priority: 0.8,
			Context:  "scope",
		},
		{
			Text:     "Are you looking for a high-level overview or detailed technical information?",
			Priority: 0.7,
			Context:  "depth",
		},
		{
			Text:     "What will you use this research for?",
			Priority: 0.6,
			Context:  "purpose",
		},
	}

	queryLower := strings.ToLower(query)
	for _, term := range timeTerms {
		if strings.Contains(queryLower, term) {
			questions = append(questions, Question{
				Text:     "What time period are you interested in?",
				Priority: 0.7,
				Context:  "timeframe",
			})
			break
		}
	}
	return questions
}

// GenerateFollowups suggests follow-up questions once findings exist.
func (g *QuestionGenerator) GenerateFollowups(query string, findings []research.Finding) []Question {
	if len(findings) == 0 {
		return nil
	}

	var questions []Question
	if len(findings) > 5 {
		questions = append(questions, Question{
			Text:     "Would you like to explore any specific findings in more depth?",
			Priority: 0.6,
			Context:  "followup",
		})
	}

	g.logger.Info("generated follow-up questions", zap.Int("count", len(questions)))
	return questions
}

// ResponseProcessor folds user answers into an enhanced query.
type ResponseProcessor struct {
	logger *zap.Logger
}

// NewResponseProcessor creates a processor.
func NewResponseProcessor(logger *zap.Logger) *ResponseProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseProcessor{logger: logger}
}

// ProcessResponse pairs a question with its answer.
func (p *ResponseProcessor) ProcessResponse(q Question, answer string) research.Clarification {
	return research.Clarification{Question: q.Text, Answer: answer}
}

// IntegrateClarifications rewrites the query with answered
// clarifications appended, preserving answer order. An empty set
// returns the query unchanged.
func (p *ResponseProcessor) IntegrateClarifications(query string, clarifications []research.Clarification) string {
	if len(clarifications) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString("Original query: " + query)
	for _, c := range clarifications {
		b.WriteString(fmt.Sprintf("\n- %s: %s", c.Question, c.Answer))
	}

	p.logger.Info("integrated clarifications into enhanced query")
	return b.String()
}

// Engine coordinates ambiguity detection, question generation, and
// response processing.
type Engine struct {
	detector       *AmbiguityDetector
	generator      *QuestionGenerator
	processor      *ResponseProcessor
	enableFollowup bool
}

// NewEngine builds a clarification engine.
func NewEngine(maxQuestions int, ambiguityThreshold float64, enableFollowup bool, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		detector:       NewAmbiguityDetector(ambiguityThreshold),
		generator:      NewQuestionGenerator(maxQuestions, logger),
		processor:      NewResponseProcessor(logger),
		enableFollowup: enableFollowup,
	}
}

// AnalyzeQuery scores the query and, if it crosses the threshold,
// returns clarifying questions alongside the score.
func (e *Engine) AnalyzeQuery(query string) (float64, []Question) {
	score := e.detector.DetectAmbiguity(query)
	var questions []Question
	if e.detector.IsAmbiguous(query) {
		questions = e.generator.GenerateQuestions(query, score)
	}
	return score, questions
}

// GenerateFollowups proxies to the generator when follow-ups are
// enabled.
func (e *Engine) GenerateFollowups(query string, findings []research.Finding) []Question {
	if !e.enableFollowup {
		return nil
	}
	return e.generator.GenerateFollowups(query, findings)
}

// ProcessClarifications builds the enhanced query from answers.
func (e *Engine) ProcessClarifications(query string, clarifications []research.Clarification) string {
	return e.processor.IntegrateClarifications(query, clarifications)
}

// NeedsClarification reports whether the query is ambiguous enough to
// gate on user input.
func (e *Engine) NeedsClarification(query string) bool {
	return e.detector.IsAmbiguous(query)
}
