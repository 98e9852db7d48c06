// Package trail implements autonomous research tangent exploration:
// discovering candidate trails from findings, managing their lifecycle
// with loop prevention, and executing them within delegated budgets.
package trail

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

// tangentIndicators are the cross-reference phrases that mark a
// finding as pointing at a tangent worth its own trail.
var tangentIndicators = []string{
	"related to", "connected to", "similar to", "also known as",
	"see also", "further reading", "more information",
	"additionally", "furthermore", "moreover",
}

// Suggestion is a candidate trail produced by discovery, before the
// manager turns it into a live Trail.
type Suggestion struct {
	Query          string
	RelevanceScore float64
	Reason         string
}

// Discovery scans findings for tangent indicators and synthesizes
// prioritized trail suggestions. The dedup set spans the lifetime of
// the instance, so one tangent is suggested at most once per run.
type Discovery struct {
	minRelevance float64
	discovered   map[string]bool
	logger       *zap.Logger
}

// NewDiscovery creates a discovery engine with the given relevance
// floor.
func NewDiscovery(minRelevance float64, logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{
		minRelevance: minRelevance,
		discovered:   make(map[string]bool),
		logger:       logger,
	}
}

// DiscoverTrails extracts candidate trails from the findings, drops
// ones already suggested or below the relevance floor, and returns the
// top maxTrails by relevance. Every survivor of the filters is marked
// discovered, including ones trimmed by the count cap, so a tangent
// squeezed out this cycle is not re-suggested every cycle after.
func (d *Discovery) DiscoverTrails(query string, findings []research.Finding, maxTrails int) []Suggestion {
	if len(findings) == 0 {
		d.logger.Info("no findings to discover trails from")
		return nil
	}

	var candidates []Suggestion
	for _, f := range findings {
		candidates = append(candidates, d.extractFromFinding(f)...)
	}

	var survivors []Suggestion
	for _, c := range candidates {
		if d.discovered[strings.ToLower(c.Query)] {
			continue
		}
		if c.RelevanceScore < d.minRelevance {
			continue
		}
		survivors = append(survivors, c)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].RelevanceScore > survivors[j].RelevanceScore
	})

	for _, s := range survivors {
		d.discovered[strings.ToLower(s.Query)] = true
	}

	if len(survivors) > maxTrails {
		survivors = survivors[:maxTrails]
	}

	d.logger.Info("discovered research trails", zap.Int("count", len(survivors)))
	return survivors
}

func (d *Discovery) extractFromFinding(f research.Finding) []Suggestion {
	var out []Suggestion

	for _, indicator := range tangentIndicators {
		// The offset must come from the string being sliced; lowering
		// a copy first can change byte offsets for non-ASCII content.
		idx := indexASCIIFold(f.Content, indicator)
		if idx < 0 {
			continue
		}
		start := idx - 50
		if start < 0 {
			start = 0
		}
		end := idx + 100
		if end > len(f.Content) {
			end = len(f.Content)
		}
		excerpt := f.Content[runeStart(f.Content, start):runeStart(f.Content, end)]
		if len(excerpt) > 50 {
			excerpt = excerpt[:runeStart(excerpt, 50)]
		}
		out = append(out, Suggestion{
			Query:          "More about: " + excerpt + "...",
			RelevanceScore: 0.7,
			Reason:         fmt.Sprintf("Found related concept in finding from %s", f.Source),
		})
	}
	return out
}

// indexASCIIFold returns the byte offset of substr in s, comparing
// ASCII letters case-insensitively. The indicator phrases are ASCII,
// so the offset stays valid for slicing s itself.
func indexASCIIFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if asciiFoldEqual(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}

func asciiFoldEqual(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// runeStart backs i down to the nearest rune boundary in s.
func runeStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// ScoreRelevance measures lexical overlap between a candidate query
// and the original research query, normalized by the original's term
// count, with a 0.2 boost when the candidate's terms show up in more
// than one finding.
func (d *Discovery) ScoreRelevance(trailQuery, originalQuery string, findings []research.Finding) float64 {
	trailTerms := termSet(trailQuery)
	queryTerms := termSet(originalQuery)

	overlap := 0
	for term := range trailTerms {
		if queryTerms[term] {
			overlap++
		}
	}
	denom := len(queryTerms)
	if denom < 1 {
		denom = 1
	}
	relevance := float64(overlap) / float64(denom)
	if relevance > 1.0 {
		relevance = 1.0
	}

	mentions := 0
	for _, f := range findings {
		contentLower := strings.ToLower(f.Content)
		for term := range trailTerms {
			if strings.Contains(contentLower, term) {
				mentions++
				break
			}
		}
	}
	if mentions > 1 {
		relevance += 0.2
		if relevance > 1.0 {
			relevance = 1.0
		}
	}
	return relevance
}

// DetectNovelty returns 1 minus the candidate's maximum lexical
// overlap with any existing finding, so a candidate that restates a
// finding scores near zero.
func (d *Discovery) DetectNovelty(trailQuery string, findings []research.Finding) float64 {
	trailTerms := termSet(trailQuery)
	denom := len(trailTerms)
	if denom < 1 {
		denom = 1
	}

	maxOverlap := 0.0
	for _, f := range findings {
		findingTerms := termSet(f.Content)
		shared := 0
		for term := range trailTerms {
			if findingTerms[term] {
				shared++
			}
		}
		overlap := float64(shared) / float64(denom)
		if overlap > maxOverlap {
			maxOverlap = overlap
		}
	}
	return 1.0 - maxOverlap
}

// Prioritize rescores each suggestion as 0.6 relevance + 0.4 novelty,
// overwriting its stored score, and returns the suggestions sorted
// descending by the new score.
func (d *Discovery) Prioritize(suggestions []Suggestion, originalQuery string, findings []research.Finding) []Suggestion {
	for i := range suggestions {
		relevance := d.ScoreRelevance(suggestions[i].Query, originalQuery, findings)
		novelty := d.DetectNovelty(suggestions[i].Query, findings)
		suggestions[i].RelevanceScore = relevance*0.6 + novelty*0.4
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].RelevanceScore > suggestions[j].RelevanceScore
	})
	return suggestions
}

// DiscoveredCount returns how many distinct queries have been marked
// discovered this run.
func (d *Discovery) DiscoveredCount() int {
	return len(d.discovered)
}

// Reset clears the dedup set.
func (d *Discovery) Reset() {
	d.discovered = make(map[string]bool)
	d.logger.Info("reset trail discovery state")
}

func termSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, term := range strings.Fields(strings.ToLower(s)) {
		out[term] = true
	}
	return out
}
