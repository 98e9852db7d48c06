// Package budget tracks and enforces resource limits for autonomous
// research runs: tokens, API calls, wall-clock time, and trail depth.
//
// A Budget is exclusively owned by one research context or one trail.
// Child budgets produced by AllocateForTrail are independent instances;
// consuming from a child never touches the parent, and the parent's
// depth counter is the caller's responsibility.
package budget

import "fmt"

// Usage tracks resource consumption. Values only ever grow within one
// budget's lifetime.
type Usage struct {
	TokensUsed  int     `json:"tokens_used"`
	APICalls    int     `json:"api_calls"`
	TimeSeconds float64 `json:"time_seconds"`
}

// Add accumulates another Usage into this one.
func (u *Usage) Add(other Usage) {
	u.TokensUsed += other.TokensUsed
	u.APICalls += other.APICalls
	u.TimeSeconds += other.TimeSeconds
}

// ToMap serializes to a plain map.
func (u Usage) ToMap() map[string]any {
	return map[string]any{
		"tokens_used":  u.TokensUsed,
		"api_calls":    u.APICalls,
		"time_seconds": u.TimeSeconds,
	}
}

// UsageFromMap reconstructs a Usage from its map form.
func UsageFromMap(m map[string]any) Usage {
	return Usage{
		TokensUsed:  mapInt(m, "tokens_used"),
		APICalls:    mapInt(m, "api_calls"),
		TimeSeconds: mapFloat(m, "time_seconds"),
	}
}

// Operation describes a resource-consuming step before it happens.
// Estimates feed the affordability pre-check.
type Operation struct {
	Name             string
	EstimatedTokens  int
	EstimatedCalls   int
	EstimatedSeconds float64
}

// NewOperation builds an Operation with the usual single API call.
func NewOperation(name string, tokens int) Operation {
	return Operation{Name: name, EstimatedTokens: tokens, EstimatedCalls: 1}
}

// ToUsage converts the operation's estimates into a Usage delta.
func (o Operation) ToUsage() Usage {
	return Usage{
		TokensUsed:  o.EstimatedTokens,
		APICalls:    o.EstimatedCalls,
		TimeSeconds: o.EstimatedSeconds,
	}
}

// Utilization holds per-dimension budget utilization percentages.
type Utilization struct {
	Tokens     float64
	APICalls   float64
	Time       float64
	TrailDepth float64
}

// Max returns the highest utilization across all dimensions.
func (u Utilization) Max() float64 {
	max := u.Tokens
	for _, v := range []float64{u.APICalls, u.Time, u.TrailDepth} {
		if v > max {
			max = v
		}
	}
	return max
}

// ToMap serializes to a plain map.
func (u Utilization) ToMap() map[string]any {
	return map[string]any{
		"tokens":      u.Tokens,
		"api_calls":   u.APICalls,
		"time":        u.Time,
		"trail_depth": u.TrailDepth,
	}
}

// Budget enforces hard caps on tokens, API calls, time, and trail
// nesting depth. Affordability is a strict pre-check; Consume itself is
// an unconditional ledger update.
type Budget struct {
	MaxTokens      int     `json:"max_tokens"`
	MaxTimeSeconds float64 `json:"max_time_seconds"`
	MaxAPICalls    int     `json:"max_api_calls"`
	MaxTrailDepth  int     `json:"max_trail_depth"`
	CurrentUsage   Usage   `json:"current_usage"`
	TrailDepth     int     `json:"trail_depth"`
}

// New creates a budget with the given caps and zero usage.
func New(maxTokens int, maxTimeSeconds float64, maxAPICalls, maxTrailDepth int) *Budget {
	return &Budget{
		MaxTokens:      maxTokens,
		MaxTimeSeconds: maxTimeSeconds,
		MaxAPICalls:    maxAPICalls,
		MaxTrailDepth:  maxTrailDepth,
	}
}

// Tight returns the constrained preset used for development and tests.
func Tight() *Budget {
	return New(10000, 60.0, 10, 1)
}

// Default returns the standard preset.
func Default() *Budget {
	return New(50000, 300.0, 50, 3)
}

// Generous returns the large preset for long production runs.
func Generous() *Budget {
	return New(200000, 600.0, 200, 5)
}

// CanAfford reports whether the operation fits within every remaining
// cap. All three dimensions must stay in bounds after the hypothetical
// addition.
func (b *Budget) CanAfford(op Operation) bool {
	if b.CurrentUsage.TokensUsed+op.EstimatedTokens > b.MaxTokens {
		return false
	}
	if b.CurrentUsage.APICalls+op.EstimatedCalls > b.MaxAPICalls {
		return false
	}
	if b.CurrentUsage.TimeSeconds+op.EstimatedSeconds > b.MaxTimeSeconds {
		return false
	}
	return true
}

// CanAffordTrail reports whether another trail nesting level is allowed.
func (b *Budget) CanAffordTrail() bool {
	return b.TrailDepth < b.MaxTrailDepth
}

// Consume records the operation's cost. Callers are responsible for
// checking affordability first; this never fails.
func (b *Budget) Consume(op Operation) {
	b.CurrentUsage.Add(op.ToUsage())
}

// ConsumeUsage records an already-measured usage delta.
func (b *Budget) ConsumeUsage(u Usage) {
	b.CurrentUsage.Add(u)
}

// IncrementTrailDepth raises the nesting counter.
func (b *Budget) IncrementTrailDepth() {
	b.TrailDepth++
}

// DecrementTrailDepth lowers the nesting counter. The floor is zero.
func (b *Budget) DecrementTrailDepth() {
	if b.TrailDepth > 0 {
		b.TrailDepth--
	}
}

// Remaining returns per-dimension capacity left, clamped at zero.
func (b *Budget) Remaining() Usage {
	return Usage{
		TokensUsed:  maxInt(0, b.MaxTokens-b.CurrentUsage.TokensUsed),
		APICalls:    maxInt(0, b.MaxAPICalls-b.CurrentUsage.APICalls),
		TimeSeconds: maxFloat(0, b.MaxTimeSeconds-b.CurrentUsage.TimeSeconds),
	}
}

// UtilizationPercent returns each dimension's usage as a percentage of
// its cap. A zero cap yields zero percent.
func (b *Budget) UtilizationPercent() Utilization {
	var u Utilization
	if b.MaxTokens > 0 {
		u.Tokens = float64(b.CurrentUsage.TokensUsed) / float64(b.MaxTokens) * 100
	}
	if b.MaxAPICalls > 0 {
		u.APICalls = float64(b.CurrentUsage.APICalls) / float64(b.MaxAPICalls) * 100
	}
	if b.MaxTimeSeconds > 0 {
		u.Time = b.CurrentUsage.TimeSeconds / b.MaxTimeSeconds * 100
	}
	if b.MaxTrailDepth > 0 {
		u.TrailDepth = float64(b.TrailDepth) / float64(b.MaxTrailDepth) * 100
	}
	return u
}

// IsExhausted reports whether any single dimension has hit its cap.
func (b *Budget) IsExhausted() bool {
	return b.CurrentUsage.TokensUsed >= b.MaxTokens ||
		b.CurrentUsage.APICalls >= b.MaxAPICalls ||
		b.CurrentUsage.TimeSeconds >= b.MaxTimeSeconds
}

// IsNearLimit reports whether any dimension's utilization has reached
// the threshold fraction of its cap (default caller value 0.9).
func (b *Budget) IsNearLimit(threshold float64) bool {
	return b.UtilizationPercent().Max() >= threshold*100
}

// AllocateForTrail carves a new independent budget out of the parent's
// remaining (not total) capacity. The child's depth cap shrinks by one
// per nesting level so recursion always bottoms out.
func (b *Budget) AllocateForTrail(percentage float64) *Budget {
	remaining := b.Remaining()
	return New(
		int(float64(remaining.TokensUsed)*percentage),
		remaining.TimeSeconds*percentage,
		int(float64(remaining.APICalls)*percentage),
		maxInt(1, b.MaxTrailDepth-b.TrailDepth-1),
	)
}

// ToMap serializes to a plain map.
func (b *Budget) ToMap() map[string]any {
	return map[string]any{
		"max_tokens":       b.MaxTokens,
		"max_time_seconds": b.MaxTimeSeconds,
		"max_api_calls":    b.MaxAPICalls,
		"max_trail_depth":  b.MaxTrailDepth,
		"current_usage":    b.CurrentUsage.ToMap(),
		"trail_depth":      b.TrailDepth,
	}
}

// FromMap reconstructs a Budget from its map form.
func FromMap(m map[string]any) *Budget {
	b := New(
		mapInt(m, "max_tokens"),
		mapFloat(m, "max_time_seconds"),
		mapInt(m, "max_api_calls"),
		mapInt(m, "max_trail_depth"),
	)
	if usage, ok := m["current_usage"].(map[string]any); ok {
		b.CurrentUsage = UsageFromMap(usage)
	}
	b.TrailDepth = mapInt(m, "trail_depth")
	return b
}

// String summarizes the budget for logs.
func (b *Budget) String() string {
	u := b.UtilizationPercent()
	return fmt.Sprintf(
		"Budget(tokens: %d/%d (%.1f%%), calls: %d/%d (%.1f%%), time: %.1f/%.0fs (%.1f%%), trail_depth: %d/%d)",
		b.CurrentUsage.TokensUsed, b.MaxTokens, u.Tokens,
		b.CurrentUsage.APICalls, b.MaxAPICalls, u.APICalls,
		b.CurrentUsage.TimeSeconds, b.MaxTimeSeconds, u.Time,
		b.TrailDepth, b.MaxTrailDepth,
	)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func mapInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
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
