package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAfford(t *testing.T) {
	b := New(1000, 10.0, 5, 2)

	t.Run("within all caps", func(t *testing.T) {
		assert.True(t, b.CanAfford(NewOperation("search", 500)))
	})

	t.Run("tokens over cap", func(t *testing.T) {
		assert.False(t, b.CanAfford(NewOperation("search", 1001)))
	})

	t.Run("exactly at cap is affordable", func(t *testing.T) {
		assert.True(t, b.CanAfford(NewOperation("search", 1000)))
	})

	t.Run("calls over cap", func(t *testing.T) {
		op := Operation{Name: "batch", EstimatedTokens: 10, EstimatedCalls: 6}
		assert.False(t, b.CanAfford(op))
	})

	t.Run("time over cap", func(t *testing.T) {
		op := Operation{Name: "slow", EstimatedTokens: 10, EstimatedCalls: 1, EstimatedSeconds: 11.0}
		assert.False(t, b.CanAfford(op))
	})
}

func TestConsumeAndExhaustion(t *testing.T) {
	b := New(1000, 60.0, 10, 2)

	op := NewOperation("search", 1000)
	require.True(t, b.CanAfford(op))
	b.Consume(op)

	assert.True(t, b.IsExhausted())
	assert.Equal(t, 0, b.Remaining().TokensUsed)
	assert.Equal(t, 9, b.Remaining().APICalls)
}

func TestAffordThenConsumeNotExhausted(t *testing.T) {
	b := New(1000, 60.0, 10, 2)

	op := NewOperation("search", 400)
	require.True(t, b.CanAfford(op))
	b.Consume(op)
	assert.False(t, b.IsExhausted())
}

func TestAllocateForTrail(t *testing.T) {
	b := New(1000, 100.0, 50, 3)
	b.Consume(NewOperation("setup", 100))

	child := b.AllocateForTrail(0.2)

	// 900 tokens remaining, 20% of that.
	assert.Equal(t, 180, child.MaxTokens)
	assert.Equal(t, 2, child.MaxTrailDepth)
	assert.Equal(t, 0, child.TrailDepth)
	assert.Equal(t, Usage{}, child.CurrentUsage)

	t.Run("child caps never exceed parent remaining", func(t *testing.T) {
		for _, pct := range []float64{0.1, 0.5, 1.0} {
			c := b.AllocateForTrail(pct)
			remaining := b.Remaining()
			assert.LessOrEqual(t, c.MaxTokens, remaining.TokensUsed)
			assert.LessOrEqual(t, c.MaxAPICalls, remaining.APICalls)
			assert.LessOrEqual(t, c.MaxTimeSeconds, remaining.TimeSeconds)
		}
	})

	t.Run("child mutation does not touch parent", func(t *testing.T) {
		before := b.CurrentUsage
		child.Consume(NewOperation("trail_search", 50))
		assert.Equal(t, before, b.CurrentUsage)
	})

	t.Run("depth cap floors at one", func(t *testing.T) {
		deep := New(1000, 100.0, 50, 1)
		deep.TrailDepth = 1
		assert.Equal(t, 1, deep.AllocateForTrail(0.5).MaxTrailDepth)
	})
}

func TestTrailDepth(t *testing.T) {
	b := New(1000, 100.0, 50, 2)

	assert.True(t, b.CanAffordTrail())
	b.IncrementTrailDepth()
	b.IncrementTrailDepth()
	assert.False(t, b.CanAffordTrail())

	b.DecrementTrailDepth()
	b.DecrementTrailDepth()
	b.DecrementTrailDepth()
	b.DecrementTrailDepth()
	assert.Equal(t, 0, b.TrailDepth)
}

func TestUtilizationPercent(t *testing.T) {
	b := New(1000, 100.0, 10, 4)
	b.Consume(Operation{Name: "op", EstimatedTokens: 500, EstimatedCalls: 5, EstimatedSeconds: 25.0})
	b.IncrementTrailDepth()

	u := b.UtilizationPercent()
	assert.InDelta(t, 50.0, u.Tokens, 0.001)
	assert.InDelta(t, 50.0, u.APICalls, 0.001)
	assert.InDelta(t, 25.0, u.Time, 0.001)
	assert.InDelta(t, 25.0, u.TrailDepth, 0.001)

	t.Run("zero caps yield zero percent", func(t *testing.T) {
		empty := New(0, 0, 0, 0)
		u := empty.UtilizationPercent()
		assert.Zero(t, u.Tokens)
		assert.Zero(t, u.APICalls)
		assert.Zero(t, u.Time)
		assert.Zero(t, u.TrailDepth)
	})
}

func TestIsNearLimit(t *testing.T) {
	b := New(1000, 100.0, 10, 4)
	assert.False(t, b.IsNearLimit(0.9))

	b.Consume(NewOperation("big", 950))
	assert.True(t, b.IsNearLimit(0.9))
	assert.False(t, b.IsNearLimit(0.99))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 10000, Tight().MaxTokens)
	assert.Equal(t, 50000, Default().MaxTokens)
	assert.Equal(t, 200000, Generous().MaxTokens)
	assert.Equal(t, 1, Tight().MaxTrailDepth)
	assert.Equal(t, 5, Generous().MaxTrailDepth)
}

func TestBudgetRoundTrip(t *testing.T) {
	b := New(5000, 120.0, 20, 3)
	b.Consume(NewOperation("planning", 500))
	b.IncrementTrailDepth()

	got := FromMap(b.ToMap())
	assert.Equal(t, b, got)
}

func TestUsageRoundTrip(t *testing.T) {
	u := Usage{TokensUsed: 42, APICalls: 3, TimeSeconds: 1.5}
	assert.Equal(t, u, UsageFromMap(u.ToMap()))

	t.Run("tolerates json float decoding", func(t *testing.T) {
		m := map[string]any{"tokens_used": float64(42), "api_calls": float64(3), "time_seconds": 1.5}
		assert.Equal(t, u, UsageFromMap(m))
	})
}
