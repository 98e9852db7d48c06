package directory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"deeptrail/internal/research"
)

type stubExecutor struct {
	id           string
	capabilities []research.Capability
	invoke       func(ctx context.Context, input string) (string, error)
}

func (s *stubExecutor) ID() string                            { return s.id }
func (s *stubExecutor) Capabilities() []research.Capability   { return s.capabilities }
func (s *stubExecutor) Description() string                   { return "stub " + s.id }
func (s *stubExecutor) Invoke(ctx context.Context, input string) (string, error) {
	if s.invoke != nil {
		return s.invoke(ctx, input)
	}
	return s.id + ": " + input, nil
}

func newStub(id string, caps ...research.Capability) *stubExecutor {
	return &stubExecutor{id: id, capabilities: caps}
}

func TestRegisterAndGet(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("planner", research.CapabilityPlanning))

	exec, ok := d.Get("planner")
	require.True(t, ok)
	assert.Equal(t, "planner", exec.ID())

	_, ok = d.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, d.Len())
}

func TestUnregister(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("searcher", research.CapabilitySearching))

	require.NoError(t, d.Unregister("searcher"))
	_, ok := d.Get("searcher")
	assert.False(t, ok)
	assert.Empty(t, d.AllFor(research.CapabilitySearching))

	err := d.Unregister("searcher")
	assert.ErrorIs(t, err, ErrExecutorNotFound)
}

func TestBestForTieBreaksOnRegistrationOrder(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("first", research.CapabilitySearching))
	d.Register(newStub("second", research.CapabilitySearching))

	exec, ok := d.BestFor(research.CapabilitySearching)
	require.True(t, ok)
	assert.Equal(t, "first", exec.ID())
}

func TestBestForPrefersHigherSuccessRate(t *testing.T) {
	d := New(zap.NewNop())
	failing := newStub("failing", research.CapabilitySearching)
	failing.invoke = func(context.Context, string) (string, error) {
		return "", errors.New("boom")
	}
	d.Register(failing)
	d.Register(newStub("reliable", research.CapabilitySearching))

	_, err := d.Invoke(context.Background(), "failing", "q", 0)
	require.Error(t, err)

	exec, ok := d.BestFor(research.CapabilitySearching)
	require.True(t, ok)
	assert.Equal(t, "reliable", exec.ID())
}

func TestBestForSkipsUnavailable(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("a", research.CapabilityWriting))
	d.Register(newStub("b", research.CapabilityWriting))

	require.NoError(t, d.SetAvailability("a", false))

	exec, ok := d.BestFor(research.CapabilityWriting)
	require.True(t, ok)
	assert.Equal(t, "b", exec.ID())

	require.NoError(t, d.SetAvailability("b", false))
	_, ok = d.BestFor(research.CapabilityWriting)
	assert.False(t, ok)
}

func TestInvokeTracksCounters(t *testing.T) {
	d := New(zap.NewNop())
	flaky := newStub("flaky", research.CapabilitySearching)
	calls := 0
	flaky.invoke = func(context.Context, string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}
	d.Register(flaky)

	_, err := d.Invoke(context.Background(), "flaky", "q", 0)
	require.Error(t, err)
	out, err := d.Invoke(context.Background(), "flaky", "q", 0)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	health := d.HealthStatus()["flaky"]
	assert.Equal(t, 1, health.CallCount)
	assert.Equal(t, 1, health.FailureCount)
	assert.InDelta(t, 0.5, health.SuccessRate, 1e-9)
}

func TestInvokeUnavailableExecutor(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("writer", research.CapabilityWriting))
	require.NoError(t, d.SetAvailability("writer", false))

	_, err := d.Invoke(context.Background(), "writer", "q", 0)
	assert.ErrorIs(t, err, ErrExecutorUnavailable)

	_, err = d.Invoke(context.Background(), "ghost", "q", 0)
	assert.ErrorIs(t, err, ErrExecutorNotFound)
}

func TestInvokeTimeoutCountsAsFailure(t *testing.T) {
	d := New(zap.NewNop())
	slow := newStub("slow", research.CapabilitySearching)
	slow.invoke = func(ctx context.Context, _ string) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	d.Register(slow)

	_, err := d.Invoke(context.Background(), "slow", "q", 10*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	health := d.HealthStatus()["slow"]
	assert.Equal(t, 1, health.FailureCount)
}

func TestInvokePanicResurfacesInCaller(t *testing.T) {
	d := New(zap.NewNop())
	bomb := newStub("bomb", research.CapabilitySearching)
	bomb.invoke = func(context.Context, string) (string, error) {
		panic("executor bug")
	}
	d.Register(bomb)

	recovered := func() (r any) {
		defer func() { r = recover() }()
		_, _ = d.Invoke(context.Background(), "bomb", "q", 0)
		return nil
	}()
	require.Equal(t, "executor bug", recovered,
		"panic must reach the calling goroutine, not crash the invocation one")

	health := d.HealthStatus()["bomb"]
	assert.Equal(t, 1, health.FailureCount)
	assert.Zero(t, health.CallCount)
}

func TestUnusedExecutorHasPerfectSuccessRate(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("fresh", research.CapabilityPlanning))

	health := d.HealthStatus()["fresh"]
	assert.Equal(t, 1.0, health.SuccessRate)
}

func TestCapabilityCoverage(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("p", research.CapabilityPlanning))
	d.Register(newStub("s1", research.CapabilitySearching))
	d.Register(newStub("s2", research.CapabilitySearching, research.CapabilityWriting))
	require.NoError(t, d.SetAvailability("s1", false))

	coverage := d.CapabilityCoverage()
	assert.Equal(t, 1, coverage[research.CapabilityPlanning])
	assert.Equal(t, 1, coverage[research.CapabilitySearching])
	assert.Equal(t, 1, coverage[research.CapabilityWriting])
}

func TestInvokeCapability(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("searcher", research.CapabilitySearching))

	out, err := d.InvokeCapability(context.Background(), research.CapabilitySearching, "query", 0)
	require.NoError(t, err)
	assert.Equal(t, "searcher: query", out)

	_, err = d.InvokeCapability(context.Background(), research.CapabilityEvaluation, "query", 0)
	assert.ErrorIs(t, err, ErrNoCapableExecutor)
}

func TestHandoffRecordsOnContext(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("writer", research.CapabilityWriting))
	c := NewCoordinator(d, 0, zap.NewNop())

	rc := research.NewContext("quantum computing")
	handoff := &Handoff{
		TaskDescription: "write the report",
		Input:           "findings attached",
		Context:         rc,
	}

	out, err := c.HandoffTo(context.Background(), "orchestrator", "writer", handoff)
	require.NoError(t, err)
	assert.Contains(t, out, "write the report")

	require.Len(t, rc.HandoffHistory, 1)
	record := rc.HandoffHistory[0]
	assert.Equal(t, "orchestrator", record.FromAgent)
	assert.Equal(t, "writer", record.ToAgent)
	assert.Equal(t, "write the report", record.Reason)
}

func TestHandoffRecordedEvenOnFailure(t *testing.T) {
	d := New(zap.NewNop())
	broken := newStub("broken", research.CapabilityWriting)
	broken.invoke = func(context.Context, string) (string, error) {
		return "", errors.New("model error")
	}
	d.Register(broken)
	c := NewCoordinator(d, 0, zap.NewNop())

	rc := research.NewContext("q")
	_, err := c.HandoffTo(context.Background(), "orchestrator", "broken", &Handoff{
		TaskDescription: "draft",
		Context:         rc,
	})
	require.Error(t, err)
	assert.Len(t, rc.HandoffHistory, 1)
}

func TestHandoffToCapability(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("planner", research.CapabilityPlanning))
	c := NewCoordinator(d, 0, zap.NewNop())

	rc := research.NewContext("q")
	_, err := c.HandoffToCapability(context.Background(), "orchestrator", research.CapabilityPlanning, &Handoff{
		TaskDescription: "plan searches",
		Context:         rc,
	})
	require.NoError(t, err)

	_, err = c.HandoffToCapability(context.Background(), "orchestrator", research.CapabilityEmail, &Handoff{
		TaskDescription: "send",
		Context:         rc,
	})
	assert.ErrorIs(t, err, ErrNoCapableExecutor)
}

func TestHandoffWithFallback(t *testing.T) {
	t.Run("falls through to working executor", func(t *testing.T) {
		d := New(zap.NewNop())
		for i := 0; i < 2; i++ {
			broken := newStub(fmt.Sprintf("broken-%d", i), research.CapabilitySearching)
			broken.invoke = func(context.Context, string) (string, error) {
				return "", errors.New("down")
			}
			d.Register(broken)
		}
		d.Register(newStub("working", research.CapabilitySearching))
		c := NewCoordinator(d, 0, zap.NewNop())

		rc := research.NewContext("q")
		out, err := c.HandoffWithFallback(context.Background(), "orchestrator",
			research.CapabilitySearching, &Handoff{TaskDescription: "search", Context: rc}, 2)
		require.NoError(t, err)
		assert.Contains(t, out, "working")
		assert.Len(t, rc.HandoffHistory, 3)
	})

	t.Run("returns last error when all fail", func(t *testing.T) {
		d := New(zap.NewNop())
		first := newStub("first", research.CapabilitySearching)
		first.invoke = func(context.Context, string) (string, error) {
			return "", errors.New("first error")
		}
		second := newStub("second", research.CapabilitySearching)
		lastErr := errors.New("second error")
		second.invoke = func(context.Context, string) (string, error) {
			return "", lastErr
		}
		d.Register(first)
		d.Register(second)
		c := NewCoordinator(d, 0, zap.NewNop())

		_, err := c.HandoffWithFallback(context.Background(), "orchestrator",
			research.CapabilitySearching, &Handoff{TaskDescription: "search"}, 5)
		assert.ErrorIs(t, err, lastErr)
	})

	t.Run("no capable executors", func(t *testing.T) {
		d := New(zap.NewNop())
		c := NewCoordinator(d, 0, zap.NewNop())
		_, err := c.HandoffWithFallback(context.Background(), "orchestrator",
			research.CapabilitySearching, &Handoff{TaskDescription: "search"}, 2)
		assert.ErrorIs(t, err, ErrNoCapableExecutor)
	})
}

func TestHandoffStatistics(t *testing.T) {
	d := New(zap.NewNop())
	d.Register(newStub("planner", research.CapabilityPlanning))
	d.Register(newStub("writer", research.CapabilityWriting))
	c := NewCoordinator(d, 0, zap.NewNop())

	rc := research.NewContext("q")
	_, err := c.HandoffTo(context.Background(), "orchestrator", "planner", &Handoff{TaskDescription: "plan", Context: rc})
	require.NoError(t, err)
	_, err = c.HandoffTo(context.Background(), "orchestrator", "writer", &Handoff{TaskDescription: "write", Context: rc})
	require.NoError(t, err)

	stats := c.Statistics(rc)
	assert.Equal(t, 2, stats.TotalHandoffs)
	assert.Equal(t, []string{"orchestrator", "planner", "writer"}, stats.UniqueAgents)
	assert.Equal(t, []string{"orchestrator -> planner", "orchestrator -> writer"}, stats.Chain)
}

func TestRenderPrompt(t *testing.T) {
	rc := research.NewContext("ocean currents")
	for i := 0; i < 7; i++ {
		rc.AddFinding(research.Finding{ID: fmt.Sprintf("f%d", i), Content: fmt.Sprintf("finding %d", i)})
	}
	h := &Handoff{TaskDescription: "synthesize", Input: "raw notes", Context: rc}

	prompt := h.RenderPrompt()
	assert.Contains(t, prompt, "Task: synthesize")
	assert.Contains(t, prompt, "Research query: ocean currents")
	assert.Contains(t, prompt, "Findings so far (7)")
	assert.Contains(t, prompt, "finding 6")
	assert.NotContains(t, prompt, "finding 1\n")
	assert.Contains(t, prompt, "Input:\nraw notes")
}

func TestRenderJSON(t *testing.T) {
	rc := research.NewContext("q")
	h := &Handoff{TaskDescription: "plan", Input: "in", Context: rc, Metadata: map[string]any{"attempt": 1}}

	out, err := h.RenderJSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"task":"plan"`)
	assert.Contains(t, out, `"query":"q"`)
}
