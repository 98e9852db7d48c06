package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

// Handoff packages a task for transfer to another executor.
type Handoff struct {
	TaskDescription string
	Input           string
	Context         *research.Context
	Metadata        map[string]any
}

// RenderPrompt formats the handoff as a plain-text prompt with the
// research query and recent findings so the receiving executor has the
// working context inline.
func (h *Handoff) RenderPrompt() string {
	var b strings.Builder
	b.WriteString("Task: " + h.TaskDescription + "\n\n")
	if h.Context != nil {
		b.WriteString("Research query: " + h.Context.Query + "\n")
		if n := len(h.Context.Findings); n > 0 {
			b.WriteString(fmt.Sprintf("Findings so far (%d):\n", n))
			start := 0
			if n > 5 {
				start = n - 5
			}
			for _, f := range h.Context.Findings[start:] {
				b.WriteString("- " + f.Content + "\n")
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("Input:\n" + h.Input)
	return b.String()
}

// RenderJSON serializes the handoff for executors that take structured
// input.
func (h *Handoff) RenderJSON() (string, error) {
	payload := map[string]any{
		"task":  h.TaskDescription,
		"input": h.Input,
	}
	if h.Context != nil {
		payload["query"] = h.Context.Query
		payload["state"] = string(h.Context.State)
	}
	if len(h.Metadata) > 0 {
		payload["metadata"] = h.Metadata
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal handoff: %w", err)
	}
	return string(data), nil
}

// HandoffStatistics summarizes coordinator activity for one research
// session.
type HandoffStatistics struct {
	TotalHandoffs int
	UniqueAgents  []string
	Chain         []string
}

// Coordinator routes handoffs through the directory and records them
// on the research context.
type Coordinator struct {
	directory *Directory
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCoordinator creates a coordinator over the given directory. A zero
// timeout disables invocation timeouts.
func NewCoordinator(directory *Directory, timeout time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{directory: directory, timeout: timeout, logger: logger}
}

// HandoffTo transfers the task to a specific executor. The handoff is
// recorded on the context at invocation time, before the outcome is
// known, so failed attempts still show up in the history.
func (c *Coordinator) HandoffTo(ctx context.Context, from, to string, handoff *Handoff) (string, error) {
	c.record(from, to, handoff)
	c.logger.Info("handing off task",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("task", handoff.TaskDescription))
	return c.directory.Invoke(ctx, to, handoff.RenderPrompt(), c.timeout)
}

// HandoffToCapability routes the task to the best executor for a
// capability.
func (c *Coordinator) HandoffToCapability(ctx context.Context, from string, capability research.Capability, handoff *Handoff) (string, error) {
	exec, ok := c.directory.BestFor(capability)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoCapableExecutor, capability)
	}
	return c.HandoffTo(ctx, from, exec.ID(), handoff)
}

// HandoffWithFallback tries distinct executors for the capability in
// directory order until one succeeds, attempting at most maxRetries+1.
// Only the last failure is returned.
func (c *Coordinator) HandoffWithFallback(ctx context.Context, from string, capability research.Capability, handoff *Handoff, maxRetries int) (string, error) {
	candidates := c.directory.AllFor(capability)
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoCapableExecutor, capability)
	}

	attempts := maxRetries + 1
	if attempts > len(candidates) {
		attempts = len(candidates)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		output, err := c.HandoffTo(ctx, from, candidates[i].ID(), handoff)
		if err == nil {
			return output, nil
		}
		lastErr = err
		c.logger.Warn("handoff attempt failed, trying next executor",
			zap.String("executor", candidates[i].ID()),
			zap.Int("attempt", i+1),
			zap.Error(err))
	}
	return "", lastErr
}

// Statistics summarizes the handoff history on the context the
// coordinator has been recording into.
func (c *Coordinator) Statistics(rc *research.Context) HandoffStatistics {
	stats := HandoffStatistics{TotalHandoffs: len(rc.HandoffHistory)}
	seen := make(map[string]bool)
	for _, record := range rc.HandoffHistory {
		for _, agent := range []string{record.FromAgent, record.ToAgent} {
			if !seen[agent] {
				seen[agent] = true
				stats.UniqueAgents = append(stats.UniqueAgents, agent)
			}
		}
		stats.Chain = append(stats.Chain, record.FromAgent+" -> "+record.ToAgent)
	}
	return stats
}

func (c *Coordinator) record(from, to string, handoff *Handoff) {
	if handoff.Context == nil {
		return
	}
	summary := handoff.TaskDescription
	if len(summary) > 200 {
		summary = summary[:200]
	}
	handoff.Context.AddHandoff(research.HandoffRecord{
		FromAgent:      from,
		ToAgent:        to,
		Reason:         handoff.TaskDescription,
		Timestamp:      time.Now().UTC(),
		ContextSummary: summary,
	})
}
