package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deeptrail/internal/directory"
	"deeptrail/internal/research"
)

// executor is the shared shape of every LLM-backed agent: an id, a
// capability set, an instruction preamble, and a completion client.
type executor struct {
	id           string
	capabilities []research.Capability
	description  string
	instructions string
	llm          LLMClient
	logger       *zap.Logger
}

func (e *executor) ID() string                          { return e.id }
func (e *executor) Capabilities() []research.Capability { return e.capabilities }
func (e *executor) Description() string                 { return e.description }

func (e *executor) Invoke(ctx context.Context, input string) (string, error) {
	e.logger.Debug("invoking agent", zap.String("agent", e.id))
	prompt := e.instructions + "\n\n" + input
	out, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", e.id, err)
	}
	return out, nil
}

// NewPlanner returns the basic search planner.
func NewPlanner(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("planner", research.CapabilityPlanning,
		fmt.Sprintf("Plans %d web searches for a research query", howManySearches),
		plannerInstructions, llm, logger)
}

// NewDynamicPlanner returns the adaptive planner that folds findings,
// gaps, and budget state into its plan.
func NewDynamicPlanner(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("dynamic_planner", research.CapabilityPlanning,
		"Adapts the search plan to findings, gaps, and remaining budget",
		dynamicPlannerInstructions, llm, logger)
}

// NewSearcher returns the basic web search summarizer.
func NewSearcher(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("search", research.CapabilitySearching,
		"Searches the web and produces a concise summary",
		searchInstructions, llm, logger)
}

// NewEnhancedSearcher returns the searcher that attaches credibility
// and confidence metrics to its summaries.
func NewEnhancedSearcher(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("enhanced_search", research.CapabilitySearching,
		"Searches the web and scores source credibility and confidence",
		enhancedSearchInstructions, llm, logger)
}

// NewWriter returns the basic report writer.
func NewWriter(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("writer", research.CapabilityWriting,
		"Writes a detailed markdown report from research findings",
		writerInstructions, llm, logger)
}

// NewEnhancedWriter returns the multi-stream synthesis writer.
func NewEnhancedWriter(llm LLMClient, logger *zap.Logger) directory.Executor {
	return newExecutor("enhanced_writer", research.CapabilityWriting,
		"Synthesizes findings across research streams into a report with confidence levels",
		enhancedWriterInstructions, llm, logger)
}

func newExecutor(id string, capability research.Capability, description, instructions string, llm LLMClient, logger *zap.Logger) directory.Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &executor{
		id:           id,
		capabilities: []research.Capability{capability},
		description:  description,
		instructions: instructions,
		llm:          llm,
		logger:       logger,
	}
}

// RegisterAll registers the standard agent roster into a directory.
func RegisterAll(dir *directory.Directory, llm LLMClient, logger *zap.Logger) {
	dir.Register(NewPlanner(llm, logger))
	dir.Register(NewDynamicPlanner(llm, logger))
	dir.Register(NewSearcher(llm, logger))
	dir.Register(NewEnhancedSearcher(llm, logger))
	dir.Register(NewWriter(llm, logger))
	dir.Register(NewEnhancedWriter(llm, logger))
}
