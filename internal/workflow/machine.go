// Package workflow enforces legal phase transitions over a research
// context. The transition table is fixed; ForceFail is the single
// unconditional escape hatch.
package workflow

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

// ErrInvalidTransition is returned when a requested transition is not
// in the current state's edge set. It signals an orchestration logic
// bug, not a recoverable runtime condition.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions is the directed edge set of legal workflow moves.
var transitions = map[research.State][]research.State{
	research.StateInitializing: {
		research.StateClarifying,
		research.StatePlanning,
		research.StateFailed,
	},
	research.StateClarifying: {
		research.StatePlanning,
		research.StateFailed,
	},
	research.StatePlanning: {
		research.StateSearching,
		research.StateFailed,
	},
	research.StateSearching: {
		research.StateEvaluating,
		research.StateFailed,
	},
	research.StateEvaluating: {
		research.StateTrailFollowing,
		research.StateSynthesizing,
		research.StateSearching, // can loop back for more searches
		research.StateFailed,
	},
	research.StateTrailFollowing: {
		research.StateEvaluating,
		research.StateSynthesizing,
		research.StateFailed,
	},
	research.StateSynthesizing: {
		research.StateCompleted,
		research.StateFailed,
	},
	research.StateCompleted: {},
	research.StateFailed:    {},
}

var descriptions = map[research.State]string{
	research.StateInitializing:   "Setting up research context and budget",
	research.StateClarifying:     "Gathering clarifications from user",
	research.StatePlanning:       "Creating research plan",
	research.StateSearching:      "Executing search operations",
	research.StateEvaluating:     "Assessing research quality and gaps",
	research.StateTrailFollowing: "Exploring interesting research trails",
	research.StateSynthesizing:   "Combining findings into report",
	research.StateCompleted:      "Research completed successfully",
	research.StateFailed:         "Research failed",
}

// Describe returns a human-readable description of a workflow state.
func Describe(s research.State) string {
	if d, ok := descriptions[s]; ok {
		return d
	}
	return "Unknown state"
}

// Machine wraps exactly one research context and guards its state
// transitions. The history log exists for diagnostics only.
type Machine struct {
	ctx     *research.Context
	history []research.State
	logger  *zap.Logger
}

// New creates a machine around the given context.
func New(ctx *research.Context, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		ctx:     ctx,
		history: []research.State{ctx.State},
		logger:  logger,
	}
}

// CanTransition reports whether moving to the given state is legal
// from the current state.
func (m *Machine) CanTransition(to research.State) bool {
	for _, next := range transitions[m.ctx.State] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the context to a new state, or returns
// ErrInvalidTransition (wrapped with the offending edge) leaving the
// context untouched.
func (m *Machine) Transition(to research.State, reason string) error {
	from := m.ctx.State
	if !m.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	m.logger.Info("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))

	m.ctx.SetState(to)
	m.history = append(m.history, to)
	return nil
}

// ForceFail moves the context to FAILED from any state, bypassing the
// transition table, and records the reason in context metadata.
func (m *Machine) ForceFail(reason string) {
	m.logger.Error("forcing failure", zap.String("reason", reason))
	m.ctx.SetState(research.StateFailed)
	m.ctx.SetMetadata("failure_reason", reason)
	m.history = append(m.history, research.StateFailed)
}

// ValidTransitions returns the legal moves from the current state.
func (m *Machine) ValidTransitions() []research.State {
	return append([]research.State{}, transitions[m.ctx.State]...)
}

// IsTerminal reports whether the workflow has ended.
func (m *Machine) IsTerminal() bool {
	return m.ctx.State.Terminal()
}

// History returns a copy of the state transition log.
func (m *Machine) History() []research.State {
	return append([]research.State{}, m.history...)
}

// String summarizes the machine for logs.
func (m *Machine) String() string {
	return fmt.Sprintf("Machine(current=%s, history=%d states)", m.ctx.State, len(m.history))
}
