// Package directory maintains the registry of task executors keyed by
// capability, tracks per-executor health, and routes handoffs between
// agents with retry/fallback semantics.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"deeptrail/internal/research"
)

var (
	// ErrExecutorNotFound is returned when an executor id is unknown.
	ErrExecutorNotFound = errors.New("executor not found")
	// ErrExecutorUnavailable is returned when an executor has been
	// manually disabled.
	ErrExecutorUnavailable = errors.New("executor not available")
	// ErrNoCapableExecutor is returned when no available executor
	// carries the requested capability.
	ErrNoCapableExecutor = errors.New("no executor available for capability")
)

// Executor is anything that can perform a routed task. Implementations
// carry their own identity and capability metadata; selection happens
// through the Directory's capability index.
type Executor interface {
	ID() string
	Capabilities() []research.Capability
	Description() string
	Invoke(ctx context.Context, input string) (string, error)
}

// Health is a snapshot of one executor's statistics.
type Health struct {
	Available    bool
	CallCount    int
	FailureCount int
	SuccessRate  float64
	Capabilities []research.Capability
}

// entry holds an executor plus its mutable statistics. Counters are
// only touched under the directory lock so concurrent trail executions
// cannot lose updates.
type entry struct {
	executor     Executor
	available    bool
	callCount    int
	failureCount int
}

func (e *entry) successRate() float64 {
	total := e.callCount + e.failureCount
	if total == 0 {
		// Optimistic default so unused executors are not penalized
		// during selection.
		return 1.0
	}
	return float64(e.callCount) / float64(total)
}

// Directory is the capability-indexed executor registry. It is safe
// for concurrent use.
type Directory struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	byCapability map[research.Capability][]string
	logger       *zap.Logger
}

// New creates an empty directory.
func New(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		entries:      make(map[string]*entry),
		byCapability: make(map[research.Capability][]string),
		logger:       logger,
	}
}

// Register adds an executor under its own id and capability tags.
// Re-registering an id replaces the previous executor and resets its
// statistics.
func (d *Directory) Register(exec Executor) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := exec.ID()
	if _, exists := d.entries[id]; exists {
		d.logger.Warn("executor already registered, replacing", zap.String("executor", id))
		d.removeFromIndexLocked(id)
	}

	d.entries[id] = &entry{executor: exec, available: true}
	for _, capability := range exec.Capabilities() {
		d.byCapability[capability] = append(d.byCapability[capability], id)
	}

	d.logger.Info("registered executor",
		zap.String("executor", id),
		zap.Any("capabilities", exec.Capabilities()))
}

// Unregister removes an executor and its index entries.
func (d *Directory) Unregister(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[id]; !exists {
		return fmt.Errorf("%w: %s", ErrExecutorNotFound, id)
	}
	d.removeFromIndexLocked(id)
	delete(d.entries, id)
	d.logger.Info("unregistered executor", zap.String("executor", id))
	return nil
}

func (d *Directory) removeFromIndexLocked(id string) {
	for capability, ids := range d.byCapability {
		filtered := ids[:0]
		for _, candidate := range ids {
			if candidate != id {
				filtered = append(filtered, candidate)
			}
		}
		d.byCapability[capability] = filtered
	}
}

// Get returns the executor registered under id.
func (d *Directory) Get(id string) (Executor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[id]
	if !ok {
		return nil, false
	}
	return e.executor, true
}

// BestFor returns the available executor with the highest success rate
// for the capability. Ties go to the earliest registration. The false
// return is routine absence, not an error.
func (d *Directory) BestFor(capability research.Capability) (Executor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *entry
	for _, id := range d.byCapability[capability] {
		e := d.entries[id]
		if e == nil || !e.available {
			continue
		}
		if best == nil || e.successRate() > best.successRate() {
			best = e
		}
	}
	if best == nil {
		return nil, false
	}
	return best.executor, true
}

// AllFor returns every available executor for the capability, in
// registration order.
func (d *Directory) AllFor(capability research.Capability) []Executor {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Executor
	for _, id := range d.byCapability[capability] {
		if e := d.entries[id]; e != nil && e.available {
			out = append(out, e.executor)
		}
	}
	return out
}

// SetAvailability toggles an executor's availability flag.
func (d *Directory) SetAvailability(id string, available bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutorNotFound, id)
	}
	e.available = available
	d.logger.Info("executor availability changed",
		zap.String("executor", id), zap.Bool("available", available))
	return nil
}

// Invoke runs an executor with an optional timeout. Zero timeout means
// none. Success increments the call counter; any failure, including
// timeout, increments the failure counter and the error is returned.
// An executor panic is counted as a failure and re-raised in the
// caller's goroutine, never left to escape on the invocation one.
func (d *Directory) Invoke(ctx context.Context, id, input string, timeout time.Duration) (string, error) {
	d.mu.RLock()
	e, ok := d.entries[id]
	if ok && !e.available {
		d.mu.RUnlock()
		return "", fmt.Errorf("%w: %s", ErrExecutorUnavailable, id)
	}
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrExecutorNotFound, id)
	}

	exec := e.executor
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type invocation struct {
		output   string
		err      error
		panicked any
	}
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{panicked: r}
			}
		}()
		output, err := exec.Invoke(ctx, input)
		done <- invocation{output: output, err: err}
	}()

	var output string
	var err error
	var panicked any
	select {
	case result := <-done:
		output, err, panicked = result.output, result.err, result.panicked
	case <-ctx.Done():
		err = fmt.Errorf("executor %s: %w", id, ctx.Err())
	}

	d.mu.Lock()
	if err != nil || panicked != nil {
		e.failureCount++
	} else {
		e.callCount++
	}
	d.mu.Unlock()

	if panicked != nil {
		// Re-raise in the caller's goroutine so the caller's recovery
		// layer decides the outcome.
		panic(panicked)
	}

	if err != nil {
		d.logger.Error("executor invocation failed",
			zap.String("executor", id), zap.Error(err))
		return "", err
	}
	return output, nil
}

// InvokeCapability routes an invocation to the best executor for the
// capability.
func (d *Directory) InvokeCapability(ctx context.Context, capability research.Capability, input string, timeout time.Duration) (string, error) {
	exec, ok := d.BestFor(capability)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoCapableExecutor, capability)
	}
	return d.Invoke(ctx, exec.ID(), input, timeout)
}

// HealthStatus returns a snapshot of every executor's statistics.
func (d *Directory) HealthStatus() map[string]Health {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]Health, len(d.entries))
	for id, e := range d.entries {
		out[id] = Health{
			Available:    e.available,
			CallCount:    e.callCount,
			FailureCount: e.failureCount,
			SuccessRate:  e.successRate(),
			Capabilities: e.executor.Capabilities(),
		}
	}
	return out
}

// CapabilityCoverage counts available executors per capability.
func (d *Directory) CapabilityCoverage() map[research.Capability]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[research.Capability]int, len(d.byCapability))
	for capability, ids := range d.byCapability {
		count := 0
		for _, id := range ids {
			if e := d.entries[id]; e != nil && e.available {
				count++
			}
		}
		out[capability] = count
	}
	return out
}

// Len returns the number of registered executors.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
