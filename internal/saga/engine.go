// Package saga coordinates multi-step, multi-aggregate operations. Each saga
// instance owns a single-use id, persists its progress after every step, and
// always converges to a terminal state via per-step retry and failover
// policies.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// ErrAlreadyStarted is returned by Start when the id already owns an
// instance, finished or not. Ids are single-use.
var ErrAlreadyStarted = errors.New("saga already exists for this id")

// Policy controls one step's timeout and recovery behavior.
type Policy struct {
	// Timeout bounds a single attempt; zero means no deadline.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts before failing over.
	MaxAttempts int
	// FailoverTo is the step entered once attempts are exhausted. Empty
	// means the saga transitions straight to its failed state.
	FailoverTo string
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// StepFunc executes one step against the current state. It returns the
// replacement state and the next step name (empty ends the saga), or an error
// to hand the attempt to the step's recovery policy. Business failures a step
// handles itself (compensations, silent no-ops) are expressed as transitions,
// not errors.
type StepFunc[S any] func(ctx context.Context, state S) (S, string, error)

// Engine runs instances of one saga type. Steps are registered by name; each
// instance executes in its own goroutine, reading and replacing its state in
// the store between steps.
type Engine[S any] struct {
	name     string
	steps    map[string]StepFunc[S]
	policies map[string]Policy
	defaults Policy
	failed   func(S) S
	store    *Store[S]
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

// NewEngine creates an engine. defaults is the recovery policy for steps
// without their own; failed maps a state to the saga's terminal failed state,
// applied when no failover step can make progress.
func NewEngine[S any](name string, defaults Policy, failed func(S) S, lg *logger.Logger, m *metrics.Metrics) *Engine[S] {
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = 1
	}
	if defaults.RetryDelay <= 0 {
		defaults.RetryDelay = 250 * time.Millisecond
	}
	return &Engine[S]{
		name:     name,
		steps:    make(map[string]StepFunc[S]),
		policies: make(map[string]Policy),
		defaults: defaults,
		failed:   failed,
		store:    NewStore[S](),
		logger:   lg,
		metrics:  m,
	}
}

// Handle registers a step under the default policy.
func (e *Engine[S]) Handle(step string, fn StepFunc[S]) {
	e.steps[step] = fn
}

// HandleWithPolicy registers a step with its own recovery policy.
func (e *Engine[S]) HandleWithPolicy(step string, pol Policy, fn StepFunc[S]) {
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = e.defaults.MaxAttempts
	}
	if pol.RetryDelay <= 0 {
		pol.RetryDelay = e.defaults.RetryDelay
	}
	e.steps[step] = fn
	e.policies[step] = pol
}

// Start admits a new instance and begins executing it at the first step.
// A second start against the same id fails with ErrAlreadyStarted regardless
// of the first instance's progress.
func (e *Engine[S]) Start(id string, initial S, first string) error {
	inst, created := e.store.create(id, initial)
	if !created {
		return ErrAlreadyStarted
	}
	e.metrics.SagasStarted.WithLabelValues(e.name).Inc()
	go e.run(inst, id, first)
	return nil
}

// State returns the instance's current state.
func (e *Engine[S]) State(id string) (S, bool) {
	return e.store.get(id)
}

// Wait blocks until the instance stops executing steps or ctx expires. A
// stopped instance is not necessarily in a terminal state; sagas report
// completion from their own status values.
func (e *Engine[S]) Wait(ctx context.Context, id string) error {
	return e.store.wait(ctx, id)
}

func (e *Engine[S]) policy(step string) Policy {
	if pol, ok := e.policies[step]; ok {
		return pol
	}
	return e.defaults
}

func (e *Engine[S]) run(inst *instance[S], id, first string) {
	defer inst.finish()

	step := first
	failedOver := make(map[string]bool)

	for step != "" {
		fn, ok := e.steps[step]
		if !ok {
			e.logger.Error(nil, "saga step not registered", "saga", e.name, "id", id, "step", step)
			e.fail(id)
			return
		}

		pol := e.policy(step)
		next, err := e.attempt(id, step, pol, fn)
		if err == nil {
			step = next
			continue
		}

		// Retry budget exhausted: fail over once per target, then terminate.
		if pol.FailoverTo == "" || failedOver[pol.FailoverTo] {
			e.fail(id)
			return
		}
		failedOver[pol.FailoverTo] = true
		e.metrics.SagaFailovers.WithLabelValues(e.name, step).Inc()
		e.logger.Warn("saga step failing over", "saga", e.name, "id", id, "step", step, "failover", pol.FailoverTo)
		step = pol.FailoverTo
	}
}

func (e *Engine[S]) attempt(id, step string, pol Policy, fn StepFunc[S]) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if pol.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, pol.Timeout)
		}

		start := time.Now()
		state, _ := e.store.get(id)
		newState, next, err := fn(ctx, state)
		cancel()
		e.metrics.SagaStepDuration.WithLabelValues(e.name, step).Observe(time.Since(start).Seconds())

		if err == nil {
			e.store.set(id, newState)
			e.metrics.SagaSteps.WithLabelValues(e.name, step, "success").Inc()
			return next, nil
		}

		lastErr = err
		e.metrics.SagaSteps.WithLabelValues(e.name, step, "error").Inc()
		e.logger.Error(err, "saga step failed", "saga", e.name, "id", id, "step", step, "attempt", attempt)
		if attempt < pol.MaxAttempts {
			time.Sleep(pol.RetryDelay)
		}
	}
	return "", lastErr
}

func (e *Engine[S]) fail(id string) {
	e.store.mutate(id, e.failed)
	e.metrics.SagasFailed.WithLabelValues(e.name).Inc()
	e.logger.Error(nil, "saga terminated in failed state", "saga", e.name, "id", id)
}
