package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/rowclaim/internal/trigger"
)

// Runner drives stored triggers to their single event.
//
// Each pending trigger is rebuilt from its serialized parameters through the
// Registry, run on a bounded worker pool, and its event persisted. A trigger
// that fails with a connection error is rebuilt and retried with exponential
// backoff, up to MaxRetries times. Any other error fails the trigger. On
// shutdown, triggers still polling are requeued.
//
// In repeat mode every emitted event resubmits an identical fresh trigger,
// which turns the one-shot trigger into continuous ingestion.
type Runner struct {
	store    *Store
	registry *Registry
	logger   *slog.Logger
	metrics  *Metrics

	workers      int
	repeat       bool
	maxRetries   int
	scanInterval time.Duration
	newBackOff   func() *backoff.ExponentialBackOff
	meter        metric.MeterProvider

	mu       sync.Mutex
	inFlight map[string]bool
	wake     chan struct{}
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers bounds concurrent activations. Defaults to 4.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRepeat resubmits each trigger after it emits.
func WithRepeat(repeat bool) RunnerOption {
	return func(r *Runner) { r.repeat = repeat }
}

// WithMaxRetries bounds connection-error retries per activation. Defaults to 3.
func WithMaxRetries(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithScanInterval sets how often the store is checked for triggers
// submitted by other processes. Defaults to one second.
func WithScanInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.scanInterval = d
		}
	}
}

// WithBackOff replaces the retry schedule.
func WithBackOff(f func() *backoff.ExponentialBackOff) RunnerOption {
	return func(r *Runner) {
		if f != nil {
			r.newBackOff = f
		}
	}
}

// WithRunnerLogger sets the logger. Defaults to slog.Default().
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMeterProvider sets where counters are registered. Defaults to the
// global otel provider.
func WithMeterProvider(mp metric.MeterProvider) RunnerOption {
	return func(r *Runner) { r.meter = mp }
}

// NewRunner creates a runner over store and registry.
func NewRunner(store *Store, registry *Registry, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		store:        store,
		registry:     registry,
		logger:       slog.Default(),
		workers:      4,
		maxRetries:   3,
		scanInterval: time.Second,
		newBackOff: func() *backoff.ExponentialBackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		inFlight: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}

	m, err := NewMetrics(r.meter)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	r.metrics = m
	return r, nil
}

// Run processes triggers until none are pending or running, or, in repeat
// mode, until ctx is cancelled. Cancellation waits for in-flight
// activations to settle and returns ctx.Err().
func (r *Runner) Run(ctx context.Context) error {
	if n, err := r.store.RecoverRunning(ctx); err != nil {
		return err
	} else if n > 0 {
		r.logger.Info("requeued interrupted triggers", "count", n)
	}

	p := pool.New().WithMaxGoroutines(r.workers)
	defer p.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending, err := r.store.Pending(ctx, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		for _, st := range pending {
			if !r.claimSlot(st.ID) {
				continue
			}
			st := st
			p.Go(func() {
				defer func() {
					r.releaseSlot(st.ID)
					r.signal()
				}()
				r.activate(ctx, st)
			})
		}

		if !r.repeat && len(pending) == 0 && r.idle() {
			return nil
		}

		timer := time.NewTimer(r.scanInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// activate runs one stored trigger to completion.
func (r *Runner) activate(ctx context.Context, st StoredTrigger) {
	logger := r.logger.With("trigger_id", st.ID, "type_id", st.TypeID)

	if err := r.store.MarkRunning(ctx, st.ID); err != nil {
		if errors.Is(err, ErrStatusConflict) {
			logger.Debug("trigger taken by another runner")
			return
		}
		logger.Error("mark running", "error", err)
		return
	}

	ev, err := r.runWithRetry(ctx, st, logger)

	// The claim, if any, is already committed; persist the outcome even
	// while shutting down.
	persistCtx := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		if err := r.store.Complete(persistCtx, st.ID, ev); err != nil {
			logger.Error("persist event", "error", err)
			r.failUnpersisted(persistCtx, st.ID, ev, err, logger)
			return
		}
		r.metrics.eventEmitted(persistCtx, string(ev.Kind))
		logger.Info("trigger emitted", "kind", ev.Kind, "polls", ev.Polls)
		if r.repeat {
			r.resubmit(persistCtx, st, logger)
		}

	case ctx.Err() != nil:
		if err := r.store.Requeue(persistCtx, st.ID, ctx.Err()); err != nil {
			logger.Error("requeue", "error", err)
		}
		logger.Info("trigger requeued on shutdown")

	default:
		r.metrics.activationFailed(persistCtx, errorClass(err))
		if err := r.store.Fail(persistCtx, st.ID, err); err != nil {
			logger.Error("persist failure", "error", err)
		}
		logger.Warn("trigger failed", "error", err)
	}
}

// failUnpersisted marks a trigger failed when its claim committed but its
// event could not be stored. The event is kept in last_error. The trigger
// must not go back to pending: its row is already claimed.
func (r *Runner) failUnpersisted(ctx context.Context, id string, ev trigger.Event, cause error, logger *slog.Logger) {
	r.metrics.activationFailed(ctx, "persist")
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", ev))
	}
	if err := r.store.Fail(ctx, id, &EventNotPersistedError{Payload: payload, Err: cause}); err != nil {
		logger.Error("persist failure", "error", err, "event", string(payload))
	}
}

// EventNotPersistedError reports an emitted event the store could not record.
type EventNotPersistedError struct {
	Payload []byte
	Err     error
}

func (e *EventNotPersistedError) Error() string {
	return fmt.Sprintf("event not persisted: %v; event: %s", e.Err, e.Payload)
}

func (e *EventNotPersistedError) Unwrap() error { return e.Err }

// runWithRetry rebuilds and runs the trigger, retrying connection errors.
// A Trigger runs once, so every attempt gets a fresh one.
func (r *Runner) runWithRetry(ctx context.Context, st StoredTrigger, logger *slog.Logger) (trigger.Event, error) {
	b := r.newBackOff()
	b.Reset()

	for attempt := 0; ; attempt++ {
		task, err := r.registry.Build(st.TypeID, st.Params, uuid.Must(uuid.NewV7()).String(), logger)
		if err != nil {
			return trigger.Event{}, err
		}

		ev, err := task.Run(ctx)
		if err == nil {
			return ev, nil
		}
		if !trigger.IsConnectionError(err) || attempt >= r.maxRetries || ctx.Err() != nil {
			return trigger.Event{}, err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return trigger.Event{}, err
		}
		r.metrics.retried(ctx)
		logger.Warn("connection failed, retrying", "attempt", attempt+1, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return trigger.Event{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Runner) resubmit(ctx context.Context, st StoredTrigger, logger *slog.Logger) {
	next, inserted, err := r.store.Submit(ctx, st.TypeID, st.Params)
	if err != nil {
		logger.Error("resubmit", "error", err)
		return
	}
	if inserted {
		logger.Debug("resubmitted", "next_id", next.ID)
	}
}

func (r *Runner) claimSlot(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[id] {
		return false
	}
	r.inFlight[id] = true
	return true
}

func (r *Runner) releaseSlot(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, id)
}

func (r *Runner) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight) == 0
}

func (r *Runner) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func errorClass(err error) string {
	switch {
	case trigger.IsConnectionError(err):
		return "connection"
	case trigger.IsConfigurationError(err):
		return "configuration"
	default:
		return "other"
	}
}
