package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/rowclaim/internal/claim"
	"github.com/roach88/rowclaim/internal/datasource"
)

// Trigger is one activation of the record-claim poller.
//
// A Trigger runs at most once. It is safe to read State and ActivationID
// from other goroutines while Run is in progress.
type Trigger struct {
	spec         PollSpec
	connector    datasource.Connector
	sleeper      Sleeper
	logger       *slog.Logger
	activationID string

	mu    sync.Mutex
	state State
	polls int
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithLogger sets the diagnostic logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Trigger) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithSleeper replaces the real timer used between empty polls.
func WithSleeper(s Sleeper) Option {
	return func(t *Trigger) {
		if s != nil {
			t.sleeper = s
		}
	}
}

// WithActivationID sets the identifier attached to logs and the event.
// Defaults to a fresh UUIDv7.
func WithActivationID(id string) Option {
	return func(t *Trigger) {
		if id != "" {
			t.activationID = id
		}
	}
}

// New validates spec and returns a trigger in StateInitial. Validation
// failures are *ConfigurationError values; no connection is opened.
func New(spec PollSpec, connector datasource.Connector, opts ...Option) (*Trigger, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, configErr(ParamConnectionRef, "no connector for %q", spec.ConnectionRef)
	}

	t := &Trigger{
		spec:      spec,
		connector: connector,
		sleeper:   TimerSleeper{},
		logger:    slog.Default(),
		state:     StateInitial,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.activationID == "" {
		t.activationID = uuid.Must(uuid.NewV7()).String()
	}
	t.logger = t.logger.With(
		"activation", t.activationID,
		"connection", spec.ConnectionRef,
	)
	return t, nil
}

// Spec returns the trigger's definition.
func (t *Trigger) Spec() PollSpec { return t.spec }

// ActivationID returns the identifier of this activation.
func (t *Trigger) ActivationID() string { return t.activationID }

// State returns the current lifecycle state.
func (t *Trigger) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Serialize returns the type identifier and plain parameters from which
// FromParams rebuilds an equivalent fresh trigger.
func (t *Trigger) Serialize() (string, map[string]any) {
	return TypeID, t.spec.Params()
}

// Hash returns the content hash of the serialized trigger.
func (t *Trigger) Hash() (string, error) {
	typeID, params := t.Serialize()
	return Hash(typeID, params)
}

// Run polls until a candidate row appears and returns the single event of
// the activation.
//
// Empty polls release the connection and suspend for PollInterval; there is
// no limit on their number. A found candidate is claimed and the outcome
// returned as EventClaimed or EventClaimFailed. Once the claim update has
// started, cancellation no longer interrupts it: the commit or rollback
// completes and the event is returned.
//
// Run returns an error, and no event, when the connection cannot be opened
// (*ConnectionError), when the selected row lacks the id column
// (*ConfigurationError), on any other data source failure, or when ctx is
// cancelled while polling or suspended. A second call returns ErrTerminated.
func (t *Trigger) Run(ctx context.Context) (Event, error) {
	t.mu.Lock()
	if t.state != StateInitial {
		t.mu.Unlock()
		return Event{}, ErrTerminated
	}
	t.state = StatePolling
	t.mu.Unlock()
	defer t.transition(StateTerminated)

	for {
		t.transition(StatePolling)
		t.mu.Lock()
		t.polls++
		poll := t.polls
		t.mu.Unlock()

		t.logger.Debug("polling", "poll", poll)
		out, err := t.poll(ctx)
		if err != nil {
			t.logger.Warn("activation failed", "poll", poll, "error", err)
			return Event{}, err
		}

		switch out.Kind() {
		case claim.Claimed:
			t.transition(StateEmittingSuccess)
			ev := t.event(out, poll)
			t.logger.Info("record claimed", "poll", poll, "record", out.Record().String())
			return ev, nil
		case claim.ClaimFailed:
			t.transition(StateEmittingFailure)
			ev := t.event(out, poll)
			t.logger.Warn("claim failed", "poll", poll, "reason", out.Reason())
			return ev, nil
		}

		t.transition(StateSuspended)
		t.logger.Debug("no candidate, suspending", "poll", poll, "interval", t.spec.PollInterval)
		if err := t.sleeper.Sleep(ctx, t.spec.PollInterval); err != nil {
			t.logger.Info("activation cancelled while suspended", "poll", poll, "error", err)
			return Event{}, err
		}
	}
}

// poll runs one select and, if it finds a row, one claim. The connection is
// acquired and released within the call, so nothing is held while suspended.
func (t *Trigger) poll(ctx context.Context) (claim.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return claim.Outcome{}, err
	}

	h, err := t.connector.Acquire(ctx, t.spec.ConnectionRef)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return claim.Outcome{}, ctxErr
		}
		return claim.Outcome{}, &ConnectionError{Ref: t.spec.ConnectionRef, Err: err}
	}
	defer t.release(h)

	rec, found, err := claim.Select(ctx, h, t.spec.SelectQuery)
	if err != nil {
		return claim.Outcome{}, err
	}
	if !found {
		if err := h.Rollback(); err != nil {
			return claim.Outcome{}, err
		}
		return claim.None(), nil
	}

	t.transition(StateClaiming)
	t.logger.Debug("candidate found", "record", rec.String())

	out, err := claim.Commit(ctx, h, claim.Claim{
		IDColumn:  t.spec.IDColumn,
		Statement: t.spec.UpdateStatement,
		Record:    rec,
	})
	if errors.Is(err, claim.ErrIDColumnMissing) {
		return claim.Outcome{}, &ConfigurationError{Field: ParamIDColumn, Message: err.Error(), Err: err}
	}
	return out, err
}

// release closes a handle. A close failure after the decision is logged
// only: the outcome already stands.
func (t *Trigger) release(h datasource.Handle) {
	if err := h.Close(); err != nil {
		t.logger.Warn("release connection", "error", err)
	}
}

func (t *Trigger) event(out claim.Outcome, poll int) Event {
	ev := eventFrom(out)
	ev.ActivationID = t.activationID
	ev.Polls = poll
	return ev
}

func (t *Trigger) transition(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}
