package host

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/roach88/rowclaim/internal/canon"
	"github.com/roach88/rowclaim/internal/trigger"
)

// Status is a stored trigger's lifecycle position.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var (
	// ErrNotFound is returned for an unknown trigger ID.
	ErrNotFound = errors.New("trigger not found")
	// ErrStatusConflict is returned when a transition's precondition no
	// longer holds, e.g. a second worker marking the same trigger running.
	ErrStatusConflict = errors.New("trigger status conflict")
)

// StoredTrigger is a serialized trigger as the host keeps it.
type StoredTrigger struct {
	ID        string         `json:"id"`
	TypeID    string         `json:"type_id"`
	Params    map[string]any `json:"params"`
	Hash      string         `json:"hash"`
	Status    Status         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	Seq       int64          `json:"seq"`
}

// StoredEvent is the event a trigger emitted.
type StoredEvent struct {
	ID        int64           `json:"id"`
	TriggerID string          `json:"trigger_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Seq       int64           `json:"seq"`
}

// Submit stores a serialized trigger as pending.
//
// An identical trigger (same content hash) that is still pending or running
// is returned instead, with inserted=false. Finished triggers do not block
// resubmission.
func (s *Store) Submit(ctx context.Context, typeID string, params map[string]any) (StoredTrigger, bool, error) {
	hash, err := trigger.Hash(typeID, params)
	if err != nil {
		return StoredTrigger{}, false, fmt.Errorf("submit: hash: %w", err)
	}
	paramsJSON, err := canon.Marshal(params)
	if err != nil {
		return StoredTrigger{}, false, fmt.Errorf("submit: params: %w", err)
	}

	id := s.newID()
	seq := s.clock.Next()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO triggers (id, type_id, params, hash, status, seq)
		VALUES (?, ?, ?, ?, 'pending', ?)
		ON CONFLICT DO NOTHING
	`, id, typeID, string(paramsJSON), hash, seq)
	if err != nil {
		return StoredTrigger{}, false, fmt.Errorf("submit: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return StoredTrigger{}, false, fmt.Errorf("submit: rows affected: %w", err)
	}

	if n == 0 {
		existing, err := s.scanTrigger(s.db.QueryRowContext(ctx, `
			SELECT id, type_id, params, hash, status, attempts, last_error, seq
			FROM triggers
			WHERE hash = ? AND status IN ('pending', 'running')
		`, hash))
		if err != nil {
			return StoredTrigger{}, false, fmt.Errorf("submit: select existing: %w", err)
		}
		return existing, false, nil
	}

	stored, err := s.Get(ctx, id)
	if err != nil {
		return StoredTrigger{}, false, err
	}
	return stored, true, nil
}

// Get returns one trigger by ID.
func (s *Store) Get(ctx context.Context, id string) (StoredTrigger, error) {
	t, err := s.scanTrigger(s.db.QueryRowContext(ctx, `
		SELECT id, type_id, params, hash, status, attempts, last_error, seq
		FROM triggers WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTrigger{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return StoredTrigger{}, fmt.Errorf("get %s: %w", id, err)
	}
	return t, nil
}

// Pending returns pending triggers in submission order. limit <= 0 means
// no limit.
func (s *Store) Pending(ctx context.Context, limit int) ([]StoredTrigger, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.listTriggers(ctx, `
		SELECT id, type_id, params, hash, status, attempts, last_error, seq
		FROM triggers WHERE status = 'pending'
		ORDER BY seq LIMIT ?
	`, limit)
}

// List returns every trigger in submission order.
func (s *Store) List(ctx context.Context) ([]StoredTrigger, error) {
	return s.listTriggers(ctx, `
		SELECT id, type_id, params, hash, status, attempts, last_error, seq
		FROM triggers ORDER BY seq
	`)
}

// MarkRunning moves a pending trigger to running and counts the attempt.
// Exactly one caller wins; the others get ErrStatusConflict.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, `
		UPDATE triggers SET status = 'running', attempts = attempts + 1
		WHERE id = ? AND status = 'pending'
	`, id)
}

// Complete records the trigger's event and marks it done in one
// transaction. A trigger completes at most once.
func (s *Store) Complete(ctx context.Context, id string, ev trigger.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("complete %s: payload: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("complete %s: begin tx: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE triggers SET status = 'done', last_error = ''
		WHERE id = ? AND status = 'running'
	`, id)
	if err != nil {
		return fmt.Errorf("complete %s: update: %w", id, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("complete %s: rows affected: %w", id, err)
	} else if n != 1 {
		return fmt.Errorf("complete %s: %w: not running", id, ErrStatusConflict)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trigger_events (trigger_id, kind, payload, seq)
		VALUES (?, ?, ?, ?)
	`, id, string(ev.Kind), string(payload), s.clock.Next()); err != nil {
		return fmt.Errorf("complete %s: insert event: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("complete %s: commit: %w", id, err)
	}
	return nil
}

// Fail marks a running trigger failed with the error that ended it.
func (s *Store) Fail(ctx context.Context, id string, cause error) error {
	return s.transition(ctx, id, StatusRunning, `
		UPDATE triggers SET status = 'failed', last_error = ?
		WHERE id = ? AND status = 'running'
	`, errorText(cause), id)
}

// Requeue returns a running trigger to pending so a later run rebuilds it
// from its serialized parameters.
func (s *Store) Requeue(ctx context.Context, id string, cause error) error {
	return s.transition(ctx, id, StatusRunning, `
		UPDATE triggers SET status = 'pending', last_error = ?
		WHERE id = ? AND status = 'running'
	`, errorText(cause), id)
}

// RecoverRunning requeues every running trigger. Called at runner start: a
// trigger left running belongs to a host that stopped without finishing it.
func (s *Store) RecoverRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE triggers SET status = 'pending', last_error = 'recovered after host restart'
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, fmt.Errorf("recover running: %w", err)
	}
	return res.RowsAffected()
}

// Events returns emitted events in emission order, optionally for a single
// trigger.
func (s *Store) Events(ctx context.Context, triggerID string) ([]StoredEvent, error) {
	query := `SELECT id, trigger_id, kind, payload, seq FROM trigger_events`
	var args []any
	if triggerID != "" {
		query += ` WHERE trigger_id = ?`
		args = append(args, triggerID)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.TriggerID, &ev.Kind, &payload, &ev.Seq); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	return events, nil
}

func (s *Store) transition(ctx context.Context, id string, from Status, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: rows affected: %w", id, err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("update %s: %w: not %s", id, ErrStatusConflict, from)
}

func (s *Store) listTriggers(ctx context.Context, query string, args ...any) ([]StoredTrigger, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var out []StoredTrigger
	for rows.Next() {
		t, err := s.scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("list triggers: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTrigger(row rowScanner) (StoredTrigger, error) {
	var t StoredTrigger
	var params, status string
	if err := row.Scan(&t.ID, &t.TypeID, &params, &t.Hash, &status, &t.Attempts, &t.LastError, &t.Seq); err != nil {
		return StoredTrigger{}, err
	}
	t.Status = Status(status)

	dec := json.NewDecoder(bytes.NewReader([]byte(params)))
	dec.UseNumber()
	if err := dec.Decode(&t.Params); err != nil {
		return StoredTrigger{}, fmt.Errorf("decode params of %s: %w", t.ID, err)
	}
	return t, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
