package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

var _ ports.ProcessingStore = (*Store)(nil)

var recordColumns = []string{
	"id", "channel_id", "message_id", "state", "last_error", "error_stage",
	"attempts", "content_ids", "payload", "created_at", "updated_at",
}

var terminalStates = []string{string(domain.StatePersisted), string(domain.StateFailed)}

type recordRow struct {
	ID         int64     `db:"id"`
	ChannelID  string    `db:"channel_id"`
	MessageID  int64     `db:"message_id"`
	State      string    `db:"state"`
	LastError  string    `db:"last_error"`
	ErrorStage string    `db:"error_stage"`
	Attempts   int       `db:"attempts"`
	ContentIDs string    `db:"content_ids"`
	Payload    string    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r recordRow) toDomain() (domain.ProcessingRecord, error) {
	rec := domain.ProcessingRecord{
		ID:         r.ID,
		ChannelID:  r.ChannelID,
		MessageID:  r.MessageID,
		State:      domain.State(r.State),
		Error:      r.LastError,
		ErrorStage: domain.Stage(r.ErrorStage),
		Attempts:   r.Attempts,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ContentIDs != "" {
		if err := json.Unmarshal([]byte(r.ContentIDs), &rec.ContentIDs); err != nil {
			return domain.ProcessingRecord{}, fmt.Errorf("decode content ids of record %d: %w", r.ID, err)
		}
	}
	if r.Payload != "" {
		if err := json.Unmarshal([]byte(r.Payload), &rec.Message); err != nil {
			return domain.ProcessingRecord{}, fmt.Errorf("decode payload of record %d: %w", r.ID, err)
		}
	}
	return rec, nil
}

// Claim inserts a RECEIVED record unless the (channel, message) pair exists.
// The unique key makes concurrent claims of the same message safe.
func (s *Store) Claim(ctx context.Context, msg domain.ChannelMessage) (domain.ProcessingRecord, bool, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.ProcessingRecord{}, false, domain.NewPersistenceError("encode message", err)
	}

	now := s.now()
	query, args, err := s.sb.Insert("processing_records").
		Columns("channel_id", "message_id", "state", "attempts", "content_ids", "payload", "created_at", "updated_at").
		Values(msg.ChannelID, msg.MessageID, string(domain.StateReceived), 1, "[]", string(payload), now, now).
		Suffix("ON CONFLICT (channel_id, message_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.ProcessingRecord{}, false, domain.NewPersistenceError("build claim", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.ProcessingRecord{}, false, domain.NewPersistenceError("claim message", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.ProcessingRecord{}, false, domain.NewPersistenceError("claim rows affected", err)
	}

	rec, err := s.Get(ctx, msg.Key())
	if err != nil {
		return domain.ProcessingRecord{}, false, err
	}
	return rec, inserted == 1, nil
}

// Advance moves record id from one state to the next.
func (s *Store) Advance(ctx context.Context, id int64, from, to domain.State) error {
	if !domain.CanTransition(from, to) {
		return &domain.TransitionError{From: from, To: to}
	}
	update := s.sb.Update("processing_records").
		Set("state", string(to)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "state": string(from)})
	return s.transition(ctx, s.db, update, id, to)
}

// Fail moves a non-terminal record to FAILED with the reason and stage.
func (s *Store) Fail(ctx context.Context, id int64, stage domain.Stage, reason string) error {
	update := s.sb.Update("processing_records").
		Set("state", string(domain.StateFailed)).
		Set("last_error", reason).
		Set("error_stage", string(stage)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id}).
		Where(sq.NotEq{"state": terminalStates})
	return s.transition(ctx, s.db, update, id, domain.StateFailed)
}

func (s *Store) complete(ctx context.Context, tx *sqlx.Tx, id int64, contentIDs []int64) error {
	ids, err := json.Marshal(contentIDs)
	if err != nil {
		return fmt.Errorf("encode content ids: %w", err)
	}
	update := s.sb.Update("processing_records").
		Set("state", string(domain.StatePersisted)).
		Set("content_ids", string(ids)).
		Set("last_error", "").
		Set("error_stage", "").
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id, "state": string(domain.StatePersisting)})
	return s.transition(ctx, tx, update, id, domain.StatePersisted)
}

func (s *Store) transition(ctx context.Context, db sqlx.ExtContext, update sq.UpdateBuilder, id int64, to domain.State) error {
	query, args, err := update.ToSql()
	if err != nil {
		return domain.NewPersistenceError("build transition", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.NewPersistenceError(fmt.Sprintf("move record %d to %s", id, to), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewPersistenceError("transition rows affected", err)
	}
	if n == 1 {
		return nil
	}

	current, err := s.stateOf(ctx, db, id)
	if err != nil {
		return err
	}
	return &domain.TransitionError{From: current, To: to}
}

func (s *Store) stateOf(ctx context.Context, db sqlx.QueryerContext, id int64) (domain.State, error) {
	query, args, err := s.sb.Select("state").From("processing_records").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return "", domain.NewPersistenceError("build state lookup", err)
	}
	var state string
	if err := sqlx.GetContext(ctx, db, &state, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("record %d: %w", id, domain.ErrNotFound)
		}
		return "", domain.NewPersistenceError("lookup state", err)
	}
	return domain.State(state), nil
}

// Retry resets a FAILED record to RECEIVED and bumps its attempt counter.
func (s *Store) Retry(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error) {
	query, args, err := s.sb.Update("processing_records").
		Set("state", string(domain.StateReceived)).
		Set("last_error", "").
		Set("error_stage", "").
		Set("attempts", sq.Expr("attempts + 1")).
		Set("updated_at", s.now()).
		Where(sq.Eq{"channel_id": key.ChannelID, "message_id": key.MessageID, "state": string(domain.StateFailed)}).
		ToSql()
	if err != nil {
		return domain.ProcessingRecord{}, domain.NewPersistenceError("build retry", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.ProcessingRecord{}, domain.NewPersistenceError("retry record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ProcessingRecord{}, domain.NewPersistenceError("retry rows affected", err)
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		return domain.ProcessingRecord{}, err
	}
	if n == 0 {
		return rec, fmt.Errorf("record %s is %s: %w", key, rec.State, domain.ErrNotRetryable)
	}
	return rec, nil
}

// Get loads the record of a message.
func (s *Store) Get(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error) {
	query, args, err := s.sb.Select(recordColumns...).
		From("processing_records").
		Where(sq.Eq{"channel_id": key.ChannelID, "message_id": key.MessageID}).
		ToSql()
	if err != nil {
		return domain.ProcessingRecord{}, domain.NewPersistenceError("build get", err)
	}

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProcessingRecord{}, fmt.Errorf("record %s: %w", key, domain.ErrNotFound)
		}
		return domain.ProcessingRecord{}, domain.NewPersistenceError("get record", err)
	}
	return row.toDomain()
}

// CountByState returns a count for every state, including zeroes.
func (s *Store) CountByState(ctx context.Context) (map[domain.State]int, error) {
	query, args, err := s.sb.Select("state", "COUNT(*) AS n").
		From("processing_records").
		GroupBy("state").
		ToSql()
	if err != nil {
		return nil, domain.NewPersistenceError("build counts", err)
	}

	var rows []struct {
		State string `db:"state"`
		N     int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewPersistenceError("count records", err)
	}

	counts := make(map[domain.State]int, len(domain.States))
	for _, st := range domain.States {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[domain.State(r.State)] = r.N
	}
	return counts, nil
}

// ListByState returns the most recently updated records in a state.
func (s *Store) ListByState(ctx context.Context, state domain.State, limit int) ([]domain.ProcessingRecord, error) {
	q := s.sb.Select(recordColumns...).
		From("processing_records").
		Where(sq.Eq{"state": string(state)}).
		OrderBy("updated_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, domain.NewPersistenceError("build list", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.NewPersistenceError("list records", err)
	}

	out := make([]domain.ProcessingRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FailStale fails every non-terminal record last updated before the cutoff in
// one transaction. The error stage is the step of the state it was stuck in.
func (s *Store) FailStale(ctx context.Context, before time.Time, reason string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, domain.NewPersistenceError("begin stale sweep", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var total int64
	for _, state := range domain.States {
		if state.Terminal() {
			continue
		}
		query, args, err := s.sb.Update("processing_records").
			Set("state", string(domain.StateFailed)).
			Set("last_error", reason).
			Set("error_stage", string(state.Stage())).
			Set("updated_at", now).
			Where(sq.Eq{"state": string(state)}).
			Where(sq.Lt{"updated_at": before.UTC()}).
			ToSql()
		if err != nil {
			return 0, domain.NewPersistenceError("build stale sweep", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, domain.NewPersistenceError(fmt.Sprintf("fail stale %s records", state), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, domain.NewPersistenceError("stale sweep rows affected", err)
		}
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, domain.NewPersistenceError("commit stale sweep", err)
	}
	return total, nil
}

// PurgeTerminalBefore deletes PERSISTED and FAILED records last updated
// before the cutoff. Listings are kept.
func (s *Store) PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := s.sb.Delete("processing_records").
		Where(sq.Eq{"state": terminalStates}).
		Where(sq.Lt{"updated_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, domain.NewPersistenceError("build purge", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.NewPersistenceError("purge records", err)
	}
	return res.RowsAffected()
}
