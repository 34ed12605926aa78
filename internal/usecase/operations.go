package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

const defaultListLimit = 50

// Status is the operator view of processing records.
type Status struct {
	Counts map[domain.State]int `json:"counts"`
	Total  int                  `json:"total"`
	Pool   *PoolStats           `json:"pool,omitempty"`
}

// Operations backs the status API and CLI commands.
type Operations struct {
	store    ports.ProcessingStore
	content  ports.ContentStore
	pipeline *Pipeline
	pool     *Pool
	logger   *slog.Logger
}

// NewOperations wires operator actions. With a nil pool, Retry reprocesses
// inline and returns once the message is done.
func NewOperations(store ports.ProcessingStore, content ports.ContentStore, pipeline *Pipeline, pool *Pool, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Operations{store: store, content: content, pipeline: pipeline, pool: pool, logger: logger.With("component", "operations")}
}

func (o *Operations) Status(ctx context.Context) (Status, error) {
	counts, err := o.store.CountByState(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count records: %w", err)
	}
	st := Status{Counts: counts}
	for _, n := range counts {
		st.Total += n
	}
	if o.pool != nil {
		stats := o.pool.Stats()
		st.Pool = &stats
	}
	return st, nil
}

// Failed lists the most recent FAILED records.
func (o *Operations) Failed(ctx context.Context, limit int) ([]domain.ProcessingRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return o.store.ListByState(ctx, domain.StateFailed, limit)
}

func (o *Operations) Record(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, []domain.UnifiedContentRecord, error) {
	rec, err := o.store.Get(ctx, key)
	if err != nil {
		return domain.ProcessingRecord{}, nil, err
	}
	listings, err := o.content.ListBySource(ctx, key)
	if err != nil {
		return domain.ProcessingRecord{}, nil, err
	}
	return rec, listings, nil
}

// Retry resets a FAILED record and runs it again from RECEIVED.
func (o *Operations) Retry(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error) {
	rec, err := o.store.Retry(ctx, key)
	if err != nil {
		return rec, err
	}
	o.logger.Info("record reset for retry", "channel_id", key.ChannelID, "message_id", key.MessageID, "attempts", rec.Attempts)

	if o.pool == nil {
		if _, err := o.pipeline.Resume(ctx, rec); err != nil {
			return o.reload(ctx, key, rec), err
		}
		return o.reload(ctx, key, rec), nil
	}

	job := func(ctx context.Context) error {
		_, err := o.pipeline.Resume(ctx, rec)
		return err
	}
	if err := o.pool.Submit(context.WithoutCancel(ctx), job); err != nil {
		return rec, fmt.Errorf("schedule retry of %s: %w", key, err)
	}
	return rec, nil
}

func (o *Operations) reload(ctx context.Context, key domain.MessageKey, fallback domain.ProcessingRecord) domain.ProcessingRecord {
	if rec, err := o.store.Get(context.WithoutCancel(ctx), key); err == nil {
		return rec
	}
	return fallback
}
