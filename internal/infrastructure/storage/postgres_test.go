package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"DealsIngestor/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, DriverPostgres)), mock
}

func TestPostgresClaimUsesDollarPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`^INSERT INTO processing_records \(.+\) VALUES \(\$1,\$2,\$3,\$4,\$5,\$6,\$7,\$8\) ON CONFLICT \(channel_id, message_id\) DO NOTHING$`).
		WithArgs("-100", int64(7), "RECEIVED", 1, "[]", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`^SELECT id, channel_id, .+ FROM processing_records WHERE channel_id = \$1 AND message_id = \$2$`).
		WithArgs("-100", int64(7)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(int64(3), "-100", int64(7), "PERSISTED", "", "", int64(1), "[11,12]", `{"channelId":"-100","messageId":7}`, now, now))

	rec, claimed, err := s.Claim(context.Background(), domain.ChannelMessage{ChannelID: "-100", MessageID: 7})
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, domain.StatePersisted, rec.State)
	require.Equal(t, []int64{11, 12}, rec.ContentIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetOrCreateResolvesUniqueRace(t *testing.T) {
	s, mock := newMockStore(t)
	columns := []string{"id", "name", "slug", "icon", "color", "content_type", "created_at"}
	now := time.Now().UTC()

	mock.ExpectQuery(`^SELECT .+ FROM categories WHERE slug = \$1$`).
		WithArgs("electronics").
		WillReturnRows(sqlmock.NewRows(columns))
	mock.ExpectQuery(`^INSERT INTO categories .+ RETURNING id$`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectQuery(`^SELECT .+ FROM categories WHERE slug = \$1$`).
		WithArgs("electronics").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(int64(9), "Electronics", "electronics", "fas fa-mobile-alt", "#4ECDC4", "product", now))

	cat, err := s.GetOrCreate(context.Background(), domain.Category{Name: "Electronics", Slug: "electronics"})
	require.NoError(t, err)
	require.EqualValues(t, 9, cat.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveBundleRollsBackOnInsertError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO content .+ RETURNING id$`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(`^INSERT INTO content .+ RETURNING id$`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	records := []domain.UnifiedContentRecord{
		{Title: "A", ProductURL: "https://a.example", AffiliateURL: "https://a.example", BundleSequence: 1, BundleTotal: 2},
		{Title: "B", ProductURL: "https://b.example", AffiliateURL: "https://b.example", BundleSequence: 2, BundleTotal: 2},
	}
	_, err := s.SaveBundle(context.Background(), 3, records)

	var persistErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, domain.StagePersist, domain.StageOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveBundleCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO content .+ RETURNING id$`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	mock.ExpectExec(`^UPDATE processing_records SET state = \$1, content_ids = \$2, .+ WHERE id = \$\d+ AND state = \$\d+$`).
		WithArgs("PERSISTED", "[21]", "", "", sqlmock.AnyArg(), int64(3), "PERSISTING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids, err := s.SaveBundle(context.Background(), 3, []domain.UnifiedContentRecord{
		{Title: "A", ProductURL: "https://a.example", AffiliateURL: "https://a.example", BundleSequence: 1, BundleTotal: 1},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{21}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPurgeFiltersTerminalStates(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`^DELETE FROM processing_records WHERE state IN \(\$1,\$2\) AND updated_at < \$3$`).
		WithArgs("PERSISTED", "FAILED", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := s.PurgeTerminalBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 4, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveBundleReportsDuplicateContent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`^INSERT INTO content .+ RETURNING id$`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := s.SaveBundle(context.Background(), 3, []domain.UnifiedContentRecord{
		{Title: "A", ProductURL: "https://a.example", AffiliateURL: "https://a.example", BundleSequence: 1, BundleTotal: 1},
	})
	require.ErrorIs(t, err, domain.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFailStaleRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`^UPDATE processing_records SET state = \$1, last_error = \$2, error_stage = \$3, updated_at = \$4 WHERE state = \$5 AND updated_at < \$6$`).
		WithArgs("FAILED", "stalled", "extract", sqlmock.AnyArg(), "RECEIVED", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`^UPDATE processing_records SET .+ WHERE state = \$5 AND updated_at < \$6$`).
		WithArgs("FAILED", "stalled", "resolve", sqlmock.AnyArg(), "RESOLVING", cutoff).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.FailStale(context.Background(), cutoff, "stalled")
	var persistErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.NoError(t, mock.ExpectationsWereMet())
}
