package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"DealsIngestor/internal/config"
	"DealsIngestor/internal/domain"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	s, err := Open(context.Background(), config.DatabaseConfig{Driver: DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func message(channel string, id int64) domain.ChannelMessage {
	return domain.ChannelMessage{
		ChannelID:  channel,
		MessageID:  id,
		Text:       "Deal https://amzn.to/abc",
		EntityURLs: []string{"https://amzn.to/abc"},
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func advanceTo(t *testing.T, s *Store, id int64, target domain.State) {
	t.Helper()
	current := domain.StateReceived
	for _, next := range domain.States[1:] {
		if current == target {
			return
		}
		require.NoError(t, s.Advance(context.Background(), id, current, next))
		current = next
	}
}

func price(v float64) *float64 { return &v }

func TestClaimIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	msg := message("-100", 7)

	rec, claimed, err := s.Claim(ctx, msg)
	require.NoError(t, err)
	require.True(t, claimed)
	require.Equal(t, domain.StateReceived, rec.State)
	require.Equal(t, 1, rec.Attempts)
	require.Equal(t, msg.Text, rec.Message.Text)
	require.Equal(t, msg.EntityURLs, rec.Message.EntityURLs)

	again, claimed, err := s.Claim(ctx, msg)
	require.NoError(t, err)
	require.False(t, claimed)
	require.Equal(t, rec.ID, again.ID)

	other, claimed, err := s.Claim(ctx, message("-200", 7))
	require.NoError(t, err)
	require.True(t, claimed)
	require.NotEqual(t, rec.ID, other.ID)
}

func TestAdvanceRejectsInvalidTransitions(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	rec, _, err := s.Claim(ctx, message("-100", 1))
	require.NoError(t, err)

	var transition *domain.TransitionError
	err = s.Advance(ctx, rec.ID, domain.StateReceived, domain.StateExtracting)
	require.ErrorAs(t, err, &transition)

	err = s.Advance(ctx, rec.ID, domain.StateResolving, domain.StateExtracting)
	require.ErrorAs(t, err, &transition)
	require.Equal(t, domain.StateReceived, transition.From)

	err = s.Advance(ctx, 9999, domain.StateReceived, domain.StateResolving)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveBundlePersistsAtomically(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	msg := message("-100", 42)
	rec, _, err := s.Claim(ctx, msg)
	require.NoError(t, err)
	advanceTo(t, s, rec.ID, domain.StatePersisting)

	cat, err := s.GetOrCreate(ctx, domain.Category{Name: "Electronics", Slug: "electronics", ContentType: domain.ContentProduct})
	require.NoError(t, err)

	discount := 50
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := []domain.UnifiedContentRecord{
		{
			Title: "Earbuds", Price: price(999), OriginalPrice: price(1998), Discount: &discount, Currency: "INR",
			ProductURL: "https://www.amazon.in/dp/B01", AffiliateURL: "https://www.amazon.in/dp/B01?tag=x-21",
			AffiliateNetwork: "amazon", AffiliateTagApplied: true, CategoryID: cat.ID, Category: cat.Name,
			ContentType: domain.ContentProduct, DisplayPages: []string{"home", "prime-picks"}, PageSlug: "prime-picks",
			BundleGroupID: "g-1", BundleSequence: 1, BundleTotal: 2, SourceChannelID: msg.ChannelID, SourceMessageID: msg.MessageID,
			ExtractionSource: domain.SourceScraper, HasTimer: true, TimerStart: &start, TimerDurationHours: 24,
			IsActive: true, IsVisible: true, CreatedAt: start, UpdatedAt: start.Add(time.Hour),
		},
		{
			Title: "Charger", ProductURL: "https://www.amazon.in/dp/B02", AffiliateURL: "https://www.amazon.in/dp/B02?tag=x-21",
			CategoryID: cat.ID, Category: cat.Name, ContentType: domain.ContentProduct, DisplayPages: []string{"prime-picks"},
			BundleGroupID: "g-1", BundleSequence: 2, BundleTotal: 2, SourceChannelID: msg.ChannelID, SourceMessageID: msg.MessageID,
			ExtractionSource: domain.SourceFallback,
		},
	}

	ids, err := s.SaveBundle(ctx, rec.ID, records)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	stored, err := s.Get(ctx, msg.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StatePersisted, stored.State)
	require.Equal(t, ids, stored.ContentIDs)

	listed, err := s.ListBySource(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "Earbuds", listed[0].Title)
	require.InDelta(t, 999, *listed[0].Price, 0.001)
	require.Equal(t, 50, *listed[0].Discount)
	require.Equal(t, []string{"home", "prime-picks"}, listed[0].DisplayPages)
	require.True(t, listed[0].TimerStart.Equal(start))
	require.Nil(t, listed[1].Price)
	require.Nil(t, listed[1].TimerStart)
	require.Equal(t, domain.SourceFallback, listed[1].ExtractionSource)
	require.True(t, listed[0].IsActive)
	require.True(t, listed[0].IsVisible)
	require.True(t, listed[0].CreatedAt.Equal(start))
	require.True(t, listed[0].UpdatedAt.Equal(start.Add(time.Hour)))
	require.False(t, listed[1].IsActive)
	require.False(t, listed[1].IsVisible)
	require.True(t, listed[1].UpdatedAt.Equal(listed[1].CreatedAt))
}

func TestSaveBundleRollsBackWhenRecordNotPersisting(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	msg := message("-100", 43)
	rec, _, err := s.Claim(ctx, msg)
	require.NoError(t, err)

	_, err = s.SaveBundle(ctx, rec.ID, []domain.UnifiedContentRecord{{
		Title: "Orphan", ProductURL: "https://x.example/p", AffiliateURL: "https://x.example/p",
		SourceChannelID: msg.ChannelID, SourceMessageID: msg.MessageID, BundleSequence: 1, BundleTotal: 1,
	}})
	var transition *domain.TransitionError
	require.ErrorAs(t, err, &transition)

	listed, err := s.ListBySource(ctx, msg.Key())
	require.NoError(t, err)
	require.Empty(t, listed)

	stored, err := s.Get(ctx, msg.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateReceived, stored.State)
}

func TestFailAndRetry(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	msg := message("-100", 5)
	rec, _, err := s.Claim(ctx, msg)
	require.NoError(t, err)
	advanceTo(t, s, rec.ID, domain.StateExtracting)

	require.NoError(t, s.Fail(ctx, rec.ID, domain.StageScrape, "blocked by robot check"))

	failed, err := s.Get(ctx, msg.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, failed.State)
	require.Equal(t, domain.StageScrape, failed.ErrorStage)
	require.Equal(t, "blocked by robot check", failed.Error)

	var transition *domain.TransitionError
	require.ErrorAs(t, s.Fail(ctx, rec.ID, domain.StageScrape, "again"), &transition)

	retried, err := s.Retry(ctx, msg.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateReceived, retried.State)
	require.Equal(t, 2, retried.Attempts)
	require.Empty(t, retried.Error)
	require.Equal(t, msg.Text, retried.Message.Text)

	_, err = s.Retry(ctx, msg.Key())
	require.ErrorIs(t, err, domain.ErrNotRetryable)

	_, err = s.Retry(ctx, domain.MessageKey{ChannelID: "-100", MessageID: 999})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreateCategory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, domain.Category{Name: "Fashion", Slug: "fashion", Icon: "fas fa-tshirt", Color: "#FF6B6B"})
	require.NoError(t, err)
	require.NotZero(t, first.ID)
	require.Equal(t, domain.ContentProduct, first.ContentType)

	second, err := s.GetOrCreate(ctx, domain.Category{Name: "Fashion!", Slug: "fashion"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Fashion", second.Name)

	_, err = s.GetOrCreate(ctx, domain.Category{Name: "No slug"})
	require.Error(t, err)
}

func TestCountsListsAndPurge(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-200 * 24 * time.Hour)
	s.now = func() time.Time { return old }
	stale, _, err := s.Claim(ctx, message("-1", 1))
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, stale.ID, domain.StageResolve, "no route"))
	pending, _, err := s.Claim(ctx, message("-1", 2))
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().UTC() }
	fresh, _, err := s.Claim(ctx, message("-1", 3))
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, fresh.ID, domain.StageNormalize, "no price"))

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, counts[domain.StateFailed])
	require.Equal(t, 1, counts[domain.StateReceived])
	require.Equal(t, 0, counts[domain.StatePersisted])
	require.Len(t, counts, len(domain.States))

	failed, err := s.ListByState(ctx, domain.StateFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	require.Equal(t, fresh.ID, failed[0].ID)

	limited, err := s.ListByState(ctx, domain.StateFailed, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	purged, err := s.PurgeTerminalBefore(ctx, time.Now().UTC().Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	_, err = s.Get(ctx, stale.Key())
	require.True(t, errors.Is(err, domain.ErrNotFound))
	_, err = s.Get(ctx, pending.Key())
	require.NoError(t, err)
}

func TestConcurrentClaimsYieldOneOwner(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	msg := message("-100", 77)

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		owners  int
		ids     = map[int64]bool{}
		errList []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, claimed, err := s.Claim(ctx, msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			if claimed {
				owners++
			}
			ids[rec.ID] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errList)
	require.Equal(t, 1, owners)
	require.Len(t, ids, 1)
}

func TestConcurrentGetOrCreateReturnsOneCategory(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[int64]bool{}
		errList []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cat, err := s.GetOrCreate(ctx, domain.Category{Name: "Home & Kitchen", Slug: "home-kitchen"})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			ids[cat.ID] = true
		}()
	}
	wg.Wait()

	require.Empty(t, errList)
	require.Len(t, ids, 1)

	var rows int
	require.NoError(t, s.db.GetContext(ctx, &rows, "SELECT COUNT(*) FROM categories WHERE slug = 'home-kitchen'"))
	require.Equal(t, 1, rows)
}

func TestFailStaleMovesStuckRecordsToFailed(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	s.now = func() time.Time { return old }
	stuck, _, err := s.Claim(ctx, message("-5", 1))
	require.NoError(t, err)
	advanceTo(t, s, stuck.ID, domain.StateNormalizing)
	waiting, _, err := s.Claim(ctx, message("-5", 2))
	require.NoError(t, err)
	done, _, err := s.Claim(ctx, message("-5", 3))
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, done.ID, domain.StageScrape, "blocked"))

	s.now = func() time.Time { return time.Now().UTC() }
	fresh, _, err := s.Claim(ctx, message("-5", 4))
	require.NoError(t, err)
	advanceTo(t, s, fresh.ID, domain.StateResolving)

	n, err := s.FailStale(ctx, time.Now().UTC().Add(-10*time.Minute), "abandoned mid-pipeline")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := s.Get(ctx, stuck.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, got.State)
	require.Equal(t, domain.StageNormalize, got.ErrorStage)
	require.Equal(t, "abandoned mid-pipeline", got.Error)

	got, err = s.Get(ctx, waiting.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateFailed, got.State)
	require.Equal(t, domain.StageExtract, got.ErrorStage)

	got, err = s.Get(ctx, done.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StageScrape, got.ErrorStage)
	require.Equal(t, "blocked", got.Error)

	got, err = s.Get(ctx, fresh.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateResolving, got.State)

	retried, err := s.Retry(ctx, stuck.Key())
	require.NoError(t, err)
	require.Equal(t, domain.StateReceived, retried.State)
}
