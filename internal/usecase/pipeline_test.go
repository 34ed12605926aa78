package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"DealsIngestor/internal/affiliate"
	"DealsIngestor/internal/classify"
	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/resilience"
)

const bundleText = "Boat Airdopes 141 Wireless Earbuds\nDeal @ ₹1,499\nhttps://amzn.to/abc123\n\n" +
	"Noise ColorFit Smartwatch\nDeal @ ₹2,999\nhttps://amzn.to/def456"

var primePicks = domain.Channel{
	ID:       "-1001",
	Name:     "Prime Picks",
	PageSlug: "prime-picks",
	Network:  "amazon",
	TagValue: "pickntrust03-21",
	Currency: "INR",
	Featured: true,
}

type harness struct {
	store    *memStore
	scraper  *fakeScraper
	notifier *fakeNotifier
	observer *countingObserver
	pipeline *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newMemStore(),
		scraper: &fakeScraper{pages: map[string]domain.ProductCandidate{
			"https://www.amazon.in/dp/B09N3ZNHTY": {
				Title:             "boAt Airdopes 141 Wireless Earbuds",
				PriceText:         "₹1,299",
				OriginalPriceText: "₹4,490",
				ImageURL:          "https://m.media-amazon.com/images/I/airdopes.jpg",
			},
		}},
		notifier: &fakeNotifier{},
		observer: newCountingObserver(),
	}
	h.pipeline = NewPipeline(PipelineDeps{
		Channels: channelMap{primePicks.ID: primePicks},
		Store:    h.store,
		Content:  h.store,
		Resolver: mapResolver{
			"https://amzn.to/abc123": "https://www.amazon.in/dp/B09N3ZNHTY",
			"https://amzn.to/def456": "https://www.amazon.in/dp/B0B3MWYCHQ",
		},
		Scraper:     h.scraper,
		Classifier:  classify.New(h.store),
		Tagger:      affiliate.NewTagger(map[affiliate.Network]string{affiliate.Amazon: "pickntrust03-21"}, affiliate.Cuelinks),
		Notifier:    h.notifier,
		Observer:    h.observer,
		IgnoreHosts: []string{"t.me"},
		PersistRetry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
	})
	return h
}

func message(id int64, text string) domain.ChannelMessage {
	return domain.ChannelMessage{
		ChannelID: primePicks.ID,
		MessageID: id,
		Text:      text,
		Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestProcessPersistsBundle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	outcome, err := h.pipeline.Process(ctx, message(42, bundleText))
	require.NoError(t, err)
	require.Equal(t, OutcomePersisted, outcome)

	rec := h.store.record(domain.MessageKey{ChannelID: primePicks.ID, MessageID: 42})
	require.Equal(t, domain.StatePersisted, rec.State)
	require.Len(t, rec.ContentIDs, 2)

	listings, err := h.store.ListBySource(ctx, rec.Key())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	first, second := listings[0], listings[1]
	require.Equal(t, domain.SourceScraper, first.ExtractionSource)
	require.Equal(t, "boAt Airdopes 141 Wireless Earbuds", first.Title)
	require.NotNil(t, first.Price)
	require.InDelta(t, 1299, *first.Price, 0.001)
	require.NotNil(t, first.Discount)
	require.Equal(t, 71, *first.Discount)

	require.Equal(t, domain.SourceFallback, second.ExtractionSource)
	require.NotNil(t, second.Price)
	require.InDelta(t, 2999, *second.Price, 0.001)
	require.Contains(t, second.Title, "Smartwatch")

	for i, l := range listings {
		require.True(t, l.IsActive)
		require.True(t, l.IsVisible)
		require.False(t, l.UpdatedAt.IsZero())
		require.Equal(t, l.CreatedAt, l.UpdatedAt)
		require.Equal(t, i+1, l.BundleSequence)
		require.Equal(t, 2, l.BundleTotal)
		require.NotEmpty(t, l.BundleGroupID)
		require.Equal(t, first.BundleGroupID, l.BundleGroupID)
		require.True(t, l.AffiliateTagApplied)
		require.Contains(t, l.AffiliateURL, "tag=pickntrust03-21")
		require.Equal(t, "INR", l.Currency)
		require.Equal(t, "prime-picks", l.PageSlug)
		require.Equal(t, []string{"prime-picks", classify.PageHome, classify.PageTopPicks}, l.DisplayPages)
		require.NotZero(t, l.CategoryID)
		require.False(t, l.HasTimer)
	}
	require.Equal(t, 1, h.observer.outcomes[string(OutcomePersisted)])
	require.Zero(t, h.notifier.count())
}

func TestProcessSkipsDuplicates(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.pipeline.Process(ctx, message(7, bundleText))
	require.NoError(t, err)
	outcome, err := h.pipeline.Process(ctx, message(7, bundleText))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Len(t, h.store.content, 2)
	require.Equal(t, 1, h.store.saveCalls)
}

func TestProcessIgnoresMessagesWithoutWork(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	unknown := message(1, bundleText)
	unknown.ChannelID = "-999"
	outcome, err := h.pipeline.Process(ctx, unknown)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)

	outcome, err = h.pipeline.Process(ctx, message(2, "Good morning everyone! Join https://t.me/primepicks for more"))
	require.NoError(t, err)
	require.Equal(t, OutcomeNoProduct, outcome)
	require.Empty(t, h.store.records)
}

func TestProcessKeepsUnresolvedURL(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	msg := message(3, "Prestige Iris 750W Mixer Grinder\nDeal @ ₹2,199\nhttps://bit.ly/gone404")
	outcome, err := h.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, OutcomePersisted, outcome)

	listings, err := h.store.ListBySource(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, "https://bit.ly/gone404", listings[0].ProductURL)
	require.Equal(t, domain.SourceFallback, listings[0].ExtractionSource)
	require.Empty(t, listings[0].BundleGroupID)
	require.Equal(t, 1, listings[0].BundleTotal)
}

func TestProcessMarksTextPriceOnScrapedPageAsMixed(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.scraper.pages["https://www.amazon.in/dp/B0B3MWYCHQ"] = domain.ProductCandidate{
		Title:    "Noise ColorFit Pro 4 Smartwatch",
		ImageURL: "https://m.media-amazon.com/images/I/colorfit.jpg",
	}

	msg := message(4, "Noise ColorFit Smartwatch\nDeal @ ₹2,999\nhttps://amzn.to/def456")
	outcome, err := h.pipeline.Process(ctx, msg)
	require.NoError(t, err)
	require.Equal(t, OutcomePersisted, outcome)

	listings, err := h.store.ListBySource(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.Equal(t, domain.SourceMixed, listings[0].ExtractionSource)
	require.Equal(t, "Noise ColorFit Pro 4 Smartwatch", listings[0].Title)
	require.NotNil(t, listings[0].Price)
	require.InDelta(t, 2999, *listings[0].Price, 0.001)
}

func TestProcessRecoversScraperPanic(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.scraper.panics = true
	ctx := context.Background()

	msg := message(4, bundleText)
	outcome, err := h.pipeline.Process(ctx, msg)
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, outcome)

	rec := h.store.record(msg.Key())
	require.Equal(t, domain.StateFailed, rec.State)
	require.Equal(t, domain.StageScrape, rec.ErrorStage)
	require.Contains(t, rec.Error, "selector engine exploded")
	require.Equal(t, 1, h.notifier.count())
	require.True(t, strings.Contains(h.notifier.alerts[0], "stage: scrape"))
	require.Empty(t, h.store.content)
}

func TestProcessRetriesTransientPersistErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	transient := domain.NewPersistenceError("insert content", errors.New("database is locked"))
	h.store.saveErrs = []error{transient, transient}
	ctx := context.Background()

	outcome, err := h.pipeline.Process(ctx, message(5, bundleText))
	require.NoError(t, err)
	require.Equal(t, OutcomePersisted, outcome)
	require.Equal(t, 3, h.store.saveCalls)
}

func TestProcessFailsAfterPersistRetries(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	transient := domain.NewPersistenceError("insert content", errors.New("connection reset"))
	h.store.saveErrs = []error{transient, transient, transient, transient}
	ctx := context.Background()

	msg := message(6, bundleText)
	outcome, err := h.pipeline.Process(ctx, msg)
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, outcome)
	require.Equal(t, 3, h.store.saveCalls)

	rec := h.store.record(msg.Key())
	require.Equal(t, domain.StateFailed, rec.State)
	require.Equal(t, domain.StagePersist, rec.ErrorStage)
	require.Equal(t, 1, h.observer.failures[domain.StagePersist])
	require.Empty(t, h.store.content)
}

func TestProcessDoesNotRetryDuplicateContent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.saveErrs = []error{domain.NewPersistenceError("insert content", domain.ErrDuplicate)}

	outcome, err := h.pipeline.Process(context.Background(), message(8, bundleText))
	require.ErrorIs(t, err, domain.ErrDuplicate)
	require.Equal(t, OutcomeFailed, outcome)
	require.Equal(t, 1, h.store.saveCalls)
}

func TestProcessStartsTimerForLimitedOffers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	msg := message(9, "Lightning deal! Philips Trimmer BT3221\nDeal @ ₹999\nhttps://amzn.to/zzz999")
	_, err := h.pipeline.Process(ctx, msg)
	require.NoError(t, err)

	listings, err := h.store.ListBySource(ctx, msg.Key())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	require.True(t, listings[0].LimitedOffer)
	require.True(t, listings[0].HasTimer)
	require.Equal(t, defaultTimerHours, listings[0].TimerDurationHours)
	require.NotNil(t, listings[0].TimerStart)
	require.True(t, listings[0].TimerStart.Equal(msg.Timestamp))
}

func TestResumeRejectsActiveRecords(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.pipeline.Resume(context.Background(), domain.ProcessingRecord{ChannelID: primePicks.ID, MessageID: 1, State: domain.StateExtracting})
	require.ErrorIs(t, err, domain.ErrNotRetryable)
}
