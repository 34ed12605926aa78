package ports

import (
	"context"
	"errors"
	"time"

	"DealsIngestor/internal/domain"
)

var (
	// ErrNoMessage is returned by a MessageSource when nothing arrived before its poll timeout.
	ErrNoMessage = errors.New("no message available")
	// ErrMalformedMessage marks an intake payload that could not be decoded.
	ErrMalformedMessage = errors.New("malformed message")
)

// MessageSource delivers channel posts for one channel at a time.
type MessageSource interface {
	Receive(ctx context.Context, channelID string) (domain.ChannelMessage, error)
}

// ChannelDirectory answers routing lookups by channel id.
type ChannelDirectory interface {
	Lookup(channelID string) (domain.Channel, bool)
	IDs() []string
}

// URLResolver follows shortener redirects to the final product URL.
type URLResolver interface {
	Resolve(ctx context.Context, u domain.ExtractedURL) (domain.ResolvedURL, error)
}

// MetadataScraper fetches a product page and extracts raw fields.
type MetadataScraper interface {
	Scrape(ctx context.Context, u domain.ResolvedURL) (domain.ProductCandidate, error)
}

// CallGuard runs a remote call with rate limiting, circuit breaking and retries per host.
type CallGuard interface {
	Do(ctx context.Context, host string, fn func(ctx context.Context) error) error
}

// ProcessingStore owns the dedup and lifecycle state of messages.
type ProcessingStore interface {
	// Claim atomically creates a RECEIVED record. claimed is false when the
	// message was already known; the existing record is returned instead.
	Claim(ctx context.Context, msg domain.ChannelMessage) (rec domain.ProcessingRecord, claimed bool, err error)
	Advance(ctx context.Context, id int64, from, to domain.State) error
	Fail(ctx context.Context, id int64, stage domain.Stage, reason string) error
	Retry(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error)
	Get(ctx context.Context, key domain.MessageKey) (domain.ProcessingRecord, error)
	CountByState(ctx context.Context) (map[domain.State]int, error)
	ListByState(ctx context.Context, state domain.State, limit int) ([]domain.ProcessingRecord, error)
	PurgeTerminalBefore(ctx context.Context, before time.Time) (int64, error)
	// FailStale moves non-terminal records last updated before the cutoff to
	// FAILED, recording the stage they were stuck in.
	FailStale(ctx context.Context, before time.Time, reason string) (int64, error)
}

// CategoryStore resolves categories by slug, creating them on first use.
type CategoryStore interface {
	GetOrCreate(ctx context.Context, c domain.Category) (domain.Category, error)
}

// ContentStore persists listings.
type ContentStore interface {
	// SaveBundle writes all records and marks the processing record PERSISTED
	// in one transaction. Either every record is written or none is.
	SaveBundle(ctx context.Context, recordID int64, records []domain.UnifiedContentRecord) ([]int64, error)
	ListBySource(ctx context.Context, key domain.MessageKey) ([]domain.UnifiedContentRecord, error)
}

// Notifier sends operator alerts.
type Notifier interface {
	PublishAlert(ctx context.Context, text string) error
}

// Scheduler controls when periodic jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// PipelineObserver receives pipeline measurements.
type PipelineObserver interface {
	Outcome(outcome string)
	Stage(stage domain.Stage, took time.Duration, err error)
	Products(records []domain.UnifiedContentRecord)
	Begin()
	End()
}
