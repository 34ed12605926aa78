package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"DealsIngestor/internal/domain"
)

type channelMap map[string]domain.Channel

func (c channelMap) Lookup(id string) (domain.Channel, bool) {
	ch, ok := c[id]
	return ch, ok
}

func (c channelMap) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// memStore is an in-memory ProcessingStore, ContentStore and CategoryStore.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	records    map[domain.MessageKey]*domain.ProcessingRecord
	byID       map[int64]domain.MessageKey
	content    []domain.UnifiedContentRecord
	categories map[string]domain.Category
	saveErrs   []error
	saveCalls  int
	cutoff     time.Time
	staleAt    time.Time
	staleWhy   string
}

func newMemStore() *memStore {
	return &memStore{
		records:    map[domain.MessageKey]*domain.ProcessingRecord{},
		byID:       map[int64]domain.MessageKey{},
		categories: map[string]domain.Category{},
	}
}

func (s *memStore) Claim(_ context.Context, msg domain.ChannelMessage) (domain.ProcessingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[msg.Key()]; ok {
		return *rec, false, nil
	}
	s.nextID++
	rec := &domain.ProcessingRecord{
		ID: s.nextID, ChannelID: msg.ChannelID, MessageID: msg.MessageID,
		State: domain.StateReceived, Attempts: 1, Message: msg,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	s.records[msg.Key()] = rec
	s.byID[rec.ID] = msg.Key()
	return *rec, true, nil
}

func (s *memStore) byIDLocked(id int64) (*domain.ProcessingRecord, error) {
	key, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", id, domain.ErrNotFound)
	}
	return s.records[key], nil
}

func (s *memStore) Advance(_ context.Context, id int64, from, to domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.byIDLocked(id)
	if err != nil {
		return err
	}
	if !domain.CanTransition(from, to) || rec.State != from {
		return &domain.TransitionError{From: rec.State, To: to}
	}
	rec.State = to
	return nil
}

func (s *memStore) Fail(_ context.Context, id int64, stage domain.Stage, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.byIDLocked(id)
	if err != nil {
		return err
	}
	if rec.State.Terminal() {
		return &domain.TransitionError{From: rec.State, To: domain.StateFailed}
	}
	rec.State, rec.ErrorStage, rec.Error = domain.StateFailed, stage, reason
	return nil
}

func (s *memStore) Retry(_ context.Context, key domain.MessageKey) (domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return domain.ProcessingRecord{}, domain.ErrNotFound
	}
	if rec.State != domain.StateFailed {
		return *rec, domain.ErrNotRetryable
	}
	rec.State, rec.Error, rec.ErrorStage = domain.StateReceived, "", ""
	rec.Attempts++
	return *rec, nil
}

func (s *memStore) Get(_ context.Context, key domain.MessageKey) (domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return domain.ProcessingRecord{}, domain.ErrNotFound
	}
	return *rec, nil
}

func (s *memStore) CountByState(context.Context) (map[domain.State]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.State]int{}
	for _, rec := range s.records {
		counts[rec.State]++
	}
	return counts, nil
}

func (s *memStore) ListByState(_ context.Context, state domain.State, limit int) ([]domain.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingRecord
	for _, rec := range s.records {
		if rec.State == state && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *memStore) PurgeTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = before
	return 3, nil
}

func (s *memStore) FailStale(_ context.Context, before time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleAt, s.staleWhy = before, reason
	var n int64
	for _, rec := range s.records {
		if rec.State.Terminal() || !rec.UpdatedAt.Before(before) {
			continue
		}
		rec.ErrorStage = rec.State.Stage()
		rec.State = domain.StateFailed
		rec.Error = reason
		n++
	}
	return n, nil
}

func (s *memStore) GetOrCreate(_ context.Context, c domain.Category) (domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.categories[c.Slug]; ok {
		return existing, nil
	}
	c.ID = int64(len(s.categories) + 1)
	s.categories[c.Slug] = c
	return c, nil
}

func (s *memStore) SaveBundle(_ context.Context, recordID int64, records []domain.UnifiedContentRecord) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if len(s.saveErrs) > 0 {
		err := s.saveErrs[0]
		s.saveErrs = s.saveErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	rec, err := s.byIDLocked(recordID)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.StatePersisting {
		return nil, &domain.TransitionError{From: rec.State, To: domain.StatePersisted}
	}
	ids := make([]int64, len(records))
	for i, r := range records {
		r.ID = int64(len(s.content) + 1)
		s.content = append(s.content, r)
		ids[i] = r.ID
	}
	rec.State, rec.ContentIDs = domain.StatePersisted, ids
	return ids, nil
}

func (s *memStore) ListBySource(_ context.Context, key domain.MessageKey) ([]domain.UnifiedContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.UnifiedContentRecord
	for _, r := range s.content {
		if r.SourceChannelID == key.ChannelID && r.SourceMessageID == key.MessageID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) record(key domain.MessageKey) domain.ProcessingRecord {
	rec, _ := s.Get(context.Background(), key)
	return rec
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, u domain.ExtractedURL) (domain.ResolvedURL, error) {
	final, ok := m[u.Raw]
	if !ok {
		return domain.ResolvedURL{}, domain.NewResolutionError(u.Raw, "unreachable", errors.New("dial tcp: timeout"))
	}
	return domain.ResolvedURL{Original: u.Raw, Final: final, Hops: 1, Resolved: true}, nil
}

type fakeScraper struct {
	mu     sync.Mutex
	pages  map[string]domain.ProductCandidate
	panics bool
	calls  int
}

func (f *fakeScraper) Scrape(_ context.Context, u domain.ResolvedURL) (domain.ProductCandidate, error) {
	f.mu.Lock()
	f.calls++
	panics := f.panics
	c, ok := f.pages[u.Final]
	f.mu.Unlock()
	if panics {
		panic("selector engine exploded")
	}
	if !ok {
		return domain.ProductCandidate{}, domain.NewScrapeError(u.Final, true, "robot check", nil)
	}
	c.URL = u
	c.Source = domain.SourceScraper
	return c, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *fakeNotifier) PublishAlert(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, text)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
	failures map[domain.Stage]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: map[string]int{}, failures: map[domain.Stage]int{}}
}

func (o *countingObserver) Outcome(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[outcome]++
}

func (o *countingObserver) Stage(stage domain.Stage, _ time.Duration, err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[stage]++
}

func (o *countingObserver) Products([]domain.UnifiedContentRecord) {}
func (o *countingObserver) Begin()                                 {}
func (o *countingObserver) End()                                   {}
