package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"DealsIngestor/internal/affiliate"
	"DealsIngestor/internal/bundle"
	"DealsIngestor/internal/classify"
	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/extract"
	"DealsIngestor/internal/normalize"
	"DealsIngestor/internal/ports"
	"DealsIngestor/internal/resilience"
)

// Outcome summarises how a message left the pipeline.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNoProduct Outcome = "no_product"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePersisted Outcome = "persisted"
	OutcomeFailed    Outcome = "failed"
)

const (
	defaultTimerHours = 24
	failTimeout       = 10 * time.Second
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Channels    ports.ChannelDirectory
	Store       ports.ProcessingStore
	Content     ports.ContentStore
	Resolver    ports.URLResolver
	Scraper     ports.MetadataScraper
	Classifier  *classify.Classifier
	Tagger      *affiliate.Tagger
	Extractor   *extract.TextExtractor
	Normalizer  *normalize.Normalizer
	Notifier    ports.Notifier
	Observer    ports.PipelineObserver
	Logger      *slog.Logger
	IgnoreHosts []string
	// PersistRetry bounds SaveBundle attempts before the record fails.
	PersistRetry resilience.RetryConfig
	Clock        func() time.Time
}

// Pipeline turns one channel message into persisted listings.
type Pipeline struct {
	channels     ports.ChannelDirectory
	store        ports.ProcessingStore
	content      ports.ContentStore
	resolver     ports.URLResolver
	scraper      ports.MetadataScraper
	classifier   *classify.Classifier
	tagger       *affiliate.Tagger
	extractor    *extract.TextExtractor
	normalizer   *normalize.Normalizer
	notifier     ports.Notifier
	observer     ports.PipelineObserver
	logger       *slog.Logger
	ignoreHosts  []string
	persistRetry resilience.RetryConfig
	now          func() time.Time
}

// NewPipeline constructs the orchestration component. Channels, Store,
// Content and Classifier are required; the rest have defaults.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		channels:     deps.Channels,
		store:        deps.Store,
		content:      deps.Content,
		resolver:     deps.Resolver,
		scraper:      deps.Scraper,
		classifier:   deps.Classifier,
		tagger:       deps.Tagger,
		extractor:    deps.Extractor,
		normalizer:   deps.Normalizer,
		notifier:     deps.Notifier,
		observer:     deps.Observer,
		logger:       deps.Logger,
		ignoreHosts:  deps.IgnoreHosts,
		persistRetry: deps.PersistRetry,
		now:          deps.Clock,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.extractor == nil {
		p.extractor = extract.NewTextExtractor()
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(p.logger)
	}
	if p.tagger == nil {
		p.tagger = affiliate.NewTagger(nil, "")
	}
	if p.observer == nil {
		p.observer = noopObserver{}
	}
	if p.persistRetry.MaxAttempts <= 0 {
		p.persistRetry = resilience.DefaultRetryConfig()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Process claims msg and runs every stage. Unknown channels, messages
// without product links and already claimed messages are skipped without
// error. A failed stage marks the record FAILED and returns the cause.
func (p *Pipeline) Process(ctx context.Context, msg domain.ChannelMessage) (Outcome, error) {
	log := p.logger.With("channel_id", msg.ChannelID, "message_id", msg.MessageID)

	ch, ok := p.channels.Lookup(msg.ChannelID)
	if !ok {
		log.Info("message from unknown channel ignored")
		return p.finish(OutcomeIgnored), nil
	}

	urls := p.productURLs(msg)
	if len(urls) == 0 {
		log.Debug("message has no product links")
		return p.finish(OutcomeNoProduct), nil
	}

	rec, claimed, err := p.store.Claim(ctx, msg)
	if err != nil {
		p.finish(OutcomeFailed)
		return OutcomeFailed, fmt.Errorf("claim %s: %w", msg.Key(), err)
	}
	if !claimed {
		log.Info("duplicate message skipped", "state", rec.State)
		return p.finish(OutcomeDuplicate), nil
	}

	return p.run(ctx, ch, rec, urls)
}

// Resume runs a record that an operator reset to RECEIVED.
func (p *Pipeline) Resume(ctx context.Context, rec domain.ProcessingRecord) (Outcome, error) {
	if rec.State != domain.StateReceived {
		return OutcomeDuplicate, fmt.Errorf("record %s is %s: %w", rec.Key(), rec.State, domain.ErrNotRetryable)
	}
	ch, ok := p.channels.Lookup(rec.ChannelID)
	if !ok {
		return p.fail(ctx, rec, domain.StageExtract, fmt.Errorf("channel %s is no longer configured", rec.ChannelID))
	}
	urls := p.productURLs(rec.Message)
	if len(urls) == 0 {
		return p.fail(ctx, rec, domain.StageExtract, domain.NewExtractionError("stored message has no product links", nil))
	}
	return p.run(ctx, ch, rec, urls)
}

func (p *Pipeline) productURLs(msg domain.ChannelMessage) []domain.ExtractedURL {
	return extract.FilterHosts(extract.URLs(msg.Text, msg.EntityURLs), p.ignoreHosts)
}

func (p *Pipeline) run(ctx context.Context, ch domain.Channel, rec domain.ProcessingRecord, urls []domain.ExtractedURL) (outcome Outcome, err error) {
	p.observer.Begin()
	defer p.observer.End()

	log := p.logger.With("channel_id", rec.ChannelID, "message_id", rec.MessageID, "record_id", rec.ID)
	stage := domain.StageResolve
	state := rec.State

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline stage panicked", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			outcome, err = p.fail(ctx, rec, stage, fmt.Errorf("panic in %s stage: %v", stage, r))
		}
	}()

	advance := func(to domain.State) error {
		if err := p.store.Advance(ctx, rec.ID, state, to); err != nil {
			return err
		}
		state = to
		return nil
	}

	if err := advance(domain.StateResolving); err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	segments := bundle.Segments(rec.Message.Text, urls)
	resolved, err := p.resolveAll(ctx, log, urls)
	if err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	resolved, segments = dedupeResolved(resolved, segments)

	stage = domain.StageScrape
	if err := advance(domain.StateExtracting); err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	candidates, err := p.extractAll(ctx, log, ch, resolved, segments)
	if err != nil {
		return p.fail(ctx, rec, stage, err)
	}

	stage = domain.StageNormalize
	if err := advance(domain.StateNormalizing); err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	products, err := p.normalizeAll(log, ch, candidates)
	if err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	stage = domain.StageTag
	p.tagAll(log, ch, products)

	stage = domain.StageClassify
	if err := advance(domain.StateCategorizing); err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	assignments, err := p.classifyAll(ctx, ch, products)
	if err != nil {
		return p.fail(ctx, rec, stage, err)
	}

	stage = domain.StagePersist
	if err := advance(domain.StatePersisting); err != nil {
		return p.fail(ctx, rec, stage, err)
	}
	records := p.buildRecords(ch, rec, products, assignments)
	ids, err := p.persist(ctx, rec.ID, records)
	if err != nil {
		return p.fail(ctx, rec, stage, err)
	}

	log.Info("message persisted", "products", len(ids), "page", ch.PageSlug)
	p.observer.Products(records)
	return p.finish(OutcomePersisted), nil
}

// resolveAll follows redirects for every link. A link that cannot be
// resolved is kept verbatim.
func (p *Pipeline) resolveAll(ctx context.Context, log *slog.Logger, urls []domain.ExtractedURL) ([]domain.ResolvedURL, error) {
	start := time.Now()
	out := make([]domain.ResolvedURL, len(urls))
	for i, u := range urls {
		out[i] = domain.ResolvedURL{Original: u.Raw, Final: u.Raw}
		if p.resolver == nil {
			continue
		}
		r, err := p.resolver.Resolve(ctx, u)
		if err != nil {
			log.Warn("resolve failed, using extracted url", "url", u.Raw, "error", err)
			continue
		}
		log.Debug("resolved url", "url", u.Raw, "final", r.Final, "hops", r.Hops)
		out[i] = r
	}
	err := ctx.Err()
	p.observer.Stage(domain.StageResolve, time.Since(start), err)
	return out, err
}

// dedupeResolved drops links that lead to a product already seen in the message.
func dedupeResolved(resolved []domain.ResolvedURL, segments []string) ([]domain.ResolvedURL, []string) {
	seen := make(map[string]bool, len(resolved))
	outR := resolved[:0:0]
	outS := segments[:0:0]
	for i, r := range resolved {
		if seen[r.Final] {
			continue
		}
		seen[r.Final] = true
		outR = append(outR, r)
		outS = append(outS, segments[i])
	}
	return outR, outS
}

// extractAll scrapes each product page and fills gaps from the message text.
func (p *Pipeline) extractAll(ctx context.Context, log *slog.Logger, ch domain.Channel, resolved []domain.ResolvedURL, segments []string) ([]domain.ProductCandidate, error) {
	start := time.Now()
	out := make([]domain.ProductCandidate, 0, len(resolved))
	for i, r := range resolved {
		fallback := p.extractor.Extract(segments[i], r, ch.Name)
		if p.scraper == nil {
			out = append(out, fallback)
			continue
		}

		scraped, err := p.scraper.Scrape(ctx, r)
		if err != nil {
			var scrapeErr *domain.ScrapeError
			blocked := errors.As(err, &scrapeErr) && scrapeErr.Blocked
			log.Warn("scrape failed, using message text", "url", r.Final, "blocked", blocked, "error", err)
			out = append(out, fallback)
			continue
		}
		out = append(out, scraped.Merge(fallback))
	}
	err := ctx.Err()
	p.observer.Stage(domain.StageScrape, time.Since(start), err)
	return out, err
}

func (p *Pipeline) normalizeAll(log *slog.Logger, ch domain.Channel, candidates []domain.ProductCandidate) ([]domain.NormalizedProduct, error) {
	start := time.Now()
	var (
		out     []domain.NormalizedProduct
		lastErr error
	)
	for _, c := range candidates {
		np, err := p.normalizer.Normalize(c, ch.Currency)
		if err != nil {
			log.Warn("candidate dropped", "url", c.URL.Final, "error", err)
			lastErr = err
			continue
		}
		out = append(out, np)
	}
	var err error
	if len(out) == 0 {
		err = lastErr
		if err == nil {
			err = domain.NewNormalizationError("no usable product", nil)
		}
	}
	p.observer.Stage(domain.StageNormalize, time.Since(start), err)
	return out, err
}

// tagAll applies the channel's affiliate route. Tagging failures keep the
// product with its plain URL and the applied flag unset.
func (p *Pipeline) tagAll(log *slog.Logger, ch domain.Channel, products []domain.NormalizedProduct) {
	start := time.Now()
	route := affiliate.RouteFor(ch)
	var failed error
	for i := range products {
		res, err := p.tagger.Tag(products[i].ProductURL, route)
		if err != nil {
			log.Warn("affiliate tagging failed", "url", products[i].ProductURL, "network", route.Network, "error", err)
			failed = err
			products[i].AffiliateURL = products[i].ProductURL
			products[i].AffiliateNetwork = string(route.Network)
			products[i].AffiliateTagApplied = false
			continue
		}
		products[i].AffiliateURL = res.URL
		products[i].AffiliateNetwork = string(res.Network)
		products[i].AffiliateTagApplied = res.Applied
	}
	p.observer.Stage(domain.StageTag, time.Since(start), failed)
}

func (p *Pipeline) classifyAll(ctx context.Context, ch domain.Channel, products []domain.NormalizedProduct) ([]domain.CategoryAssignment, error) {
	start := time.Now()
	out := make([]domain.CategoryAssignment, 0, len(products))
	var err error
	for _, np := range products {
		var a domain.CategoryAssignment
		a, err = p.classifier.Classify(ctx, classify.Input{Title: np.Title, Description: np.Description, Channel: ch})
		if err != nil {
			break
		}
		out = append(out, a)
	}
	p.observer.Stage(domain.StageClassify, time.Since(start), err)
	return out, err
}

func (p *Pipeline) buildRecords(ch domain.Channel, rec domain.ProcessingRecord, products []domain.NormalizedProduct, assignments []domain.CategoryAssignment) []domain.UnifiedContentRecord {
	members := bundle.Group(rec.Key(), len(products))
	now := p.now()
	posted := rec.Message.Timestamp
	if posted.IsZero() {
		posted = now
	}

	out := make([]domain.UnifiedContentRecord, len(products))
	for i, np := range products {
		a := assignments[i]
		r := domain.UnifiedContentRecord{
			Title:               np.Title,
			Description:         np.Description,
			Price:               np.Price,
			OriginalPrice:       np.OriginalPrice,
			Currency:            np.Currency,
			Discount:            np.Discount,
			ImageURL:            np.ImageURL,
			ProductURL:          np.ProductURL,
			AffiliateURL:        np.AffiliateURL,
			AffiliateNetwork:    np.AffiliateNetwork,
			AffiliateTagApplied: np.AffiliateTagApplied,
			Rating:              np.Rating,
			ReviewCount:         np.ReviewCount,
			CategoryID:          a.Category.ID,
			Category:            a.Category.Name,
			ContentType:         a.ContentType,
			DisplayPages:        a.DisplayPages,
			PageSlug:            ch.PageSlug,
			IsFeatured:          a.Featured,
			BundleGroupID:       members[i].GroupID,
			BundleSequence:      members[i].Sequence,
			BundleTotal:         members[i].Total,
			SourceChannelID:     rec.ChannelID,
			SourceMessageID:     rec.MessageID,
			ExtractionSource:    np.Source,
			LimitedOffer:        np.LimitedOffer,
			IsActive:            true,
			IsVisible:           true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if r.ImageURL == "" {
			r.ImageURL = rec.Message.ImageURL
		}
		if np.LimitedOffer || ch.TimerHours > 0 {
			hours := ch.TimerHours
			if hours <= 0 {
				hours = defaultTimerHours
			}
			startAt := posted
			r.HasTimer = true
			r.TimerStart = &startAt
			r.TimerDurationHours = hours
		}
		out[i] = r
	}
	return out
}

// persist writes the bundle, retrying transient store errors. State
// conflicts and duplicates are not retried.
func (p *Pipeline) persist(ctx context.Context, recordID int64, records []domain.UnifiedContentRecord) ([]int64, error) {
	start := time.Now()
	var ids []int64
	err := resilience.Retry(ctx, p.persistRetry, func(ctx context.Context) error {
		var err error
		ids, err = p.content.SaveBundle(ctx, recordID, records)
		var transition *domain.TransitionError
		if errors.Is(err, domain.ErrDuplicate) || errors.As(err, &transition) {
			return resilience.Permanent(err)
		}
		return err
	})
	p.observer.Stage(domain.StagePersist, time.Since(start), err)
	return ids, err
}

// fail marks the record FAILED and alerts operators. It uses a context
// detached from ctx so an expired message deadline can still be recorded.
func (p *Pipeline) fail(ctx context.Context, rec domain.ProcessingRecord, stage domain.Stage, cause error) (Outcome, error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failTimeout)
	defer cancel()

	log := p.logger.With("channel_id", rec.ChannelID, "message_id", rec.MessageID, "record_id", rec.ID)
	reason := cause.Error()
	if err := p.store.Fail(failCtx, rec.ID, stage, reason); err != nil {
		log.Error("cannot mark record failed", "stage", stage, "error", err)
	}
	log.Error("message failed", "stage", stage, "attempts", rec.Attempts, "error", cause)

	if p.notifier != nil {
		text := fmt.Sprintf("Deal ingestion failed\nchannel: %s\nmessage: %d\nstage: %s\nattempt: %d\nerror: %s",
			rec.ChannelID, rec.MessageID, stage, rec.Attempts, reason)
		if err := p.notifier.PublishAlert(failCtx, text); err != nil {
			log.Warn("failure alert not delivered", "error", err)
		}
	}

	p.finish(OutcomeFailed)
	return OutcomeFailed, fmt.Errorf("%s %s: %w", stage, rec.Key(), cause)
}

func (p *Pipeline) finish(o Outcome) Outcome {
	p.observer.Outcome(string(o))
	return o
}

type noopObserver struct{}

func (noopObserver) Outcome(string)                           {}
func (noopObserver) Stage(domain.Stage, time.Duration, error) {}
func (noopObserver) Products([]domain.UnifiedContentRecord)   {}
func (noopObserver) Begin()                                   {}
func (noopObserver) End()                                     {}
