package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"DealsIngestor/internal/affiliate"
	"DealsIngestor/internal/classify"
	"DealsIngestor/internal/config"
	"DealsIngestor/internal/infrastructure/httpapi"
	"DealsIngestor/internal/infrastructure/metrics"
	"DealsIngestor/internal/infrastructure/parser"
	"DealsIngestor/internal/infrastructure/queue"
	"DealsIngestor/internal/infrastructure/resolver"
	"DealsIngestor/internal/infrastructure/scheduler"
	"DealsIngestor/internal/infrastructure/storage"
	"DealsIngestor/internal/infrastructure/telegram"
	"DealsIngestor/internal/logging"
	"DealsIngestor/internal/ports"
	"DealsIngestor/internal/resilience"
	"DealsIngestor/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	metrics   *metrics.Metrics
	channels  *config.ChannelTable
	pipeline  *usecase.Pipeline
	retention *usecase.Retention
}

// New opens the store and builds the pipeline. Redis is only connected by Run,
// so operator commands work without it.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	guard := resilience.NewController(resilienceConfig(cfg.Resilience), func(host string, _, to resilience.State) {
		m.SetBreakerState(host, int(to))
	}, baseLogger.With("component", "resilience"))

	registry, err := parser.BuildRegistry(nil, cfg.Scraper.Profiles, baseLogger.With("component", "profiles"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	var render parser.Fetcher
	if cfg.Scraper.Chrome.Enabled {
		render = parser.NewChromeFetcher(parser.ChromeOptions{
			Timeout:   cfg.Scraper.Chrome.Timeout,
			Settle:    cfg.Scraper.Chrome.Settle,
			UserAgent: cfg.Scraper.UserAgent,
			ExecPath:  cfg.Scraper.Chrome.ExecPath,
		})
	}
	static := parser.NewHTTPFetcher(&http.Client{Timeout: cfg.Scraper.Timeout}, cfg.Scraper.UserAgent)

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID, tg.APIBase)
	} else {
		baseLogger.Warn("telegram alerts disabled: bot token or chat id missing")
	}

	channels := config.NewChannelTable(cfg.Channels)
	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Channels: channels,
		Store:    store,
		Content:  store,
		Resolver: resolver.New(resolver.Options{
			MaxHops:   cfg.Resolver.MaxHops,
			Timeout:   cfg.Resolver.Timeout,
			UserAgent: cfg.Scraper.UserAgent,
		}, guard, baseLogger.With("component", "resolver")),
		Scraper:     parser.NewHTTPScraper(registry, static, render, guard, baseLogger.With("component", "scraper")),
		Classifier:  classify.New(store),
		Tagger:      affiliate.NewTagger(affiliateDefaults(cfg.Affiliate.Defaults), affiliate.Network(cfg.Affiliate.Fallback)),
		Notifier:    notifier,
		Observer:    m,
		Logger:      baseLogger.With("component", "pipeline"),
		IgnoreHosts: cfg.Pipeline.IgnoreHosts,
		PersistRetry: resilience.RetryConfig{
			MaxAttempts:  cfg.Pipeline.PersistAttempts,
			InitialDelay: cfg.Resilience.InitialDelay,
			MaxDelay:     cfg.Resilience.MaxDelay,
			Multiplier:   2,
		},
	})

	retention := usecase.NewRetention(store, cfg.Scheduler.Retention(), baseLogger)
	retention.StaleAfter = cfg.Pipeline.MessageTimeout
	retention.OnPurge = m.Purged
	retention.OnStale = m.Stale

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		metrics:   m,
		channels:  channels,
		pipeline:  pipeline,
		retention: retention,
	}, nil
}

// Operations returns operator actions that reprocess inline.
func (a *Application) Operations() *usecase.Operations {
	return usecase.NewOperations(a.store, a.store, a.pipeline, nil, a.logger)
}

// Retention exposes the purge and stale sweep jobs for one-off runs.
func (a *Application) Retention() *usecase.Retention {
	return a.retention
}

// Run consumes the intake queue, serves the status API and schedules
// retention until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	q, err := queue.Connect(ctx, a.cfg.Redis, a.logger.With("component", "queue"))
	if err != nil {
		return err
	}
	defer q.Close()

	cron, err := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.logger.With("component", "scheduler"))
	if err != nil {
		return err
	}
	jobs := usecase.NewScheduler(cron, a.retention)
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		if err := jobs.Stop(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()
	a.logger.Info("retention and stale sweep scheduled", "cron", a.cfg.Scheduler.CronExpression, "next", cron.Next(time.Now()))

	pool := usecase.NewPool(a.cfg.Pipeline.Workers, a.cfg.Pipeline.MessageTimeout, a.logger)
	coordinator := usecase.NewCoordinator(q, a.channels, a.pipeline, pool, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coordinator.Run(gctx) })
	if a.cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(httpapi.Options{
			Ops:     usecase.NewOperations(a.store, a.store, a.pipeline, pool, a.logger),
			Checks:  map[string]httpapi.Pinger{"database": a.store, "redis": q},
			Gauge:   a.metrics,
			Metrics: a.metrics.Handler(),
			Logger:  a.logger.With("component", "httpapi"),
		})
		server := httpapi.NewServer(a.cfg.HTTP.Addr, router, a.logger)
		g.Go(func() error { return server.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

func resilienceConfig(c config.ResilienceConfig) resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:  c.MaxAttempts,
			InitialDelay: c.InitialDelay,
			MaxDelay:     c.MaxDelay,
			Multiplier:   2,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: c.FailureThreshold,
			Cooldown:         c.Cooldown,
		},
		RatePerSecond:  c.RatePerSecond,
		Burst:          c.Burst,
		AttemptTimeout: c.AttemptTimeout,
	}
}

func affiliateDefaults(in map[string]string) map[affiliate.Network]string {
	out := make(map[affiliate.Network]string, len(in))
	for k, v := range in {
		out[affiliate.Network(k)] = v
	}
	return out
}
