package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/ports"
)

const (
	receiveErrorPause = 2 * time.Second
	drainTimeout      = 30 * time.Second
)

// Coordinator runs one intake loop per configured channel and hands every
// message to the pool, so a slow scrape never blocks intake.
type Coordinator struct {
	source   ports.MessageSource
	channels ports.ChannelDirectory
	process  func(ctx context.Context, msg domain.ChannelMessage) (Outcome, error)
	pool     *Pool
	logger   *slog.Logger
	pause    time.Duration
}

// NewCoordinator wires intake to the pipeline through pool.
func NewCoordinator(source ports.MessageSource, channels ports.ChannelDirectory, pipeline *Pipeline, pool *Pool, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		source:   source,
		channels: channels,
		process:  pipeline.Process,
		pool:     pool,
		logger:   logger.With("component", "coordinator"),
		pause:    receiveErrorPause,
	}
}

// Run blocks until ctx is cancelled, then drains the pool.
func (c *Coordinator) Run(ctx context.Context) error {
	ids := c.channels.IDs()
	c.logger.Info("intake started", "channels", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			return c.intake(gctx, id)
		})
	}
	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if drainErr := c.pool.Drain(drainCtx); drainErr != nil {
		c.logger.Warn("in-flight messages abandoned", "error", drainErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Info("intake stopped")
	return nil
}

func (c *Coordinator) intake(ctx context.Context, channelID string) error {
	log := c.logger.With("channel_id", channelID)
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.source.Receive(ctx, channelID)
		switch {
		case err == nil:
		case errors.Is(err, ports.ErrNoMessage):
			continue
		case errors.Is(err, ports.ErrMalformedMessage):
			log.Warn("malformed message dropped", "error", err)
			continue
		case ctx.Err() != nil:
			return nil
		default:
			log.Error("receive failed", "error", err)
			select {
			case <-time.After(c.pause):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		// A popped message is always handed to a worker, even during shutdown.
		job := func(jobCtx context.Context) error {
			outcome, err := c.process(jobCtx, msg)
			log.Debug("message done", "message_id", msg.MessageID, "outcome", outcome)
			return err
		}
		if err := c.pool.Submit(context.WithoutCancel(ctx), job); err != nil {
			log.Error("message not scheduled", "message_id", msg.MessageID, "error", err)
		}
	}
}
