// Package outbox drains the transactional outbox into the event broker.
// One publisher runs per process; claims use row locks so extra processes
// stay safe, just redundant.
package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/events"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// DefaultMaxRetries is how many failed publishes a row survives before it
// is parked as DEAD_LETTER, unless the publisher is configured otherwise.
const DefaultMaxRetries = 10

// Repo is the outbox persistence surface.
type Repo interface {
	Claim(ctx context.Context) ([]models.OutboxEvent, error)
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string, dead bool) error
}

// EventPublisher sends one event to the broker.
type EventPublisher interface {
	Publish(subject string, payload []byte) error
}

// Publisher sweeps the outbox on a schedule.
type Publisher struct {
	repo       Repo
	publisher  EventPublisher
	recorder   *metrics.Recorder
	logger     *zap.Logger
	maxRetries int
	cron       *cron.Cron
}

// NewPublisher builds an outbox publisher. maxRetries <= 0 applies
// DefaultMaxRetries.
func NewPublisher(repo Repo, publisher EventPublisher, recorder *metrics.Recorder, logger *zap.Logger, maxRetries int) *Publisher {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Publisher{
		repo:       repo,
		publisher:  publisher,
		recorder:   recorder,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Start schedules sweeps at the given interval. SkipIfStillRunning keeps
// a slow sweep from overlapping the next one, so the process runs at most
// one sweep at a time.
func (p *Publisher) Start(interval time.Duration) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	_, err := c.AddFunc("@every "+interval.String(), func() {
		if err := p.RunOnce(context.Background()); err != nil {
			p.logger.Warn("outbox sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	p.cron = c
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (p *Publisher) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
}

// RunOnce claims one batch of due rows and publishes them in claim order.
func (p *Publisher) RunOnce(ctx context.Context) error {
	batch, err := p.repo.Claim(ctx)
	if err != nil {
		return models.WrapError(models.ErrDatabase, "claim outbox batch", err)
	}

	for _, event := range batch {
		p.publish(ctx, event)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, event models.OutboxEvent) {
	err := p.publisher.Publish(events.Subject(event.ProposalID), event.Payload)
	if err == nil {
		if err := p.repo.MarkCompleted(ctx, event.ID); err != nil {
			p.logger.Warn("failed to finalize outbox row",
				zap.Int64("outbox_id", event.ID), zap.Error(err))
			return
		}
		p.recorder.OutboxOutcome("published")
		return
	}

	retryCount := event.RetryCount + 1
	dead := retryCount >= p.maxRetries
	nextRetry := time.Now().Add(Backoff(retryCount))

	if markErr := p.repo.MarkFailed(ctx, event.ID, retryCount, nextRetry, err.Error(), dead); markErr != nil {
		p.logger.Warn("failed to record outbox failure",
			zap.Int64("outbox_id", event.ID), zap.Error(markErr))
		return
	}

	if dead {
		p.recorder.OutboxOutcome("dead_letter")
		p.logger.Error("outbox event dead-lettered",
			zap.Int64("outbox_id", event.ID),
			zap.String("proposal_id", event.ProposalID),
			zap.Error(err))
		return
	}
	p.recorder.OutboxOutcome("retried")
	p.logger.Warn("outbox publish failed, rescheduled",
		zap.Int64("outbox_id", event.ID),
		zap.Int("retry_count", retryCount),
		zap.Time("next_retry_at", nextRetry),
		zap.Error(err))
}

// Backoff returns the delay before retry n: 2^n seconds.
func Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		retryCount = 30
	}
	return time.Duration(1<<uint(retryCount)) * time.Second
}
