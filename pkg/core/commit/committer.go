// Package commit is the third pipeline stage: it serializes per-proposal
// writes behind an advisory lock, replays identical calculations by
// checksum instead of rewriting them, and persists result, audit trail,
// and outbox event in one transaction.
package commit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/store"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/webhook"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// ResultStore is the persistence surface the committer needs.
type ResultStore interface {
	LookupByChecksum(ctx context.Context, checksum string) ([]byte, error)
	SaveCommit(ctx context.Context, rec *store.CommitRecord) error
}

// Locker serializes commits per proposal. Lock blocks until held and
// returns the release function.
type Locker interface {
	Lock(ctx context.Context, proposalID string) (func(context.Context) error, error)
}

// StoreLocker locks through Postgres advisory locks.
type StoreLocker struct{}

// Lock acquires the per-proposal advisory lock.
func (StoreLocker) Lock(ctx context.Context, proposalID string) (func(context.Context) error, error) {
	l, err := store.AcquireProposalLock(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}

// Config holds the commit knobs.
type Config struct {
	EngineVersion    string
	ResultCacheTTL   time.Duration
	WebhookEndpoints []webhook.Endpoint
}

// Outcome is what a commit produced: the result as stored, and whether it
// was replayed from an earlier identical calculation.
type Outcome struct {
	Result   *models.Result
	Replayed bool
}

// Committer is the commit stage.
type Committer struct {
	results  ResultStore
	locker   Locker
	local    *gocache.Cache
	redis    *redis.Client
	notifier *webhook.Notifier
	recorder *metrics.Recorder
	logger   *zap.Logger
	cfg      Config
}

// NewCommitter builds a committer. redis and notifier may be nil; the
// corresponding layers are then skipped.
func NewCommitter(results ResultStore, locker Locker, rdb *redis.Client, notifier *webhook.Notifier, recorder *metrics.Recorder, logger *zap.Logger, cfg Config) *Committer {
	if cfg.ResultCacheTTL <= 0 {
		cfg.ResultCacheTTL = time.Hour
	}
	return &Committer{
		results:  results,
		locker:   locker,
		local:    gocache.New(cfg.ResultCacheTTL, 2*cfg.ResultCacheTTL),
		redis:    rdb,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
	}
}

// Commit persists a computed result. An identical calculation, identified
// by checksum, is replayed from cache or storage without touching the
// database again. The lock is held for the whole decision so concurrent
// commits of the same proposal serialize. processing is the elapsed
// preparation-plus-compute wall clock, recorded in the event metadata.
func (c *Committer) Commit(ctx context.Context, frozen *models.FrozenInput, result *models.Result, processing time.Duration) (*Outcome, error) {
	release, err := c.locker.Lock(ctx, result.ProposalID)
	if err != nil {
		return nil, models.WrapError(models.ErrDatabase, "acquire proposal lock", err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			c.logger.Warn("failed to release proposal lock",
				zap.String("proposal_id", result.ProposalID), zap.Error(err))
		}
	}()

	if prior, ok := c.lookupPrior(ctx, result.Checksum); ok {
		c.recorder.CacheHit("result")
		return &Outcome{Result: prior, Replayed: true}, nil
	}
	c.recorder.CacheMiss("result")

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, "marshal result", err)
	}

	groups := make([]store.AuditGroup, len(result.Adjustments))
	for i, adj := range result.Adjustments {
		groups[i] = store.AuditGroup{GroupKey: adj.GroupKey, Amount: adj.AmountQ2.StringFixed(2)}
	}

	now := time.Now().UTC()
	meta := map[string]interface{}{
		"engineVersion": c.cfg.EngineVersion,
		"processingMs":  processing.Milliseconds(),
	}
	// The envelope carries the full canonical result as its payload; the
	// event id lets at-least-once consumers deduplicate redeliveries.
	payload, err := json.Marshal(map[string]interface{}{
		"eventId":    uuid.NewString(),
		"eventType":  models.EventCalculationCompleted,
		"timestamp":  now,
		"proposalId": result.ProposalID,
		"checksum":   result.Checksum,
		"payload":    json.RawMessage(resultJSON),
		"metadata":   meta,
	})
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, "marshal event payload", err)
	}

	hook, err := json.Marshal(map[string]interface{}{
		"event":     models.EventCalculationCompleted,
		"timestamp": now,
		"data":      json.RawMessage(resultJSON),
		"metadata":  meta,
	})
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, "marshal webhook body", err)
	}

	rec := &store.CommitRecord{
		ProposalID:       result.ProposalID,
		Checksum:         result.Checksum,
		InputFingerprint: frozen.Fingerprint,
		EngineVersion:    c.cfg.EngineVersion,
		ResultJSON:       resultJSON,
		Groups:           groups,
		EventType:        models.EventCalculationCompleted,
		EventPayload:     payload,
	}
	if err := c.results.SaveCommit(ctx, rec); err != nil {
		return nil, models.WrapError(models.ErrDatabase, "persist calculation", err)
	}

	c.afterCommit(result, resultJSON, hook)
	return &Outcome{Result: result, Replayed: false}, nil
}

// lookupPrior walks the idempotency layers: local cache, then Redis, then
// the database.
func (c *Committer) lookupPrior(ctx context.Context, checksum string) (*models.Result, bool) {
	if v, ok := c.local.Get(checksum); ok {
		return v.(*models.Result), true
	}

	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, resultKey(checksum)).Bytes(); err == nil {
			var r models.Result
			if err := json.Unmarshal(raw, &r); err == nil {
				c.local.SetDefault(checksum, &r)
				return &r, true
			}
		}
	}

	raw, err := c.results.LookupByChecksum(ctx, checksum)
	if err != nil {
		c.logger.Warn("checksum lookup failed, committing fresh", zap.Error(err))
		return nil, false
	}
	if raw == nil {
		return nil, false
	}
	var r models.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		c.logger.Warn("stored result unreadable, committing fresh", zap.Error(err))
		return nil, false
	}
	c.local.SetDefault(checksum, &r)
	return &r, true
}

// afterCommit runs the non-transactional followups. None of them can fail
// the commit.
func (c *Committer) afterCommit(result *models.Result, resultJSON, hookBody []byte) {
	c.local.SetDefault(result.Checksum, result)

	if c.redis != nil {
		if err := c.redis.Set(context.Background(), resultKey(result.Checksum), resultJSON, c.cfg.ResultCacheTTL).Err(); err != nil {
			c.logger.Warn("failed to cache result in redis", zap.Error(err))
		}
	}

	if c.notifier != nil && len(c.cfg.WebhookEndpoints) > 0 {
		endpoints := c.cfg.WebhookEndpoints
		go c.notifier.Notify(context.Background(), endpoints, hookBody)
	}
}

func resultKey(checksum string) string {
	return "calc:result:" + checksum
}
