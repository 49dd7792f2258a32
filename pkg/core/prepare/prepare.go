// Package prepare is the first pipeline stage: it turns a raw calculation
// request into a normalised, immutable, deterministic frozen input, using
// the cache, a delta patch, or a fresh load depending on state. Concurrent
// callers for the same proposal coalesce onto one in-flight preparation.
package prepare

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/canonical"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/rules"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// SnapshotSource loads a consistent snapshot of one proposal's pricing
// inputs. The store implementation reads everything inside a single
// REPEATABLE READ transaction.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context, proposalID string) (*models.Snapshot, error)
}

// Config holds the preparation knobs.
type Config struct {
	CacheTTL  time.Duration
	CacheSize int
	RuleTTL   time.Duration
}

// Stage is the preparation stage.
type Stage struct {
	source    SnapshotSource
	cache     *frozenCache
	ruleCache *rules.Cache
	failures  *gocache.Cache
	flights   singleflight.Group
	recorder  *metrics.Recorder
	logger    *zap.Logger
	cfg       Config
}

// NewStage builds a preparation stage. source may be nil when every
// request carries its inputs inline (the CLI path).
func NewStage(source SnapshotSource, recorder *metrics.Recorder, logger *zap.Logger, cfg Config) *Stage {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.RuleTTL <= 0 {
		cfg.RuleTTL = time.Hour
	}
	return &Stage{
		source:    source,
		cache:     newFrozenCache(cfg.CacheTTL, cfg.CacheSize),
		ruleCache: rules.NewCache(cfg.RuleTTL),
		failures:  gocache.New(FailureWindow, FailureWindow),
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
	}
}

// Prepare returns a frozen input for the request. Concurrent callers for
// the same proposal share one in-flight preparation; each waiter still
// honours its own deadline and observes TIMEOUT independently.
func (s *Stage) Prepare(ctx context.Context, req *models.CalculateRequest) (*models.FrozenInput, error) {
	ch := s.flights.DoChan(req.ProposalID, func() (interface{}, error) {
		return s.prepare(ctx, req)
	})
	select {
	case <-ctx.Done():
		return nil, models.NewError(models.ErrTimeout, "preparation timed out")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.FrozenInput), nil
	}
}

func (s *Stage) prepare(ctx context.Context, req *models.CalculateRequest) (*models.FrozenInput, error) {
	key, err := requestFingerprint(req)
	if err != nil {
		return nil, models.WrapError(models.ErrInternal, "fingerprint request", err)
	}

	if ent, ok := s.cache.Get(key); ok {
		s.recorder.CacheHit("preparation")
		if req.Changes != nil {
			decision := s.decideDelta(ent, req)
			if decision.Patch {
				patched, err := s.applyDelta(ent, req)
				if err != nil {
					s.recordFailure(req.ProposalID)
					s.logger.Warn("delta patch failed, rebuilding",
						zap.String("proposal_id", req.ProposalID), zap.Error(err))
					return s.freshLoad(ctx, req, key)
				}
				return patched, nil
			}
			s.logger.Debug("delta rejected, rebuilding",
				zap.String("proposal_id", req.ProposalID), zap.String("reason", decision.Reason))
			return s.freshLoad(ctx, req, key)
		}
		return ent.frozen, nil
	}

	s.recorder.CacheMiss("preparation")
	return s.freshLoad(ctx, req, key)
}

// freshLoad builds a frozen input from scratch: snapshot, normalise,
// compile rules, freeze, cache.
func (s *Stage) freshLoad(ctx context.Context, req *models.CalculateRequest, key string) (*models.FrozenInput, error) {
	snap, err := s.snapshot(ctx, req)
	if err != nil {
		return nil, err
	}

	norm, err := normalize(snap)
	if err != nil {
		return nil, err
	}

	compiled, err := s.compileRules(norm)
	if err != nil {
		return nil, err
	}

	frozen := &models.FrozenInput{
		ProposalID:    norm.ProposalID,
		TenantID:      norm.TenantID,
		SchemaVersion: norm.Config.SchemaVersion,
		Metadata:      norm.Metadata,
		LineItems:     norm.LineItems,
		Modifiers:     norm.Modifiers,
		Dependencies:  norm.Dependencies,
		Config:        norm.Config,
		CompiledRules: compiled,
		Fingerprint:   key,
		PreparedAt:    time.Now(),
	}

	s.cache.Put(key, &entry{
		frozen:        frozen,
		schemaVersion: frozen.SchemaVersion,
		storedAt:      time.Now(),
		itemCount:     len(frozen.LineItems) + len(frozen.Modifiers),
	})
	return frozen, nil
}

// snapshot prefers inline request data and falls back to the store.
func (s *Stage) snapshot(ctx context.Context, req *models.CalculateRequest) (*models.Snapshot, error) {
	if len(req.LineItems) > 0 || s.source == nil {
		return &models.Snapshot{
			ProposalID:   req.ProposalID,
			TenantID:     req.TenantID,
			Metadata:     req.Metadata,
			LineItems:    req.LineItems,
			Modifiers:    req.Modifiers,
			Dependencies: req.Dependencies,
			Rules:        req.Rules,
			Config:       req.Config,
			FetchedAt:    time.Now(),
		}, nil
	}

	snap, err := s.source.FetchSnapshot(ctx, req.ProposalID)
	if err != nil {
		return nil, models.WrapError(models.ErrDataFetch, "fetch proposal snapshot", err)
	}
	// The request's config wins when present; stored config fills gaps.
	if req.Config.Mode != "" {
		snap.Config = req.Config
	}
	if req.Metadata != nil {
		snap.Metadata = req.Metadata
	}
	return snap, nil
}

func (s *Stage) compileRules(snap *models.Snapshot) (map[string][]*rules.Program, error) {
	if len(snap.Rules) == 0 {
		return nil, nil
	}
	compiled := make(map[string][]*rules.Program)
	for _, r := range snap.Rules {
		p, err := s.ruleCache.CompileCached(snap.TenantID, snap.Config.SchemaVersion, r.Expression)
		if err != nil {
			return nil, models.WrapError(models.ErrRuleCompile, "compile rule for modifier "+r.ModifierID, err)
		}
		compiled[r.ModifierID] = append(compiled[r.ModifierID], p)
	}
	return compiled, nil
}

// recordFailure bumps the proposal's delta failure counter inside the
// rolling window.
func (s *Stage) recordFailure(proposalID string) {
	if n, ok := s.failures.Get(proposalID); ok {
		s.failures.SetDefault(proposalID, n.(int)+1)
		return
	}
	s.failures.SetDefault(proposalID, 1)
}

func (s *Stage) recentFailures(proposalID string) int {
	if n, ok := s.failures.Get(proposalID); ok {
		return n.(int)
	}
	return 0
}

// requestFingerprint keys the preparation cache: the canonical fingerprint
// of the request with the changes delta removed.
func requestFingerprint(req *models.CalculateRequest) (string, error) {
	stripped := *req
	stripped.Changes = nil
	return canonical.Fingerprint(&stripped)
}

// inputFingerprint fingerprints a frozen input's content, used after delta
// patching so the patched value carries its own identity.
func inputFingerprint(in *models.FrozenInput) (string, error) {
	return canonical.Fingerprint(map[string]interface{}{
		"proposalId":   in.ProposalID,
		"tenantId":     in.TenantID,
		"lineItems":    in.LineItems,
		"modifiers":    in.Modifiers,
		"dependencies": in.Dependencies,
		"config":       in.Config,
	})
}
