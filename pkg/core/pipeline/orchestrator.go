// Package pipeline wires the three calculation stages together:
// preparation, pure compute, and commit. The orchestrator owns stage
// timing, telemetry, and the overall wall-clock budget.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/commit"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/compute"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// EngineVersion identifies the calculation semantics. It is recorded with
// every committed result; a semantics change must bump it.
const EngineVersion = "1.0.0"

// Preparer is the preparation stage surface.
type Preparer interface {
	Prepare(ctx context.Context, req *models.CalculateRequest) (*models.FrozenInput, error)
}

// Committer is the commit stage surface.
type Committer interface {
	Commit(ctx context.Context, frozen *models.FrozenInput, result *models.Result, processing time.Duration) (*commit.Outcome, error)
}

// ComputeFunc is the pure compute stage. It defaults to compute.Compute.
type ComputeFunc func(in *models.FrozenInput, opts compute.Options) (*models.Result, error)

// Orchestrator runs one calculation end to end.
type Orchestrator struct {
	preparer  Preparer
	computeFn ComputeFunc
	committer Committer
	recorder  *metrics.Recorder
	logger    *zap.Logger
	budget    time.Duration
	closed    atomic.Bool
}

// NewOrchestrator builds an orchestrator. budget caps the wall clock of
// one calculation; zero applies the default five seconds.
func NewOrchestrator(preparer Preparer, committer Committer, recorder *metrics.Recorder, logger *zap.Logger, budget time.Duration) *Orchestrator {
	if budget <= 0 {
		budget = time.Duration(compute.WallBudgetMs) * time.Millisecond
	}
	return &Orchestrator{
		preparer:  preparer,
		computeFn: compute.Compute,
		committer: committer,
		recorder:  recorder,
		logger:    logger,
		budget:    budget,
	}
}

// SetComputeFunc swaps the pure stage, which tests use.
func (o *Orchestrator) SetComputeFunc(fn ComputeFunc) {
	o.computeFn = fn
}

// Shutdown marks the orchestrator unusable. In-flight calculations finish;
// new ones are refused.
func (o *Orchestrator) Shutdown() {
	o.closed.Store(true)
}

// Calculate runs prepare, compute, and commit for one request, recording
// per-stage timings into the result and the telemetry sinks.
func (o *Orchestrator) Calculate(ctx context.Context, req *models.CalculateRequest) (*models.CalculateResponse, error) {
	if o.closed.Load() {
		return nil, models.NewError(models.ErrInternal, "engine is shut down")
	}
	if req == nil || req.ProposalID == "" {
		return nil, models.NewError(models.ErrInvalidInput, "proposalId is required")
	}

	start := time.Now()
	deadline := start.Add(o.budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	frozen, err := o.preparer.Prepare(ctx, req)
	prepDone := time.Now()
	o.recorder.ObserveStage("preparation", prepDone.Sub(start))
	if err != nil {
		return nil, o.fail(req.ProposalID, "preparation", err)
	}

	result, err := o.computeFn(frozen, compute.Options{Deadline: deadline})
	computeDone := time.Now()
	o.recorder.ObserveStage("compute", computeDone.Sub(prepDone))
	if err != nil {
		return nil, o.fail(req.ProposalID, "compute", err)
	}

	outcome, err := o.committer.Commit(ctx, frozen, result, computeDone.Sub(start))
	commitDone := time.Now()
	o.recorder.ObserveStage("commit", commitDone.Sub(computeDone))
	if err != nil {
		return nil, o.fail(req.ProposalID, "commit", err)
	}

	// Timings are diagnostics, never part of the checksummed result body.
	// Replays shallow-copy so the cached result stays untouched.
	final := *outcome.Result
	final.Timings = &models.Timings{
		PreparationMs: prepDone.Sub(start).Milliseconds(),
		ComputeMs:     computeDone.Sub(prepDone).Milliseconds(),
		CommitMs:      commitDone.Sub(computeDone).Milliseconds(),
		TotalMs:       commitDone.Sub(start).Milliseconds(),
	}

	o.logger.Info("calculation completed",
		zap.String("proposal_id", req.ProposalID),
		zap.String("checksum", final.Checksum),
		zap.Bool("replayed", outcome.Replayed),
		zap.Int64("total_ms", final.Timings.TotalMs))

	return &models.CalculateResponse{Result: &final, Replayed: outcome.Replayed}, nil
}

func (o *Orchestrator) fail(proposalID, stage string, err error) error {
	kind := models.KindOf(err)
	o.recorder.IncError(string(kind))
	o.logger.Warn("calculation failed",
		zap.String("proposal_id", proposalID),
		zap.String("stage", stage),
		zap.String("kind", string(kind)),
		zap.Error(err))
	return err
}
