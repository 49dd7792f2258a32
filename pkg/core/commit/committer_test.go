package commit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/metrics"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/core/store"
	"github.com/SmackdabDevOps/calc-engine-standalone/pkg/models"
)

// mockStore records saves and serves checksum lookups.
type mockStore struct {
	lookupFunc func(ctx context.Context, checksum string) ([]byte, error)
	saveFunc   func(ctx context.Context, rec *store.CommitRecord) error
	saved      []*store.CommitRecord
}

func (m *mockStore) LookupByChecksum(ctx context.Context, checksum string) ([]byte, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, checksum)
	}
	return nil, nil
}

func (m *mockStore) SaveCommit(ctx context.Context, rec *store.CommitRecord) error {
	m.saved = append(m.saved, rec)
	if m.saveFunc != nil {
		return m.saveFunc(ctx, rec)
	}
	return nil
}

// mockLocker counts acquisitions and releases.
type mockLocker struct {
	lockErr  error
	locks    int
	releases int
}

func (m *mockLocker) Lock(ctx context.Context, proposalID string) (func(context.Context) error, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	m.locks++
	return func(context.Context) error {
		m.releases++
		return nil
	}, nil
}

func testResult(checksum string) *models.Result {
	total := decimal.RequireFromString("220.00")
	return &models.Result{
		ProposalID:         "p-1",
		SchemaVersion:      "v1",
		TaxMode:            models.TaxModeRetail,
		CustomerGrandTotal: total,
		Checksum:           checksum,
		Adjustments: []models.Adjustment{
			{GroupKey: "TAXABLE|fixed|fee|false|0|||pre_tax|null", AmountQ2: decimal.RequireFromString("20.00")},
		},
	}
}

func testCommitter(results ResultStore, locker Locker) *Committer {
	return NewCommitter(results, locker, nil, nil, metrics.NewRecorder(nil), zap.NewNop(),
		Config{EngineVersion: "1.0.0"})
}

// =============================================================================
// COMMIT TESTS
// =============================================================================

func TestCommitPersistsFreshResult(t *testing.T) {
	st := &mockStore{}
	locker := &mockLocker{}
	c := testCommitter(st, locker)

	frozen := &models.FrozenInput{ProposalID: "p-1", Fingerprint: "fp-1"}
	result := testResult("abc123")

	outcome, err := c.Commit(context.Background(), frozen, result, 42*time.Millisecond)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if outcome.Replayed {
		t.Error("fresh commit must not be marked replayed")
	}
	if outcome.Result != result {
		t.Error("fresh commit must return the computed result")
	}

	if len(st.saved) != 1 {
		t.Fatalf("saved records = %d, want 1", len(st.saved))
	}
	rec := st.saved[0]
	if rec.ProposalID != "p-1" || rec.Checksum != "abc123" || rec.InputFingerprint != "fp-1" {
		t.Errorf("record identity = %s/%s/%s", rec.ProposalID, rec.Checksum, rec.InputFingerprint)
	}
	if rec.EngineVersion != "1.0.0" {
		t.Errorf("engineVersion = %q", rec.EngineVersion)
	}
	if rec.EventType != models.EventCalculationCompleted {
		t.Errorf("eventType = %q", rec.EventType)
	}
	if len(rec.Groups) != 1 || rec.Groups[0].Amount != "20.00" {
		t.Errorf("audit groups = %+v, want one 20.00 group", rec.Groups)
	}
	if len(rec.ResultJSON) == 0 {
		t.Error("result JSON must be populated")
	}

	// The event envelope carries the full result as its payload, with the
	// engine identity and processing time in metadata.
	var envelope struct {
		EventID    string                 `json:"eventId"`
		EventType  string                 `json:"eventType"`
		ProposalID string                 `json:"proposalId"`
		Checksum   string                 `json:"checksum"`
		Payload    *models.Result         `json:"payload"`
		Metadata   map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(rec.EventPayload, &envelope); err != nil {
		t.Fatalf("event payload is not valid JSON: %v", err)
	}
	if envelope.EventID == "" {
		t.Error("event id missing")
	}
	if envelope.EventType != models.EventCalculationCompleted {
		t.Errorf("envelope eventType = %q", envelope.EventType)
	}
	if envelope.ProposalID != "p-1" || envelope.Checksum != "abc123" {
		t.Errorf("envelope identity = %s/%s", envelope.ProposalID, envelope.Checksum)
	}
	if envelope.Payload == nil {
		t.Fatal("envelope payload missing")
	}
	if envelope.Payload.ProposalID != "p-1" || !envelope.Payload.CustomerGrandTotal.Equal(result.CustomerGrandTotal) {
		t.Errorf("envelope payload = %+v, want the committed result", envelope.Payload)
	}
	if len(envelope.Payload.Adjustments) != 1 {
		t.Errorf("envelope payload adjustments = %d, want 1", len(envelope.Payload.Adjustments))
	}
	if envelope.Metadata["engineVersion"] != "1.0.0" {
		t.Errorf("metadata engineVersion = %v", envelope.Metadata["engineVersion"])
	}
	if ms, ok := envelope.Metadata["processingMs"].(float64); !ok || int64(ms) != 42 {
		t.Errorf("metadata processingMs = %v, want 42", envelope.Metadata["processingMs"])
	}

	if locker.locks != 1 || locker.releases != 1 {
		t.Errorf("lock/release = %d/%d, want 1/1", locker.locks, locker.releases)
	}
}

func TestCommitReplaysFromLocalCache(t *testing.T) {
	st := &mockStore{}
	locker := &mockLocker{}
	c := testCommitter(st, locker)

	frozen := &models.FrozenInput{ProposalID: "p-1", Fingerprint: "fp-1"}
	result := testResult("same-checksum")

	if _, err := c.Commit(context.Background(), frozen, result, 42*time.Millisecond); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	outcome, err := c.Commit(context.Background(), frozen, testResult("same-checksum"), 42*time.Millisecond)
	if err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	if !outcome.Replayed {
		t.Error("identical checksum must replay")
	}
	if len(st.saved) != 1 {
		t.Errorf("saved records = %d, replay must not write again", len(st.saved))
	}
	if locker.releases != 2 {
		t.Errorf("releases = %d, lock must be released on the replay path too", locker.releases)
	}
}

func TestCommitReplaysFromDatabase(t *testing.T) {
	stored := testResult("db-checksum")
	st := &mockStore{lookupFunc: func(ctx context.Context, checksum string) ([]byte, error) {
		if checksum != "db-checksum" {
			t.Errorf("lookup checksum = %q", checksum)
		}
		return []byte(`{"proposalId":"p-1","checksum":"db-checksum"}`), nil
	}}
	c := testCommitter(st, &mockLocker{})

	outcome, err := c.Commit(context.Background(), &models.FrozenInput{ProposalID: "p-1"}, stored, 42*time.Millisecond)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !outcome.Replayed {
		t.Error("stored checksum must replay from the database")
	}
	if outcome.Result.ProposalID != "p-1" || outcome.Result.Checksum != "db-checksum" {
		t.Errorf("replayed result = %+v", outcome.Result)
	}
	if len(st.saved) != 0 {
		t.Error("replay must not write")
	}
}

func TestCommitLockFailure(t *testing.T) {
	locker := &mockLocker{lockErr: errors.New("pool exhausted")}
	c := testCommitter(&mockStore{}, locker)

	_, err := c.Commit(context.Background(), &models.FrozenInput{}, testResult("x"), 42*time.Millisecond)
	if !models.IsKind(err, models.ErrDatabase) {
		t.Errorf("kind = %s, want DATABASE_ERROR", models.KindOf(err))
	}
}

func TestCommitSaveFailureReleasesLock(t *testing.T) {
	st := &mockStore{saveFunc: func(ctx context.Context, rec *store.CommitRecord) error {
		return errors.New("constraint violation")
	}}
	locker := &mockLocker{}
	c := testCommitter(st, locker)

	_, err := c.Commit(context.Background(), &models.FrozenInput{ProposalID: "p-1"}, testResult("y"), 42*time.Millisecond)
	if !models.IsKind(err, models.ErrDatabase) {
		t.Errorf("kind = %s, want DATABASE_ERROR", models.KindOf(err))
	}
	if locker.releases != 1 {
		t.Errorf("releases = %d, lock must be released on failure", locker.releases)
	}
}

func TestCommitLookupErrorFallsThroughToSave(t *testing.T) {
	st := &mockStore{lookupFunc: func(ctx context.Context, checksum string) ([]byte, error) {
		return nil, errors.New("read replica lagging")
	}}
	c := testCommitter(st, &mockLocker{})

	outcome, err := c.Commit(context.Background(), &models.FrozenInput{ProposalID: "p-1"}, testResult("z"), 42*time.Millisecond)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if outcome.Replayed {
		t.Error("a failed lookup must fall through to a fresh commit")
	}
	if len(st.saved) != 1 {
		t.Errorf("saved records = %d, want 1", len(st.saved))
	}
}
