package models

import "time"

// OutboxStatus is the lifecycle state of one outbox row.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxCompleted  OutboxStatus = "COMPLETED"
	OutboxDeadLetter OutboxStatus = "DEAD_LETTER"
)

// OutboxEvent is one transactional outbox row. It is written in the same
// transaction as the calculation result and published asynchronously.
type OutboxEvent struct {
	ID          int64        `json:"id"`
	ProposalID  string       `json:"proposalId"`
	EventType   string       `json:"eventType"`
	Payload     []byte       `json:"payload"`
	Status      OutboxStatus `json:"status"`
	RetryCount  int          `json:"retryCount"`
	NextRetryAt time.Time    `json:"nextRetryAt"`
	LastError   string       `json:"lastError,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// EventCalculationCompleted is the event type emitted after every commit.
const EventCalculationCompleted = "calculation.completed"
