// Package events publishes calculation lifecycle events over NATS.
package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix roots every calculation event subject.
const SubjectPrefix = "calc.completed"

// Subject returns the per-proposal subject for a completed calculation.
func Subject(proposalID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, proposalID)
}

// NATSPublisher publishes events to a NATS server.
type NATSPublisher struct {
	conn *nats.Conn
}

// Connect dials the NATS server with reconnect behaviour suited to a
// long-lived service.
func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends one event and flushes so the broker has accepted it
// before the outbox row is finalized.
func (p *NATSPublisher) Publish(subject string, payload []byte) error {
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush publish of %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
