package store

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey maps a proposal ID onto the advisory lock keyspace. The 32-bit
// FNV-1a hash is widened to the int64 Postgres expects; distinct proposals
// may collide, which only serializes them, never corrupts them.
func LockKey(proposalID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(proposalID))
	return int64(h.Sum32())
}

// ProposalLock is a held session-scoped advisory lock. It pins one pooled
// connection until released.
type ProposalLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireProposalLock blocks until the per-proposal advisory lock is held
// or the context expires. Session scope means a crashed holder releases
// the lock when its connection dies.
func AcquireProposalLock(ctx context.Context, proposalID string) (*ProposalLock, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for advisory lock: %w", err)
	}

	key := LockKey(proposalID)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return &ProposalLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the connection to the pool.
func (l *ProposalLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
	if err != nil {
		return fmt.Errorf("failed to release advisory lock: %w", err)
	}
	return nil
}
