package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TryAdvisoryLock takes a session-level advisory lock without waiting.
// It returns false when another session already holds key.
func TryAdvisoryLock(ctx context.Context, db DBTX, key int64) (bool, error) {
	var locked bool
	if err := db.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&locked); err != nil {
		return false, fmt.Errorf("try advisory lock %d: %w", key, err)
	}
	return locked, nil
}

// AdvisoryUnlock releases a lock taken with TryAdvisoryLock on the same session.
func AdvisoryUnlock(ctx context.Context, db DBTX, key int64) error {
	var released bool
	if err := db.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&released); err != nil {
		return fmt.Errorf("advisory unlock %d: %w", key, err)
	}
	if !released {
		return fmt.Errorf("advisory unlock %d: lock was not held", key)
	}
	return nil
}

// AdvisoryLock pins one pool connection for as long as the session lock is
// held, since session locks belong to the connection that took them.
type AdvisoryLock struct {
	pool *pgxpool.Pool
	key  int64

	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisoryLock returns an unlocked advisory lock on key.
func NewAdvisoryLock(pool *pgxpool.Pool, key int64) *AdvisoryLock {
	return &AdvisoryLock{pool: pool, key: key}
}

// TryLock attempts to take the lock. It returns false without error when
// another session holds it.
func (l *AdvisoryLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire lock connection: %w", err)
	}
	locked, err := TryAdvisoryLock(ctx, conn, l.key)
	if err != nil || !locked {
		conn.Release()
		return false, err
	}
	l.conn = conn
	return true, nil
}

// Unlock releases the lock and returns its connection to the pool.
func (l *AdvisoryLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	err := AdvisoryUnlock(ctx, l.conn, l.key)
	l.conn.Release()
	l.conn = nil
	return err
}
