package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
)

// AdvisoryLock implements workers.AdvisoryLock on pg_try_advisory_lock,
// holding one dedicated connection per acquired key for the lock's
// lifetime the way Postgres advisory locks require (they are
// session-scoped, not transaction-scoped).
type AdvisoryLock struct {
	Conn *Connection
}

// TryAcquire attempts pg_try_advisory_lock(hash(key)) on a connection
// checked out from the pool, returning a release func that unlocks and
// returns the connection.
func (l *AdvisoryLock) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	id := advisoryKeyHash(key)

	conn, err := l.Conn.Pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("postgres advisory lock: acquire conn: %w", err)
	}

	var acquired bool

	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&acquired); err != nil {
		conn.Release()

		return nil, false, fmt.Errorf("postgres advisory lock: try lock %q: %w", key, err)
	}

	if !acquired {
		conn.Release()

		return nil, false, nil
	}

	release := func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, id)
		conn.Release()
	}

	return release, true, nil
}

func advisoryKeyHash(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))

	return int64(h.Sum64())
}
