package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/goSyncAuth/store"
)

// Subscribe acquires a dedicated pool connection and LISTENs on the
// account-claim channel. The connection is held until Close.
func (s *PostgresStore) Subscribe(ctx context.Context) (store.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, unavailable(err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, unavailable(err)
	}
	return &listener{conn: conn, channel: s.channel}, nil
}

type listener struct {
	conn    *pgxpool.Conn
	channel string

	closeOnce sync.Once
}

// Next blocks until a notification arrives or ctx is done.
func (l *listener) Next(ctx context.Context) (string, error) {
	n, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", unavailable(err)
	}
	return n.Payload, nil
}

// Close stops listening and returns the connection. A connection that cannot
// UNLISTEN is destroyed rather than returned to the pool.
func (l *listener) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		if _, uerr := l.conn.Exec(ctx, `UNLISTEN `+pgx.Identifier{l.channel}.Sanitize()); uerr != nil {
			err = unavailable(uerr)
			_ = l.conn.Conn().Close(ctx)
		}
		l.conn.Release()
	})
	return err
}
