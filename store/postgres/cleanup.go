package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ResetUploadCounters zeroes counters whose window started before cutoff.
func (s *PostgresStore) ResetUploadCounters(ctx context.Context, before time.Time) (int64, error) {
	q := `UPDATE ` + s.t("upload_counters") + `
SET uploads = 0, window_started_at = $2
WHERE window_started_at < $1`
	tag, err := s.pool.Exec(ctx, q, before.UTC(), s.now().UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteEphemeralRooms removes ephemeral rooms created before cutoff together
// with their memberships.
func (s *PostgresStore) DeleteEphemeralRooms(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		removed, err = deleteEphemeralRoomsTx(ctx, tx, s.t("rooms"), s.t("room_members"), before.UTC())
		return err
	})
	return removed, err
}

func deleteEphemeralRoomsTx(ctx context.Context, tx pgx.Tx, rooms, members string, before time.Time) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE room_gid IN (
  SELECT gid FROM %s WHERE is_ephemeral AND created_at < $1
)`, members, rooms)
	if _, err := tx.Exec(ctx, q, before); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM `+rooms+` WHERE is_ephemeral AND created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// InactiveAccounts lists primary accounts whose last login is before cutoff.
func (s *PostgresStore) InactiveAccounts(ctx context.Context, before time.Time) ([]string, error) {
	q := fmt.Sprintf(`SELECT u.uid FROM %s u
JOIN %s a ON a.user_uid = u.uid
WHERE a.primary_user_uid IS NULL AND u.last_logged_in < $1`, s.t("users"), s.t("auth"))
	return s.collectUIDs(ctx, q, before.UTC())
}

// SecondaryAccounts lists the accounts whose credential points at primaryUID.
func (s *PostgresStore) SecondaryAccounts(ctx context.Context, primaryUID string) ([]string, error) {
	q := `SELECT user_uid FROM ` + s.t("auth") + ` WHERE primary_user_uid = $1`
	return s.collectUIDs(ctx, q, primaryUID)
}

// DeleteAccount removes one account and every row that references it. It
// does not follow ownership; callers delete secondaries first.
func (s *PostgresStore) DeleteAccount(ctx context.Context, uid string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return deleteAccountTx(ctx, tx, s, uid)
	})
}

func deleteAccountTx(ctx context.Context, tx pgx.Tx, s *PostgresStore, uid string) error {
	stmts := []string{
		fmt.Sprintf(`DELETE FROM %s WHERE user_uid = $1 OR room_gid IN (SELECT gid FROM %s WHERE owner_uid = $1)`,
			s.t("room_members"), s.t("rooms")),
		`DELETE FROM ` + s.t("rooms") + ` WHERE owner_uid = $1`,
		`DELETE FROM ` + s.t("pair_requests") + ` WHERE requester_uid = $1 OR target_uid = $1`,
		`DELETE FROM ` + s.t("upload_counters") + ` WHERE user_uid = $1`,
		`DELETE FROM ` + s.t("account_claims") + ` WHERE user_uid = $1`,
		`DELETE FROM ` + s.t("auth") + ` WHERE user_uid = $1`,
		`DELETE FROM ` + s.t("users") + ` WHERE uid = $1`,
	}
	for _, q := range stmts {
		if _, err := tx.Exec(ctx, q, uid); err != nil {
			return err
		}
	}
	return nil
}

// DeleteStaleAccountClaims removes claims opened before cutoff and the
// half-created users they reference.
func (s *PostgresStore) DeleteStaleAccountClaims(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		q := `DELETE FROM ` + s.t("account_claims") + `
WHERE started_at IS NOT NULL AND started_at < $1
RETURNING user_uid`
		rows, err := tx.Query(ctx, q, before.UTC())
		if err != nil {
			return err
		}
		var orphans []string
		for rows.Next() {
			var uid *string
			if err := rows.Scan(&uid); err != nil {
				rows.Close()
				return err
			}
			removed++
			if uid != nil && *uid != "" {
				orphans = append(orphans, *uid)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, uid := range orphans {
			if err := deleteAccountTx(ctx, tx, s, uid); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// DeletePairRequests removes pairing requests created before cutoff.
func (s *PostgresStore) DeletePairRequests(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.t("pair_requests")+` WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) collectUIDs(ctx context.Context, q string, arg any) ([]string, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, unavailable(err)
	}
	uids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, unavailable(err)
	}
	return uids, nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
