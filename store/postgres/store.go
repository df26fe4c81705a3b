package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/goSyncAuth/store"
)

// DefaultSchema is the schema used when WithSchema is not given.
const DefaultSchema = "sync"

// DefaultNotifyChannel is the LISTEN channel carrying account-claim changes.
const DefaultNotifyChannel = "account_claims_changed"

// maxLineageDepth bounds the walk from a secondary credential to its root.
const maxLineageDepth = 16

// PostgresStore implements store.RecordStore and the cleanup queries.
type PostgresStore struct {
	pool    *pgxpool.Pool
	schema  string
	channel string
	now     func() time.Time
}

// Option configures the store.
type Option func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the schema holding the tables (default "sync").
func WithSchema(schema string) Option {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("postgres: empty schema")
		}
		if !pgIdentIsValid(schema) {
			return fmt.Errorf("postgres: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithNotifyChannel sets the LISTEN channel used by Subscribe.
func WithNotifyChannel(channel string) Option {
	return func(s *PostgresStore) error {
		if !pgIdentIsValid(channel) {
			return fmt.Errorf("postgres: invalid channel identifier")
		}
		s.channel = channel
		return nil
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *PostgresStore) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:    pool,
		schema:  DefaultSchema,
		channel: DefaultNotifyChannel,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("postgres: nil pool")
	}
	return st, nil
}

var _ store.RecordStore = (*PostgresStore)(nil)

// CredentialByHashedKey loads a credential and resolves its lineage to the
// root primary, carrying the primary's ban flag and linked external identity.
func (s *PostgresStore) CredentialByHashedKey(ctx context.Context, hashedKey string) (store.Credential, error) {
	if err := ctx.Err(); err != nil {
		return store.Credential{}, err
	}

	auth := s.t("auth")
	q := fmt.Sprintf(`
WITH RECURSIVE chain AS (
  SELECT a.user_uid, a.primary_user_uid, a.is_banned, 0 AS depth
  FROM %[1]s a
  WHERE a.hashed_key = $1
  UNION ALL
  SELECT p.user_uid, p.primary_user_uid, p.is_banned, c.depth + 1
  FROM chain c
  JOIN %[1]s p ON p.user_uid = c.primary_user_uid AND p.primary_user_uid IS DISTINCT FROM c.user_uid
  WHERE c.depth < $2
),
own AS (SELECT user_uid, is_banned FROM chain WHERE depth = 0),
root AS (SELECT user_uid FROM chain ORDER BY depth DESC LIMIT 1)
SELECT own.user_uid,
       own.is_banned,
       root.user_uid,
       COALESCE((SELECT bool_or(is_banned) FROM chain WHERE depth > 0), false),
       COALESCE(u.alias, ''),
       COALESCE((
         SELECT ac.external_id FROM %[2]s ac
         WHERE ac.user_uid = root.user_uid AND ac.started_at IS NULL
         LIMIT 1
       ), '')
FROM own
CROSS JOIN root
LEFT JOIN %[3]s u ON u.uid = own.user_uid`, auth, s.t("account_claims"), s.t("users"))

	var (
		c       store.Credential
		rootUID string
	)
	err := s.pool.QueryRow(ctx, q, hashedKey, maxLineageDepth).Scan(
		&c.UID, &c.Banned, &rootUID, &c.PrimaryBanned, &c.Alias, &c.ExternalID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return store.Credential{}, unavailable(err)
	}
	c.HashedKey = hashedKey
	if rootUID != c.UID {
		c.PrimaryUID = rootUID
	}
	return c, nil
}

// IsIdentityBanned reports whether a character identity has a ban row.
func (s *PostgresStore) IsIdentityBanned(ctx context.Context, characterIdentity string) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM ` + s.t("banned_identities") + ` WHERE character_identity = $1)`
	if err := s.pool.QueryRow(ctx, q, characterIdentity).Scan(&exists); err != nil {
		return false, unavailable(err)
	}
	return exists, nil
}

// BanIdentity inserts an identity ban; existing rows are kept.
func (s *PostgresStore) BanIdentity(ctx context.Context, characterIdentity, reason string) error {
	q := `INSERT INTO ` + s.t("banned_identities") + ` (character_identity, reason, banned_at)
VALUES ($1, $2, $3) ON CONFLICT (character_identity) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, characterIdentity, reason, s.now().UTC()); err != nil {
		return unavailable(err)
	}
	return nil
}

// MarkCredentialBanned flags a single credential row as banned.
func (s *PostgresStore) MarkCredentialBanned(ctx context.Context, hashedKey string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE `+s.t("auth")+` SET is_banned = true WHERE hashed_key = $1`, hashedKey)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// BanRegistration prevents an external identity from registering again.
func (s *PostgresStore) BanRegistration(ctx context.Context, externalID string) error {
	q := `INSERT INTO ` + s.t("banned_registrations") + ` (external_id, banned_at)
VALUES ($1, $2) ON CONFLICT (external_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, externalID, s.now().UTC()); err != nil {
		return unavailable(err)
	}
	return nil
}

// RecordLogin stamps the account's last login time.
func (s *PostgresStore) RecordLogin(ctx context.Context, uid string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, `UPDATE `+s.t("users")+` SET last_logged_in = $2 WHERE uid = $1`, uid, at.UTC()); err != nil {
		return unavailable(err)
	}
	return nil
}

// ResolveClaimOwner returns the UID of the account holding the completed
// claim for linkKey.
func (s *PostgresStore) ResolveClaimOwner(ctx context.Context, linkKey string) (string, error) {
	q := `SELECT user_uid FROM ` + s.t("account_claims") + `
WHERE link_key = $1 AND user_uid IS NOT NULL
ORDER BY started_at NULLS FIRST
LIMIT 1`
	var uid string
	err := s.pool.QueryRow(ctx, q, linkKey).Scan(&uid)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err)
	}
	return uid, nil
}

func (s *PostgresStore) t(name string) string {
	return pgIdent(s.schema, name)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func pgIdentIsValid(s string) bool {
	return pgIdentRe.MatchString(s)
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}
