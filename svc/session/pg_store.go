package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingd/pkg/pg"
)

// PgStore implements Store backed by PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL-backed refresh token store.
// Panics on nil pool to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("session: pgx pool is required")
	}
	return &PgStore{pool: pool}
}

const tokenColumns = `id, user_id, token, expires_at, revoked, revoked_at, created_at`

func (s *PgStore) Create(ctx context.Context, t RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, revoked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.UserID, t.Token, t.ExpiresAt, t.Revoked, t.RevokedAt, t.CreatedAt,
	)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PgStore) ByToken(ctx context.Context, token string) (*RefreshToken, error) {
	var t RefreshToken
	err := s.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM refresh_tokens WHERE token = $1`, token,
	).Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &t.Revoked, &t.RevokedAt, &t.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTokenNotFound
		}
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return &t, nil
}

// Rotate revokes the consumed token and inserts its successor in one
// transaction. The conditional UPDATE arbitrates concurrent rotations of
// the same token: only the request that flips revoked wins.
func (s *PgStore) Rotate(ctx context.Context, consumedID uuid.UUID, next RefreshToken) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true, revoked_at = $2
		 WHERE id = $1 AND revoked = false`,
		consumedID, time.Now().UTC(),
	)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenRevoked
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, expires_at, revoked, revoked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		next.ID, next.UserID, next.Token, next.ExpiresAt, next.Revoked, next.RevokedAt, next.CreatedAt,
	)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PgStore) Revoke(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true, revoked_at = $2
		 WHERE id = $1 AND revoked = false`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PgStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true, revoked_at = $2
		 WHERE user_id = $1 AND revoked = false`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, cutoff,
	)
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return tag.RowsAffected(), nil
}
