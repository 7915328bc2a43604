package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingd/pkg/pg"
)

// PgStore implements Store backed by PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL-backed user store.
// Panics on nil pool to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("user: pgx pool is required")
	}
	return &PgStore{pool: pool}
}

const userColumns = `id, email, name, password_hash, stripe_customer_id, created_at, updated_at`

func (s *PgStore) Create(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, stripe_customer_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.StripeCustomerID, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEmailAlreadyExists
		}
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PgStore) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *PgStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *PgStore) ByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	return s.queryOne(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID)
}

func (s *PgStore) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = $3 WHERE id = $1`,
		id, customerID, time.Now().UTC(),
	)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *PgStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

func (s *PgStore) queryOne(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return &u, nil
}
