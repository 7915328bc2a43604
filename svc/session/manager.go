package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingd/pkg/jwt"
	"github.com/dmitrymomot/billingd/pkg/logger"
)

// Token audiences distinguish access tokens from refresh tokens so one
// can never be presented where the other is expected.
const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
)

// Config holds session lifetime settings.
type Config struct {
	JWTSecret       string        `env:"JWT_SECRET,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
}

// refreshClaims is the payload embedded in refresh tokens. It deliberately
// has no Valid method: expiry is enforced against the stored record after
// lookup, so a forged-but-expired token still reports ErrInvalidToken while
// an authentic expired one reports ErrExpiredToken.
type refreshClaims struct {
	ID       string `json:"jti"`
	Subject  string `json:"sub"`
	Audience string `json:"aud"`
	IssuedAt int64  `json:"iat"`
}

// Manager issues, rotates, and revokes session credentials. Access tokens
// are stateless JWTs; refresh tokens are JWTs additionally backed by a
// store row so they can be revoked and their reuse detected.
type Manager struct {
	jwt   *jwt.Service
	store Store
	log   *slog.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewManager constructs a session manager. It panics on missing
// dependencies since sessions cannot degrade gracefully.
func NewManager(cfg Config, store Store, log *slog.Logger) *Manager {
	if store == nil {
		panic("session: store is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	svc, err := jwt.NewFromString(cfg.JWTSecret)
	if err != nil {
		panic("session: " + err.Error())
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = 168 * time.Hour
	}

	return &Manager{
		jwt:        svc,
		store:      store,
		log:        log,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue creates a fresh token pair for the user and persists the refresh
// credential. Used on registration and login.
func (m *Manager) Issue(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	pair, record, err := m.mint(userID)
	if err != nil {
		return nil, err
	}

	if err := m.store.Create(ctx, *record); err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}

	return pair, nil
}

// Rotate consumes a refresh token and returns its successor pair. The
// consumed token is revoked in the same transaction that persists the
// successor, so a given refresh token grants at most one rotation.
//
// Presenting a revoked token is treated as a reuse signal: it is logged
// and rejected as ErrInvalidToken, indistinguishable from a forgery.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*TokenPair, uuid.UUID, error) {
	var claims refreshClaims
	if err := m.jwt.Parse(refreshToken, &claims); err != nil {
		return nil, uuid.Nil, ErrInvalidToken
	}
	if claims.Audience != AudienceRefresh {
		return nil, uuid.Nil, ErrInvalidToken
	}

	record, err := m.store.ByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, uuid.Nil, ErrInvalidToken
		}
		return nil, uuid.Nil, errors.Join(ErrStorageUnavailable, err)
	}

	if record.Revoked {
		m.log.WarnContext(ctx, "revoked refresh token presented",
			logger.Component("session"),
			logger.UserID(record.UserID.String()),
			slog.String("token_id", record.ID.String()),
		)
		return nil, uuid.Nil, ErrInvalidToken
	}

	if record.Expired(m.now()) {
		return nil, uuid.Nil, ErrExpiredToken
	}

	pair, next, err := m.mint(record.UserID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if err := m.store.Rotate(ctx, record.ID, *next); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			// Lost a race with a concurrent rotation of the same token.
			return nil, uuid.Nil, ErrInvalidToken
		}
		return nil, uuid.Nil, errors.Join(ErrStorageUnavailable, err)
	}

	return pair, record.UserID, nil
}

// Revoke invalidates a single refresh token by its exact value. Unknown
// and already-revoked tokens are ignored so logout is idempotent.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	record, err := m.store.ByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil
		}
		return errors.Join(ErrStorageUnavailable, err)
	}

	if err := m.store.Revoke(ctx, record.ID); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}

	return nil
}

// RevokeAll invalidates every active refresh token of the user. Used on
// login to enforce single-session semantics and on credential compromise.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := m.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

// VerifyAccess validates an access token and returns the user ID it was
// issued for. Purely stateless; revocation does not apply to access tokens.
func (m *Manager) VerifyAccess(accessToken string) (uuid.UUID, error) {
	var claims jwt.StandardClaims
	if err := m.jwt.Parse(accessToken, &claims); err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return uuid.Nil, ErrExpiredToken
		}
		return uuid.Nil, ErrInvalidToken
	}
	if claims.Audience != AudienceAccess {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	return userID, nil
}

// Sweep deletes refresh tokens that expired before now. Revoked rows are
// retained until expiry so reuse of a consumed token stays detectable for
// the token's full lifetime.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteStale(ctx, m.now())
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

// RefreshTTL reports the configured refresh token lifetime, used to align
// cookie expiry with the credential itself.
func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *Manager) mint(userID uuid.UUID) (*TokenPair, *RefreshToken, error) {
	now := m.now()
	accessExp := now.Add(m.accessTTL)
	refreshExp := now.Add(m.refreshTTL)

	accessToken, err := m.jwt.Generate(jwt.StandardClaims{
		ID:        uuid.NewString(),
		Subject:   userID.String(),
		Audience:  AudienceAccess,
		ExpiresAt: accessExp.Unix(),
		IssuedAt:  now.Unix(),
	})
	if err != nil {
		return nil, nil, err
	}

	tokenID := uuid.New()
	refreshToken, err := m.jwt.Generate(refreshClaims{
		ID:       tokenID.String(),
		Subject:  userID.String(),
		Audience: AudienceRefresh,
		IssuedAt: now.Unix(),
	})
	if err != nil {
		return nil, nil, err
	}

	pair := &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}
	record := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		Token:     refreshToken,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}

	return pair, record, nil
}
