package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingd/core"
	"github.com/dmitrymomot/billingd/pkg/cookie"
	"github.com/dmitrymomot/billingd/pkg/logger"
	"github.com/dmitrymomot/billingd/svc/session"
	"github.com/dmitrymomot/billingd/svc/user"
)

// Config holds auth HTTP settings.
type Config struct {
	RefreshCookieName string `env:"REFRESH_COOKIE_NAME" envDefault:"refresh_token"`
	CookieSecure      bool   `env:"COOKIE_SECURE" envDefault:"false"`
}

// CustomerProvisioner creates the payment provider customer for a user.
// Satisfied by the billing service; provisioning at registration is
// best-effort.
type CustomerProvisioner interface {
	EnsureCustomer(ctx context.Context, userID uuid.UUID) error
}

// Module bundles the auth HTTP handlers.
type Module struct {
	users    user.Store
	sessions *session.Manager
	billing  CustomerProvisioner // may be nil
	cookies  *cookie.Manager
	cfg      Config
	log      *slog.Logger
}

// NewModule constructs the auth module. Panics on missing required deps.
func NewModule(users user.Store, sessions *session.Manager, billing CustomerProvisioner, cfg Config, log *slog.Logger) *Module {
	if users == nil {
		panic("auth: user store is required")
	}
	if sessions == nil {
		panic("auth: session manager is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.RefreshCookieName == "" {
		cfg.RefreshCookieName = "refresh_token"
	}

	return &Module{
		users:    users,
		sessions: sessions,
		billing:  billing,
		cookies:  cookie.New(cookie.WithSecure(cfg.CookieSecure)),
		cfg:      cfg,
		log:      log,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type userResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name,omitempty"`
}

type sessionResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

func (m *Module) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || len(req.Password) < 8 {
		core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusUnprocessableEntity, "invalid_credentials_format")))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	u := &user.User{
		ID:           uuid.New(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := m.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrEmailAlreadyExists) {
			core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusConflict, "email_already_in_use")))
			return
		}
		core.Render(w, r, core.JSONError(err))
		return
	}

	// Provider customer creation must not block registration; webhooks
	// for users without a mapping are skipped until checkout creates one.
	if m.billing != nil {
		if err := m.billing.EnsureCustomer(r.Context(), u.ID); err != nil {
			m.log.WarnContext(r.Context(), "provider customer provisioning failed",
				logger.Component("auth"),
				logger.UserID(u.ID.String()),
				logger.Error(err),
			)
		}
	}

	pair, err := m.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	m.setRefreshCookie(w, pair)
	core.Render(w, r, core.JSONStatus(http.StatusCreated, sessionResponse{
		User:        userResponse{ID: u.ID, Email: u.Email, Name: u.Name},
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	}))
}

func (m *Module) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}

	u, err := m.users.ByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusUnauthorized, "invalid_credentials")))
			return
		}
		core.Render(w, r, core.JSONError(err))
		return
	}
	if !verifyPassword(u.PasswordHash, req.Password) {
		core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusUnauthorized, "invalid_credentials")))
		return
	}

	// A fresh login supersedes every existing session of the user.
	if _, err := m.sessions.RevokeAll(r.Context(), u.ID); err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	pair, err := m.sessions.Issue(r.Context(), u.ID)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	m.setRefreshCookie(w, pair)
	core.Render(w, r, core.JSON(sessionResponse{
		User:        userResponse{ID: u.ID, Email: u.Email, Name: u.Name},
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	}))
}

func (m *Module) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := m.cookies.Get(r, m.cfg.RefreshCookieName)
	if err != nil {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	pair, userID, err := m.sessions.Rotate(r.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrExpiredToken):
			m.cookies.Delete(w, m.cfg.RefreshCookieName)
			core.Render(w, r, core.JSONError(core.NewHTTPError(http.StatusUnauthorized, "session_expired")))
		case errors.Is(err, session.ErrInvalidToken):
			m.cookies.Delete(w, m.cfg.RefreshCookieName)
			core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		default:
			core.Render(w, r, core.JSONError(err))
		}
		return
	}

	u, err := m.users.ByID(r.Context(), userID)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	m.setRefreshCookie(w, pair)
	core.Render(w, r, core.JSON(sessionResponse{
		User:        userResponse{ID: u.ID, Email: u.Email, Name: u.Name},
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	}))
}

// handleLogout revokes the presented refresh token and clears the cookie.
// Always 204: logging out with a dead session is still logged out.
func (m *Module) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw, err := m.cookies.Get(r, m.cfg.RefreshCookieName); err == nil {
		if err := m.sessions.Revoke(r.Context(), raw); err != nil {
			m.log.WarnContext(r.Context(), "logout revocation failed",
				logger.Component("auth"),
				logger.Error(err),
			)
		}
	}

	m.cookies.Delete(w, m.cfg.RefreshCookieName)
	core.Render(w, r, core.NoContent())
}

func (m *Module) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	u, err := m.users.ByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			core.Render(w, r, core.JSONError(core.ErrNotFound))
			return
		}
		core.Render(w, r, core.JSONError(err))
		return
	}

	core.Render(w, r, core.JSON(userResponse{ID: u.ID, Email: u.Email, Name: u.Name}))
}

// setRefreshCookie binds the refresh token to an HttpOnly cookie whose
// expiry matches the token's own.
func (m *Module) setRefreshCookie(w http.ResponseWriter, pair *session.TokenPair) {
	m.cookies.Set(w, m.cfg.RefreshCookieName, pair.RefreshToken,
		cookie.WithExpires(pair.RefreshExpiresAt),
	)
}
