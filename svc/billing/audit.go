package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingd/pkg/logger"
)

// AuditEntry describes one applied billing action.
type AuditEntry struct {
	UserID    uuid.UUID
	EventID   string
	EventType string
	Action    string
	Ref       string // external id of the affected record
}

// AuditLogger records applied billing actions. Recording is best-effort
// and never fails the operation that produced the entry.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// NopAuditLogger discards entries.
type NopAuditLogger struct{}

func (NopAuditLogger) Record(context.Context, AuditEntry) {}

// PgAuditLogger appends entries to the audit_logs table.
type PgAuditLogger struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPgAuditLogger creates a PostgreSQL-backed audit logger.
func NewPgAuditLogger(pool *pgxpool.Pool, log *slog.Logger) *PgAuditLogger {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PgAuditLogger{pool: pool, log: log}
}

func (a *PgAuditLogger) Record(ctx context.Context, entry AuditEntry) {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, event_id, event_type, action, ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), entry.UserID, entry.EventID, entry.EventType, entry.Action, entry.Ref,
		time.Now().UTC(),
	)
	if err != nil {
		a.log.WarnContext(ctx, "audit entry dropped",
			logger.Component("audit"),
			logger.EventID(entry.EventID),
			logger.Error(err),
		)
	}
}
