// Package postgres persists the decision audit trail. The trail is an
// append-only record of every terminal decision; operators query it when a
// user disputes a payment.
package postgres

import (
	"context"
	"fmt"

	"github.com/firstnattapon/24wash-backend/internal/engine"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Ensure AuditStore implements engine.AuditStore.
var _ engine.AuditStore = (*AuditStore)(nil)

// execer is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const createTableQuery = `CREATE TABLE IF NOT EXISTS decision_audit (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	amount TEXT,
	coupon_code TEXT,
	channel TEXT,
	trans_ref TEXT,
	detail TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const insertDecisionQuery = `INSERT INTO decision_audit
	(id, event_type, outcome, method, amount, coupon_code, channel, trans_ref, detail, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`

// AuditStore writes decisions to the decision_audit table.
type AuditStore struct {
	pool execer
	log  *zap.SugaredLogger
}

// NewAuditStore creates an audit store over a pgx pool.
func NewAuditStore(pool execer) *AuditStore {
	return &AuditStore{
		pool: pool,
		log:  logger.GetLogger().Named("audit"),
	}
}

// InitSchema creates the audit table when it does not exist yet.
func (s *AuditStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableQuery); err != nil {
		return fmt.Errorf("create decision_audit table: %w", err)
	}
	return nil
}

// RecordDecision appends one terminal decision. Amount is stored as its
// decimal string to avoid float rounding in dispute reviews.
func (s *AuditStore) RecordDecision(ctx context.Context, entry engine.AuditEntry) error {
	var amount *string
	if entry.Amount != nil {
		v := entry.Amount.String()
		amount = &v
	}

	_, err := s.pool.Exec(ctx, insertDecisionQuery,
		uuid.NewString(),
		entry.EventType,
		string(entry.Outcome),
		string(entry.Method),
		amount,
		nullable(entry.Code),
		nullable(entry.Channel),
		nullable(entry.TransRef),
		nullable(entry.Detail),
	)
	if err != nil {
		return fmt.Errorf("insert decision audit: %w", err)
	}

	s.log.Debugw("Decision recorded", "outcome", entry.Outcome, "transRef", entry.TransRef)
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
