// Package coupon implements single-use coupon redemption. Redemption is a
// two-phase operation: validate the code, dispatch the machine command, and
// delete the record only after the dispatch has been confirmed. A transient
// queue failure must leave the coupon intact for retry.
package coupon

import (
	"context"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DispatchFunc commits the machine command for a validated coupon. It runs
// between validation and deletion; a non-nil error aborts consumption.
type DispatchFunc func(ctx context.Context) error

// ManagerInterface defines the redemption operation used by the engine.
type ManagerInterface interface {
	Redeem(ctx context.Context, code string, dispatch DispatchFunc) (bool, decimal.Decimal, error)
}

// Manager coordinates coupon validation and consumption against a Store.
type Manager struct {
	store Store
	log   *zap.SugaredLogger
}

// NewManager creates a redemption manager.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		log:   logger.GetLogger().Named("coupons"),
	}
}

// Redeem validates the code, runs the dispatch callback, and consumes the
// coupon on dispatch success.
//
// Returns consumed=false with nil error when the code does not exist (or was
// already used). A dispatch failure is returned as-is with the coupon left
// untouched, so a retried redemption of the same code still succeeds.
//
// Deletion is conditional: concurrent redemptions of the same code may both
// pass validation, but only the DEL that actually removes the key wins; the
// loser is logged. Both commands will have been dispatched by then; that is
// the accepted cost of deleting after commit rather than before.
func (m *Manager) Redeem(ctx context.Context, code string, dispatch DispatchFunc) (bool, decimal.Decimal, error) {
	rec, err := m.store.Get(ctx, code)
	if err != nil {
		return false, decimal.Zero, err
	}
	if rec == nil {
		m.log.Infow("Coupon not found or already used", "code", code)
		return false, decimal.Zero, nil
	}

	if err := dispatch(ctx); err != nil {
		m.log.Warnw("Dispatch failed, coupon left redeemable", "code", code, "error", err)
		return false, rec.Value, err
	}

	removed, err := m.store.Delete(ctx, code)
	if err != nil {
		// The command is already committed; the coupon will be consumed on
		// the next redemption attempt or cleaned up by the operator.
		m.log.Errorw("Coupon delete failed after dispatch", "code", code, "error", err)
		return true, rec.Value, nil
	}
	if !removed {
		m.log.Warnw("Coupon was consumed concurrently", "code", code)
	}

	m.log.Infow("Coupon redeemed", "code", code, "value", rec.Value.String())
	return true, rec.Value, nil
}
