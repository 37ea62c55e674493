// Package engine classifies inbound events and drives them to a terminal
// decision: coupon texts through the redemption manager, slip images through
// the verification pipeline, and both through channel resolution and command
// dispatch.
package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"

	apperrors "github.com/firstnattapon/24wash-backend/errors"
	"github.com/firstnattapon/24wash-backend/internal/channel"
	"github.com/firstnattapon/24wash-backend/internal/coupon"
	"github.com/firstnattapon/24wash-backend/internal/dispatch"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Operators triage by message text; every failure category keeps a distinct
// reply.
const (
	replyCouponHelp     = "🔑 วิธีใช้คูปอง\nพิมพ์รหัสตามด้วยหมายเลขเครื่อง\nเช่น 12345-1 (ซ้ายไปขวา)"
	replyCouponOK       = "✅ รหัสถูกต้อง!\nสั่งงานเครื่องที่ %s เรียบร้อย"
	replyCouponInvalid  = "❌ รหัสไม่ถูกต้อง หรือถูกใช้ไปแล้ว"
	replyCouponRetry    = "❌ ระบบขัดข้อง กรุณาลองใหม่"
	replyNeedMachine    = "⚠️ กรุณาระบุเลขเครื่อง\nพิมพ์เช่น: %s-1"
	replySlipOK         = "✅ ได้รับยอดเงินเรียบร้อย\n*******เริ่มทำงาน*******"
	replySlipInvalid    = "❌สลิปไม่ถูกต้องหรือซ้ำ\n*******โปรดลองใหม่*******"
	replyAmountMismatch = "❌ ยอดเงินไม่ตรงกับเครื่องใด\nกรุณาตรวจสอบยอดโอน"
	replySystemError    = "❌ ระบบขัดข้อง กรุณาติดต่อผู้ดูแล"
)

var (
	// 12345-1, 12345 1 and 1234501 all select coupon 12345, machine 1
	couponWithMachineRe = regexp.MustCompile(`^(\d{5})[- ]?0?([1-9])$`)
	couponCodeOnlyRe    = regexp.MustCompile(`^\d{5}$`)
)

// PipelineInterface is the slip verification pipeline as seen by the engine.
type PipelineInterface interface {
	Verify(ctx context.Context, image []byte) (types.Verdict, *types.ExtractedPayment, error)
}

// AuditEntry is one terminal decision, written to the audit trail.
type AuditEntry struct {
	EventType string
	Outcome   types.Decision
	Method    types.CommandMethod
	Amount    *decimal.Decimal
	Code      string
	Channel   string
	TransRef  string
	Detail    string
}

// AuditStore persists terminal decisions for operator triage.
type AuditStore interface {
	RecordDecision(ctx context.Context, entry AuditEntry) error
}

// AlertSender notifies the operator about system-error outcomes.
type AlertSender interface {
	NotifySystemError(ctx context.Context, subject, detail string)
}

// Engine wires the decision components together. All dependencies are
// injected; each is independently substitutable in tests.
type Engine struct {
	pipeline PipelineInterface
	resolver *channel.Resolver
	coupons  coupon.ManagerInterface
	queue    dispatch.QueueInterface
	machines map[string]string

	audit     AuditStore
	hasAudit  bool
	alerts    AlertSender
	hasAlerts bool

	log *zap.SugaredLogger
}

// NewEngine creates a decision engine. machines is the coupon
// machine-selector table from configuration.
func NewEngine(pipeline PipelineInterface, resolver *channel.Resolver, coupons coupon.ManagerInterface, queue dispatch.QueueInterface, machines map[string]string) *Engine {
	return &Engine{
		pipeline: pipeline,
		resolver: resolver,
		coupons:  coupons,
		queue:    queue,
		machines: machines,
		log:      logger.GetLogger().Named("engine"),
	}
}

// SetAuditStore attaches an optional decision audit trail.
func (e *Engine) SetAuditStore(store AuditStore) {
	e.audit = store
	e.hasAudit = store != nil
}

// SetAlertSender attaches optional operator alerting.
func (e *Engine) SetAlertSender(alerts AlertSender) {
	e.alerts = alerts
	e.hasAlerts = alerts != nil
}

// ProcessText handles a text event. It returns nil when the text is not
// addressed to the engine (ordinary chatter gets no reply).
func (e *Engine) ProcessText(ctx context.Context, text string) *types.DecisionResult {
	text = strings.TrimSpace(text)

	if strings.EqualFold(text, "KEY") {
		return &types.DecisionResult{Reply: replyCouponHelp}
	}

	if m := couponWithMachineRe.FindStringSubmatch(text); m != nil {
		return e.redeemCoupon(ctx, m[1], m[2])
	}

	if couponCodeOnlyRe.MatchString(text) {
		return &types.DecisionResult{
			Reply: strings.Replace(replyNeedMachine, "%s", text, 1),
		}
	}

	return nil
}

func (e *Engine) redeemCoupon(ctx context.Context, code, machine string) *types.DecisionResult {
	target, ok := e.machines[machine]
	if !ok {
		target = e.resolver.DefaultPath()
	}

	cmd := types.NewCouponCommand(code, machine)
	consumed, value, err := e.coupons.Redeem(ctx, code, func(ctx context.Context) error {
		return e.queue.Dispatch(ctx, cmd, target)
	})

	switch {
	case err != nil:
		// read failure or dispatch failure: coupon intact, user may retry
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedSystemError,
			Reply:   replyCouponRetry,
		}
		e.notify(ctx, "Coupon redemption failed", err.Error())
		e.record(ctx, AuditEntry{
			EventType: "text",
			Outcome:   result.Outcome,
			Method:    types.MethodCoupon,
			Code:      code,
			Channel:   target,
			Detail:    err.Error(),
		})
		return result

	case !consumed:
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedInvalidCoupon,
			Reply:   replyCouponInvalid,
		}
		e.record(ctx, AuditEntry{
			EventType: "text",
			Outcome:   result.Outcome,
			Method:    types.MethodCoupon,
			Code:      code,
		})
		return result
	}

	e.log.Infow("Coupon command dispatched",
		"code", code, "machine", machine, "value", value.String(), "channel", target)
	result := &types.DecisionResult{
		Outcome: types.DecisionDispatched,
		Reply:   strings.Replace(replyCouponOK, "%s", machine, 1),
		Command: &cmd,
		Channel: target,
	}
	e.record(ctx, AuditEntry{
		EventType: "text",
		Outcome:   result.Outcome,
		Method:    types.MethodCoupon,
		Code:      code,
		Channel:   target,
		TransRef:  cmd.TransRef,
	})
	return result
}

// ProcessImage handles a slip image event through the verification pipeline.
func (e *Engine) ProcessImage(ctx context.Context, image []byte) *types.DecisionResult {
	verdict, payment, err := e.pipeline.Verify(ctx, image)
	if err != nil {
		var appErr *apperrors.AppError
		detail := err.Error()
		subject := "Slip processing failed"
		if errors.As(err, &appErr) && appErr.Type == apperrors.ExtractionError {
			subject = "Bypass slip needs manual handling"
		}
		e.notify(ctx, subject, detail)
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedSystemError,
			Reply:   replySystemError,
		}
		e.record(ctx, AuditEntry{
			EventType: "image",
			Outcome:   result.Outcome,
			Detail:    detail,
		})
		return result
	}

	if verdict == types.VerdictRejected {
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedInvalidSlip,
			Reply:   replySlipInvalid,
		}
		e.record(ctx, AuditEntry{EventType: "image", Outcome: result.Outcome})
		return result
	}

	method := types.MethodSlip
	if payment.Source != types.SourcePrimaryVerifier {
		method = types.MethodAIFallback
	}

	path, err := e.resolver.Resolve(payment.Amount)
	if err != nil {
		amountStr := "<nil>"
		if payment.Amount != nil {
			amountStr = payment.Amount.String()
		}
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedAmountMismatch,
			Reply:   replyAmountMismatch,
		}
		e.record(ctx, AuditEntry{
			EventType: "image",
			Outcome:   result.Outcome,
			Method:    method,
			Amount:    payment.Amount,
			TransRef:  payment.TransRef,
			Detail:    "no channel for amount " + amountStr,
		})
		return result
	}

	cmd := types.NewSlipCommand(method, payment.Amount, payment.TransRef)
	if err := e.queue.Dispatch(ctx, cmd, path); err != nil {
		e.notify(ctx, "Command dispatch failed", err.Error())
		result := &types.DecisionResult{
			Outcome: types.DecisionRejectedSystemError,
			Reply:   replySystemError,
		}
		e.record(ctx, AuditEntry{
			EventType: "image",
			Outcome:   result.Outcome,
			Method:    method,
			Amount:    payment.Amount,
			Channel:   path,
			TransRef:  payment.TransRef,
			Detail:    err.Error(),
		})
		return result
	}

	result := &types.DecisionResult{
		Outcome: types.DecisionDispatched,
		Reply:   replySlipOK,
		Command: &cmd,
		Channel: path,
	}
	e.record(ctx, AuditEntry{
		EventType: "image",
		Outcome:   result.Outcome,
		Method:    method,
		Amount:    payment.Amount,
		Channel:   path,
		TransRef:  payment.TransRef,
	})
	return result
}

// record writes the decision to the audit trail, best effort.
func (e *Engine) record(ctx context.Context, entry AuditEntry) {
	if !e.hasAudit {
		return
	}
	if err := e.audit.RecordDecision(ctx, entry); err != nil {
		e.log.Warnw("Audit write failed", "outcome", entry.Outcome, "error", err)
	}
}

// notify alerts the operator about a system-error outcome, best effort.
func (e *Engine) notify(ctx context.Context, subject, detail string) {
	if !e.hasAlerts {
		return
	}
	e.alerts.NotifySystemError(ctx, subject, detail)
}
