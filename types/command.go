package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommandMethod identifies which path produced a machine command.
type CommandMethod string

const (
	MethodSlip       CommandMethod = "slip"
	MethodAIFallback CommandMethod = "ai_fallback"
	MethodCoupon     CommandMethod = "coupon"
)

// CommandStatus is always "work" for newly dispatched commands; the
// machine-side controller owns the record after dispatch.
const CommandStatusWork = "work"

// CommandRecord is the canonical unit pushed to the machine command queue.
// Field names on the wire match what the machine controllers consume.
type CommandRecord struct {
	ID              string           `json:"id"`
	Status          string           `json:"status"`
	Method          CommandMethod    `json:"method"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Code            string           `json:"code,omitempty"`
	SelectedMachine string           `json:"selected_machine,omitempty"`
	TransRef        string           `json:"transRef"`
	Timestamp       int64            `json:"timestamp"`
}

// NewSlipCommand builds a command for a verified payment slip.
func NewSlipCommand(method CommandMethod, amount *decimal.Decimal, transRef string) CommandRecord {
	return CommandRecord{
		Status:    CommandStatusWork,
		Method:    method,
		Amount:    amount,
		TransRef:  transRef,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewCouponCommand builds a command for a redeemed coupon. The transaction
// reference is synthesized from the code so machine-side logs stay traceable.
func NewCouponCommand(code, machine string) CommandRecord {
	ts := time.Now().UnixMilli()
	return CommandRecord{
		Status:          CommandStatusWork,
		Method:          MethodCoupon,
		Code:            code,
		SelectedMachine: machine,
		TransRef:        fmt.Sprintf("coupon-%s-%d", code, ts),
		Timestamp:       ts,
	}
}
