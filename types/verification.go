package types

import "github.com/shopspring/decimal"

// Verdict is the outcome of running one slip image through the verification
// pipeline. It is produced per event and never persisted.
type Verdict string

const (
	// VerdictAcceptedWithData: the primary verifier confirmed the slip and
	// returned the paid amount and transaction reference.
	VerdictAcceptedWithData Verdict = "accepted_with_data"
	// VerdictAcceptedBypass: the verifier could not confirm automatically but
	// the failure code marks the slip as genuinely bank-originated. Amount and
	// reference are unknown and must come from the fallback extractor.
	VerdictAcceptedBypass Verdict = "accepted_bypass"
	// VerdictRejected: terminal rejection, no fallback is attempted.
	VerdictRejected Verdict = "rejected"
)

// PaymentSource records which stage produced the extracted payment facts.
type PaymentSource string

const (
	SourcePrimaryVerifier PaymentSource = "primary-verifier"
	SourceAIFallback      PaymentSource = "ai-fallback"
	SourceSyntheticBypass PaymentSource = "synthetic-bypass"
)

// ExtractedPayment holds the payment facts recovered from a slip image.
// Amount is nil when no numeric amount could be established.
type ExtractedPayment struct {
	Amount   *decimal.Decimal
	TransRef string
	Source   PaymentSource
}

// Decision is the terminal state of processing one inbound event.
type Decision string

const (
	DecisionDispatched             Decision = "dispatched"
	DecisionRejectedInvalidSlip    Decision = "rejected_invalid_slip"
	DecisionRejectedAmountMismatch Decision = "rejected_amount_mismatch"
	DecisionRejectedInvalidCoupon  Decision = "rejected_invalid_coupon"
	DecisionRejectedSystemError    Decision = "rejected_system_error"
)

// DecisionResult pairs the terminal decision with the human-readable reply
// the transport should send back to the user.
type DecisionResult struct {
	Outcome Decision
	Reply   string
	Command *CommandRecord
	Channel string
}
