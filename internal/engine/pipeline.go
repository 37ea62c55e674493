package engine

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/firstnattapon/24wash-backend/errors"
	"github.com/firstnattapon/24wash-backend/internal/slipok"
	"github.com/firstnattapon/24wash-backend/internal/vision"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/types"
	"go.uber.org/zap"
)

// Pipeline runs a slip image through primary verification, bypass-code
// interpretation, and the AI fallback. It is side-effect free and fails
// fast: transport errors are not retried here.
type Pipeline struct {
	verifier    slipok.ClientInterface
	fallback    vision.ExtractorInterface
	hasFallback bool
	bypassCodes map[int]struct{}
	log         *zap.SugaredLogger
}

// NewPipeline builds a verification pipeline. fallback may be nil when no
// vision model is configured; the pipeline then degrades deterministically,
// reporting extraction failure for every bypass slip.
func NewPipeline(verifier slipok.ClientInterface, fallback vision.ExtractorInterface, bypassCodes []int) *Pipeline {
	codes := make(map[int]struct{}, len(bypassCodes))
	for _, c := range bypassCodes {
		codes[c] = struct{}{}
	}
	return &Pipeline{
		verifier:    verifier,
		fallback:    fallback,
		hasFallback: fallback != nil,
		bypassCodes: codes,
		log:         logger.GetLogger().Named("pipeline"),
	}
}

// Verify produces a verdict and, for accepted slips, the extracted payment
// facts. The error is non-nil only for transport and extraction failures;
// a domain rejection is (VerdictRejected, nil, nil).
func (p *Pipeline) Verify(ctx context.Context, image []byte) (types.Verdict, *types.ExtractedPayment, error) {
	result, err := p.verifier.CheckSlip(ctx, image)
	if err != nil {
		return types.VerdictRejected, nil, apperrors.TransportFailure("slip verifier", err)
	}

	if result.Success {
		if result.Data == nil || result.Data.Amount == nil {
			// Confirmed genuine but the verifier returned no usable data;
			// recover the facts the same way as a bypass.
			p.log.Warnw("Verifier success without payment data")
			return p.recoverFromBypass(ctx, image, types.SourceSyntheticBypass)
		}
		p.log.Infow("Slip verified",
			"amount", result.Data.Amount.String(),
			"transRef", result.Data.TransRef)
		return types.VerdictAcceptedWithData, &types.ExtractedPayment{
			Amount:   result.Data.Amount,
			TransRef: result.Data.TransRef,
			Source:   types.SourcePrimaryVerifier,
		}, nil
	}

	if _, ok := p.bypassCodes[int(result.Code)]; ok {
		p.log.Infow("Verifier bypass: genuine slip, data unavailable",
			"code", int(result.Code), "message", result.Message)
		return p.recoverFromBypass(ctx, image, types.SourceAIFallback)
	}

	// Duplicate, amount mismatch, wrong account, unrecognized: terminal.
	p.log.Warnw("Slip rejected by verifier",
		"code", int(result.Code), "message", result.Message)
	return types.VerdictRejected, nil, nil
}

// recoverFromBypass obtains amount and reference via the fallback extractor
// for a slip whose authenticity is trusted but whose data is unknown.
func (p *Pipeline) recoverFromBypass(ctx context.Context, image []byte, source types.PaymentSource) (types.Verdict, *types.ExtractedPayment, error) {
	if !p.hasFallback {
		return types.VerdictAcceptedBypass, nil,
			apperrors.ExtractionFailed("no vision model configured")
	}

	amount, transRef, err := p.fallback.Extract(ctx, image)
	if err != nil {
		return types.VerdictAcceptedBypass, nil,
			apperrors.Wrap(err, apperrors.ExtractionError, "fallback extraction failed")
	}
	if transRef == "" {
		transRef = fmt.Sprintf("bypass-%d", time.Now().UnixMilli())
	}

	return types.VerdictAcceptedBypass, &types.ExtractedPayment{
		Amount:   amount,
		TransRef: transRef,
		Source:   source,
	}, nil
}
