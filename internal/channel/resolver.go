// Package channel resolves reported payment amounts to machine command
// channels. Amounts identify machines: each configured price point maps to
// the queue of exactly one physical machine.
package channel

import (
	"errors"
	"fmt"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/shopspring/decimal"
)

// ErrNoMatch is returned by Resolve when the amount maps to no configured
// channel and the resolver runs in strict mode.
var ErrNoMatch = errors.New("amount matches no configured channel")

const commandSegment = "payment_commands"

// Resolver maps amounts to channel paths using the static mapping loaded at
// startup. Immutable after construction, safe for concurrent use.
type Resolver struct {
	mapping     map[string]string
	defaultPath string
	strict      bool
}

// NewResolver builds a Resolver from the channel tables in configuration.
func NewResolver(cfg config.ChannelsConfig) *Resolver {
	mapping := make(map[string]string, len(cfg.SlipMapping))
	for k, v := range cfg.SlipMapping {
		mapping[k] = v
	}
	return &Resolver{
		mapping:     mapping,
		defaultPath: cfg.DefaultPath,
		strict:      cfg.Strict,
	}
}

// Lookup finds the channel path for an amount without applying the no-match
// policy. The verifier may report the same price point as 20, 20.0 or 20.00,
// so an integral amount is checked under both its bare-integer key and its
// one-decimal key. Amounts with a nonzero fractional part must match exactly:
// 30.01 is a distinct decoy price point and 20.5 never collapses to 20.
func (r *Resolver) Lookup(amount *decimal.Decimal) (string, bool) {
	if amount == nil {
		return "", false
	}

	if prefix, ok := r.mapping[amount.String()]; ok {
		return prefix + "/" + commandSegment, true
	}

	if amount.IsInteger() {
		if prefix, ok := r.mapping[amount.StringFixed(1)]; ok {
			return prefix + "/" + commandSegment, true
		}
	}

	return "", false
}

// Resolve maps an amount to a channel path, applying the configured no-match
// policy: fall back to the default path, or fail with ErrNoMatch when strict.
// A nil amount is always a no-match; it never reaches the mapping.
func (r *Resolver) Resolve(amount *decimal.Decimal) (string, error) {
	if path, ok := r.Lookup(amount); ok {
		return path, nil
	}

	reported := "<nil>"
	if amount != nil {
		reported = amount.String()
	}

	if r.strict {
		logger.GetLogger().Warnw("Amount matched no channel", "amount", reported)
		return "", fmt.Errorf("resolve channel for %s: %w", reported, ErrNoMatch)
	}

	logger.GetLogger().Infow("Amount matched no channel, using default path",
		"amount", reported, "default", r.defaultPath)
	return r.defaultPath, nil
}

// Strict reports whether the resolver fails hard on unmatched amounts.
func (r *Resolver) Strict() bool {
	return r.strict
}

// DefaultPath returns the catch-all channel path.
func (r *Resolver) DefaultPath() string {
	return r.defaultPath
}
