package channel

import (
	"errors"
	"testing"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.IsTest = true
}

func testChannels(strict bool) config.ChannelsConfig {
	return config.ChannelsConfig{
		SlipMapping: map[string]string{
			"20":    "20",
			"30.01": "301",
			"40.0":  "40",
			"50":    "50",
			"50.0":  "50",
		},
		CouponMachines: map[string]string{"1": "20/payment_commands"},
		DefaultPath:    "payment_commands",
		Strict:         strict,
	}
}

func dec(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return &d
}

func TestResolver_Lookup(t *testing.T) {
	r := NewResolver(testChannels(false))

	tests := []struct {
		name     string
		amount   string
		wantPath string
		wantOK   bool
	}{
		{"integer key exact", "20", "20/payment_commands", true},
		{"float form of integer key", "20.0", "20/payment_commands", true},
		{"two decimal form of integer key", "20.00", "20/payment_commands", true},
		{"fractional decoy price point", "30.01", "301/payment_commands", true},
		{"integer present only as x.0 key", "40", "40/payment_commands", true},
		{"float form of x.0 key", "40.0", "40/payment_commands", true},
		{"key present in both encodings", "50.0", "50/payment_commands", true},
		{"no collapse for nonzero fraction", "20.5", "", false},
		{"decoy near-miss never rounds", "30", "", false},
		{"unmapped amount", "99", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := r.Lookup(dec(t, tt.amount))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestResolver_Lookup_NilAmount(t *testing.T) {
	r := NewResolver(testChannels(false))
	path, ok := r.Lookup(nil)
	assert.False(t, ok)
	assert.Empty(t, path)
}

func TestResolver_Resolve_DefaultPolicy(t *testing.T) {
	r := NewResolver(testChannels(false))

	path, err := r.Resolve(dec(t, "99"))
	require.NoError(t, err)
	assert.Equal(t, "payment_commands", path)

	path, err = r.Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, "payment_commands", path)
}

func TestResolver_Resolve_StrictPolicy(t *testing.T) {
	r := NewResolver(testChannels(true))

	_, err := r.Resolve(dec(t, "99"))
	assert.True(t, errors.Is(err, ErrNoMatch))

	_, err = r.Resolve(nil)
	assert.True(t, errors.Is(err, ErrNoMatch))

	path, err := r.Resolve(dec(t, "30.01"))
	require.NoError(t, err)
	assert.Equal(t, "301/payment_commands", path)
}
