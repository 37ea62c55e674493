package coupon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const keyPrefix = "coupons:"

// Record is a stored coupon. Value is zero when the record carries no
// explicit value; presence alone makes the coupon redeemable.
type Record struct {
	Code  string
	Value decimal.Decimal
}

// Store is the keyed coupon storage. Get returns (nil, nil) for an absent
// code; "already used" and "never existed" cannot be told apart.
type Store interface {
	Get(ctx context.Context, code string) (*Record, error)
	// Delete removes the record and reports whether this call removed it.
	// A false return with nil error means another redemption won the race.
	Delete(ctx context.Context, code string) (bool, error)
}

// RedisStore implements Store on plain Redis keys. The conditional delete
// relies on DEL's removed-key count, which is atomic server-side.
type RedisStore struct {
	rdb     *redis.Client
	log     *zap.SugaredLogger
	timeout time.Duration
}

// NewRedisStore creates a coupon store bound to the given client.
func NewRedisStore(rdb *redis.Client, timeout time.Duration) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		log:     logger.GetLogger().Named("coupons"),
		timeout: timeout,
	}
}

// Get fetches a coupon by code. The stored value is either a bare scalar
// (legacy records) or a JSON object with a "value" field; anything
// unparseable is treated as a zero-value coupon rather than an error.
func (s *RedisStore) Get(ctx context.Context, code string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, keyPrefix+code).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		s.log.Errorw("Coupon read failed", "code", code, "error", err)
		return nil, fmt.Errorf("get coupon %s: %w", code, err)
	}

	return &Record{Code: code, Value: parseValue(raw)}, nil
}

// Delete removes the coupon. Called only after the resulting command has
// been committed to the queue.
func (s *RedisStore) Delete(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.rdb.Del(ctx, keyPrefix+code).Result()
	if err != nil {
		s.log.Errorw("Coupon delete failed", "code", code, "error", err)
		return false, fmt.Errorf("delete coupon %s: %w", code, err)
	}
	return removed > 0, nil
}

func parseValue(raw string) decimal.Decimal {
	// JSON record shape: {"value": 20}
	var obj struct {
		Value *decimal.Decimal `json:"value"`
	}
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj.Value != nil {
		return *obj.Value
	}
	// bare scalar, possibly quoted
	var quoted string
	if err := json.Unmarshal([]byte(raw), &quoted); err == nil {
		raw = quoted
	}
	if v, err := decimal.NewFromString(raw); err == nil {
		return v
	}
	return decimal.Zero
}
