// Package dispatch commits machine commands to the external command queue.
// Each channel path is an independent append-only Redis list consumed by the
// machine-side controller; entries are never overwritten.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/types"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "commands:"

// QueueInterface defines the dispatch operation used by the engine.
type QueueInterface interface {
	Dispatch(ctx context.Context, cmd types.CommandRecord, channelPath string) error
}

type metrics struct {
	dispatchLatency prometheus.Histogram
	dispatchCount   *prometheus.CounterVec
	errorCount      *prometheus.CounterVec
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
	defaultRegistry = prometheus.DefaultRegisterer
)

func newMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			dispatchLatency: promauto.With(defaultRegistry).NewHistogram(prometheus.HistogramOpts{
				Name:    "command_dispatch_duration_seconds",
				Help:    "Time taken to commit a command to the queue",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			}),
			dispatchCount: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "commands_dispatched_total",
				Help: "Total number of dispatched commands by method",
			}, []string{"method"}),
			errorCount: promauto.With(defaultRegistry).NewCounterVec(prometheus.CounterOpts{
				Name: "command_dispatch_errors_total",
				Help: "Total number of dispatch errors",
			}, []string{"type"}),
		}
	})
	return metricsInstance
}

// RedisQueue implements QueueInterface on a Redis list per channel path.
type RedisQueue struct {
	rdb     *redis.Client
	log     *zap.SugaredLogger
	metrics *metrics
	timeout time.Duration
}

// NewRedisQueue creates a queue bound to the given client. Writes are bounded
// by the given timeout so a slow Redis cannot stall the inbound transport.
func NewRedisQueue(rdb *redis.Client, timeout time.Duration) *RedisQueue {
	return &RedisQueue{
		rdb:     rdb,
		log:     logger.GetLogger().Named("dispatch"),
		metrics: newMetrics(),
		timeout: timeout,
	}
}

// Dispatch appends the command to the channel's list. On any failure the
// queue is left untouched and an error is returned; the caller must surface
// it as a recoverable, user-visible failure.
func (q *RedisQueue) Dispatch(ctx context.Context, cmd types.CommandRecord, channelPath string) error {
	start := time.Now()
	defer func() {
		q.metrics.dispatchLatency.Observe(time.Since(start).Seconds())
	}()

	if channelPath == "" {
		q.metrics.errorCount.WithLabelValues("validation").Inc()
		return fmt.Errorf("channel path is empty")
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	if cmd.Timestamp == 0 {
		cmd.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		q.metrics.errorCount.WithLabelValues("marshal").Inc()
		return fmt.Errorf("marshal command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	key := keyPrefix + channelPath
	if err := q.rdb.RPush(ctx, key, data).Err(); err != nil {
		q.metrics.errorCount.WithLabelValues("redis").Inc()
		q.log.Errorw("Command push failed", "channel", channelPath, "error", err)
		return fmt.Errorf("push command to %s: %w", channelPath, err)
	}

	q.metrics.dispatchCount.WithLabelValues(string(cmd.Method)).Inc()
	q.log.Infow("Command dispatched",
		"channel", channelPath,
		"method", cmd.Method,
		"id", cmd.ID,
		"transRef", cmd.TransRef)
	return nil
}
