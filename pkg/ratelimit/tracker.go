package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnitsExceedLimit is returned when a single request costs more than a
// whole window allows.
var ErrUnitsExceedLimit = errors.New("requested units exceed per-window limit")

// Prometheus metrics for quota tracking.
var (
	quotaUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_quota_units_total",
		Help: "Total quota units acquired",
	})

	quotaUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailsync_quota_window_used",
		Help: "Quota units used in the most recent window",
	})

	quotaWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailsync_quota_waits_total",
		Help: "Total number of times a request waited for quota by reason",
	}, []string{"reason"})

	quotaPenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailsync_quota_penalties_total",
		Help: "Total number of rate limit penalties recorded",
	})
)

// Tracker gates requests against a per-user quota stored in Redis.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
	user   string
	limit  int
	now    func() time.Time
}

// NewTracker creates a new quota tracker. A limit <= 0 uses
// DefaultUnitsPerSecond.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, user string, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultUnitsPerSecond
	}
	return &Tracker{
		redis:  redisClient,
		logger: logger.With().Str("user", user).Logger(),
		user:   user,
		limit:  limit,
		now:    time.Now,
	}
}

// Limit returns the per-window budget.
func (t *Tracker) Limit() int {
	return t.limit
}

// Acquire blocks until units are available in the current window or ctx
// is done.
func (t *Tracker) Acquire(ctx context.Context, units int) error {
	if units > t.limit {
		return fmt.Errorf("%w: %d > %d", ErrUnitsExceedLimit, units, t.limit)
	}

	for {
		until, err := t.penaltyDeadline(ctx)
		if err != nil {
			return err
		}
		now := t.now()
		if until.After(now) {
			quotaWaitsTotal.WithLabelValues("penalty").Inc()
			t.logger.Debug().Time("until", until).Msg("Quota penalty active, waiting")
			if err := sleep(ctx, until.Sub(now)); err != nil {
				return err
			}
			continue
		}

		key := windowKey(t.user, now)
		pipe := t.redis.TxPipeline()
		incr := pipe.IncrBy(ctx, key, int64(units))
		pipe.Expire(ctx, key, 2*Window)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("increment quota window: %w", err)
		}

		used := int(incr.Val())
		if used <= t.limit {
			quotaUnitsTotal.Add(float64(units))
			quotaUsed.Set(float64(used))
			return nil
		}

		// Give the units back so the window count stays accurate for
		// other clients, then wait for the next window.
		if err := t.redis.DecrBy(ctx, key, int64(units)).Err(); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("Failed to release over-budget units")
		}
		quotaWaitsTotal.WithLabelValues("window").Inc()
		wait := windowEnd(now).Sub(t.now())
		t.logger.Debug().
			Int("used", used-units).
			Int("limit", t.limit).
			Dur("wait", wait).
			Msg("Quota window spent, waiting")
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Penalize blocks every client of this user for d. A shorter penalty never
// replaces a longer active one.
func (t *Tracker) Penalize(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	until := t.now().Add(d)

	current, err := t.penaltyDeadline(ctx)
	if err != nil {
		return err
	}
	if !current.Before(until) {
		return nil
	}

	err = t.redis.Set(ctx, penaltyKey(t.user), strconv.FormatInt(until.UnixMilli(), 10), d).Err()
	if err != nil {
		return fmt.Errorf("store quota penalty: %w", err)
	}

	quotaPenaltiesTotal.Inc()
	t.logger.Warn().
		Dur("duration", d).
		Time("until", until).
		Msg("Rate limited by provider, pausing requests")
	return nil
}

// GetState retrieves the current quota state from Redis.
// Returns an empty, healthy state if nothing was recorded yet.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	now := t.now()

	used, err := t.redis.Get(ctx, windowKey(t.user, now)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get quota window: %w", err)
	}

	until, err := t.penaltyDeadline(ctx)
	if err != nil {
		return nil, err
	}

	state := &QuotaState{
		User:       t.user,
		Limit:      t.limit,
		Used:       used,
		WindowEnd:  windowEnd(now),
		LastUpdate: now,
	}
	if until.After(now) {
		state.PenaltyUntil = until
	}
	state.UpdateHealth()
	return state, nil
}

func (t *Tracker) penaltyDeadline(ctx context.Context) (time.Time, error) {
	ms, err := t.redis.Get(ctx, penaltyKey(t.user)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get quota penalty: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
