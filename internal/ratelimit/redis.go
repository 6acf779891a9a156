package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/config"
)

// Limiter decides whether key may make another request in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Connect returns nil when Redis is not configured or unreachable; callers then
// run without rate limiting.
func Connect(cfg config.Config, log zerolog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		log.Info().Msg("redis not configured, rate limiting disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed, rate limiting disabled")
		_ = rdb.Close()
		return nil
	}
	log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
	return rdb
}

type counter interface {
	incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type redisCounter struct {
	rdb *redis.Client
}

func (c redisCounter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// FixedWindow allows Limit requests per key per Window. Counter errors fail
// open: the request is allowed and the error is logged.
type FixedWindow struct {
	counter counter
	limit   int
	window  time.Duration
	prefix  string
	log     zerolog.Logger
	now     func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration, log zerolog.Logger) *FixedWindow {
	return newFixedWindow(redisCounter{rdb: rdb}, limit, window, log)
}

func newFixedWindow(c counter, limit int, window time.Duration, log zerolog.Logger) *FixedWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{
		counter: c,
		limit:   limit,
		window:  window,
		prefix:  "ratelimit:",
		log:     log.With().Str("component", "ratelimit").Logger(),
		now:     time.Now,
	}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if l.limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	windowEnd := time.Unix(0, (slot+1)*int64(l.window))

	n, err := l.counter.incr(ctx, l.prefix+key+":"+strconv.FormatInt(slot, 10), l.window)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable, allowing request")
		return Decision{Allowed: true, Remaining: l.limit}, fmt.Errorf("incr rate counter: %w", err)
	}
	if n > int64(l.limit) {
		return Decision{Allowed: false, RetryAfter: windowEnd.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - int(n)}, nil
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
