package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"coursepay/internal/payment"
)

// CallbackAcceptedKey is set to true on the echo context by the callback
// handler once a notification was accepted.
const CallbackAcceptedKey = "callback_accepted"

// ReplayCache remembers fingerprints of accepted callback bodies.
type ReplayCache interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
	Remember(ctx context.Context, fingerprint string) error
}

// ReplayRecorder stores redeliveries answered from the replay cache.
type ReplayRecorder interface {
	RecordReplay(ctx context.Context, fingerprint, rawBody string) error
}

type redisReplayCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (c *redisReplayCache) Seen(ctx context.Context, fingerprint string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+":"+fingerprint).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *redisReplayCache) Remember(ctx context.Context, fingerprint string) error {
	return c.client.Set(ctx, c.prefix+":"+fingerprint, "1", c.ttl).Err()
}

type memoryReplayCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
	now    func() time.Time
}

func newMemoryReplayCache(ttl time.Duration) *memoryReplayCache {
	now := time.Now()
	return &memoryReplayCache{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
		now:    time.Now,
	}
}

func (c *memoryReplayCache) Seen(_ context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.seen[fingerprint]
	return ok && exp.After(c.now()), nil
}

func (c *memoryReplayCache) Remember(_ context.Context, fingerprint string) error {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen[fingerprint] = now.Add(c.ttl)
	if now.After(c.nextGC) {
		for fp, exp := range c.seen {
			if exp.Before(now) {
				delete(c.seen, fp)
			}
		}
		c.nextGC = now.Add(c.ttl)
	}
	return nil
}

// NewReplayCache builds a Redis cache and falls back to in-memory on failure.
func NewReplayCache(addr, pass string, db int, ttl time.Duration) (ReplayCache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if addr == "" {
		return newMemoryReplayCache(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryReplayCache(ttl), err
	}

	return &redisReplayCache{
		client: client,
		prefix: "payment:callback",
		ttl:    ttl,
	}, nil
}

// Fingerprint is the replay key of a raw callback body.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CallbackReplay answers a byte-identical redelivery of an already accepted
// callback with the success token without running the handler again. Each
// such replay is still written to audit when set. Cache failures never block
// processing.
func CallbackReplay(cache ReplayCache, audit ReplayRecorder, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cache == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}
			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			fp := Fingerprint(rawBody)
			seen, err := cache.Seen(req.Context(), fp)
			if err != nil {
				logger.Warn("Replay cache lookup failed", zap.Error(err))
			}
			if seen {
				logger.Info("Replayed payment callback acknowledged",
					zap.String("fingerprint", fp),
					zap.String("ip", c.RealIP()),
				)
				if audit != nil {
					if err := audit.RecordReplay(req.Context(), fp, string(rawBody)); err != nil {
						logger.Warn("Failed to record callback replay", zap.Error(err))
					}
				}
				return c.String(http.StatusOK, payment.AckOK)
			}

			if err := next(c); err != nil {
				return err
			}

			if accepted, _ := c.Get(CallbackAcceptedKey).(bool); accepted {
				if err := cache.Remember(req.Context(), fp); err != nil {
					logger.Warn("Replay cache write failed", zap.Error(err))
				}
			}
			return nil
		}
	}
}
