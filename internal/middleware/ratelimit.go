package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/config"
)

// tokenBucketScript refills by whole intervals, then takes one token.
// Returns {allowed, tokens_left, wait_ms}.
var tokenBucketScript = redis.NewScript(`
local now, cap, per, every, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local h = redis.call('HMGET', KEYS[1], 't', 'ts')
local t = tonumber(h[1]) or cap
local ts = tonumber(h[2]) or now
if every > 0 and per > 0 and now > ts then
    local n = math.floor((now - ts) / every)
    if n > 0 then
        t = math.min(cap, t + n * per)
        ts = ts + n * every
    end
end
local ok, wait = 0, 0
if t >= 1 then
    ok, t = 1, t - 1
else
    wait = math.max(0, every - (now - ts))
end
redis.call('HSET', KEYS[1], 't', t, 'ts', ts)
if ttl > 0 then redis.call('PEXPIRE', KEYS[1], ttl) end
return {ok, t, wait}
`)

var rateKeyStrategies = map[string]bool{
    "ip": true, "user": true, "route": true,
    "ip_user": true, "ip_route": true, "user_route": true, "ip_user_route": true,
}

// NewTokenBucket limits requests per key with a Redis token bucket.  When
// limiting is disabled or Redis is unavailable the middleware is a no-op,
// and a Redis error on a single request lets that request through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = zap.NewNop()
    }
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(), cfg.TTL.Milliseconds(),
            ).Int64Slice()
            if err != nil || len(vals) != 3 {
                if cfg.Debug {
                    log.Warn("rate limit check skipped", zap.String("key", key), zap.Error(err))
                }
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(vals[1], 10))
            if vals[0] == 1 {
                return next(c)
            }

            wait := int(math.Ceil(float64(vals[2]) / 1000))
            h.Set("Retry-After", strconv.Itoa(wait))
            if cfg.Debug {
                log.Info("rate limited", zap.String("key", key), zap.Int64("wait_ms", vals[2]))
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "rate limit exceeded",
                "retry_after": wait,
            })
        }
    }
}

// buildRateKey joins the configured dimensions (ip, user, route, in that
// order) under the prefix.  Unknown strategies use all three.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    strategy := strings.ToLower(cfg.KeyStrategy)
    if !rateKeyStrategies[strategy] {
        strategy = "ip_user_route"
    }
    parts := []string{cfg.Prefix}
    for _, dim := range strings.Split(strategy, "_") {
        switch dim {
        case "ip":
            ip := c.RealIP()
            if ip == "" {
                ip = "unknown"
            }
            parts = append(parts, "ip", ip)
        case "user":
            parts = append(parts, "user", rateKeyUser(c))
        case "route":
            parts = append(parts, "route", c.Request().Method+" "+c.Path())
        }
    }
    return strings.Join(parts, ":")
}
