package repository

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// CachedShowtimes is a read-through Redis cache in front of a showtime
// lookup.  Showtime details change rarely and are read on every order
// creation and reschedule.  Redis failures are logged and fall through to
// the underlying lookup; a nil client disables caching entirely.
type CachedShowtimes struct {
    next   ShowtimeLookup
    rdb    *redis.Client
    ttl    time.Duration
    prefix string
    log    *zap.Logger
}

// NewCachedShowtimes wraps next.  A non-positive ttl defaults to one minute.
func NewCachedShowtimes(next ShowtimeLookup, rdb *redis.Client, ttl time.Duration, prefix string, log *zap.Logger) *CachedShowtimes {
    if ttl <= 0 {
        ttl = time.Minute
    }
    if prefix == "" {
        prefix = "showtime"
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &CachedShowtimes{next: next, rdb: rdb, ttl: ttl, prefix: prefix, log: log}
}

func (c *CachedShowtimes) key(id uint64) string {
    return fmt.Sprintf("%s:%d", c.prefix, id)
}

// GetShowtimeDetails serves from Redis when possible.  Missing showtimes
// are not cached.
func (c *CachedShowtimes) GetShowtimeDetails(ctx context.Context, showtimeID uint64) (*model.ShowtimeDetails, error) {
    if c.rdb == nil {
        return c.next.GetShowtimeDetails(ctx, showtimeID)
    }
    key := c.key(showtimeID)
    raw, err := c.rdb.Get(ctx, key).Bytes()
    switch {
    case err == nil:
        var d model.ShowtimeDetails
        if jsonErr := json.Unmarshal(raw, &d); jsonErr == nil {
            return &d, nil
        }
        c.log.Warn("discarding unreadable showtime cache entry", zap.String("key", key))
    case !errors.Is(err, redis.Nil):
        c.log.Warn("showtime cache read failed", zap.String("key", key), zap.Error(err))
    }

    d, err := c.next.GetShowtimeDetails(ctx, showtimeID)
    if err != nil {
        return nil, err
    }
    if payload, err := json.Marshal(d); err == nil {
        if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
            c.log.Warn("showtime cache write failed", zap.String("key", key), zap.Error(err))
        }
    }
    return d, nil
}

// Invalidate drops the cached entry for showtimeID.
func (c *CachedShowtimes) Invalidate(ctx context.Context, showtimeID uint64) error {
    if c.rdb == nil {
        return nil
    }
    return c.rdb.Del(ctx, c.key(showtimeID)).Err()
}
