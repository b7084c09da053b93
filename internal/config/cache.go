package config

import "time"

// ShowtimeCacheConfig controls the Redis read-through cache in front of
// showtime details.  When Enabled is false or no Redis client is
// configured, every lookup goes to the database.
type ShowtimeCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadShowtimeCacheConfig reads SHOWTIME_CACHE_* variables with defaults.
func LoadShowtimeCacheConfig() ShowtimeCacheConfig {
    cfg := ShowtimeCacheConfig{
        Enabled: envBool("SHOWTIME_CACHE_ENABLED", true),
        TTL:     envDur("SHOWTIME_CACHE_TTL", time.Minute),
        Prefix:  envStr("SHOWTIME_CACHE_PREFIX", "showtime"),
    }
    if cfg.TTL <= 0 {
        cfg.TTL = time.Minute
    }
    return cfg
}
