package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
    t.Helper()
    for k, v := range map[string]string{
        "APP_ENV":           "test",
        "APP_PORT":          "8080",
        "DB_USER":           "cinema",
        "DB_HOST":           "127.0.0.1",
        "DB_PORT":           "3306",
        "DB_NAME":           "cinema",
        "JWT_SECRET":        "s3cret",
        "VNPAY_TMN_CODE":    "CINEMA01",
        "VNPAY_HASH_SECRET": "SECRETKEY",
        "VNPAY_RETURN_URL":  "https://cinema.example/payments/return",
    } {
        t.Setenv(k, v)
    }
}

func TestLoad(t *testing.T) {
    setRequired(t)
    t.Setenv("BOOKING_MAX_RESCHEDULES", "2")
    t.Setenv("PAYMENT_ZERO_AMOUNT_THRESHOLD", "500")

    cfg := Load()
    assert.Equal(t, "8080", cfg.Port)
    assert.Equal(t, "info", cfg.LogLevel)
    assert.Equal(t, 2, cfg.Booking.MaxReschedules)
    assert.Equal(t, int64(500), cfg.Payment.ZeroAmountThreshold)
    assert.Equal(t, "2.1.0", cfg.Payment.Version)
    assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
    assert.Equal(t, "booking.notifications", cfg.Notify.Queue)
    assert.Equal(t, 3, cfg.Notify.PublishAttempts)
}

func TestPaymentConfig_Gateway(t *testing.T) {
    p := PaymentConfig{TmnCode: "T", HashSecret: "S", PayURL: "https://pay", ReturnURL: "https://ret", TimeZone: "Asia/Ho_Chi_Minh"}
    g, err := p.Gateway()
    require.NoError(t, err)
    assert.Equal(t, "Asia/Ho_Chi_Minh", g.Location.String())
    assert.Equal(t, "T", g.TmnCode)

    p.TimeZone = "Mars/Olympus"
    _, err = p.Gateway()
    assert.Error(t, err)
}

func TestLoadNotifyConfig(t *testing.T) {
    t.Setenv("RABBITMQ_URL", "")
    t.Setenv("AMQP_URL", "amqp://u:p@mq:5672/")
    t.Setenv("NOTIFY_PUBLISH_ATTEMPTS", "0")
    cfg := LoadNotifyConfig()
    assert.Equal(t, "amqp://u:p@mq:5672/", cfg.AMQPURL)
    assert.Equal(t, 1, cfg.PublishAttempts)
    assert.False(t, cfg.ConsumerEnabled)
}

func TestLoadRateLimitConfig(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "5")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")
    cfg := LoadRateLimitConfig()
    assert.Equal(t, 5, cfg.Capacity)
    assert.Equal(t, 2*time.Second, cfg.RefillInterval)
    assert.Equal(t, 10*time.Second, cfg.TTL)
    assert.True(t, cfg.Enabled)
}

func TestEnvHelpers(t *testing.T) {
    t.Setenv("X_BOOL", "off")
    t.Setenv("X_INT", "abc")
    t.Setenv("X_DUR", "nope")
    assert.False(t, envBool("X_BOOL", true))
    assert.True(t, envBool("X_MISSING_BOOL", true))
    assert.Equal(t, 7, envInt("X_INT", 7))
    assert.Equal(t, time.Minute, envDur("X_DUR", time.Minute))
    assert.Equal(t, "def", envStr("X_MISSING_STR", "def"))
}

func TestLoadShowtimeCacheAndScheduler(t *testing.T) {
    t.Setenv("SHOWTIME_CACHE_TTL", "-1s")
    assert.Equal(t, time.Minute, LoadShowtimeCacheConfig().TTL)

    t.Setenv("EXPIRY_SWEEP_BATCH", "0")
    assert.Equal(t, 100, LoadSchedulerConfig().BatchSize)

    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}
