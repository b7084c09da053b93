package scheduler

import (
    "context"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

type bookingExpirer interface {
    ExpireStale(ctx context.Context, limit int) ([]model.Order, error)
}

// Scheduler periodically expires pending orders whose seat hold lapsed.
type Scheduler struct {
    bookings  bookingExpirer
    interval  time.Duration
    batchSize int
    logger    *zap.Logger
}

func New(bookings bookingExpirer, interval time.Duration, batchSize int, logger *zap.Logger) *Scheduler {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &Scheduler{
        bookings:  bookings,
        interval:  interval,
        batchSize: batchSize,
        logger:    logger.Named("scheduler"),
    }
}

func (s *Scheduler) Start(ctx context.Context) {
    ticker := time.NewTicker(s.interval)
    defer ticker.Stop()

    s.logger.Info("scheduler started",
        zap.Duration("interval", s.interval),
        zap.Int("batch_size", s.batchSize),
    )

    for {
        select {
        case <-ctx.Done():
            s.logger.Info("scheduler stopped")
            return
        case <-ticker.C:
            s.tick(ctx)
        }
    }
}

func (s *Scheduler) tick(ctx context.Context) {
    expired, err := s.bookings.ExpireStale(ctx, s.batchSize)
    if err != nil {
        s.logger.Error("failed to expire stale orders", zap.Error(err))
    }
    for _, o := range expired {
        s.logger.Info("order expired",
            zap.Uint64("order_id", o.ID),
            zap.Uint64("user_id", o.UserID),
            zap.Uint64("showtime_id", o.ShowtimeID),
        )
    }
}
