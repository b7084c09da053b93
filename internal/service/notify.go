package service

import (
    "context"
    "fmt"
    "runtime/debug"
    "sync"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/metrics"
    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// Dispatcher hands booking notifications to the notifier on a background
// goroutine once the financial transaction has committed.  Failures are
// logged and never reach the caller.
type Dispatcher struct {
    notifier ports.Notifier
    users    ports.UserDirectory
    metrics  *metrics.Metrics
    log      *zap.Logger
    wg       sync.WaitGroup
}

func NewDispatcher(notifier ports.Notifier, users ports.UserDirectory, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Dispatcher{notifier: notifier, users: users, metrics: m, log: log}
}

// Wait blocks until every in-flight notification has been handed off.
func (d *Dispatcher) Wait() {
    if d == nil {
        return
    }
    d.wg.Wait()
}

func (d *Dispatcher) confirmation(ctx context.Context, order model.Order, tickets []model.Ticket) {
    if d == nil || d.notifier == nil {
        return
    }
    tickets = append([]model.Ticket(nil), tickets...)
    d.wg.Add(1)
    go func() {
        defer d.wg.Done()
        defer d.recoverPanic("confirmation", order.ID)
        ctx := context.WithoutCancel(ctx)
        d.enrich(ctx, &order)
        err := d.notifier.SendBookingConfirmation(ctx, &order, tickets)
        d.metrics.Notification("confirmation", err)
        if err != nil {
            d.log.Warn("booking confirmation notification failed",
                zap.Uint64("order_id", order.ID), zap.Error(err))
        }
    }()
}

func (d *Dispatcher) cancellation(ctx context.Context, order model.Order, refundAmount *int64) {
    if d == nil || d.notifier == nil {
        return
    }
    if refundAmount != nil {
        v := *refundAmount
        refundAmount = &v
    }
    d.wg.Add(1)
    go func() {
        defer d.wg.Done()
        defer d.recoverPanic("cancellation", order.ID)
        ctx := context.WithoutCancel(ctx)
        d.enrich(ctx, &order)
        err := d.notifier.SendBookingCancellation(ctx, &order, refundAmount)
        d.metrics.Notification("cancellation", err)
        if err != nil {
            d.log.Warn("booking cancellation notification failed",
                zap.Uint64("order_id", order.ID), zap.Error(err))
        }
    }()
}

// recoverPanic keeps a misbehaving notifier from taking the process down.
// The panic is counted as a failed notification of kind.
func (d *Dispatcher) recoverPanic(kind string, orderID uint64) {
    rec := recover()
    if rec == nil {
        return
    }
    d.metrics.Notification(kind, fmt.Errorf("notifier panic: %v", rec))
    d.log.Error("booking notification panic recovered",
        zap.String("kind", kind), zap.Uint64("order_id", orderID),
        zap.Any("panic", rec), zap.String("stack", string(debug.Stack())))
}

// enrich refreshes the contact fields from the user directory and keeps the
// order's snapshot when the directory is unavailable.
func (d *Dispatcher) enrich(ctx context.Context, order *model.Order) {
    if d.users == nil {
        return
    }
    u, err := d.users.GetUserDetail(ctx, order.UserID)
    if err != nil || u == nil {
        if err != nil {
            d.log.Debug("user directory lookup failed, using order snapshot",
                zap.Uint64("user_id", order.UserID), zap.Error(err))
        }
        return
    }
    if u.Email != "" {
        order.CustomerEmail = u.Email
    }
    if u.FullName != "" {
        order.CustomerName = u.FullName
    }
    if u.Phone != "" {
        order.CustomerPhone = u.Phone
    }
}
