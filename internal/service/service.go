// Package service implements the booking, payment and refund lifecycle on
// top of the storage ports.  Every state change that touches money runs in
// one transaction; notifications are dispatched only after commit.
package service

import (
    "context"
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/metrics"
    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/repository"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// Deps are the collaborators shared by the services.  Store is required;
// everything else may be nil except where a service states otherwise.
type Deps struct {
    Store      ports.Store
    SeatHolds  ports.SeatHoldClient
    Users      ports.UserDirectory
    Dispatcher *Dispatcher
    Metrics    *metrics.Metrics
    Logger     *zap.Logger
    Clock      func() time.Time
}

func (d Deps) validate() error {
    if d.Store == nil {
        return errors.New("service: store is required")
    }
    return nil
}

func (d Deps) logger() *zap.Logger {
    if d.Logger == nil {
        return zap.NewNop()
    }
    return d.Logger
}

func (d Deps) now() time.Time {
    if d.Clock != nil {
        return d.Clock().UTC()
    }
    return time.Now().UTC()
}

// wrapStore maps repository sentinels onto service errors, leaving service
// errors untouched.
func wrapStore(err error, what string) error {
    if err == nil {
        return nil
    }
    var se *Error
    if errors.As(err, &se) {
        return se
    }
    switch {
    case errors.Is(err, repository.ErrNotFound):
        return notFoundErr(what + " not found")
    case errors.Is(err, repository.ErrConflict):
        return conflictErr(what + " conflicts with existing state")
    case errors.Is(err, repository.ErrForbidden):
        return forbiddenErr("not allowed to access this " + what)
    }
    return internalErr(fmt.Sprintf("load %s", what), err)
}

// releaseOrder closes a PENDING order without payment: the order moves to
// status, any pending payment fails, placeholder tickets stay cancelled and
// redeemed loyalty points are credited back.
func releaseOrder(ctx context.Context, r ports.Repos, o *model.Order, status model.OrderStatus, reason string, now time.Time) error {
    if !o.Status.CanTransitionTo(status) {
        return conflictErr(fmt.Sprintf("order cannot move from %s to %s", o.Status, status))
    }
    if p, err := r.Payments.FindPendingByOrder(ctx, o.ID); err == nil {
        if err := setPaymentStatus(p, model.PaymentFailed); err != nil {
            return err
        }
        if err := r.Payments.Update(ctx, p); err != nil {
            return err
        }
    } else if !errors.Is(err, repository.ErrNotFound) {
        return err
    }
    if err := moveTickets(ctx, r, o.ID, model.TicketValid, model.TicketCancelled); err != nil {
        return err
    }
    if err := restorePoints(ctx, r, o, reason); err != nil {
        return err
    }
    o.Status = status
    o.PaymentStatus = model.PaymentFailed
    o.CancelledAt = &now
    if reason != "" {
        o.CancellationReason = &reason
    }
    return r.Orders.Update(ctx, o)
}

// setPaymentStatus moves p to next when the payment lifecycle allows it.
func setPaymentStatus(p *model.Payment, next model.PaymentStatus) error {
    if !p.Status.CanTransitionTo(next) {
        return conflictErr(fmt.Sprintf("payment cannot move from %s to %s", p.Status, next))
    }
    p.Status = next
    return nil
}

// moveTickets moves every ticket of the order that is in from to to.  A
// pair the ticket lifecycle does not allow is a programming error and is
// refused before touching storage.
func moveTickets(ctx context.Context, r ports.Repos, orderID uint64, from, to model.TicketStatus) error {
    if !from.CanTransitionTo(to) {
        return internalErr(fmt.Sprintf("tickets cannot move from %s to %s", from, to), nil)
    }
    _, err := r.Tickets.UpdateStatusByOrder(ctx, orderID, from, to)
    return err
}

func restorePoints(ctx context.Context, r ports.Repos, o *model.Order, reason string) error {
    if o.PointsUsed <= 0 {
        return nil
    }
    acct, err := r.Loyalty.GetAccountByUserForUpdate(ctx, o.UserID)
    if err != nil {
        return fmt.Errorf("lock loyalty account: %w", err)
    }
    if err := r.Loyalty.AdjustPoints(ctx, acct.ID, o.PointsUsed); err != nil {
        return fmt.Errorf("restore points: %w", err)
    }
    orderID := o.ID
    desc := fmt.Sprintf("Points restored for order #%d", o.ID)
    if reason != "" {
        desc += ": " + reason
    }
    return r.Loyalty.AddTransaction(ctx, &model.LoyaltyTransaction{
        AccountID:   acct.ID,
        OrderID:     &orderID,
        Type:        model.LoyaltyEarn,
        Points:      o.PointsUsed,
        Description: desc,
    })
}

// checkOwner enforces ownership when userID is non-zero; zero is used by
// administrative callers.
func checkOwner(o *model.Order, userID uint64) error {
    if userID != 0 && o.UserID != userID {
        return forbiddenErr("order belongs to another user")
    }
    return nil
}
