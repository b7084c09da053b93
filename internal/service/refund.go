package service

import (
    "context"
    "fmt"
    "strings"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// RefundService manages refund requests against completed payments.
type RefundService struct {
    deps Deps
    log  *zap.Logger
}

func NewRefundService(deps Deps) (*RefundService, error) {
    if err := deps.validate(); err != nil {
        return nil, err
    }
    return &RefundService{deps: deps, log: deps.logger().Named("refund")}, nil
}

// CreateRefund opens a PENDING refund for amount against a COMPLETED
// payment.  The sum of active refunds may never exceed the payment amount.
// A non-zero userID must own the paid order.
func (s *RefundService) CreateRefund(ctx context.Context, paymentID, userID uint64, amount int64, reason string) (*model.Refund, error) {
    reason = strings.TrimSpace(reason)
    if amount <= 0 {
        return nil, validationErr("refund amount must be positive", nil)
    }
    if reason == "" {
        return nil, validationErr("refund reason is required", nil)
    }
    payment, err := s.deps.Store.Repos().Payments.GetByID(ctx, paymentID)
    if err != nil {
        return nil, wrapStore(err, "payment")
    }

    var refund model.Refund
    err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, payment.OrderID)
        if err != nil {
            return err
        }
        if err := checkOwner(o, userID); err != nil {
            return err
        }
        p, err := r.Payments.GetByIDForUpdate(ctx, paymentID)
        if err != nil {
            return err
        }
        if p.Status != model.PaymentCompleted {
            return conflictErr(fmt.Sprintf("payment is %s, only completed payments can be refunded", p.Status))
        }
        existing, err := r.Refunds.SumActiveByPayment(ctx, p.ID)
        if err != nil {
            return err
        }
        if existing+amount > p.Amount {
            return conflictErr("refund exceeds the refundable amount").
                with("payment_amount", p.Amount).
                with("already_refunded", existing).
                with("refundable", max(p.Amount-existing, 0))
        }
        refund = model.Refund{
            PaymentID: p.ID,
            Amount:    amount,
            Reason:    reason,
            Status:    model.RefundPending,
        }
        return r.Refunds.Create(ctx, &refund)
    })
    if err != nil {
        return nil, wrapStore(err, "payment")
    }
    s.deps.Metrics.RefundAction("create")
    s.log.Info("refund requested",
        zap.Uint64("refund_id", refund.ID),
        zap.Uint64("payment_id", paymentID),
        zap.Int64("amount", amount),
    )
    return &refund, nil
}

// GetRefund returns a refund by id.
func (s *RefundService) GetRefund(ctx context.Context, id uint64) (*model.Refund, error) {
    r, err := s.deps.Store.Repos().Refunds.GetByID(ctx, id)
    if err != nil {
        return nil, wrapStore(err, "refund")
    }
    return r, nil
}

// ProcessRefund marks a PENDING refund as being worked on.
func (s *RefundService) ProcessRefund(ctx context.Context, id uint64) (*model.Refund, error) {
    var out model.Refund
    err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        ref, err := r.Refunds.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if !ref.Status.CanTransitionTo(model.RefundProcessing) {
            return conflictErr(fmt.Sprintf("refund is %s and cannot be processed", ref.Status))
        }
        ref.Status = model.RefundProcessing
        if err := r.Refunds.Update(ctx, ref); err != nil {
            return err
        }
        out = *ref
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "refund")
    }
    s.deps.Metrics.RefundAction("process")
    s.log.Info("refund processing", zap.Uint64("refund_id", id))
    return &out, nil
}

// ApproveRefund completes a PENDING or PROCESSING refund.  The payment
// becomes REFUNDED and a CONFIRMED order is cancelled with its tickets.
func (s *RefundService) ApproveRefund(ctx context.Context, id uint64) (*model.Refund, error) {
    repos := s.deps.Store.Repos()
    current, err := repos.Refunds.GetByID(ctx, id)
    if err != nil {
        return nil, wrapStore(err, "refund")
    }
    payment, err := repos.Payments.GetByID(ctx, current.PaymentID)
    if err != nil {
        return nil, wrapStore(err, "payment")
    }

    now := s.deps.now()
    var (
        out       model.Refund
        order     model.Order
        cancelled bool
    )
    err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, payment.OrderID)
        if err != nil {
            return err
        }
        p, err := r.Payments.GetByIDForUpdate(ctx, payment.ID)
        if err != nil {
            return err
        }
        ref, err := r.Refunds.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if !ref.Status.CanTransitionTo(model.RefundCompleted) {
            return conflictErr(fmt.Sprintf("refund is %s and cannot be approved", ref.Status))
        }

        refundedAt := now
        ref.Status = model.RefundCompleted
        ref.RefundedAt = &refundedAt
        if err := r.Refunds.Update(ctx, ref); err != nil {
            return err
        }

        // a second partial refund finds the payment already REFUNDED
        if p.Status != model.PaymentRefunded {
            if err := setPaymentStatus(p, model.PaymentRefunded); err != nil {
                return err
            }
            if err := r.Payments.Update(ctx, p); err != nil {
                return err
            }
        }

        if o.Status == model.OrderConfirmed {
            reason := "Refunded: " + ref.Reason
            o.Status = model.OrderCancelled
            o.PaymentStatus = model.PaymentRefunded
            o.CancellationReason = &reason
            o.CancelledAt = &refundedAt
            if err := r.Orders.Update(ctx, o); err != nil {
                return err
            }
            if err := moveTickets(ctx, r, o.ID, model.TicketValid, model.TicketCancelled); err != nil {
                return err
            }
            cancelled = true
        }
        out = *ref
        order = *o
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "refund")
    }

    s.deps.Metrics.RefundAction("approve")
    s.log.Info("refund approved",
        zap.Uint64("refund_id", id),
        zap.Uint64("payment_id", payment.ID),
        zap.Uint64("order_id", payment.OrderID),
        zap.Int64("amount", out.Amount),
        zap.Bool("order_cancelled", cancelled),
    )
    if cancelled {
        amount := out.Amount
        s.deps.Dispatcher.cancellation(ctx, order, &amount)
    }
    return &out, nil
}

// RejectRefund fails a PENDING refund and appends the rejection reason.
// Payment and order are left untouched.
func (s *RefundService) RejectRefund(ctx context.Context, id uint64, reason string) (*model.Refund, error) {
    reason = strings.TrimSpace(reason)
    if reason == "" {
        return nil, validationErr("rejection reason is required", nil)
    }
    var out model.Refund
    err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        ref, err := r.Refunds.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if !ref.Status.CanTransitionTo(model.RefundFailed) {
            return conflictErr(fmt.Sprintf("refund is %s, only pending refunds can be rejected", ref.Status))
        }
        ref.Status = model.RefundFailed
        ref.Reason = strings.TrimSpace(ref.Reason + " | Rejected: " + reason)
        if err := r.Refunds.Update(ctx, ref); err != nil {
            return err
        }
        out = *ref
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "refund")
    }
    s.deps.Metrics.RefundAction("reject")
    s.log.Info("refund rejected", zap.Uint64("refund_id", id))
    return &out, nil
}
