package service

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "runtime/debug"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/payment/vnpay"
    "github.com/iliyamo/cinema-booking-payments/internal/repository"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// WebhookAck is the acknowledgement body the gateway expects from an IPN
// endpoint.
type WebhookAck struct {
    RspCode string `json:"RspCode"`
    Message string `json:"Message"`
}

var (
    ackSuccess          = WebhookAck{vnpay.AckConfirmSuccess, "Confirm Success"}
    ackOrderNotFound    = WebhookAck{vnpay.AckOrderNotFound, "Order not found"}
    ackAlreadyConfirmed = WebhookAck{vnpay.AckAlreadyConfirmed, "Order already confirmed"}
    ackInvalidAmount    = WebhookAck{vnpay.AckInvalidAmount, "Invalid amount"}
    ackInvalidChecksum  = WebhookAck{vnpay.AckInvalidChecksum, "Invalid signature"}
    ackUnknownError     = WebhookAck{vnpay.AckUnknownError, "Unknown error"}
)

// HandlePaymentWebhook reconciles one gateway notification.  The signature
// is verified before anything is read; a notification for a payment or
// order that is no longer PENDING, or whose hold expired, is acknowledged
// as already processed without side effects.  Internal failures and panics
// map to the generic failure code so the gateway retries.
func (s *PaymentService) HandlePaymentWebhook(ctx context.Context, params url.Values) (ack WebhookAck) {
    defer func() {
        if rec := recover(); rec != nil {
            s.log.Error("webhook panic recovered",
                zap.Any("panic", rec),
                zap.String("stack", string(debug.Stack())),
            )
            ack = ackUnknownError
        }
        s.deps.Metrics.WebhookAck(ack.RspCode)
    }()

    if !s.gateway.VerifySignature(params) {
        s.log.Warn("webhook rejected: invalid checksum", zap.String("txn_ref", params.Get("vnp_TxnRef")))
        return ackInvalidChecksum
    }
    cb, err := vnpay.ParseCallback(params)
    if err != nil {
        if params.Get("vnp_TxnRef") == "" {
            return ackOrderNotFound
        }
        return ackInvalidAmount
    }

    payment, err := s.deps.Store.Repos().Payments.GetByTxnRef(ctx, cb.TxnRef)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return ackOrderNotFound
        }
        s.log.Error("webhook payment lookup failed", zap.String("txn_ref", cb.TxnRef), zap.Error(err))
        return ackUnknownError
    }

    now := s.deps.now()
    var (
        order   model.Order
        tickets []model.Ticket
        paid    bool
    )
    ack = ackSuccess
    err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, payment.OrderID)
        if err != nil {
            return err
        }
        p, err := r.Payments.GetByIDForUpdate(ctx, payment.ID)
        if err != nil {
            return err
        }
        next := model.PaymentFailed
        if cb.Succeeded() {
            next = model.PaymentCompleted
        }
        if !p.Status.CanTransitionTo(next) || o.Status != model.OrderPending || o.HoldExpired(now) {
            ack = ackAlreadyConfirmed
            return nil
        }
        if cb.Amount != p.Amount*100 {
            ack = ackInvalidAmount
            return nil
        }

        if cb.TransactionNo != "" {
            txn := cb.TransactionNo
            p.ProviderTransactionID = &txn
        }
        if err := setPaymentStatus(p, next); err != nil {
            return err
        }
        if next == model.PaymentCompleted {
            paidAt := now
            p.PaidAt = &paidAt
            if err := r.Payments.Update(ctx, p); err != nil {
                return err
            }
            if tickets, err = confirmOrder(ctx, r, o); err != nil {
                return err
            }
            paid = true
        } else {
            if err := r.Payments.Update(ctx, p); err != nil {
                return err
            }
            reason := fmt.Sprintf("Payment failed: %s (%s)", vnpay.ResponseMessage(cb.ResponseCode), cb.ResponseCode)
            if err := releaseOrder(ctx, r, o, model.OrderCancelled, reason, now); err != nil {
                return err
            }
        }
        order = *o
        return nil
    })
    if err != nil {
        s.log.Error("webhook reconciliation failed", zap.String("txn_ref", cb.TxnRef), zap.Error(err))
        return ackUnknownError
    }

    fields := []zap.Field{
        zap.String("txn_ref", cb.TxnRef),
        zap.Uint64("payment_id", payment.ID),
        zap.Uint64("order_id", payment.OrderID),
        zap.String("rsp_code", ack.RspCode),
        zap.String("gateway_code", cb.ResponseCode),
    }
    switch {
    case ack != ackSuccess:
        s.log.Info("webhook acknowledged without changes", fields...)
    case paid:
        s.log.Info("payment confirmed", fields...)
        s.deps.Dispatcher.confirmation(ctx, order, tickets)
    default:
        s.log.Info("payment failed", fields...)
        s.deps.Metrics.OrderClosed(string(model.OrderCancelled))
        s.deps.Dispatcher.cancellation(ctx, order, nil)
    }
    return ack
}
