package service

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "strconv"
    "strings"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/payment/vnpay"
    "github.com/iliyamo/cinema-booking-payments/internal/repository"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// MethodVNPay is the only gateway method currently wired.
const MethodVNPay = "VNPAY"

// Payment creation paths, used in logs and metrics.
const (
    PathGateway    = "gateway"
    PathZeroAmount = "zero_amount"
)

// PaymentOptions tunes the payment service.
type PaymentOptions struct {
    // ZeroAmountThreshold is the payable amount below which the gateway is
    // skipped and the order confirmed immediately.
    ZeroAmountThreshold int64
}

// PaymentService issues gateway payments and reconciles gateway callbacks.
type PaymentService struct {
    deps    Deps
    gateway *vnpay.Gateway
    opts    PaymentOptions
    log     *zap.Logger
}

func NewPaymentService(deps Deps, gateway *vnpay.Gateway, opts PaymentOptions) (*PaymentService, error) {
    if err := deps.validate(); err != nil {
        return nil, err
    }
    if gateway == nil {
        return nil, errors.New("service: payment gateway is required")
    }
    if opts.ZeroAmountThreshold < 0 {
        opts.ZeroAmountThreshold = 0
    }
    return &PaymentService{deps: deps, gateway: gateway, opts: opts, log: deps.logger().Named("payment")}, nil
}

// PaymentResult is returned by CreatePayment.  PaymentURL is empty on the
// zero-amount path.
type PaymentResult struct {
    Payment    model.Payment `json:"payment"`
    Order      model.Order   `json:"order"`
    PaymentURL string        `json:"payment_url,omitempty"`
    ZeroAmount bool          `json:"zero_amount"`
}

// CreatePayment starts payment of a PENDING order.  When the payable amount
// is below the zero-amount threshold the order is confirmed in the same
// transaction and the gateway is skipped; otherwise a PENDING payment and a
// signed redirect URL are produced.  A still-pending payment for the order
// is returned as is.
func (s *PaymentService) CreatePayment(ctx context.Context, orderID, userID uint64, method, clientIP string) (*PaymentResult, error) {
    method = strings.ToUpper(strings.TrimSpace(method))
    if method == "" {
        method = MethodVNPay
    }
    if method != MethodVNPay {
        return nil, validationErr(fmt.Sprintf("unsupported payment method %q", method), nil)
    }
    now := s.deps.now()

    var res PaymentResult
    var tickets []model.Ticket
    err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, orderID)
        if err != nil {
            return err
        }
        if err := checkOwner(o, userID); err != nil {
            return err
        }
        if o.Status != model.OrderPending {
            return conflictErr(fmt.Sprintf("order is %s, not awaiting payment", o.Status))
        }
        if o.HoldExpired(now) {
            return validationErr("seat hold has expired", nil)
        }

        if p, err := r.Payments.FindPendingByOrder(ctx, o.ID); err == nil {
            res = PaymentResult{Payment: *p, Order: *o}
            if p.PaymentURL != nil {
                res.PaymentURL = *p.PaymentURL
            }
            return nil
        } else if !errors.Is(err, repository.ErrNotFound) {
            return err
        }

        p := model.Payment{
            OrderID: o.ID,
            TxnRef:  newTxnRef(o.ID),
            Method:  method,
        }

        if o.FinalAmount < s.opts.ZeroAmountThreshold {
            // sub-threshold residue is waived; the payment records zero
            paidAt := now
            p.Amount = 0
            p.Status = model.PaymentCompleted
            p.PaidAt = &paidAt
            if err := r.Payments.Create(ctx, &p); err != nil {
                return err
            }
            if tickets, err = confirmOrder(ctx, r, o); err != nil {
                return err
            }
            res = PaymentResult{Payment: p, Order: *o, ZeroAmount: true}
            return nil
        }

        p.Amount = o.FinalAmount
        p.Status = model.PaymentPending
        if err := r.Payments.Create(ctx, &p); err != nil {
            return err
        }
        req := vnpay.PaymentRequest{
            TxnRef:    p.TxnRef,
            Amount:    p.Amount,
            OrderInfo: fmt.Sprintf("Thanh toan don hang %d", o.ID),
            ClientIP:  clientIP,
            CreatedAt: now,
        }
        if o.ExpiresAt != nil {
            req.ExpiresAt = *o.ExpiresAt
        }
        link, err := s.gateway.BuildPaymentURL(req)
        if err != nil {
            return validationErr("cannot build payment request", err)
        }
        p.PaymentURL = &link
        if err := r.Payments.Update(ctx, &p); err != nil {
            return err
        }
        res = PaymentResult{Payment: p, Order: *o, PaymentURL: link}
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "order")
    }

    path := PathGateway
    if res.ZeroAmount {
        path = PathZeroAmount
        s.deps.Dispatcher.confirmation(ctx, res.Order, tickets)
    }
    s.deps.Metrics.PaymentCreated(path)
    s.log.Info("payment created",
        zap.Uint64("order_id", orderID),
        zap.Uint64("payment_id", res.Payment.ID),
        zap.String("txn_ref", res.Payment.TxnRef),
        zap.String("path", path),
        zap.Int64("amount", res.Payment.Amount),
    )
    return &res, nil
}

// confirmOrder applies the paid-order cascade to o: order CONFIRMED, every
// placeholder ticket VALID and the promotion's usage counted once.  It
// returns the order's tickets after the update.
func confirmOrder(ctx context.Context, r ports.Repos, o *model.Order) ([]model.Ticket, error) {
    if !o.Status.CanTransitionTo(model.OrderConfirmed) {
        return nil, conflictErr(fmt.Sprintf("order cannot move from %s to %s", o.Status, model.OrderConfirmed))
    }
    o.Status = model.OrderConfirmed
    o.PaymentStatus = model.PaymentCompleted
    o.ExpiresAt = nil
    if err := r.Orders.Update(ctx, o); err != nil {
        return nil, err
    }
    if err := moveTickets(ctx, r, o.ID, model.TicketCancelled, model.TicketValid); err != nil {
        return nil, err
    }
    if o.PromotionCode != nil && *o.PromotionCode != "" {
        if err := r.Promotions.IncrementUsage(ctx, *o.PromotionCode); err != nil {
            return nil, fmt.Errorf("count promotion usage: %w", err)
        }
    }
    return r.Tickets.ListByOrder(ctx, o.ID)
}

func newTxnRef(orderID uint64) string {
    id := strings.ReplaceAll(uuid.NewString(), "-", "")
    return strconv.FormatUint(orderID, 10) + "-" + id[:12]
}

// ReturnResult is the display-only outcome of a browser return.
type ReturnResult struct {
    Valid         bool                `json:"valid"`
    Success       bool                `json:"success"`
    TxnRef        string              `json:"txn_ref,omitempty"`
    Amount        int64               `json:"amount,omitempty"`
    ResponseCode  string              `json:"response_code,omitempty"`
    Message       string              `json:"message"`
    OrderID       uint64              `json:"order_id,omitempty"`
    PaymentStatus model.PaymentStatus `json:"payment_status,omitempty"`
}

// VerifyReturn checks the signature of a browser return and reports what
// the gateway claims.  It never changes state; the webhook alone does.
func (s *PaymentService) VerifyReturn(ctx context.Context, params url.Values) ReturnResult {
    if !s.gateway.VerifySignature(params) {
        return ReturnResult{Message: "Invalid signature"}
    }
    cb, err := vnpay.ParseCallback(params)
    if err != nil {
        return ReturnResult{Valid: true, Message: "Malformed payment response"}
    }
    res := ReturnResult{
        Valid:        true,
        Success:      cb.Succeeded(),
        TxnRef:       cb.TxnRef,
        Amount:       cb.Amount / 100,
        ResponseCode: cb.ResponseCode,
        Message:      vnpay.ResponseMessage(cb.ResponseCode),
    }
    if p, err := s.deps.Store.Repos().Payments.GetByTxnRef(ctx, cb.TxnRef); err == nil {
        res.OrderID = p.OrderID
        res.PaymentStatus = p.Status
    }
    return res
}
