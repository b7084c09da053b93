package handler

import (
    "context"
    "net/http"
    "net/url"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/service"
)

type paymentService interface {
    CreatePayment(ctx context.Context, orderID, userID uint64, method, clientIP string) (*service.PaymentResult, error)
    HandlePaymentWebhook(ctx context.Context, params url.Values) service.WebhookAck
    VerifyReturn(ctx context.Context, params url.Values) service.ReturnResult
}

type refundService interface {
    CreateRefund(ctx context.Context, paymentID, userID uint64, amount int64, reason string) (*model.Refund, error)
    GetRefund(ctx context.Context, id uint64) (*model.Refund, error)
    ProcessRefund(ctx context.Context, id uint64) (*model.Refund, error)
    ApproveRefund(ctx context.Context, id uint64) (*model.Refund, error)
    RejectRefund(ctx context.Context, id uint64, reason string) (*model.Refund, error)
}

// PaymentHandler serves payment creation, the gateway callbacks and
// customer refund requests.
type PaymentHandler struct {
    payments paymentService
    refunds  refundService
    log      *zap.Logger
}

func NewPaymentHandler(payments paymentService, refunds refundService, log *zap.Logger) *PaymentHandler {
    if payments == nil || refunds == nil {
        panic("nil service passed to NewPaymentHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &PaymentHandler{payments: payments, refunds: refunds, log: log}
}

type refundRequest struct {
    Amount int64  `json:"amount"`
    Reason string `json:"reason"`
}

// CreatePayment handles POST /v1/orders/:id/payments.  A zero-amount order
// is confirmed immediately and no redirect URL is returned.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    orderID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    var body struct {
        PaymentMethod string `json:"payment_method"`
    }
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&body); err != nil {
            return badRequest(c, "invalid request body")
        }
    }
    res, err := h.payments.CreatePayment(c.Request().Context(), orderID, userID, body.PaymentMethod, c.RealIP())
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, res)
}

// IPN handles the gateway's server-to-server notification on GET or POST.
// The response is always 200 with the acknowledgement body; the gateway
// decides whether to retry from RspCode alone.
func (h *PaymentHandler) IPN(c echo.Context) error {
    params := callbackParams(c)
    ack := h.payments.HandlePaymentWebhook(c.Request().Context(), params)
    return c.JSON(http.StatusOK, ack)
}

// Return handles the browser redirect back from the gateway.  It reports
// what the signed query says and never changes state.
func (h *PaymentHandler) Return(c echo.Context) error {
    res := h.payments.VerifyReturn(c.Request().Context(), c.QueryParams())
    if !res.Valid {
        return c.JSON(http.StatusBadRequest, res)
    }
    return c.JSON(http.StatusOK, res)
}

// CreateRefund handles POST /v1/payments/:id/refunds for the payment's
// owner.
func (h *PaymentHandler) CreateRefund(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    paymentID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid payment id")
    }
    var body refundRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    r, err := h.refunds.CreateRefund(c.Request().Context(), paymentID, userID, body.Amount, strings.TrimSpace(body.Reason))
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, r)
}

// callbackParams reads the gateway fields from a form body when present,
// falling back to the query string.
func callbackParams(c echo.Context) url.Values {
    if c.Request().Method == http.MethodPost {
        if form, err := c.FormParams(); err == nil && form.Get("vnp_SecureHash") != "" {
            return form
        }
    }
    return c.QueryParams()
}
