package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// adminUser is the caller ID the services treat as an operator acting on
// any customer's resources.
const adminUser uint64 = 0

// AdminHandler exposes the operator side of the refund state machine and
// manual order expiry.  Routes are mounted behind RequireRole(ADMIN).
type AdminHandler struct {
    bookings bookingService
    refunds  refundService
    log      *zap.Logger
}

func NewAdminHandler(bookings bookingService, refunds refundService, log *zap.Logger) *AdminHandler {
    if bookings == nil || refunds == nil {
        panic("nil service passed to NewAdminHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &AdminHandler{bookings: bookings, refunds: refunds, log: log}
}

// GetOrder handles GET /v1/admin/orders/:id.
func (h *AdminHandler) GetOrder(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    detail, err := h.bookings.GetOrder(c.Request().Context(), id, adminUser)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, detail)
}

// ExpireOrder handles POST /v1/admin/orders/:id/expire.
func (h *AdminHandler) ExpireOrder(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    o, err := h.bookings.ExpireBooking(c.Request().Context(), id)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, o)
}

// ExpireStale handles POST /v1/admin/orders/expire-stale?limit=.
func (h *AdminHandler) ExpireStale(c echo.Context) error {
    limit, ok := queryInt(c, "limit", 100)
    if !ok || limit == 0 {
        return badRequest(c, "invalid limit")
    }
    expired, err := h.bookings.ExpireStale(c.Request().Context(), limit)
    if err != nil {
        return fail(c, h.log, err)
    }
    if expired == nil {
        expired = []model.Order{}
    }
    return c.JSON(http.StatusOK, echo.Map{"expired": expired, "count": len(expired)})
}

// CreateRefund handles POST /v1/admin/payments/:id/refunds.  Unlike the
// customer route it skips the ownership check.
func (h *AdminHandler) CreateRefund(c echo.Context) error {
    paymentID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid payment id")
    }
    var body refundRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    r, err := h.refunds.CreateRefund(c.Request().Context(), paymentID, adminUser, body.Amount, strings.TrimSpace(body.Reason))
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, r)
}

// GetRefund handles GET /v1/admin/refunds/:id.
func (h *AdminHandler) GetRefund(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid refund id")
    }
    r, err := h.refunds.GetRefund(c.Request().Context(), id)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, r)
}

// ProcessRefund handles POST /v1/admin/refunds/:id/process.
func (h *AdminHandler) ProcessRefund(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid refund id")
    }
    r, err := h.refunds.ProcessRefund(c.Request().Context(), id)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, r)
}

// ApproveRefund handles POST /v1/admin/refunds/:id/approve.
func (h *AdminHandler) ApproveRefund(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid refund id")
    }
    r, err := h.refunds.ApproveRefund(c.Request().Context(), id)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, r)
}

// RejectRefund handles POST /v1/admin/refunds/:id/reject.
func (h *AdminHandler) RejectRefund(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid refund id")
    }
    var body struct {
        Reason string `json:"reason"`
    }
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&body); err != nil {
            return badRequest(c, "invalid request body")
        }
    }
    r, err := h.refunds.RejectRefund(c.Request().Context(), id, strings.TrimSpace(body.Reason))
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, r)
}
