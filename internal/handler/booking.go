package handler

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/service"
)

type bookingService interface {
    CreateOrder(ctx context.Context, userID uint64, req service.CreateOrderRequest) (*service.OrderResult, error)
    GetOrder(ctx context.Context, id, userID uint64) (*service.OrderDetail, error)
    ListOrders(ctx context.Context, userID uint64, limit, offset int) ([]model.Order, error)
    CancelOrder(ctx context.Context, id, userID uint64, reason string) (*model.Order, error)
    RescheduleOrder(ctx context.Context, id, userID, newShowtimeID uint64) (*service.OrderDetail, error)
    ExpireBooking(ctx context.Context, id uint64) (*model.Order, error)
    ExpireStale(ctx context.Context, limit int) ([]model.Order, error)
}

// BookingHandler serves the customer order endpoints.  JWTAuth and
// RequireRole run before every method.
type BookingHandler struct {
    bookings bookingService
    log      *zap.Logger
}

func NewBookingHandler(bookings bookingService, log *zap.Logger) *BookingHandler {
    if bookings == nil {
        panic("nil booking service passed to NewBookingHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &BookingHandler{bookings: bookings, log: log}
}

// CreateOrder handles POST /v1/showtimes/:id/orders.  The seats come from
// the caller's active holds on the showtime; the body only carries
// concessions, a promotion code, points and contact overrides.
func (h *BookingHandler) CreateOrder(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    showtimeID, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid showtime id")
    }
    var req service.CreateOrderRequest
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&req); err != nil {
            return badRequest(c, "invalid request body")
        }
    }
    req.ShowtimeID = showtimeID
    req.PromotionCode = strings.TrimSpace(req.PromotionCode)

    res, err := h.bookings.CreateOrder(c.Request().Context(), userID, req)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, res)
}

// ListOrders handles GET /v1/orders?limit=&offset=.
func (h *BookingHandler) ListOrders(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    limit, ok := queryInt(c, "limit", 20)
    if !ok {
        return badRequest(c, "invalid limit")
    }
    offset, ok := queryInt(c, "offset", 0)
    if !ok {
        return badRequest(c, "invalid offset")
    }
    orders, err := h.bookings.ListOrders(c.Request().Context(), userID, limit, offset)
    if err != nil {
        return fail(c, h.log, err)
    }
    if orders == nil {
        orders = []model.Order{}
    }
    return c.JSON(http.StatusOK, echo.Map{"items": orders, "limit": limit, "offset": offset})
}

// GetOrder handles GET /v1/orders/:id.
func (h *BookingHandler) GetOrder(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    detail, err := h.bookings.GetOrder(c.Request().Context(), id, userID)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, detail)
}

// CancelOrder handles POST /v1/orders/:id/cancel.
func (h *BookingHandler) CancelOrder(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    var body struct {
        Reason string `json:"reason"`
    }
    if c.Request().ContentLength != 0 {
        if err := c.Bind(&body); err != nil {
            return badRequest(c, "invalid request body")
        }
    }
    o, err := h.bookings.CancelOrder(c.Request().Context(), id, userID, strings.TrimSpace(body.Reason))
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, o)
}

// RescheduleOrder handles POST /v1/orders/:id/reschedule.
func (h *BookingHandler) RescheduleOrder(c echo.Context) error {
    userID, ok := getUserID(c)
    if !ok {
        return unauthorized(c)
    }
    id, ok := pathID(c, "id")
    if !ok {
        return badRequest(c, "invalid order id")
    }
    var body struct {
        ShowtimeID uint64 `json:"showtime_id"`
    }
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    if body.ShowtimeID == 0 {
        return badRequest(c, "showtime_id is required")
    }
    detail, err := h.bookings.RescheduleOrder(c.Request().Context(), id, userID, body.ShowtimeID)
    if err != nil {
        return fail(c, h.log, err)
    }
    return c.JSON(http.StatusOK, detail)
}
