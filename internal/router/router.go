package router

import (
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/config"
    "github.com/iliyamo/cinema-booking-payments/internal/handler"
    "github.com/iliyamo/cinema-booking-payments/internal/metrics"
    "github.com/iliyamo/cinema-booking-payments/internal/middleware"
)

// Deps carries everything the route table needs.  Redis may be nil, in
// which case rate limiting is skipped.
type Deps struct {
    Bookings  *handler.BookingHandler
    Payments  *handler.PaymentHandler
    Admin     *handler.AdminHandler
    Ready     echo.HandlerFunc
    Metrics   *metrics.Metrics
    JWTSecret string
    RateLimit config.RateLimitConfig
    Redis     *redis.Client
    Logger    *zap.Logger
}

// RegisterRoutes registers the unauthenticated endpoints: health checks,
// metrics and the gateway callbacks.  The callbacks are signed by the
// gateway and are never rate limited.
func RegisterRoutes(e *echo.Echo, d Deps) {
    e.GET("/healthz", handler.Health)
    if d.Ready != nil {
        e.GET("/readyz", d.Ready)
    }
    if d.Metrics != nil {
        e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
    }

    gw := e.Group("/v1/payments/vnpay")
    gw.GET("/ipn", d.Payments.IPN)
    gw.POST("/ipn", d.Payments.IPN)
    gw.GET("/return", d.Payments.Return)
}

// RegisterCustomer registers CUSTOMER-scoped endpoints under /v1.
func RegisterCustomer(e *echo.Echo, d Deps) {
    g := e.Group(
        "/v1",
        middleware.JWTAuth(d.JWTSecret),
        middleware.RequireRole(middleware.RoleCustomer),
        middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger),
    )
    g.POST("/showtimes/:id/orders", d.Bookings.CreateOrder)
    g.GET("/orders", d.Bookings.ListOrders)
    g.GET("/orders/:id", d.Bookings.GetOrder)
    g.POST("/orders/:id/cancel", d.Bookings.CancelOrder)
    g.POST("/orders/:id/reschedule", d.Bookings.RescheduleOrder)
    g.POST("/orders/:id/payments", d.Payments.CreatePayment)
    g.POST("/payments/:id/refunds", d.Payments.CreateRefund)
}

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, d Deps) {
    g := e.Group(
        "/v1/admin",
        middleware.JWTAuth(d.JWTSecret),
        middleware.RequireRole(middleware.RoleAdmin),
        middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger),
    )
    g.GET("/orders/:id", d.Admin.GetOrder)
    g.POST("/orders/:id/expire", d.Admin.ExpireOrder)
    g.POST("/orders/expire-stale", d.Admin.ExpireStale)

    g.POST("/payments/:id/refunds", d.Admin.CreateRefund)
    g.GET("/refunds/:id", d.Admin.GetRefund)
    g.POST("/refunds/:id/process", d.Admin.ProcessRefund)
    g.POST("/refunds/:id/approve", d.Admin.ApproveRefund)
    g.POST("/refunds/:id/reject", d.Admin.RejectRefund)
}

// Register installs every route group.
func Register(e *echo.Echo, d Deps) {
    RegisterRoutes(e, d)
    RegisterCustomer(e, d)
    RegisterAdmin(e, d)
}
