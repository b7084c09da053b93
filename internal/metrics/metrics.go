// Package metrics exposes the booking core's Prometheus instruments.  All
// recording methods are safe to call on a nil *Metrics so services can run
// without instrumentation in tests.
package metrics

import (
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cinema"

type Metrics struct {
    registry *prometheus.Registry

    Requests      *prometheus.CounterVec
    LatencyMS     *prometheus.HistogramVec
    OrdersCreated prometheus.Counter
    OrdersClosed  *prometheus.CounterVec
    Payments      *prometheus.CounterVec
    WebhookAcks   *prometheus.CounterVec
    Refunds       *prometheus.CounterVec
    Notifications *prometheus.CounterVec
}

// New builds the instruments on a private registry.
func New() *Metrics {
    reg := prometheus.NewRegistry()
    m := &Metrics{
        registry: reg,
        Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "http",
            Name:      "requests_total",
            Help:      "Total number of HTTP requests.",
        }, []string{"route", "status"}),
        LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
            Namespace: namespace,
            Subsystem: "http",
            Name:      "request_duration_ms",
            Help:      "HTTP request latency in milliseconds.",
            Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
        }, []string{"route"}),
        OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "booking",
            Name:      "orders_created_total",
            Help:      "Orders created from seat holds.",
        }),
        OrdersClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "booking",
            Name:      "orders_closed_total",
            Help:      "Pending orders closed without payment, by resulting status.",
        }, []string{"status"}),
        Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "payment",
            Name:      "created_total",
            Help:      "Payments created, by path (gateway or zero_amount).",
        }, []string{"path"}),
        WebhookAcks: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "payment",
            Name:      "webhook_acks_total",
            Help:      "Gateway webhook acknowledgements, by response code.",
        }, []string{"code"}),
        Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "refund",
            Name:      "actions_total",
            Help:      "Refund state changes, by action.",
        }, []string{"action"}),
        Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Subsystem: "notify",
            Name:      "dispatch_total",
            Help:      "Notification hand-offs, by kind and result.",
        }, []string{"kind", "result"}),
    }
    reg.MustRegister(
        m.Requests, m.LatencyMS, m.OrdersCreated, m.OrdersClosed,
        m.Payments, m.WebhookAcks, m.Refunds, m.Notifications,
    )
    return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
    return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if m == nil {
                return err
            }
            status := c.Response().Status
            if he, ok := err.(*echo.HTTPError); ok {
                status = he.Code
            }
            route := c.Path()
            if route == "" {
                route = "unmatched"
            }
            m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
            m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
            return err
        }
    }
}

func (m *Metrics) OrderCreated() {
    if m == nil {
        return
    }
    m.OrdersCreated.Inc()
}

func (m *Metrics) OrderClosed(status string) {
    if m == nil {
        return
    }
    m.OrdersClosed.WithLabelValues(status).Inc()
}

func (m *Metrics) PaymentCreated(path string) {
    if m == nil {
        return
    }
    m.Payments.WithLabelValues(path).Inc()
}

func (m *Metrics) WebhookAck(code string) {
    if m == nil {
        return
    }
    m.WebhookAcks.WithLabelValues(code).Inc()
}

func (m *Metrics) RefundAction(action string) {
    if m == nil {
        return
    }
    m.Refunds.WithLabelValues(action).Inc()
}

func (m *Metrics) Notification(kind string, err error) {
    if m == nil {
        return
    }
    result := "ok"
    if err != nil {
        result = "error"
    }
    m.Notifications.WithLabelValues(kind, result).Inc()
}
