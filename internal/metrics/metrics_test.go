package metrics

import (
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
    var m *Metrics
    assert.NotPanics(t, func() {
        m.OrderCreated()
        m.OrderClosed("EXPIRED")
        m.PaymentCreated("gateway")
        m.WebhookAck("00")
        m.RefundAction("approve")
        m.Notification("confirmation", nil)
    })
}

func TestCounters(t *testing.T) {
    m := New()
    m.WebhookAck("00")
    m.WebhookAck("00")
    m.WebhookAck("97")
    m.Notification("cancellation", errors.New("broker down"))

    assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhookAcks.WithLabelValues("00")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookAcks.WithLabelValues("97")))
    assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("cancellation", "error")))
}

func TestMiddlewareAndHandler(t *testing.T) {
    m := New()
    e := echo.New()
    e.Use(m.Middleware())
    e.GET("/v1/orders/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
    e.GET("/metrics", echo.WrapHandler(m.Handler()))

    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders/7", nil))
    require.Equal(t, http.StatusNoContent, rec.Code)
    assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("/v1/orders/:id", "204")))

    rec = httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, strings.Contains(rec.Body.String(), "cinema_http_requests_total"))
}
