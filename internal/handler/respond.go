package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/middleware"
    "github.com/iliyamo/cinema-booking-payments/internal/service"
)

var kindStatus = map[service.Kind]int{
    service.KindValidation: http.StatusBadRequest,
    service.KindConflict:   http.StatusConflict,
    service.KindNotFound:   http.StatusNotFound,
    service.KindForbidden:  http.StatusForbidden,
    service.KindDependency: http.StatusBadGateway,
    service.KindSignature:  http.StatusUnauthorized,
    service.KindInternal:   http.StatusInternalServerError,
}

// fail writes err as {"error": ..., "details": ...}.  Internal and
// dependency failures are logged with their cause; the client only sees
// the service message.
func fail(c echo.Context, log *zap.Logger, err error) error {
    var se *service.Error
    if !errors.As(err, &se) {
        log.Error("unclassified handler error", zap.String("route", c.Path()), zap.Error(err))
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
    }
    status, ok := kindStatus[se.Kind]
    if !ok {
        status = http.StatusInternalServerError
    }
    if status >= http.StatusInternalServerError {
        log.Error("request failed", zap.String("route", c.Path()), zap.String("kind", string(se.Kind)), zap.Error(err))
    }
    body := echo.Map{"error": se.Message, "kind": se.Kind}
    if len(se.Details) > 0 {
        body["details"] = se.Details
    }
    return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// getUserID returns the caller stored by JWTAuth.
func getUserID(c echo.Context) (uint64, bool) {
    return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c echo.Context, name string, def int) (int, bool) {
    raw := c.QueryParam(name)
    if raw == "" {
        return def, true
    }
    n, err := strconv.Atoi(raw)
    return n, err == nil && n >= 0
}
