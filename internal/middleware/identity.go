package middleware

// identity.go holds the context keys JWTAuth populates and the helpers that
// read them back for handlers, role checks and rate-limit keys.

import (
    "encoding/json"
    "math"
    "strconv"

    "github.com/labstack/echo/v4"
)

const (
    userIDKey = "user_id"
    roleKey   = "role"
)

// Roles understood by the API.
const (
    RoleCustomer = "CUSTOMER"
    RoleAdmin    = "ADMIN"
)

// UserID returns the authenticated user's ID stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(userIDKey).(uint64)
    return id, ok && id > 0
}

// Role returns the authenticated user's role, or "" for anonymous requests.
func Role(c echo.Context) string {
    r, _ := c.Get(roleKey).(string)
    return r
}

// subjectID accepts the shapes a JSON "sub" claim can take: a number
// (decoded as float64) or a decimal string.
func subjectID(v interface{}) (uint64, bool) {
    switch t := v.(type) {
    case float64:
        if t <= 0 || t != math.Trunc(t) || t > math.MaxUint64 {
            return 0, false
        }
        return uint64(t), true
    case json.Number:
        n, err := strconv.ParseUint(t.String(), 10, 64)
        return n, err == nil && n > 0
    case string:
        n, err := strconv.ParseUint(t, 10, 64)
        return n, err == nil && n > 0
    }
    return 0, false
}

// rateKeyUser renders the caller for rate-limit keys; anonymous callers
// share the "anon" bucket per IP.
func rateKeyUser(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
