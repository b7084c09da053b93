package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-booking-payments/internal/config"
    "github.com/iliyamo/cinema-booking-payments/internal/utils"
)

const secret = "s3cret"

func protected(roles ...string) *echo.Echo {
    e := echo.New()
    g := e.Group("/v1", JWTAuth(secret), RequireRole(roles...))
    g.GET("/me", func(c echo.Context) error {
        id, ok := UserID(c)
        if !ok {
            return c.NoContent(http.StatusTeapot)
        }
        return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
    })
    return e
}

func call(e *echo.Echo, token string) *httptest.ResponseRecorder {
    req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
    if token != "" {
        req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuth_Valid(t *testing.T) {
    tok, err := utils.NewAccessToken(secret, 7, "customer", time.Minute)
    require.NoError(t, err)

    rec := call(protected(RoleCustomer), tok.Token)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"id":7,"role":"CUSTOMER"}`, rec.Body.String())
}

func TestJWTAuth_Rejections(t *testing.T) {
    e := protected(RoleCustomer)

    assert.Equal(t, http.StatusUnauthorized, call(e, "").Code)
    assert.Equal(t, http.StatusUnauthorized, call(e, "garbage").Code)

    other, err := utils.NewAccessToken("other", 7, RoleCustomer, time.Minute)
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, call(e, other.Token).Code)

    noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7", "role": RoleCustomer}).SignedString([]byte(secret))
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, call(e, noExp).Code)

    badSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "sub": "seven", "role": RoleCustomer, "exp": time.Now().Add(time.Minute).Unix(),
    }).SignedString([]byte(secret))
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, call(e, badSub).Code)

    hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
        "sub": "7", "role": RoleCustomer, "exp": time.Now().Add(time.Minute).Unix(),
    }).SignedString([]byte(secret))
    require.NoError(t, err)
    assert.Equal(t, http.StatusUnauthorized, call(e, hs384).Code)
}

func TestRequireRole(t *testing.T) {
    tok, err := utils.NewAccessToken(secret, 7, RoleCustomer, time.Minute)
    require.NoError(t, err)
    assert.Equal(t, http.StatusForbidden, call(protected(RoleAdmin), tok.Token).Code)
}

func TestSubjectID(t *testing.T) {
    id, ok := subjectID(float64(42))
    assert.True(t, ok)
    assert.Equal(t, uint64(42), id)

    _, ok = subjectID(float64(1.5))
    assert.False(t, ok)
    _, ok = subjectID("0")
    assert.False(t, ok)
    _, ok = subjectID(nil)
    assert.False(t, ok)
}

func TestTokenBucket(t *testing.T) {
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    cfg := config.RateLimitConfig{
        Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
        TTL: time.Hour, KeyStrategy: "ip", Prefix: "rl",
    }
    e := echo.New()
    e.Use(NewTokenBucket(cfg, rdb, nil))
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

    codes := make([]int, 0, 3)
    for i := 0; i < 3; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
        codes = append(codes, rec.Code)
        if i == 2 {
            assert.NotEmpty(t, rec.Header().Get("Retry-After"))
        }
    }
    assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestTokenBucket_DisabledOrNoRedis(t *testing.T) {
    e := echo.New()
    e.Use(NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
    e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
    for i := 0; i < 3; i++ {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
        assert.Equal(t, http.StatusNoContent, rec.Code)
    }
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/orders/5/payments", nil)
    req.RemoteAddr = "10.0.0.7:5555"
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/orders/:id/payments")
    c.Set(userIDKey, uint64(7))

    key := buildRateKey(config.RateLimitConfig{Prefix: "rl"}, c)
    assert.Equal(t, "rl:ip:10.0.0.7:user:7:route:POST /v1/orders/:id/payments", key)
}
