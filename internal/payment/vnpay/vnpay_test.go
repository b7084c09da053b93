package vnpay

import (
    "net/url"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func testGateway(t *testing.T) *Gateway {
    t.Helper()
    g, err := New(Config{
        TmnCode:    "CINEMA01",
        HashSecret: "SECRETKEY",
        PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
        ReturnURL:  "https://cinema.example/payments/return",
    })
    require.NoError(t, err)
    return g
}

func buildQuery(t *testing.T, g *Gateway) url.Values {
    t.Helper()
    created := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
    raw, err := g.BuildPaymentURL(PaymentRequest{
        TxnRef:    "ORD-42-abc",
        Amount:    185000,
        OrderInfo: "Thanh toan ve xem phim #42",
        ClientIP:  "10.0.0.7",
        CreatedAt: created,
        ExpiresAt: created.Add(15 * time.Minute),
    })
    require.NoError(t, err)
    u, err := url.Parse(raw)
    require.NoError(t, err)
    return u.Query()
}

func TestBuildPaymentURL(t *testing.T) {
    g := testGateway(t)
    q := buildQuery(t, g)

    assert.Equal(t, "18500000", q.Get("vnp_Amount"))
    assert.Equal(t, "2.1.0", q.Get("vnp_Version"))
    assert.Equal(t, "pay", q.Get("vnp_Command"))
    assert.Equal(t, "VND", q.Get("vnp_CurrCode"))
    assert.Equal(t, "CINEMA01", q.Get("vnp_TmnCode"))
    assert.Equal(t, "ORD-42-abc", q.Get("vnp_TxnRef"))
    assert.Equal(t, "Thanh toan ve xem phim #42", q.Get("vnp_OrderInfo"))
    // 05:00 UTC is 12:00 in GMT+7
    assert.Equal(t, "20260501120000", q.Get("vnp_CreateDate"))
    assert.Equal(t, "20260501121500", q.Get("vnp_ExpireDate"))
    assert.Len(t, q.Get(ParamSecureHash), 128)
    assert.True(t, g.VerifySignature(q))
}

func TestBuildPaymentURL_SortedCanonicalQuery(t *testing.T) {
    g := testGateway(t)
    raw, err := g.BuildPaymentURL(PaymentRequest{TxnRef: "T1", Amount: 1000, CreatedAt: time.Now()})
    require.NoError(t, err)

    query := raw[strings.Index(raw, "?")+1:]
    parts := strings.Split(query, "&")
    last := parts[len(parts)-1]
    assert.True(t, strings.HasPrefix(last, ParamSecureHash+"="))

    var keys []string
    for _, p := range parts[:len(parts)-1] {
        keys = append(keys, p[:strings.Index(p, "=")])
    }
    for i := 1; i < len(keys); i++ {
        assert.Less(t, keys[i-1], keys[i])
    }
}

func TestBuildPaymentURL_RejectsInvalidAmount(t *testing.T) {
    g := testGateway(t)
    for _, amount := range []int64{0, -1} {
        _, err := g.BuildPaymentURL(PaymentRequest{TxnRef: "T1", Amount: amount})
        assert.ErrorIs(t, err, ErrInvalidAmount)
    }
    _, err := g.BuildPaymentURL(PaymentRequest{Amount: 1000})
    assert.ErrorIs(t, err, ErrMissingTxnRef)
}

func TestVerifySignature_Tampered(t *testing.T) {
    g := testGateway(t)

    q := buildQuery(t, g)
    q.Set("vnp_Amount", "100")
    assert.False(t, g.VerifySignature(q))

    q = buildQuery(t, g)
    q.Set("vnp_TxnRef", "ORD-43-abc")
    assert.False(t, g.VerifySignature(q))

    q = buildQuery(t, g)
    q.Del(ParamSecureHash)
    assert.False(t, g.VerifySignature(q))

    q = buildQuery(t, g)
    q.Set(ParamSecureHash, "not-hex")
    assert.False(t, g.VerifySignature(q))
}

func TestVerifySignature_IgnoresHashFieldsAndCase(t *testing.T) {
    g := testGateway(t)
    q := buildQuery(t, g)

    q.Set(ParamSecureHash, strings.ToUpper(q.Get(ParamSecureHash)))
    q.Set(ParamSecureHashType, "HmacSHA512")
    assert.True(t, g.VerifySignature(q))
}

func TestVerifySignature_WrongSecret(t *testing.T) {
    q := buildQuery(t, testGateway(t))
    other, err := New(Config{TmnCode: "CINEMA01", HashSecret: "OTHER", PayURL: "https://x", ReturnURL: "https://y"})
    require.NoError(t, err)
    assert.False(t, other.VerifySignature(q))
}

func TestNew_ValidatesConfig(t *testing.T) {
    _, err := New(Config{TmnCode: "X"})
    assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseCallback(t *testing.T) {
    q := url.Values{}
    q.Set("vnp_TxnRef", "ORD-1")
    q.Set("vnp_Amount", "18500000")
    q.Set("vnp_ResponseCode", "00")
    q.Set("vnp_TransactionStatus", "00")
    q.Set("vnp_TransactionNo", "14012345")

    cb, err := ParseCallback(q)
    require.NoError(t, err)
    assert.Equal(t, int64(18500000), cb.Amount)
    assert.True(t, cb.Succeeded())

    q.Set("vnp_ResponseCode", "24")
    cb, err = ParseCallback(q)
    require.NoError(t, err)
    assert.False(t, cb.Succeeded())

    q.Set("vnp_ResponseCode", "00")
    q.Del("vnp_TransactionStatus")
    cb, err = ParseCallback(q)
    require.NoError(t, err)
    assert.True(t, cb.Succeeded())

    q.Set("vnp_Amount", "abc")
    _, err = ParseCallback(q)
    assert.ErrorIs(t, err, ErrMalformed)
}

func TestResponseMessage(t *testing.T) {
    assert.Equal(t, "Transaction cancelled by customer", ResponseMessage("24"))
    assert.Equal(t, "Transaction failed", ResponseMessage("zz"))
}
