// Package vnpay builds signed VNPay payment redirects and verifies signed
// callbacks (IPN and browser return).  Every field is canonicalised as a
// string, parameters are sorted by their percent-encoded key and the
// encoded "k=v&k=v" string is signed with HMAC-SHA512 using the merchant
// hash secret.
package vnpay

import (
    "crypto/hmac"
    "crypto/sha512"
    "encoding/hex"
    "errors"
    "fmt"
    "math"
    "net/url"
    "sort"
    "strconv"
    "strings"
    "time"
)

const (
    ParamSecureHash     = "vnp_SecureHash"
    ParamSecureHashType = "vnp_SecureHashType"

    dateLayout = "20060102150405"

    // SuccessCode is the response/transaction status the gateway reports for a paid transaction.
    SuccessCode = "00"
)

// IPN acknowledgement codes understood by the gateway.
const (
    AckConfirmSuccess   = "00"
    AckOrderNotFound    = "01"
    AckAlreadyConfirmed = "02"
    AckInvalidAmount    = "04"
    AckInvalidChecksum  = "97"
    AckUnknownError     = "99"
)

var (
    ErrInvalidAmount = errors.New("vnpay: amount must be a positive integer")
    ErrMissingTxnRef = errors.New("vnpay: transaction reference is required")
    ErrInvalidConfig = errors.New("vnpay: invalid configuration")
    ErrMalformed     = errors.New("vnpay: malformed callback")
)

// Config is the immutable merchant configuration.  It is built once at
// start-up and handed to New.
type Config struct {
    TmnCode    string
    HashSecret string
    PayURL     string
    ReturnURL  string
    Version    string
    Command    string
    CurrCode   string
    Locale     string
    OrderType  string
    Location   *time.Location
}

func (c Config) validate() error {
    var missing []string
    if c.TmnCode == "" {
        missing = append(missing, "tmn code")
    }
    if c.HashSecret == "" {
        missing = append(missing, "hash secret")
    }
    if c.PayURL == "" {
        missing = append(missing, "pay url")
    }
    if c.ReturnURL == "" {
        missing = append(missing, "return url")
    }
    if len(missing) > 0 {
        return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
    }
    if _, err := url.Parse(c.PayURL); err != nil {
        return fmt.Errorf("%w: pay url: %v", ErrInvalidConfig, err)
    }
    return nil
}

// Gateway signs outbound requests and verifies inbound callbacks.
type Gateway struct {
    cfg    Config
    secret []byte
}

// New validates cfg, fills protocol defaults and returns a Gateway.
func New(cfg Config) (*Gateway, error) {
    if err := cfg.validate(); err != nil {
        return nil, err
    }
    if cfg.Version == "" {
        cfg.Version = "2.1.0"
    }
    if cfg.Command == "" {
        cfg.Command = "pay"
    }
    if cfg.CurrCode == "" {
        cfg.CurrCode = "VND"
    }
    if cfg.Locale == "" {
        cfg.Locale = "vn"
    }
    if cfg.OrderType == "" {
        cfg.OrderType = "other"
    }
    if cfg.Location == nil {
        cfg.Location = time.FixedZone("GMT+7", 7*60*60)
    }
    return &Gateway{cfg: cfg, secret: []byte(cfg.HashSecret)}, nil
}

// PaymentRequest describes one redirect to the gateway.  Amount is whole VND.
type PaymentRequest struct {
    TxnRef    string
    Amount    int64
    OrderInfo string
    ClientIP  string
    BankCode  string
    Locale    string
    CreatedAt time.Time
    ExpiresAt time.Time
}

// GatewayAmount converts a VND amount into the gateway's x100 integer form.
func GatewayAmount(amount int64) (int64, error) {
    if amount <= 0 || amount > math.MaxInt64/100 {
        return 0, ErrInvalidAmount
    }
    return amount * 100, nil
}

// BuildPaymentURL returns the signed redirect URL for req.
func (g *Gateway) BuildPaymentURL(req PaymentRequest) (string, error) {
    gatewayAmount, err := GatewayAmount(req.Amount)
    if err != nil {
        return "", err
    }
    if strings.TrimSpace(req.TxnRef) == "" {
        return "", ErrMissingTxnRef
    }
    ip := strings.TrimSpace(req.ClientIP)
    if ip == "" {
        ip = "127.0.0.1"
    }
    locale := req.Locale
    if locale == "" {
        locale = g.cfg.Locale
    }
    info := req.OrderInfo
    if info == "" {
        info = "Payment for order " + req.TxnRef
    }

    params := url.Values{}
    params.Set("vnp_Version", g.cfg.Version)
    params.Set("vnp_Command", g.cfg.Command)
    params.Set("vnp_TmnCode", g.cfg.TmnCode)
    params.Set("vnp_Locale", locale)
    params.Set("vnp_CurrCode", g.cfg.CurrCode)
    params.Set("vnp_TxnRef", req.TxnRef)
    params.Set("vnp_OrderInfo", info)
    params.Set("vnp_OrderType", g.cfg.OrderType)
    params.Set("vnp_Amount", strconv.FormatInt(gatewayAmount, 10))
    params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
    params.Set("vnp_IpAddr", ip)
    params.Set("vnp_CreateDate", g.formatTime(req.CreatedAt))
    if !req.ExpiresAt.IsZero() {
        params.Set("vnp_ExpireDate", g.formatTime(req.ExpiresAt))
    }
    if req.BankCode != "" {
        params.Set("vnp_BankCode", req.BankCode)
    }

    canonical := canonicalQuery(params)
    return g.cfg.PayURL + "?" + canonical + "&" + ParamSecureHash + "=" + g.sign(canonical), nil
}

// Sign returns the hex HMAC-SHA512 of params, ignoring any hash fields.
func (g *Gateway) Sign(params url.Values) string {
    return g.sign(canonicalQuery(params))
}

// VerifySignature recomputes the signature over every field except the
// hash fields and compares it with the supplied vnp_SecureHash.
func (g *Gateway) VerifySignature(params url.Values) bool {
    supplied := ""
    for k, v := range params {
        if strings.EqualFold(k, ParamSecureHash) && len(v) > 0 {
            supplied = v[0]
        }
    }
    if supplied == "" {
        return false
    }
    got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(supplied)))
    if err != nil {
        return false
    }
    want, _ := hex.DecodeString(g.Sign(params))
    return hmac.Equal(got, want)
}

func (g *Gateway) sign(canonical string) string {
    mac := hmac.New(sha512.New, g.secret)
    _, _ = mac.Write([]byte(canonical))
    return hex.EncodeToString(mac.Sum(nil))
}

func (g *Gateway) formatTime(t time.Time) string {
    if t.IsZero() {
        t = time.Now()
    }
    return t.In(g.cfg.Location).Format(dateLayout)
}

// canonicalQuery percent-encodes every key and value, sorts by encoded key
// and joins the pairs with '&' without escaping the result again.
func canonicalQuery(params url.Values) string {
    type pair struct{ k, v string }
    pairs := make([]pair, 0, len(params))
    for k, vs := range params {
        if isHashField(k) || len(vs) == 0 {
            continue
        }
        pairs = append(pairs, pair{url.QueryEscape(k), url.QueryEscape(vs[0])})
    }
    sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })
    var b strings.Builder
    for i, p := range pairs {
        if i > 0 {
            b.WriteByte('&')
        }
        b.WriteString(p.k)
        b.WriteByte('=')
        b.WriteString(p.v)
    }
    return b.String()
}

func isHashField(k string) bool {
    return strings.EqualFold(k, ParamSecureHash) || strings.EqualFold(k, ParamSecureHashType)
}

// Callback is the parsed content of an IPN or return request.  Amount is in
// the gateway's x100 form.
type Callback struct {
    TxnRef            string
    Amount            int64
    ResponseCode      string
    TransactionStatus string
    TransactionNo     string
    BankCode          string
    PayDate           string
}

// ParseCallback extracts the fields the reconciler needs.  It does not
// verify the signature.
func ParseCallback(params url.Values) (Callback, error) {
    cb := Callback{
        TxnRef:            strings.TrimSpace(params.Get("vnp_TxnRef")),
        ResponseCode:      strings.TrimSpace(params.Get("vnp_ResponseCode")),
        TransactionStatus: strings.TrimSpace(params.Get("vnp_TransactionStatus")),
        TransactionNo:     strings.TrimSpace(params.Get("vnp_TransactionNo")),
        BankCode:          strings.TrimSpace(params.Get("vnp_BankCode")),
        PayDate:           strings.TrimSpace(params.Get("vnp_PayDate")),
    }
    if cb.TxnRef == "" {
        return Callback{}, fmt.Errorf("%w: missing vnp_TxnRef", ErrMalformed)
    }
    amount, err := strconv.ParseInt(strings.TrimSpace(params.Get("vnp_Amount")), 10, 64)
    if err != nil {
        return Callback{}, fmt.Errorf("%w: vnp_Amount: %v", ErrMalformed, err)
    }
    cb.Amount = amount
    return cb, nil
}

// Succeeded reports whether the gateway declared the transaction paid.
func (c Callback) Succeeded() bool {
    return c.ResponseCode == SuccessCode && (c.TransactionStatus == "" || c.TransactionStatus == SuccessCode)
}

var responseMessages = map[string]string{
    "00": "Transaction successful",
    "07": "Transaction successful but flagged as suspicious",
    "09": "Card or account not registered for internet banking",
    "10": "Card or account authentication failed too many times",
    "11": "Payment window expired",
    "12": "Card or account is locked",
    "13": "Wrong one-time password",
    "24": "Transaction cancelled by customer",
    "51": "Insufficient balance",
    "65": "Daily transaction limit exceeded",
    "75": "Bank under maintenance",
    "79": "Wrong payment password too many times",
    "99": "Unknown error",
}

// ResponseMessage returns a human readable description of a response code.
func ResponseMessage(code string) string {
    if m, ok := responseMessages[code]; ok {
        return m
    }
    return "Transaction failed"
}
