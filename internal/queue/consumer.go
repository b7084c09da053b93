package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/config"
)

// Consumer drains the notification queue and appends one line per message
// to <LogDir>/notifications.log.  It stands in for the mailer in
// development and keeps an audit of what was sent.
type Consumer struct {
    url    string
    queue  string
    logDir string
    log    *zap.Logger

    mu sync.Mutex // serialises writes to the delivery log
}

func NewConsumer(cfg config.NotifyConfig, log *zap.Logger) *Consumer {
    if log == nil {
        log = zap.NewNop()
    }
    return &Consumer{url: cfg.AMQPURL, queue: cfg.Queue, logDir: cfg.LogDir, log: log}
}

// Run connects and consumes until ctx is cancelled, reconnecting with
// exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("notification consumer: loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("notification consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.handle(d.Body); err != nil {
            c.log.Warn("notification consumer: handle failed", zap.String("message_id", d.MessageId), zap.Error(err))
            _ = d.Nack(false, false) // do not requeue poison messages
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// handle decodes one message and appends it to the delivery log.
func (c *Consumer) handle(body []byte) error {
    var n Notification
    if err := json.Unmarshal(body, &n); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if n.Kind == "" || n.OrderID == 0 {
        return fmt.Errorf("incomplete notification %q", n.ID)
    }

    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.logDir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.logDir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.logDir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(n)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(n Notification) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | id=%s | order_id=%d | user_id=%d | showtime_id=%d | to=%q | amount=%d",
        n.OccurredAt.UTC().Format(time.RFC3339), n.Kind, n.ID, n.OrderID, n.UserID, n.ShowtimeID, n.CustomerEmail, n.FinalAmount)
    if len(n.Seats) > 0 {
        fmt.Fprintf(&b, " | seats=[%s]", strings.Join(n.Seats, ","))
    }
    if n.RefundAmount != nil {
        fmt.Fprintf(&b, " | refund=%d", *n.RefundAmount)
    }
    if n.Reason != "" {
        fmt.Fprintf(&b, " | reason=%q", n.Reason)
    }
    b.WriteByte('\n')
    return b.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
