package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/config"
    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
    PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
    Close() error
}

// Publisher publishes notifications to a durable queue on the default
// exchange.  The connection is opened lazily and reopened after a
// failure.  Each message is attempted up to Attempts times with a linear
// backoff.  It implements ports.Notifier.
type Publisher struct {
    queue    string
    attempts int
    backoff  time.Duration
    log      *zap.Logger
    now      func() time.Time
    open     func() (channel, error)

    mu sync.Mutex
    ch channel
}

// NewPublisher returns a Publisher for cfg.  No connection is made until
// the first publish.
func NewPublisher(cfg config.NotifyConfig, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    p := &Publisher{
        queue:    cfg.Queue,
        attempts: cfg.PublishAttempts,
        backoff:  cfg.PublishBackoff,
        log:      log,
        now:      time.Now,
    }
    p.open = func() (channel, error) { return dialChannel(cfg.AMQPURL, cfg.Queue) }
    if p.attempts < 1 {
        p.attempts = 1
    }
    return p
}

// dialChannel connects, opens a channel and declares the durable queue.
// Closing the returned channel also closes its connection.
func dialChannel(url, queue string) (channel, error) {
    conn, err := amqp.Dial(url)
    if err != nil {
        return nil, fmt.Errorf("dial broker: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("open channel: %w", err)
    }
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("declare queue %s: %w", queue, err)
    }
    return &connChannel{Channel: ch, conn: conn}, nil
}

type connChannel struct {
    *amqp.Channel
    conn *amqp.Connection
}

func (c *connChannel) Close() error {
    _ = c.Channel.Close()
    return c.conn.Close()
}

func (p *Publisher) SendBookingConfirmation(ctx context.Context, order *model.Order, tickets []model.Ticket) error {
    return p.Publish(ctx, ConfirmationFor(order, tickets, p.now()))
}

func (p *Publisher) SendBookingCancellation(ctx context.Context, order *model.Order, refundAmount *int64) error {
    return p.Publish(ctx, CancellationFor(order, refundAmount, p.now()))
}

// Publish sends n as a persistent JSON message, retrying on failure.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
    body, err := json.Marshal(n)
    if err != nil {
        return fmt.Errorf("marshal notification: %w", err)
    }
    msg := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    n.ID,
        Type:         n.Kind,
        Timestamp:    n.OccurredAt,
        Body:         body,
    }

    var lastErr error
    for attempt := 1; attempt <= p.attempts; attempt++ {
        if lastErr = p.publishOnce(ctx, msg); lastErr == nil {
            return nil
        }
        p.log.Warn("notification publish failed",
            zap.String("kind", n.Kind),
            zap.Uint64("order_id", n.OrderID),
            zap.Int("attempt", attempt),
            zap.Error(lastErr))
        if attempt == p.attempts {
            break
        }
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(attempt) * p.backoff):
        }
    }
    return fmt.Errorf("publish %s for order %d after %d attempts: %w", n.Kind, n.OrderID, p.attempts, lastErr)
}

func (p *Publisher) publishOnce(ctx context.Context, msg amqp.Publishing) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch == nil {
        ch, err := p.open()
        if err != nil {
            return err
        }
        p.ch = ch
    }
    if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
        _ = p.ch.Close()
        p.ch = nil
        return err
    }
    return nil
}

// Close releases the broker connection, if any.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.ch == nil {
        return nil
    }
    err := p.ch.Close()
    p.ch = nil
    return err
}
