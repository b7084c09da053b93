// Package queue carries booking notifications over RabbitMQ: the publisher
// used by the services and a consumer that records deliveries.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// Notification kinds.
const (
    KindBookingConfirmed = "booking.confirmed"
    KindBookingCancelled = "booking.cancelled"
)

// Notification is the message body published for every booking event.  It
// carries enough for a downstream mailer to render the message without
// querying the booking database.  RefundAmount is set only when a
// cancellation came with a refund.
type Notification struct {
    ID            string    `json:"id"`
    Kind          string    `json:"kind"`
    OccurredAt    time.Time `json:"occurred_at"`
    OrderID       uint64    `json:"order_id"`
    UserID        uint64    `json:"user_id"`
    ShowtimeID    uint64    `json:"showtime_id"`
    CustomerName  string    `json:"customer_name"`
    CustomerEmail string    `json:"customer_email"`
    CustomerPhone string    `json:"customer_phone"`
    FinalAmount   int64     `json:"final_amount"`
    Seats         []string  `json:"seats,omitempty"`
    Reason        string    `json:"reason,omitempty"`
    RefundAmount  *int64    `json:"refund_amount,omitempty"`
}

func newNotification(kind string, o *model.Order, now time.Time) Notification {
    return Notification{
        ID:            uuid.NewString(),
        Kind:          kind,
        OccurredAt:    now.UTC(),
        OrderID:       o.ID,
        UserID:        o.UserID,
        ShowtimeID:    o.ShowtimeID,
        CustomerName:  o.CustomerName,
        CustomerEmail: o.CustomerEmail,
        CustomerPhone: o.CustomerPhone,
        FinalAmount:   o.FinalAmount,
    }
}

// ConfirmationFor builds the confirmation message listing the order's
// valid seats.
func ConfirmationFor(o *model.Order, tickets []model.Ticket, now time.Time) Notification {
    n := newNotification(KindBookingConfirmed, o, now)
    for _, t := range tickets {
        if t.Status == model.TicketValid {
            n.Seats = append(n.Seats, t.SeatLabel)
        }
    }
    return n
}

// CancellationFor builds the cancellation message.
func CancellationFor(o *model.Order, refundAmount *int64, now time.Time) Notification {
    n := newNotification(KindBookingCancelled, o, now)
    if o.CancellationReason != nil {
        n.Reason = *o.CancellationReason
    }
    if refundAmount != nil {
        v := *refundAmount
        n.RefundAmount = &v
    }
    return n
}
