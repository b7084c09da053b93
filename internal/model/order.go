package model

import "time"

// Order records a user's purchase of seats and concessions for one
// showtime.  It is created PENDING with its tickets in the CANCELLED
// placeholder state and only becomes CONFIRMED once payment is
// reconciled.  Amounts are whole VND.
//
// Fields:
//  ID                 – primary key identifier.
//  UserID             – owning user.
//  ShowtimeID         – showtime being booked.
//  Customer*          – contact snapshot taken at creation.
//  Subtotal           – tickets plus concessions before discounts.
//  Discount           – promotion discount.
//  PointsUsed         – loyalty points redeemed.
//  PointsDiscount     – currency value of PointsUsed.
//  FinalAmount        – max(0, Subtotal - Discount - PointsDiscount).
//  PromotionCode      – promotion applied, if any.
//  Status             – order lifecycle state.
//  PaymentStatus      – payment state mirrored on the order.
//  ExpiresAt          – seat hold deadline; cleared on confirmation.
//  CancellationReason – free text reason supplied on cancellation.
//  RescheduleCount    – number of times the order moved showtime.
type Order struct {
    ID                 uint64        `json:"id"`                  // orders.id
    UserID             uint64        `json:"user_id"`             // orders.user_id
    ShowtimeID         uint64        `json:"showtime_id"`         // orders.showtime_id
    CustomerName       string        `json:"customer_name"`       // orders.customer_name
    CustomerEmail      string        `json:"customer_email"`      // orders.customer_email
    CustomerPhone      string        `json:"customer_phone"`      // orders.customer_phone
    Subtotal           int64         `json:"subtotal"`            // orders.subtotal
    Discount           int64         `json:"discount"`            // orders.discount
    PointsUsed         int64         `json:"points_used"`         // orders.points_used
    PointsDiscount     int64         `json:"points_discount"`     // orders.points_discount
    FinalAmount        int64         `json:"final_amount"`        // orders.final_amount
    PromotionCode      *string       `json:"promotion_code"`      // orders.promotion_code (nullable)
    Status             OrderStatus   `json:"status"`              // orders.status
    PaymentStatus      PaymentStatus `json:"payment_status"`      // orders.payment_status
    ExpiresAt          *time.Time    `json:"expires_at"`          // orders.expires_at (nullable)
    CancellationReason *string       `json:"cancellation_reason"` // orders.cancellation_reason (nullable)
    CancelledAt        *time.Time    `json:"cancelled_at"`        // orders.cancelled_at (nullable)
    RescheduleCount    int           `json:"reschedule_count"`    // orders.reschedule_count
    CreatedAt          time.Time     `json:"created_at"`          // orders.created_at
    UpdatedAt          time.Time     `json:"updated_at"`          // orders.updated_at
}

// HoldExpired reports whether the order's seat hold deadline has passed at now.
func (o *Order) HoldExpired(now time.Time) bool {
    return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// Ticket is one purchased seat within an order.
type Ticket struct {
    ID         uint64       `json:"id"`          // tickets.id
    OrderID    uint64       `json:"order_id"`    // tickets.order_id
    ShowtimeID uint64       `json:"showtime_id"` // tickets.showtime_id
    SeatID     uint64       `json:"seat_id"`     // tickets.seat_id
    SeatLabel  string       `json:"seat_label"`  // tickets.seat_label, e.g. "A1"
    TicketType string       `json:"ticket_type"` // tickets.ticket_type (STANDARD, VIP, ...)
    Price      int64        `json:"price"`       // tickets.price
    Status     TicketStatus `json:"status"`      // tickets.status
    CreatedAt  time.Time    `json:"created_at"`  // tickets.created_at
    UpdatedAt  time.Time    `json:"updated_at"`  // tickets.updated_at
}

// Concession is a catalog item (snack, drink, combo) sold alongside tickets.
type Concession struct {
    ID        uint64 `json:"id"`        // concessions.id
    Name      string `json:"name"`      // concessions.name
    Price     int64  `json:"price"`     // concessions.price
    Available bool   `json:"available"` // concessions.available
}

// OrderConcession is a concession line item attached to an order.  Name and
// UnitPrice are snapshotted so later catalog edits do not alter the order.
type OrderConcession struct {
    ID           uint64 `json:"id"`
    OrderID      uint64 `json:"order_id"`
    ConcessionID uint64 `json:"concession_id"`
    Name         string `json:"name"`
    UnitPrice    int64  `json:"unit_price"`
    Quantity     int    `json:"quantity"`
    Total        int64  `json:"total"`
}
