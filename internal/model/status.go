package model

// OrderStatus is the lifecycle state of an order (booking).
//
//	PENDING -> CONFIRMED | CANCELLED | EXPIRED
//	CONFIRMED -> COMPLETED | CANCELLED (refund approval only)
type OrderStatus string

const (
    OrderPending   OrderStatus = "PENDING"
    OrderConfirmed OrderStatus = "CONFIRMED"
    OrderCancelled OrderStatus = "CANCELLED"
    OrderExpired   OrderStatus = "EXPIRED"
    OrderCompleted OrderStatus = "COMPLETED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
    OrderPending:   {OrderConfirmed, OrderCancelled, OrderExpired},
    OrderConfirmed: {OrderCompleted, OrderCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal order transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
    return contains(orderTransitions[s], next)
}

// IsTerminal reports whether no further transition leaves s.
func (s OrderStatus) IsTerminal() bool { return len(orderTransitions[s]) == 0 }

// PaymentStatus is shared by payments and by the order's payment_status column.
type PaymentStatus string

const (
    PaymentPending   PaymentStatus = "PENDING"
    PaymentCompleted PaymentStatus = "COMPLETED"
    PaymentFailed    PaymentStatus = "FAILED"
    PaymentRefunded  PaymentStatus = "REFUNDED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
    PaymentPending:   {PaymentCompleted, PaymentFailed},
    PaymentCompleted: {PaymentRefunded},
}

// CanTransitionTo reports whether moving from s to next is a legal payment transition.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
    return contains(paymentTransitions[s], next)
}

// TicketStatus is the state of a single seat ticket. CANCELLED doubles as the
// "not yet paid" placeholder a ticket is created with.
type TicketStatus string

const (
    TicketValid     TicketStatus = "VALID"
    TicketUsed      TicketStatus = "USED"
    TicketCancelled TicketStatus = "CANCELLED"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
    TicketCancelled: {TicketValid},
    TicketValid:     {TicketUsed, TicketCancelled},
}

// CanTransitionTo reports whether moving from s to next is a legal ticket transition.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
    return contains(ticketTransitions[s], next)
}

// RefundStatus is the state of a refund request. FAILED is also used for rejected requests.
type RefundStatus string

const (
    RefundPending    RefundStatus = "PENDING"
    RefundProcessing RefundStatus = "PROCESSING"
    RefundCompleted  RefundStatus = "COMPLETED"
    RefundFailed     RefundStatus = "FAILED"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
    RefundPending:    {RefundProcessing, RefundCompleted, RefundFailed},
    RefundProcessing: {RefundCompleted},
}

// CanTransitionTo reports whether moving from s to next is a legal refund transition.
func (s RefundStatus) CanTransitionTo(next RefundStatus) bool {
    return contains(refundTransitions[s], next)
}

// CountsTowardCeiling reports whether a refund in this state consumes part of
// the payment's refundable amount.
func (s RefundStatus) CountsTowardCeiling() bool {
    return s == RefundPending || s == RefundProcessing || s == RefundCompleted
}

func contains[T comparable](list []T, v T) bool {
    for _, x := range list {
        if x == v {
            return true
        }
    }
    return false
}
