package model

import "time"

// Payment is one attempt to settle an order through the payment gateway.
// TxnRef is the merchant reference sent to the gateway and echoed back in
// callbacks; it is unique across payments.
type Payment struct {
    ID                    uint64        `json:"id"`                      // payments.id
    OrderID               uint64        `json:"order_id"`                // payments.order_id
    TxnRef                string        `json:"txn_ref"`                 // payments.txn_ref
    Amount                int64         `json:"amount"`                  // payments.amount
    Method                string        `json:"payment_method"`          // payments.payment_method
    Status                PaymentStatus `json:"status"`                  // payments.status
    ProviderTransactionID *string       `json:"provider_transaction_id"` // payments.provider_transaction_id (nullable)
    PaymentURL            *string       `json:"payment_url"`             // payments.payment_url (nullable)
    PaidAt                *time.Time    `json:"paid_at"`                 // payments.paid_at (nullable)
    CreatedAt             time.Time     `json:"created_at"`              // payments.created_at
    UpdatedAt             time.Time     `json:"updated_at"`              // payments.updated_at
}

// Refund is a request to return part or all of a completed payment.
type Refund struct {
    ID         uint64       `json:"id"`          // refunds.id
    PaymentID  uint64       `json:"payment_id"`  // refunds.payment_id
    Amount     int64        `json:"amount"`      // refunds.amount
    Reason     string       `json:"reason"`      // refunds.reason
    Status     RefundStatus `json:"status"`      // refunds.status
    RefundedAt *time.Time   `json:"refunded_at"` // refunds.refunded_at (nullable)
    CreatedAt  time.Time    `json:"created_at"`  // refunds.created_at
    UpdatedAt  time.Time    `json:"updated_at"`  // refunds.updated_at
}
