package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// PromotionType selects how a promotion's Value is interpreted.
type PromotionType string

const (
    PromotionPercentage  PromotionType = "PERCENTAGE"
    PromotionFixedAmount PromotionType = "FIXED_AMOUNT"
)

// Promotion is a global discount code.  For PERCENTAGE promotions Value is
// a percent (10 means 10%) and MaxDiscount caps the result when positive.
// For FIXED_AMOUNT promotions Value is a VND amount.  A UsageLimit of zero
// means unlimited.  CurrentUsage counts orders that reached payment, not
// orders that merely attached the code.
type Promotion struct {
    ID           uint64          `json:"id"`
    Code         string          `json:"code"`
    Type         PromotionType   `json:"type"`
    Value        decimal.Decimal `json:"value"`
    MinPurchase  int64           `json:"min_purchase"`
    MaxDiscount  int64           `json:"max_discount"`
    StartsAt     time.Time       `json:"starts_at"`
    EndsAt       time.Time       `json:"ends_at"`
    UsageLimit   int             `json:"usage_limit"`
    CurrentUsage int             `json:"current_usage"`
    IsActive     bool            `json:"is_active"`
}

// LoyaltyTransactionType distinguishes credits from debits on a loyalty account.
type LoyaltyTransactionType string

const (
    LoyaltyEarn   LoyaltyTransactionType = "EARN"
    LoyaltyRedeem LoyaltyTransactionType = "REDEEM"
)

// LoyaltyAccount holds a user's point balance.
type LoyaltyAccount struct {
    ID            uint64    `json:"id"`
    UserID        uint64    `json:"user_id"`
    CurrentPoints int64     `json:"current_points"`
    UpdatedAt     time.Time `json:"updated_at"`
}

// LoyaltyTransaction is the immutable audit row paired with every balance change.
type LoyaltyTransaction struct {
    ID          uint64                 `json:"id"`
    AccountID   uint64                 `json:"account_id"`
    OrderID     *uint64                `json:"order_id"`
    Type        LoyaltyTransactionType `json:"type"`
    Points      int64                  `json:"points"`
    Description string                 `json:"description"`
    CreatedAt   time.Time              `json:"created_at"`
}
