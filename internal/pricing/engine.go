// Package pricing turns a held-seat price snapshot, requested concessions,
// a promotion and a loyalty redemption into a price breakdown.  It performs
// no I/O: callers load the promotion, concession catalog and loyalty
// account and pass them in.
package pricing

import (
    "errors"
    "fmt"
    "sort"
    "strings"
    "time"

    "github.com/shopspring/decimal"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

const (
    // PointValue is the currency value of one loyalty point.
    PointValue int64 = 1000
    // VATRatePercent is the value added tax rate included in the payable amount.
    VATRatePercent int64 = 10
)

var (
    ErrNoSeats               = errors.New("pricing: no seats to price")
    ErrInvalidSeatPrice      = errors.New("pricing: seat price must be positive")
    ErrInvalidQuantity       = errors.New("pricing: concession quantity must be positive")
    ErrConcessionUnknown     = errors.New("pricing: unknown concession")
    ErrConcessionUnavailable = errors.New("pricing: concession unavailable")
    ErrPromotionNotFound     = errors.New("pricing: promotion not found")
    ErrPromotionInactive     = errors.New("pricing: promotion is not active")
    ErrPromotionExhausted    = errors.New("pricing: promotion usage limit reached")
    ErrPromotionMinPurchase  = errors.New("pricing: subtotal below promotion minimum purchase")
    ErrInvalidPoints         = errors.New("pricing: loyalty points must not be negative")
    ErrNoLoyaltyAccount      = errors.New("pricing: loyalty account not found")
    ErrInsufficientPoints    = errors.New("pricing: insufficient loyalty points")
)

// ConcessionRequest asks for Quantity units of a catalog concession.
type ConcessionRequest struct {
    ConcessionID uint64 `json:"concession_id"`
    Quantity     int    `json:"quantity"`
}

// Input gathers everything the engine needs.  Promotion must be non-nil
// whenever PromotionCode is set; a nil Promotion with a code means the code
// does not exist.  LoyaltyAccount may be nil when PointsToRedeem is zero.
type Input struct {
    Seats          []model.HeldSeat
    Concessions    []ConcessionRequest
    Catalog        map[uint64]model.Concession
    PromotionCode  string
    Promotion      *model.Promotion
    PointsToRedeem int64
    LoyaltyAccount *model.LoyaltyAccount
    Now            time.Time
}

// TicketGroup aggregates seats sharing a ticket type and price.
type TicketGroup struct {
    TicketType string   `json:"ticket_type"`
    UnitPrice  int64    `json:"unit_price"`
    Quantity   int      `json:"quantity"`
    Seats      []string `json:"seats"`
    Subtotal   int64    `json:"subtotal"`
}

// ConcessionLine is a priced concession in the breakdown.
type ConcessionLine struct {
    ConcessionID uint64 `json:"concession_id"`
    Name         string `json:"name"`
    UnitPrice    int64  `json:"unit_price"`
    Quantity     int    `json:"quantity"`
    Total        int64  `json:"total"`
}

// PromotionDetail explains the promotion discount.
type PromotionDetail struct {
    Code     string              `json:"code"`
    Type     model.PromotionType `json:"type"`
    Value    decimal.Decimal     `json:"value"`
    Discount int64               `json:"discount"`
}

// LoyaltyDetail explains the loyalty redemption.
type LoyaltyDetail struct {
    PointsUsed int64 `json:"points_used"`
    PointValue int64 `json:"point_value"`
    Discount   int64 `json:"discount"`
}

// TaxLine is the VAT included in FinalAmount.  It is informational and never
// changes the amount charged.
type TaxLine struct {
    RatePercent int64 `json:"rate_percent"`
    Amount      int64 `json:"amount"`
    NetAmount   int64 `json:"net_amount"`
}

// Breakdown is the full price computation for display and persistence.
type Breakdown struct {
    TicketGroups       []TicketGroup    `json:"ticket_groups"`
    Concessions        []ConcessionLine `json:"concessions"`
    TicketSubtotal     int64            `json:"ticket_subtotal"`
    ConcessionSubtotal int64            `json:"concession_subtotal"`
    Subtotal           int64            `json:"subtotal"`
    Promotion          *PromotionDetail `json:"promotion,omitempty"`
    Loyalty            *LoyaltyDetail   `json:"loyalty,omitempty"`
    Discount           int64            `json:"discount"`
    PointsUsed         int64            `json:"points_used"`
    PointsDiscount     int64            `json:"points_discount"`
    FinalAmount        int64            `json:"final_amount"`
    Tax                TaxLine          `json:"tax"`
}

// Calculate prices the input.  Every validation failure is returned as one
// of the package's sentinel errors, optionally wrapped with detail.
func Calculate(in Input) (Breakdown, error) {
    if len(in.Seats) == 0 {
        return Breakdown{}, ErrNoSeats
    }
    if in.PointsToRedeem < 0 {
        return Breakdown{}, ErrInvalidPoints
    }

    var out Breakdown
    groups, ticketSubtotal, err := groupTickets(in.Seats)
    if err != nil {
        return Breakdown{}, err
    }
    out.TicketGroups = groups
    out.TicketSubtotal = ticketSubtotal

    lines, concessionSubtotal, err := priceConcessions(in.Concessions, in.Catalog)
    if err != nil {
        return Breakdown{}, err
    }
    out.Concessions = lines
    out.ConcessionSubtotal = concessionSubtotal
    out.Subtotal = ticketSubtotal + concessionSubtotal

    if code := strings.TrimSpace(in.PromotionCode); code != "" {
        discount, err := promotionDiscount(in.Promotion, out.Subtotal, in.Now)
        if err != nil {
            return Breakdown{}, err
        }
        out.Discount = discount
        out.Promotion = &PromotionDetail{
            Code:     in.Promotion.Code,
            Type:     in.Promotion.Type,
            Value:    in.Promotion.Value,
            Discount: discount,
        }
    }

    if in.PointsToRedeem > 0 {
        if in.LoyaltyAccount == nil {
            return Breakdown{}, ErrNoLoyaltyAccount
        }
        if in.LoyaltyAccount.CurrentPoints < in.PointsToRedeem {
            return Breakdown{}, fmt.Errorf("%w: have %d, requested %d", ErrInsufficientPoints, in.LoyaltyAccount.CurrentPoints, in.PointsToRedeem)
        }
        out.PointsUsed = in.PointsToRedeem
        out.PointsDiscount = in.PointsToRedeem * PointValue
        out.Loyalty = &LoyaltyDetail{PointsUsed: out.PointsUsed, PointValue: PointValue, Discount: out.PointsDiscount}
    }

    out.FinalAmount = FinalAmount(out.Subtotal, out.Discount, out.PointsDiscount)
    out.Tax = reverseVAT(out.FinalAmount)
    return out, nil
}

// FinalAmount applies the order amount invariant: never below zero.
func FinalAmount(subtotal, discount, pointsDiscount int64) int64 {
    final := subtotal - discount - pointsDiscount
    if final < 0 {
        return 0
    }
    return final
}

func groupTickets(seats []model.HeldSeat) ([]TicketGroup, int64, error) {
    type key struct {
        typ   string
        price int64
    }
    index := make(map[key]int)
    var groups []TicketGroup
    var total int64
    for _, s := range seats {
        if s.Price <= 0 {
            return nil, 0, fmt.Errorf("%w: seat %d", ErrInvalidSeatPrice, s.ID)
        }
        typ := strings.ToUpper(strings.TrimSpace(s.Type))
        if typ == "" {
            typ = "STANDARD"
        }
        k := key{typ, s.Price}
        i, ok := index[k]
        if !ok {
            i = len(groups)
            index[k] = i
            groups = append(groups, TicketGroup{TicketType: typ, UnitPrice: s.Price})
        }
        groups[i].Quantity++
        groups[i].Seats = append(groups[i].Seats, s.Label())
        groups[i].Subtotal += s.Price
        total += s.Price
    }
    sort.SliceStable(groups, func(a, b int) bool {
        if groups[a].TicketType != groups[b].TicketType {
            return groups[a].TicketType < groups[b].TicketType
        }
        return groups[a].UnitPrice < groups[b].UnitPrice
    })
    return groups, total, nil
}

func priceConcessions(reqs []ConcessionRequest, catalog map[uint64]model.Concession) ([]ConcessionLine, int64, error) {
    if len(reqs) == 0 {
        return []ConcessionLine{}, 0, nil
    }
    // merge duplicate IDs so one line per concession is persisted
    qty := make(map[uint64]int, len(reqs))
    order := make([]uint64, 0, len(reqs))
    for _, r := range reqs {
        if r.Quantity <= 0 {
            return nil, 0, fmt.Errorf("%w: concession %d", ErrInvalidQuantity, r.ConcessionID)
        }
        if _, seen := qty[r.ConcessionID]; !seen {
            order = append(order, r.ConcessionID)
        }
        qty[r.ConcessionID] += r.Quantity
    }
    lines := make([]ConcessionLine, 0, len(order))
    var total int64
    for _, id := range order {
        item, ok := catalog[id]
        if !ok {
            return nil, 0, fmt.Errorf("%w: %d", ErrConcessionUnknown, id)
        }
        if !item.Available {
            return nil, 0, fmt.Errorf("%w: %s", ErrConcessionUnavailable, item.Name)
        }
        lineTotal := item.Price * int64(qty[id])
        lines = append(lines, ConcessionLine{
            ConcessionID: id,
            Name:         item.Name,
            UnitPrice:    item.Price,
            Quantity:     qty[id],
            Total:        lineTotal,
        })
        total += lineTotal
    }
    return lines, total, nil
}

// promotionDiscount validates p against subtotal at now and returns the
// discount, capped at the subtotal.
func promotionDiscount(p *model.Promotion, subtotal int64, now time.Time) (int64, error) {
    if p == nil {
        return 0, ErrPromotionNotFound
    }
    if !p.IsActive || now.Before(p.StartsAt) || now.After(p.EndsAt) {
        return 0, ErrPromotionInactive
    }
    if p.UsageLimit > 0 && p.CurrentUsage >= p.UsageLimit {
        return 0, ErrPromotionExhausted
    }
    if subtotal < p.MinPurchase {
        return 0, fmt.Errorf("%w: requires %d", ErrPromotionMinPurchase, p.MinPurchase)
    }

    var discount int64
    switch p.Type {
    case model.PromotionPercentage:
        d := decimal.NewFromInt(subtotal).Mul(p.Value).Div(decimal.NewFromInt(100)).Floor()
        discount = d.IntPart()
        if p.MaxDiscount > 0 && discount > p.MaxDiscount {
            discount = p.MaxDiscount
        }
    case model.PromotionFixedAmount:
        discount = p.Value.Floor().IntPart()
    default:
        return 0, fmt.Errorf("%w: unknown type %q", ErrPromotionInactive, p.Type)
    }
    if discount < 0 {
        discount = 0
    }
    if discount > subtotal {
        discount = subtotal
    }
    return discount, nil
}

// reverseVAT extracts the VAT already included in gross.
func reverseVAT(gross int64) TaxLine {
    rate := decimal.NewFromInt(VATRatePercent)
    divisor := decimal.NewFromInt(100).Add(rate)
    tax := decimal.NewFromInt(gross).Mul(rate).Div(divisor).Round(0).IntPart()
    return TaxLine{RatePercent: VATRatePercent, Amount: tax, NetAmount: gross - tax}
}
