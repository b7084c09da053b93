package ports

import (
    "context"
    "time"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// Implementations return repository.ErrNotFound for missing rows and
// repository.ErrConflict for uniqueness violations.

type OrderRepo interface {
    Create(ctx context.Context, o *model.Order) error
    GetByID(ctx context.Context, id uint64) (*model.Order, error)
    GetByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error)
    FindPendingByUserAndShowtime(ctx context.Context, userID, showtimeID uint64) (*model.Order, error)
    ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Order, error)
    ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error)
    Update(ctx context.Context, o *model.Order) error
    AddConcessions(ctx context.Context, lines []model.OrderConcession) error
    ListConcessions(ctx context.Context, orderID uint64) ([]model.OrderConcession, error)
}

type TicketRepo interface {
    CreateBulk(ctx context.Context, tickets []model.Ticket) error
    ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error)
    // FindValidSeats returns the subset of seatIDs that already carry a VALID
    // ticket for the showtime.
    FindValidSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error)
    // UpdateStatusByOrder moves every ticket of the order currently in from
    // to to and returns the number of tickets changed.
    UpdateStatusByOrder(ctx context.Context, orderID uint64, from, to model.TicketStatus) (int64, error)
}

type PaymentRepo interface {
    Create(ctx context.Context, p *model.Payment) error
    GetByID(ctx context.Context, id uint64) (*model.Payment, error)
    GetByIDForUpdate(ctx context.Context, id uint64) (*model.Payment, error)
    GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error)
    GetByTxnRefForUpdate(ctx context.Context, txnRef string) (*model.Payment, error)
    FindPendingByOrder(ctx context.Context, orderID uint64) (*model.Payment, error)
    ListByOrder(ctx context.Context, orderID uint64) ([]model.Payment, error)
    Update(ctx context.Context, p *model.Payment) error
}

type RefundRepo interface {
    Create(ctx context.Context, r *model.Refund) error
    GetByID(ctx context.Context, id uint64) (*model.Refund, error)
    GetByIDForUpdate(ctx context.Context, id uint64) (*model.Refund, error)
    // SumActiveByPayment totals refunds in PENDING, PROCESSING or COMPLETED.
    SumActiveByPayment(ctx context.Context, paymentID uint64) (int64, error)
    ListByPayment(ctx context.Context, paymentID uint64) ([]model.Refund, error)
    Update(ctx context.Context, r *model.Refund) error
}

type PromotionRepo interface {
    GetByCode(ctx context.Context, code string) (*model.Promotion, error)
    IncrementUsage(ctx context.Context, code string) error
}

type LoyaltyRepo interface {
    GetAccountByUser(ctx context.Context, userID uint64) (*model.LoyaltyAccount, error)
    GetAccountByUserForUpdate(ctx context.Context, userID uint64) (*model.LoyaltyAccount, error)
    // AdjustPoints adds delta to the balance and returns repository.ErrConflict
    // when the result would be negative.
    AdjustPoints(ctx context.Context, accountID uint64, delta int64) error
    AddTransaction(ctx context.Context, t *model.LoyaltyTransaction) error
}

type ConcessionRepo interface {
    GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Concession, error)
}

// Repos bundles the repositories bound to one connection or transaction.
type Repos struct {
    Orders      OrderRepo
    Tickets     TicketRepo
    Payments    PaymentRepo
    Refunds     RefundRepo
    Promotions  PromotionRepo
    Loyalty     LoyaltyRepo
    Concessions ConcessionRepo
}

// Store hands out repositories.  WithinTx runs fn inside one transaction and
// commits only when fn returns nil.
type Store interface {
    Repos() Repos
    WithinTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}
