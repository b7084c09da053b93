package repository

import (
    "context"
    "database/sql"

    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every repository can run
// either on the pool or inside a caller's transaction.
type dbtx interface {
    ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
    QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
    QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ports.Store on a MySQL connection pool.
type Store struct {
    db *sql.DB
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Repos returns repositories that run each statement on the pool.
func (s *Store) Repos() ports.Repos { return bind(s.db) }

// WithinTx begins a READ COMMITTED transaction, hands fn repositories bound
// to it and commits when fn returns nil.  Any error or panic rolls back.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r ports.Repos) error) error {
    tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    if err := fn(ctx, bind(tx)); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

func bind(q dbtx) ports.Repos {
    return ports.Repos{
        Orders:      &OrderRepo{q: q},
        Tickets:     &TicketRepo{q: q},
        Payments:    &PaymentRepo{q: q},
        Refunds:     &RefundRepo{q: q},
        Promotions:  &PromotionRepo{q: q},
        Loyalty:     &LoyaltyRepo{q: q},
        Concessions: &ConcessionRepo{q: q},
    }
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
    if n <= 0 {
        return ""
    }
    b := make([]byte, 0, n*3)
    for i := 0; i < n; i++ {
        if i > 0 {
            b = append(b, ", "...)
        }
        b = append(b, '?')
    }
    return string(b)
}

func uint64Args(ids []uint64) []any {
    args := make([]any, len(ids))
    for i, id := range ids {
        args[i] = id
    }
    return args
}
