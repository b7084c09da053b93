package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// PaymentRepo persists gateway payment attempts.  txn_ref is UNIQUE.
type PaymentRepo struct {
    q dbtx
}

const paymentColumns = `id, order_id, txn_ref, amount, payment_method, status,
    provider_transaction_id, payment_url, paid_at, created_at, updated_at`

func scanPayment(s rowScanner) (*model.Payment, error) {
    var (
        p      model.Payment
        provID sql.NullString
        payURL sql.NullString
        paidAt sql.NullTime
    )
    if err := s.Scan(&p.ID, &p.OrderID, &p.TxnRef, &p.Amount, &p.Method, &p.Status,
        &provID, &payURL, &paidAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
        return nil, err
    }
    p.ProviderTransactionID = nullString(provID)
    p.PaymentURL = nullString(payURL)
    p.PaidAt = nullTime(paidAt)
    return &p, nil
}

func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
    const q = `INSERT INTO payments (order_id, txn_ref, amount, payment_method, status,
        provider_transaction_id, payment_url, paid_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.q.ExecContext(ctx, q, p.OrderID, p.TxnRef, p.Amount, p.Method, p.Status,
        p.ProviderTransactionID, p.PaymentURL, utcPtr(p.PaidAt))
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    saved, err := r.GetByID(ctx, uint64(id))
    if err != nil {
        return err
    }
    *p = *saved
    return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
    return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
}

func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Payment, error) {
    return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ? FOR UPDATE`, id)
}

func (r *PaymentRepo) GetByTxnRef(ctx context.Context, txnRef string) (*model.Payment, error) {
    return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE txn_ref = ?`, txnRef)
}

func (r *PaymentRepo) GetByTxnRefForUpdate(ctx context.Context, txnRef string) (*model.Payment, error) {
    return r.getOne(ctx, `SELECT `+paymentColumns+` FROM payments WHERE txn_ref = ? FOR UPDATE`, txnRef)
}

// FindPendingByOrder returns the newest PENDING payment of the order.
func (r *PaymentRepo) FindPendingByOrder(ctx context.Context, orderID uint64) (*model.Payment, error) {
    return r.getOne(ctx,
        `SELECT `+paymentColumns+` FROM payments
         WHERE order_id = ? AND status = ? ORDER BY id DESC LIMIT 1`,
        orderID, model.PaymentPending)
}

func (r *PaymentRepo) getOne(ctx context.Context, q string, args ...any) (*model.Payment, error) {
    p, err := scanPayment(r.q.QueryRowContext(ctx, q, args...))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return p, err
}

func (r *PaymentRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Payment, error) {
    rows, err := r.q.QueryContext(ctx,
        `SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY id`, orderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Payment
    for rows.Next() {
        p, err := scanPayment(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *p)
    }
    return out, rows.Err()
}

func (r *PaymentRepo) Update(ctx context.Context, p *model.Payment) error {
    res, err := r.q.ExecContext(ctx,
        `UPDATE payments SET status = ?, provider_transaction_id = ?, payment_url = ?, paid_at = ?
         WHERE id = ?`,
        p.Status, p.ProviderTransactionID, p.PaymentURL, utcPtr(p.PaidAt), p.ID)
    if err != nil {
        return translate(err)
    }
    return requireRow(res)
}
