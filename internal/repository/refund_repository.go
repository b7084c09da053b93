package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// RefundRepo persists refund requests against completed payments.
type RefundRepo struct {
    q dbtx
}

const refundColumns = `id, payment_id, amount, reason, status, refunded_at, created_at, updated_at`

func scanRefund(s rowScanner) (*model.Refund, error) {
    var (
        rf       model.Refund
        refunded sql.NullTime
    )
    if err := s.Scan(&rf.ID, &rf.PaymentID, &rf.Amount, &rf.Reason, &rf.Status,
        &refunded, &rf.CreatedAt, &rf.UpdatedAt); err != nil {
        return nil, err
    }
    rf.RefundedAt = nullTime(refunded)
    return &rf, nil
}

func (r *RefundRepo) Create(ctx context.Context, rf *model.Refund) error {
    res, err := r.q.ExecContext(ctx,
        `INSERT INTO refunds (payment_id, amount, reason, status) VALUES (?, ?, ?, ?)`,
        rf.PaymentID, rf.Amount, rf.Reason, rf.Status)
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
    *rf = *saved
    return nil
}

func (r *RefundRepo) GetByID(ctx context.Context, id uint64) (*model.Refund, error) {
    return r.getOne(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ?`, id)
}

func (r *RefundRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Refund, error) {
    return r.getOne(ctx, `SELECT `+refundColumns+` FROM refunds WHERE id = ? FOR UPDATE`, id)
}

func (r *RefundRepo) getOne(ctx context.Context, q string, args ...any) (*model.Refund, error) {
    rf, err := scanRefund(r.q.QueryRowContext(ctx, q, args...))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return rf, err
}

// SumActiveByPayment totals refunds that still consume refundable capacity.
func (r *RefundRepo) SumActiveByPayment(ctx context.Context, paymentID uint64) (int64, error) {
    var total int64
    err := r.q.QueryRowContext(ctx,
        `SELECT COALESCE(SUM(amount), 0) FROM refunds
         WHERE payment_id = ? AND status IN (?, ?, ?)`,
        paymentID, model.RefundPending, model.RefundProcessing, model.RefundCompleted,
    ).Scan(&total)
    return total, err
}

func (r *RefundRepo) ListByPayment(ctx context.Context, paymentID uint64) ([]model.Refund, error) {
    rows, err := r.q.QueryContext(ctx,
        `SELECT `+refundColumns+` FROM refunds WHERE payment_id = ? ORDER BY id`, paymentID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Refund
    for rows.Next() {
        rf, err := scanRefund(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *rf)
    }
    return out, rows.Err()
}

func (r *RefundRepo) Update(ctx context.Context, rf *model.Refund) error {
    res, err := r.q.ExecContext(ctx,
        `UPDATE refunds SET reason = ?, status = ?, refunded_at = ? WHERE id = ?`,
        rf.Reason, rf.Status, utcPtr(rf.RefundedAt), rf.ID)
    if err != nil {
        return translate(err)
    }
    return requireRow(res)
}
