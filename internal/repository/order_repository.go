package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// OrderRepo persists orders and their concession lines.  A PENDING order is
// unique per (user, showtime): the orders.pending_key generated column
// carries a UNIQUE index, so a concurrent second insert fails with
// ErrConflict instead of creating a duplicate.
type OrderRepo struct {
    q dbtx
}

const orderColumns = `id, user_id, showtime_id, customer_name, customer_email, customer_phone,
    subtotal, discount, points_used, points_discount, final_amount, promotion_code,
    status, payment_status, expires_at, cancellation_reason, cancelled_at, reschedule_count,
    created_at, updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanOrder(s rowScanner) (*model.Order, error) {
    var (
        o         model.Order
        promo     sql.NullString
        expires   sql.NullTime
        reason    sql.NullString
        cancelled sql.NullTime
    )
    err := s.Scan(
        &o.ID, &o.UserID, &o.ShowtimeID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
        &o.Subtotal, &o.Discount, &o.PointsUsed, &o.PointsDiscount, &o.FinalAmount, &promo,
        &o.Status, &o.PaymentStatus, &expires, &reason, &cancelled, &o.RescheduleCount,
        &o.CreatedAt, &o.UpdatedAt,
    )
    if err != nil {
        return nil, err
    }
    o.PromotionCode = nullString(promo)
    o.ExpiresAt = nullTime(expires)
    o.CancellationReason = nullString(reason)
    o.CancelledAt = nullTime(cancelled)
    return &o, nil
}

// Create inserts o and reloads it so ID and DB defaults are populated.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
    const q = `INSERT INTO orders (user_id, showtime_id, customer_name, customer_email, customer_phone,
        subtotal, discount, points_used, points_discount, final_amount, promotion_code,
        status, payment_status, expires_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.q.ExecContext(ctx, q,
        o.UserID, o.ShowtimeID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
        o.Subtotal, o.Discount, o.PointsUsed, o.PointsDiscount, o.FinalAmount, o.PromotionCode,
        o.Status, o.PaymentStatus, utcPtr(o.ExpiresAt),
    )
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
    *o = *saved
    return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
    return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetByIDForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Order, error) {
    return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (r *OrderRepo) FindPendingByUserAndShowtime(ctx context.Context, userID, showtimeID uint64) (*model.Order, error) {
    return r.getOne(ctx,
        `SELECT `+orderColumns+` FROM orders
         WHERE user_id = ? AND showtime_id = ? AND status = ? LIMIT 1`,
        userID, showtimeID, model.OrderPending)
}

func (r *OrderRepo) getOne(ctx context.Context, q string, args ...any) (*model.Order, error) {
    o, err := scanOrder(r.q.QueryRowContext(ctx, q, args...))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return o, err
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Order, error) {
    return r.list(ctx,
        `SELECT `+orderColumns+` FROM orders WHERE user_id = ?
         ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
        userID, limit, offset)
}

// ListExpiredPending returns PENDING orders whose hold deadline is at or
// before now, oldest first.
func (r *OrderRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]model.Order, error) {
    return r.list(ctx,
        `SELECT `+orderColumns+` FROM orders
         WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
         ORDER BY expires_at ASC LIMIT ?`,
        model.OrderPending, now.UTC(), limit)
}

func (r *OrderRepo) list(ctx context.Context, q string, args ...any) ([]model.Order, error) {
    rows, err := r.q.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Order
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *o)
    }
    return out, rows.Err()
}

// Update writes every mutable column of o.
func (r *OrderRepo) Update(ctx context.Context, o *model.Order) error {
    const q = `UPDATE orders SET showtime_id = ?, customer_name = ?, customer_email = ?, customer_phone = ?,
        status = ?, payment_status = ?, expires_at = ?, cancellation_reason = ?, cancelled_at = ?,
        reschedule_count = ?
        WHERE id = ?`
    res, err := r.q.ExecContext(ctx, q,
        o.ShowtimeID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
        o.Status, o.PaymentStatus, utcPtr(o.ExpiresAt), o.CancellationReason, utcPtr(o.CancelledAt),
        o.RescheduleCount, o.ID,
    )
    if err != nil {
        return translate(err)
    }
    return requireRow(res)
}

// AddConcessions bulk inserts the order's concession lines.
func (r *OrderRepo) AddConcessions(ctx context.Context, lines []model.OrderConcession) error {
    if len(lines) == 0 {
        return nil
    }
    query := `INSERT INTO order_concessions (order_id, concession_id, name, unit_price, quantity, total) VALUES `
    args := make([]any, 0, len(lines)*6)
    for i, l := range lines {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?, ?)"
        args = append(args, l.OrderID, l.ConcessionID, l.Name, l.UnitPrice, l.Quantity, l.Total)
    }
    _, err := r.q.ExecContext(ctx, query, args...)
    return translate(err)
}

func (r *OrderRepo) ListConcessions(ctx context.Context, orderID uint64) ([]model.OrderConcession, error) {
    rows, err := r.q.QueryContext(ctx,
        `SELECT id, order_id, concession_id, name, unit_price, quantity, total
         FROM order_concessions WHERE order_id = ? ORDER BY id`, orderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.OrderConcession
    for rows.Next() {
        var l model.OrderConcession
        if err := rows.Scan(&l.ID, &l.OrderID, &l.ConcessionID, &l.Name, &l.UnitPrice, &l.Quantity, &l.Total); err != nil {
            return nil, err
        }
        out = append(out, l)
    }
    return out, rows.Err()
}

func nullString(v sql.NullString) *string {
    if !v.Valid {
        return nil
    }
    s := v.String
    return &s
}

func nullTime(v sql.NullTime) *time.Time {
    if !v.Valid {
        return nil
    }
    t := v.Time.UTC()
    return &t
}

// utcPtr converts an optional timestamp into a driver value in UTC.
func utcPtr(t *time.Time) any {
    if t == nil {
        return nil
    }
    return t.UTC()
}

// requireRow maps an UPDATE that matched nothing to ErrNotFound.
func requireRow(res sql.Result) error {
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}
