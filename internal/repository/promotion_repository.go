package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// PromotionRepo reads promotion codes and counts their usage.  Codes are
// matched case-insensitively and stored upper-case.
type PromotionRepo struct {
    q dbtx
}

func (r *PromotionRepo) GetByCode(ctx context.Context, code string) (*model.Promotion, error) {
    var p model.Promotion
    err := r.q.QueryRowContext(ctx,
        `SELECT id, code, type, value, min_purchase, max_discount, starts_at, ends_at,
                usage_limit, current_usage, is_active
         FROM promotions WHERE code = ? LIMIT 1`,
        normalizeCode(code),
    ).Scan(&p.ID, &p.Code, &p.Type, &p.Value, &p.MinPurchase, &p.MaxDiscount, &p.StartsAt, &p.EndsAt,
        &p.UsageLimit, &p.CurrentUsage, &p.IsActive)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    p.StartsAt = p.StartsAt.UTC()
    p.EndsAt = p.EndsAt.UTC()
    return &p, nil
}

// IncrementUsage counts one more paid order against the code.  A code that
// has since been deleted is ignored.
func (r *PromotionRepo) IncrementUsage(ctx context.Context, code string) error {
    _, err := r.q.ExecContext(ctx,
        `UPDATE promotions SET current_usage = current_usage + 1 WHERE code = ?`, normalizeCode(code))
    return err
}

func normalizeCode(code string) string {
    return strings.ToUpper(strings.TrimSpace(code))
}
