package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// LoyaltyRepo manages point balances and their audit trail.
type LoyaltyRepo struct {
    q dbtx
}

func (r *LoyaltyRepo) GetAccountByUser(ctx context.Context, userID uint64) (*model.LoyaltyAccount, error) {
    return r.getAccount(ctx, `SELECT id, user_id, current_points, updated_at FROM loyalty_accounts WHERE user_id = ?`, userID)
}

func (r *LoyaltyRepo) GetAccountByUserForUpdate(ctx context.Context, userID uint64) (*model.LoyaltyAccount, error) {
    return r.getAccount(ctx, `SELECT id, user_id, current_points, updated_at FROM loyalty_accounts WHERE user_id = ? FOR UPDATE`, userID)
}

func (r *LoyaltyRepo) getAccount(ctx context.Context, q string, userID uint64) (*model.LoyaltyAccount, error) {
    var a model.LoyaltyAccount
    err := r.q.QueryRowContext(ctx, q, userID).Scan(&a.ID, &a.UserID, &a.CurrentPoints, &a.UpdatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    if err != nil {
        return nil, err
    }
    return &a, nil
}

// AdjustPoints applies delta in a single conditional UPDATE so the balance
// can never drop below zero.  No matching row means the account is missing
// or the debit exceeds the balance; both report ErrConflict.
func (r *LoyaltyRepo) AdjustPoints(ctx context.Context, accountID uint64, delta int64) error {
    res, err := r.q.ExecContext(ctx,
        `UPDATE loyalty_accounts SET current_points = current_points + ?
         WHERE id = ? AND current_points + ? >= 0`,
        delta, accountID, delta)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrConflict
    }
    return nil
}

// AddTransaction appends an audit row; t.ID is populated on success.
func (r *LoyaltyRepo) AddTransaction(ctx context.Context, t *model.LoyaltyTransaction) error {
    res, err := r.q.ExecContext(ctx,
        `INSERT INTO loyalty_transactions (account_id, order_id, type, points, description) VALUES (?, ?, ?, ?, ?)`,
        t.AccountID, t.OrderID, t.Type, t.Points, t.Description)
    if err != nil {
        return translate(err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    t.ID = uint64(id)
    return nil
}
