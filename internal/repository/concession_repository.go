package repository

import (
    "context"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// ConcessionRepo reads the concession catalog.
type ConcessionRepo struct {
    q dbtx
}

// GetByIDs loads the requested catalog items keyed by ID.  Unknown IDs are
// simply absent from the map.
func (r *ConcessionRepo) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Concession, error) {
    out := make(map[uint64]model.Concession, len(ids))
    if len(ids) == 0 {
        return out, nil
    }
    rows, err := r.q.QueryContext(ctx,
        `SELECT id, name, price, available FROM concessions WHERE id IN (`+placeholders(len(ids))+`)`,
        uint64Args(ids)...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var c model.Concession
        if err := rows.Scan(&c.ID, &c.Name, &c.Price, &c.Available); err != nil {
            return nil, err
        }
        out[c.ID] = c
    }
    return out, rows.Err()
}
