package repository

import (
    "context"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// TicketRepo persists tickets.  At most one VALID ticket may exist per
// (showtime, seat); the tickets.valid_key generated column enforces it and
// violations surface as ErrConflict.
type TicketRepo struct {
    q dbtx
}

const ticketColumns = `id, order_id, showtime_id, seat_id, seat_label, ticket_type, price, status, created_at, updated_at`

// CreateBulk inserts tickets in one statement.  IDs are not read back;
// callers that need them reload with ListByOrder.
func (r *TicketRepo) CreateBulk(ctx context.Context, tickets []model.Ticket) error {
    if len(tickets) == 0 {
        return nil
    }
    query := `INSERT INTO tickets (order_id, showtime_id, seat_id, seat_label, ticket_type, price, status) VALUES `
    args := make([]any, 0, len(tickets)*7)
    for i, t := range tickets {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?, ?, ?)"
        args = append(args, t.OrderID, t.ShowtimeID, t.SeatID, t.SeatLabel, t.TicketType, t.Price, t.Status)
    }
    _, err := r.q.ExecContext(ctx, query, args...)
    return translate(err)
}

func (r *TicketRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.Ticket, error) {
    rows, err := r.q.QueryContext(ctx,
        `SELECT `+ticketColumns+` FROM tickets WHERE order_id = ? ORDER BY id`, orderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Ticket
    for rows.Next() {
        var t model.Ticket
        if err := rows.Scan(&t.ID, &t.OrderID, &t.ShowtimeID, &t.SeatID, &t.SeatLabel,
            &t.TicketType, &t.Price, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
            return nil, err
        }
        out = append(out, t)
    }
    return out, rows.Err()
}

// FindValidSeats returns which of seatIDs already hold a VALID ticket for
// the showtime.
func (r *TicketRepo) FindValidSeats(ctx context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
    if len(seatIDs) == 0 {
        return nil, nil
    }
    args := append([]any{showtimeID, model.TicketValid}, uint64Args(seatIDs)...)
    rows, err := r.q.QueryContext(ctx,
        `SELECT DISTINCT seat_id FROM tickets
         WHERE showtime_id = ? AND status = ? AND seat_id IN (`+placeholders(len(seatIDs))+`)
         ORDER BY seat_id`, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var taken []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        taken = append(taken, id)
    }
    return taken, rows.Err()
}

// UpdateStatusByOrder moves the order's tickets from one status to another.
func (r *TicketRepo) UpdateStatusByOrder(ctx context.Context, orderID uint64, from, to model.TicketStatus) (int64, error) {
    res, err := r.q.ExecContext(ctx,
        `UPDATE tickets SET status = ? WHERE order_id = ? AND status = ?`, to, orderID, from)
    if err != nil {
        return 0, translate(err)
    }
    return res.RowsAffected()
}
