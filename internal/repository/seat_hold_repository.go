package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "strings"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// ErrMalformedHold is returned when a held seat row is missing the fields
// the booking core needs to price it.  The whole answer is rejected rather
// than silently dropping the seat.
var ErrMalformedHold = errors.New("malformed seat hold")

// ShowtimeLookup resolves showtime details; it is satisfied by ShowRepo and
// by CachedShowtimes.
type ShowtimeLookup interface {
    GetShowtimeDetails(ctx context.Context, showtimeID uint64) (*model.ShowtimeDetails, error)
}

// SeatHoldRepo is the booking core's read-only view of the seat service.
// The seat service owns seat_holds, show_seats and seats and is the only
// writer; this repository never creates, extends or releases a hold.  It
// reports which seats a user currently holds on a showtime, priced at
// hold time, together with the remaining lifetime of the shortest hold.
//
// All expiry comparisons happen in the database against UTC_TIMESTAMP() so
// that application and database clocks cannot disagree.
type SeatHoldRepo struct {
    db    *sql.DB
    shows ShowtimeLookup
}

// NewSeatHoldRepo returns a SeatHoldRepo reading holds from db and
// showtime details from shows.
func NewSeatHoldRepo(db *sql.DB, shows ShowtimeLookup) *SeatHoldRepo {
    return &SeatHoldRepo{db: db, shows: shows}
}

// heldSeatsQuery reads a user's live holds on a show.  show_seats stores
// prices in hundredths (price_cents); they are converted to whole VND by
// centsToVND.
const heldSeatsQuery = `SELECT se.id, ss.price_cents, se.seat_type, se.row_label, se.seat_number,
                  TIMESTAMPDIFF(SECOND, UTC_TIMESTAMP(), sh.expires_at)
           FROM seat_holds sh
           JOIN seats se      ON se.id = sh.seat_id
           JOIN show_seats ss ON ss.show_id = sh.show_id AND ss.seat_id = sh.seat_id
           WHERE sh.user_id = ? AND sh.show_id = ? AND sh.expires_at > UTC_TIMESTAMP()
           ORDER BY se.row_label, se.seat_number`

// GetHeldSeatsWithPricing returns the unexpired holds of userID on
// showtimeID.  Each seat carries the show_seats price captured when the
// hold was taken.  LockTTLSeconds is the smallest remaining lifetime over
// all returned holds and is zero when nothing is held.
//
// A row without a positive price or without a row label makes the entire
// call fail with ErrMalformedHold.
func (r *SeatHoldRepo) GetHeldSeatsWithPricing(ctx context.Context, showtimeID, userID uint64) (model.HeldSeats, error) {
    rows, err := r.db.QueryContext(ctx, heldSeatsQuery, userID, showtimeID)
    if err != nil {
        return model.HeldSeats{}, err
    }
    defer rows.Close()

    out := model.HeldSeats{Seats: []model.HeldSeat{}}
    first := true
    for rows.Next() {
        var (
            s     model.HeldSeat
            cents sql.NullInt64
            typ   sql.NullString
            ttl   int64
        )
        if err := rows.Scan(&s.ID, &cents, &typ, &s.RowLetter, &s.SeatNumber, &ttl); err != nil {
            return model.HeldSeats{}, err
        }
        price := centsToVND(cents.Int64)
        if !cents.Valid || price <= 0 {
            return model.HeldSeats{}, fmt.Errorf("%w: seat %d has no price", ErrMalformedHold, s.ID)
        }
        if strings.TrimSpace(s.RowLetter) == "" || s.SeatNumber <= 0 {
            return model.HeldSeats{}, fmt.Errorf("%w: seat %d has no position", ErrMalformedHold, s.ID)
        }
        s.Price = price
        s.Type = typ.String
        out.Seats = append(out.Seats, s)
        if first || ttl < out.LockTTLSeconds {
            out.LockTTLSeconds = ttl
            first = false
        }
    }
    if err := rows.Err(); err != nil {
        return model.HeldSeats{}, err
    }
    return out, nil
}

// centsToVND rounds a hundredths amount half up to whole VND.
func centsToVND(cents int64) int64 {
    if cents <= 0 {
        return 0
    }
    return (cents + 50) / 100
}

// GetShowtimeDetails delegates to the configured showtime lookup.
func (r *SeatHoldRepo) GetShowtimeDetails(ctx context.Context, showtimeID uint64) (*model.ShowtimeDetails, error) {
    return r.shows.GetShowtimeDetails(ctx, showtimeID)
}
