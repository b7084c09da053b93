package model

import (
    "fmt"
    "time"
)

// HeldSeat is one seat the seat-hold collaborator reports as held by a user,
// priced at hold time.  The booking core trusts this price and never
// re-prices seats.
type HeldSeat struct {
    ID         uint64 `json:"id"`          // seats.id
    Price      int64  `json:"price"`       // show_seats.price_cents at hold time, in whole VND
    Type       string `json:"type"`        // seats.seat_type
    RowLetter  string `json:"row_letter"`  // seats.row_label
    SeatNumber int    `json:"seat_number"` // seats.seat_number
}

// Label renders the seat as row letter plus number, e.g. "A1".
func (s HeldSeat) Label() string {
    return fmt.Sprintf("%s%d", s.RowLetter, s.SeatNumber)
}

// HeldSeats is the seat-hold collaborator's answer for one user and
// showtime.  LockTTLSeconds is the remaining lifetime of the shortest hold.
type HeldSeats struct {
    Seats          []HeldSeat `json:"seats"`
    LockTTLSeconds int64      `json:"lock_ttl_seconds"`
}

// SeatIDs returns the IDs of all held seats in order.
func (h HeldSeats) SeatIDs() []uint64 {
    ids := make([]uint64, 0, len(h.Seats))
    for _, s := range h.Seats {
        ids = append(ids, s.ID)
    }
    return ids
}

// ShowtimeDetails describes a showtime for display and validation.
type ShowtimeDetails struct {
    ShowtimeID uint64    `json:"showtime_id"`
    MovieTitle string    `json:"movie_title"`
    CinemaName string    `json:"cinema_name"`
    HallName   string    `json:"hall_name"`
    StartTime  time.Time `json:"start_time"`
    EndTime    time.Time `json:"end_time"`
}
