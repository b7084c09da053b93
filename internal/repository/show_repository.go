package repository

import (
	"context"      // context for controlling query lifetime
	"database/sql" // sql provides DB abstraction
	"errors"       // errors for matching sql.ErrNoRows

	"github.com/iliyamo/cinema-booking-payments/internal/model"
)

// ShowRepo reads showtimes from the seat service's schema.  A showtime is
// a row in shows: one screening of a movie in a hall.  The booking core
// only needs its display details and start time, which is used to refuse
// bookings for screenings that already began.
type ShowRepo struct {
	db *sql.DB
}

// NewShowRepo constructs a ShowRepo bound to db.
func NewShowRepo(db *sql.DB) *ShowRepo { return &ShowRepo{db: db} }

// showtimeDetailsQuery joins the show with its hall and, when the hall is
// attached to one, its cinema.  halls.cinema_id is nullable.
const showtimeDetailsQuery = `SELECT s.id, s.title, COALESCE(c.name, ''), h.name, s.starts_at, s.ends_at
	FROM shows s
	JOIN halls h        ON h.id = s.hall_id
	LEFT JOIN cinemas c ON c.id = h.cinema_id
	WHERE s.id = ? AND s.status <> 'CANCELLED'`

// GetShowtimeDetails returns the showtime's display details.  Cancelled
// shows are treated as missing.  It returns ErrNotFound when no row matches.
func (r *ShowRepo) GetShowtimeDetails(ctx context.Context, showtimeID uint64) (*model.ShowtimeDetails, error) {
	var d model.ShowtimeDetails
	err := r.db.QueryRowContext(ctx, showtimeDetailsQuery, showtimeID).Scan(
		&d.ShowtimeID, // shows.id
		&d.MovieTitle, // shows.title
		&d.CinemaName, // cinemas.name, empty for a hall without a cinema
		&d.HallName,   // halls.name
		&d.StartTime,  // shows.starts_at (UTC)
		&d.EndTime,    // shows.ends_at (UTC)
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.StartTime = d.StartTime.UTC()
	d.EndTime = d.EndTime.UTC()
	return &d, nil
}
