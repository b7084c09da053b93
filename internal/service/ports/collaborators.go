package ports

import (
    "context"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

// SeatHoldClient is the external seat-hold collaborator.  It owns seat
// locking; the booking core only reads what a user currently holds.
type SeatHoldClient interface {
    GetHeldSeatsWithPricing(ctx context.Context, showtimeID, userID uint64) (model.HeldSeats, error)
    GetShowtimeDetails(ctx context.Context, showtimeID uint64) (*model.ShowtimeDetails, error)
}

type UserDirectory interface {
    GetUserDetail(ctx context.Context, userID uint64) (*model.UserDetail, error)
}

// Notifier accepts booking notifications for asynchronous delivery.
// refundAmount is nil when the cancellation carries no refund.
type Notifier interface {
    SendBookingConfirmation(ctx context.Context, order *model.Order, tickets []model.Ticket) error
    SendBookingCancellation(ctx context.Context, order *model.Order, refundAmount *int64) error
}
