package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/pricing"
    "github.com/iliyamo/cinema-booking-payments/internal/repository"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// BookingOptions tunes the order assembler.
type BookingOptions struct {
    // MaxReschedules is how many times a confirmed order may move showtime.
    MaxReschedules int
}

// BookingService turns seat holds into priced orders and drives the
// non-payment order transitions.
type BookingService struct {
    deps Deps
    opts BookingOptions
    log  *zap.Logger
}

func NewBookingService(deps Deps, opts BookingOptions) (*BookingService, error) {
    if err := deps.validate(); err != nil {
        return nil, err
    }
    if deps.SeatHolds == nil {
        return nil, errors.New("service: seat hold client is required")
    }
    if opts.MaxReschedules < 0 {
        opts.MaxReschedules = 0
    }
    return &BookingService{deps: deps, opts: opts, log: deps.logger().Named("booking")}, nil
}

// CreateOrderRequest is the customer's request to buy the seats they hold.
type CreateOrderRequest struct {
    ShowtimeID     uint64                      `json:"showtime_id"`
    Concessions    []pricing.ConcessionRequest `json:"concessions"`
    PromotionCode  string                      `json:"promotion_code"`
    PointsToRedeem int64                       `json:"points_to_redeem"`
    CustomerName   string                      `json:"customer_name"`
    CustomerEmail  string                      `json:"customer_email"`
    CustomerPhone  string                      `json:"customer_phone"`
}

// OrderResult is a freshly created order with its price breakdown.
type OrderResult struct {
    Order       model.Order             `json:"order"`
    Tickets     []model.Ticket          `json:"tickets"`
    Concessions []model.OrderConcession `json:"concessions"`
    Breakdown   pricing.Breakdown       `json:"breakdown"`
    Showtime    *model.ShowtimeDetails  `json:"showtime,omitempty"`
}

// OrderDetail is an order with everything attached to it.
type OrderDetail struct {
    Order       model.Order             `json:"order"`
    Tickets     []model.Ticket          `json:"tickets"`
    Concessions []model.OrderConcession `json:"concessions"`
    Payments    []model.Payment         `json:"payments"`
    Refunds     []model.Refund          `json:"refunds"`
}

// CreateOrder converts the seats userID currently holds on the showtime into
// a PENDING order whose tickets start in the CANCELLED placeholder state.
// The order expires when the shortest seat hold does.
func (s *BookingService) CreateOrder(ctx context.Context, userID uint64, req CreateOrderRequest) (*OrderResult, error) {
    if userID == 0 || req.ShowtimeID == 0 {
        return nil, validationErr("user and showtime are required", nil)
    }
    if req.PointsToRedeem < 0 {
        return nil, validationErr("points to redeem must not be negative", nil)
    }
    now := s.deps.now()
    repos := s.deps.Store.Repos()

    if existing, err := repos.Orders.FindPendingByUserAndShowtime(ctx, userID, req.ShowtimeID); err == nil {
        if !existing.HoldExpired(now) {
            return nil, conflictErr("you already have a pending order for this showtime").with("order_id", existing.ID)
        }
    } else if !errors.Is(err, repository.ErrNotFound) {
        return nil, wrapStore(err, "order")
    }

    showtime, err := s.deps.SeatHolds.GetShowtimeDetails(ctx, req.ShowtimeID)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, notFoundErr("showtime not found")
        }
        return nil, dependencyErr("showtime details unavailable", err)
    }
    if !showtime.StartTime.IsZero() && !showtime.StartTime.After(now) {
        return nil, validationErr("showtime has already started", nil)
    }

    held, err := s.deps.SeatHolds.GetHeldSeatsWithPricing(ctx, req.ShowtimeID, userID)
    if err != nil {
        return nil, dependencyErr("seat hold service unavailable", err)
    }
    if len(held.Seats) == 0 {
        return nil, validationErr("no seats are held for this showtime", nil)
    }
    if held.LockTTLSeconds <= 0 {
        return nil, validationErr("seat hold has expired", nil)
    }
    seatIDs := held.SeatIDs()

    if taken, err := repos.Tickets.FindValidSeats(ctx, req.ShowtimeID, seatIDs); err != nil {
        return nil, wrapStore(err, "ticket")
    } else if len(taken) > 0 {
        return nil, conflictErr("some seats are already sold").with("seat_ids", taken)
    }

    in := pricing.Input{
        Seats:          held.Seats,
        Concessions:    req.Concessions,
        PromotionCode:  strings.TrimSpace(req.PromotionCode),
        PointsToRedeem: req.PointsToRedeem,
        Now:            now,
    }
    if len(req.Concessions) > 0 {
        ids := make([]uint64, 0, len(req.Concessions))
        for _, c := range req.Concessions {
            ids = append(ids, c.ConcessionID)
        }
        if in.Catalog, err = repos.Concessions.GetByIDs(ctx, ids); err != nil {
            return nil, wrapStore(err, "concession")
        }
    }
    if in.PromotionCode != "" {
        p, err := repos.Promotions.GetByCode(ctx, in.PromotionCode)
        if err != nil && !errors.Is(err, repository.ErrNotFound) {
            return nil, wrapStore(err, "promotion")
        }
        in.Promotion = p
    }
    if req.PointsToRedeem > 0 {
        acct, err := repos.Loyalty.GetAccountByUser(ctx, userID)
        if err != nil && !errors.Is(err, repository.ErrNotFound) {
            return nil, wrapStore(err, "loyalty account")
        }
        in.LoyaltyAccount = acct
    }
    breakdown, err := pricing.Calculate(in)
    if err != nil {
        return nil, validationErr(err.Error(), err)
    }

    expiresAt := now.Add(time.Duration(held.LockTTLSeconds) * time.Second)
    order := model.Order{
        UserID:         userID,
        ShowtimeID:     req.ShowtimeID,
        CustomerName:   strings.TrimSpace(req.CustomerName),
        CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
        CustomerPhone:  strings.TrimSpace(req.CustomerPhone),
        Subtotal:       breakdown.Subtotal,
        Discount:       breakdown.Discount,
        PointsUsed:     breakdown.PointsUsed,
        PointsDiscount: breakdown.PointsDiscount,
        FinalAmount:    breakdown.FinalAmount,
        Status:         model.OrderPending,
        PaymentStatus:  model.PaymentPending,
        ExpiresAt:      &expiresAt,
    }
    if breakdown.Promotion != nil {
        code := breakdown.Promotion.Code
        order.PromotionCode = &code
    }
    s.fillContact(ctx, &order)

    var result OrderResult
    err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        // The unique pending index rejects a concurrent duplicate; a stale
        // pending order whose hold lapsed is expired first so it does not
        // block the new one.
        if prev, err := r.Orders.FindPendingByUserAndShowtime(ctx, userID, req.ShowtimeID); err == nil {
            if !prev.HoldExpired(now) {
                return conflictErr("you already have a pending order for this showtime").with("order_id", prev.ID)
            }
            if err := releaseOrder(ctx, r, prev, model.OrderExpired, "seat hold expired", now); err != nil {
                return err
            }
        } else if !errors.Is(err, repository.ErrNotFound) {
            return err
        }
        if taken, err := r.Tickets.FindValidSeats(ctx, req.ShowtimeID, seatIDs); err != nil {
            return err
        } else if len(taken) > 0 {
            return conflictErr("some seats are already sold").with("seat_ids", taken)
        }

        if err := r.Orders.Create(ctx, &order); err != nil {
            if errors.Is(err, repository.ErrConflict) {
                return conflictErr("you already have a pending order for this showtime")
            }
            return err
        }

        if order.PointsUsed > 0 {
            acct, err := r.Loyalty.GetAccountByUserForUpdate(ctx, userID)
            if err != nil {
                return err
            }
            if err := r.Loyalty.AdjustPoints(ctx, acct.ID, -order.PointsUsed); err != nil {
                if errors.Is(err, repository.ErrConflict) {
                    return validationErr("insufficient loyalty points", err)
                }
                return err
            }
            orderID := order.ID
            if err := r.Loyalty.AddTransaction(ctx, &model.LoyaltyTransaction{
                AccountID:   acct.ID,
                OrderID:     &orderID,
                Type:        model.LoyaltyRedeem,
                Points:      order.PointsUsed,
                Description: fmt.Sprintf("Redeemed for order #%d", order.ID),
            }); err != nil {
                return err
            }
        }

        tickets := make([]model.Ticket, 0, len(held.Seats))
        for _, seat := range held.Seats {
            typ := strings.ToUpper(strings.TrimSpace(seat.Type))
            if typ == "" {
                typ = "STANDARD"
            }
            tickets = append(tickets, model.Ticket{
                OrderID:    order.ID,
                ShowtimeID: order.ShowtimeID,
                SeatID:     seat.ID,
                SeatLabel:  seat.Label(),
                TicketType: typ,
                Price:      seat.Price,
                Status:     model.TicketCancelled,
            })
        }
        if err := r.Tickets.CreateBulk(ctx, tickets); err != nil {
            return err
        }

        lines := make([]model.OrderConcession, 0, len(breakdown.Concessions))
        for _, c := range breakdown.Concessions {
            lines = append(lines, model.OrderConcession{
                OrderID:      order.ID,
                ConcessionID: c.ConcessionID,
                Name:         c.Name,
                UnitPrice:    c.UnitPrice,
                Quantity:     c.Quantity,
                Total:        c.Total,
            })
        }
        if err := r.Orders.AddConcessions(ctx, lines); err != nil {
            return err
        }

        saved, err := r.Tickets.ListByOrder(ctx, order.ID)
        if err != nil {
            return err
        }
        result = OrderResult{Order: order, Tickets: saved, Concessions: lines, Breakdown: breakdown, Showtime: showtime}
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "order")
    }

    s.deps.Metrics.OrderCreated()
    s.log.Info("order created",
        zap.Uint64("order_id", result.Order.ID),
        zap.Uint64("user_id", userID),
        zap.Uint64("showtime_id", req.ShowtimeID),
        zap.Int("seats", len(result.Tickets)),
        zap.Int64("final_amount", result.Order.FinalAmount),
        zap.Time("expires_at", expiresAt),
    )
    return &result, nil
}

// fillContact completes a missing contact snapshot from the user directory.
// Directory failures are tolerated.
func (s *BookingService) fillContact(ctx context.Context, o *model.Order) {
    if s.deps.Users == nil || (o.CustomerName != "" && o.CustomerEmail != "" && o.CustomerPhone != "") {
        return
    }
    u, err := s.deps.Users.GetUserDetail(ctx, o.UserID)
    if err != nil || u == nil {
        if err != nil {
            s.log.Debug("user directory unavailable for contact snapshot", zap.Uint64("user_id", o.UserID), zap.Error(err))
        }
        return
    }
    if o.CustomerName == "" {
        o.CustomerName = u.FullName
    }
    if o.CustomerEmail == "" {
        o.CustomerEmail = u.Email
    }
    if o.CustomerPhone == "" {
        o.CustomerPhone = u.Phone
    }
}

// GetOrder returns the order with its tickets, concessions, payments and
// refunds.  A non-zero userID must own the order.
func (s *BookingService) GetOrder(ctx context.Context, id, userID uint64) (*OrderDetail, error) {
    repos := s.deps.Store.Repos()
    o, err := repos.Orders.GetByID(ctx, id)
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    if err := checkOwner(o, userID); err != nil {
        return nil, err
    }
    detail := &OrderDetail{Order: *o, Refunds: []model.Refund{}}
    if detail.Tickets, err = repos.Tickets.ListByOrder(ctx, id); err != nil {
        return nil, wrapStore(err, "ticket")
    }
    if detail.Concessions, err = repos.Orders.ListConcessions(ctx, id); err != nil {
        return nil, wrapStore(err, "concession")
    }
    if detail.Payments, err = repos.Payments.ListByOrder(ctx, id); err != nil {
        return nil, wrapStore(err, "payment")
    }
    for _, p := range detail.Payments {
        refunds, err := repos.Refunds.ListByPayment(ctx, p.ID)
        if err != nil {
            return nil, wrapStore(err, "refund")
        }
        detail.Refunds = append(detail.Refunds, refunds...)
    }
    return detail, nil
}

// ListOrders returns a user's orders, newest first.
func (s *BookingService) ListOrders(ctx context.Context, userID uint64, limit, offset int) ([]model.Order, error) {
    if limit <= 0 || limit > 100 {
        limit = 20
    }
    if offset < 0 {
        offset = 0
    }
    orders, err := s.deps.Store.Repos().Orders.ListByUser(ctx, userID, limit, offset)
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    return orders, nil
}

// CancelOrder cancels a PENDING order on the customer's request.  Confirmed
// orders are reversed through a refund instead.
func (s *BookingService) CancelOrder(ctx context.Context, id, userID uint64, reason string) (*model.Order, error) {
    reason = strings.TrimSpace(reason)
    if reason == "" {
        reason = "Cancelled by customer"
    }
    now := s.deps.now()
    var out model.Order
    err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if err := checkOwner(o, userID); err != nil {
            return err
        }
        switch o.Status {
        case model.OrderPending:
        case model.OrderConfirmed:
            return conflictErr("confirmed orders must be cancelled through a refund request")
        default:
            return conflictErr(fmt.Sprintf("order is already %s", o.Status))
        }
        if err := releaseOrder(ctx, r, o, model.OrderCancelled, reason, now); err != nil {
            return err
        }
        out = *o
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    s.deps.Metrics.OrderClosed(string(model.OrderCancelled))
    s.log.Info("order cancelled", zap.Uint64("order_id", id), zap.Uint64("user_id", userID))
    s.deps.Dispatcher.cancellation(ctx, out, nil)
    return &out, nil
}

// ExpireBooking moves a PENDING order whose seat hold has lapsed to EXPIRED.
func (s *BookingService) ExpireBooking(ctx context.Context, id uint64) (*model.Order, error) {
    now := s.deps.now()
    var out model.Order
    err := s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if o.Status != model.OrderPending {
            return conflictErr(fmt.Sprintf("order is already %s", o.Status))
        }
        if !o.HoldExpired(now) {
            return conflictErr("seat hold has not expired yet")
        }
        if err := releaseOrder(ctx, r, o, model.OrderExpired, "seat hold expired", now); err != nil {
            return err
        }
        out = *o
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    s.deps.Metrics.OrderClosed(string(model.OrderExpired))
    s.log.Info("order expired", zap.Uint64("order_id", id))
    s.deps.Dispatcher.cancellation(ctx, out, nil)
    return &out, nil
}

// ExpireStale expires up to limit pending orders whose hold lapsed and
// returns the expired orders.  Orders that changed state concurrently are
// skipped.
func (s *BookingService) ExpireStale(ctx context.Context, limit int) ([]model.Order, error) {
    if limit <= 0 {
        limit = 100
    }
    candidates, err := s.deps.Store.Repos().Orders.ListExpiredPending(ctx, s.deps.now(), limit)
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    expired := make([]model.Order, 0, len(candidates))
    for _, c := range candidates {
        o, err := s.ExpireBooking(ctx, c.ID)
        if err != nil {
            if KindOf(err) == KindConflict {
                continue
            }
            return expired, err
        }
        expired = append(expired, *o)
    }
    return expired, nil
}

// RescheduleOrder moves a CONFIRMED order onto the seats the user holds for
// another showtime.  The seat count must match and the new tickets must not
// cost more than the ones they replace.
func (s *BookingService) RescheduleOrder(ctx context.Context, id, userID, newShowtimeID uint64) (*OrderDetail, error) {
    if newShowtimeID == 0 {
        return nil, validationErr("new showtime is required", nil)
    }
    now := s.deps.now()
    current, err := s.deps.Store.Repos().Orders.GetByID(ctx, id)
    if err != nil {
        return nil, wrapStore(err, "order")
    }
    if err := checkOwner(current, userID); err != nil {
        return nil, err
    }
    if current.ShowtimeID == newShowtimeID {
        return nil, validationErr("order is already for this showtime", nil)
    }

    showtime, err := s.deps.SeatHolds.GetShowtimeDetails(ctx, newShowtimeID)
    if err != nil {
        if errors.Is(err, repository.ErrNotFound) {
            return nil, notFoundErr("showtime not found")
        }
        return nil, dependencyErr("showtime details unavailable", err)
    }
    if !showtime.StartTime.After(now) {
        return nil, validationErr("new showtime has already started", nil)
    }
    held, err := s.deps.SeatHolds.GetHeldSeatsWithPricing(ctx, newShowtimeID, userID)
    if err != nil {
        return nil, dependencyErr("seat hold service unavailable", err)
    }
    if len(held.Seats) == 0 {
        return nil, validationErr("no seats are held for the new showtime", nil)
    }
    if held.LockTTLSeconds <= 0 {
        return nil, validationErr("seat hold has expired", nil)
    }

    var detail OrderDetail
    err = s.deps.Store.WithinTx(ctx, func(ctx context.Context, r ports.Repos) error {
        o, err := r.Orders.GetByIDForUpdate(ctx, id)
        if err != nil {
            return err
        }
        if o.Status != model.OrderConfirmed {
            return conflictErr("only confirmed orders can be rescheduled")
        }
        if o.RescheduleCount >= s.opts.MaxReschedules {
            return conflictErr("order has reached the reschedule limit").with("max_reschedules", s.opts.MaxReschedules)
        }
        existing, err := r.Tickets.ListByOrder(ctx, o.ID)
        if err != nil {
            return err
        }
        var oldCount int
        var oldTotal, newTotal int64
        for _, t := range existing {
            if t.Status == model.TicketValid {
                oldCount++
                oldTotal += t.Price
            }
        }
        for _, seat := range held.Seats {
            newTotal += seat.Price
        }
        if oldCount != len(held.Seats) {
            return validationErr(fmt.Sprintf("hold %d seats to match the original order", oldCount), nil)
        }
        if newTotal > oldTotal {
            return validationErr("new seats cost more than the original tickets", nil).
                with("original_total", oldTotal).with("new_total", newTotal)
        }
        if taken, err := r.Tickets.FindValidSeats(ctx, newShowtimeID, held.SeatIDs()); err != nil {
            return err
        } else if len(taken) > 0 {
            return conflictErr("some seats are already sold").with("seat_ids", taken)
        }

        if err := moveTickets(ctx, r, o.ID, model.TicketValid, model.TicketCancelled); err != nil {
            return err
        }
        tickets := make([]model.Ticket, 0, len(held.Seats))
        for _, seat := range held.Seats {
            typ := strings.ToUpper(strings.TrimSpace(seat.Type))
            if typ == "" {
                typ = "STANDARD"
            }
            tickets = append(tickets, model.Ticket{
                OrderID:    o.ID,
                ShowtimeID: newShowtimeID,
                SeatID:     seat.ID,
                SeatLabel:  seat.Label(),
                TicketType: typ,
                Price:      seat.Price,
                Status:     model.TicketValid,
            })
        }
        if err := r.Tickets.CreateBulk(ctx, tickets); err != nil {
            return err
        }
        o.ShowtimeID = newShowtimeID
        o.RescheduleCount++
        if err := r.Orders.Update(ctx, o); err != nil {
            return err
        }
        all, err := r.Tickets.ListByOrder(ctx, o.ID)
        if err != nil {
            return err
        }
        detail = OrderDetail{Order: *o, Tickets: all}
        return nil
    })
    if err != nil {
        return nil, wrapStore(err, "order")
    }

    valid := make([]model.Ticket, 0, len(detail.Tickets))
    for _, t := range detail.Tickets {
        if t.Status == model.TicketValid {
            valid = append(valid, t)
        }
    }
    s.log.Info("order rescheduled",
        zap.Uint64("order_id", id),
        zap.Uint64("showtime_id", newShowtimeID),
        zap.Int("reschedule_count", detail.Order.RescheduleCount),
    )
    s.deps.Dispatcher.confirmation(ctx, detail.Order, valid)
    return &detail, nil
}
