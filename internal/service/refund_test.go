package service

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
)

func paidAt160k(t *testing.T, f *fixture) (*OrderResult, *PaymentResult) {
    t.Helper()
    f.seats.hold(showtimeID, customerID, model.HeldSeats{
        Seats: []model.HeldSeat{
            {ID: 1, Price: 80000, RowLetter: "A", SeatNumber: 1},
            {ID: 2, Price: 80000, RowLetter: "A", SeatNumber: 2},
        },
        LockTTLSeconds: 900,
    })
    res, pay := f.paidOrder(t)
    require.Equal(t, int64(160000), pay.Payment.Amount)
    return res, pay
}

func TestCreateRefund_ExceedingPaymentIsConflict(t *testing.T) {
    f := newFixture(t)
    _, pay := paidAt160k(t, f)

    _, err := f.refunds.CreateRefund(context.Background(), pay.Payment.ID, customerID, 250000, "cannot attend")
    se := requireKind(t, err, KindConflict)
    assert.Equal(t, int64(160000), se.Details["refundable"])
    assert.Empty(t, f.snapshot().refunds)
}

func TestCreateRefund_Ceiling(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    _, pay := paidAt160k(t, f)

    first, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 100000, "one seat")
    require.NoError(t, err)
    assert.Equal(t, model.RefundPending, first.Status)

    _, err = f.refunds.CreateRefund(ctx, pay.Payment.ID, 0, 60000, "other seat")
    require.NoError(t, err)

    _, err = f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 1, "one more")
    requireKind(t, err, KindConflict)

    // a rejected refund no longer counts toward the ceiling
    _, err = f.refunds.RejectRefund(ctx, first.ID, "duplicate request")
    require.NoError(t, err)
    _, err = f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 100000, "one seat again")
    require.NoError(t, err)

    sum, err := f.store.Repos().Refunds.SumActiveByPayment(ctx, pay.Payment.ID)
    require.NoError(t, err)
    assert.LessOrEqual(t, sum, pay.Payment.Amount)
}

func TestCreateRefund_Validation(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    _, pay := paidAt160k(t, f)

    _, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 0, "x")
    requireKind(t, err, KindValidation)

    _, err = f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 1000, "  ")
    requireKind(t, err, KindValidation)

    _, err = f.refunds.CreateRefund(ctx, pay.Payment.ID, 8, 1000, "not mine")
    requireKind(t, err, KindForbidden)

    _, err = f.refunds.CreateRefund(ctx, 777777, customerID, 1000, "ghost")
    requireKind(t, err, KindNotFound)
}

func TestCreateRefund_RequiresCompletedPayment(t *testing.T) {
    f := newFixture(t)
    _, pay := createPending(t, f, CreateOrderRequest{})

    _, err := f.refunds.CreateRefund(context.Background(), pay.Payment.ID, customerID, 1000, "early")
    requireKind(t, err, KindConflict)
}

func TestApproveRefund_Cascades(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    res, pay := paidAt160k(t, f)

    ref, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 160000, "sick")
    require.NoError(t, err)

    approved, err := f.refunds.ApproveRefund(ctx, ref.ID)
    require.NoError(t, err)
    assert.Equal(t, model.RefundCompleted, approved.Status)
    require.NotNil(t, approved.RefundedAt)

    assert.Equal(t, model.PaymentRefunded, f.payment(pay.Payment.ID).Status)
    o := f.order(res.Order.ID)
    assert.Equal(t, model.OrderCancelled, o.Status)
    assert.Equal(t, model.PaymentRefunded, o.PaymentStatus)
    require.NotNil(t, o.CancellationReason)
    assert.Equal(t, "Refunded: sick", *o.CancellationReason)
    for _, tk := range f.ticketsOf(res.Order.ID) {
        assert.Equal(t, model.TicketCancelled, tk.Status)
    }

    _, err = f.refunds.ApproveRefund(ctx, ref.ID)
    requireKind(t, err, KindConflict)

    f.dispatcher.Wait()
    sent := f.notifier.all()
    last := sent[len(sent)-1]
    assert.Equal(t, "cancellation", last.kind)
    require.NotNil(t, last.refund)
    assert.Equal(t, int64(160000), *last.refund)
}

func TestApproveRefund_PaymentOutsideLifecycleRollsBack(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    res, pay := paidAt160k(t, f)

    ref, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 50000, "sick")
    require.NoError(t, err)
    f.store.view(func(d *memData) {
        p := d.payments[pay.Payment.ID]
        p.Status = model.PaymentFailed
        d.payments[pay.Payment.ID] = p
    })

    _, err = f.refunds.ApproveRefund(ctx, ref.ID)
    requireKind(t, err, KindConflict)

    got, err := f.refunds.GetRefund(ctx, ref.ID)
    require.NoError(t, err)
    assert.Equal(t, model.RefundPending, got.Status)
    assert.Nil(t, got.RefundedAt)
    assert.Equal(t, model.OrderConfirmed, f.order(res.Order.ID).Status)
}

func TestApproveRefund_SecondPartialKeepsPaymentRefunded(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    _, pay := paidAt160k(t, f)

    a, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 60000, "part one")
    require.NoError(t, err)
    b, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 50000, "part two")
    require.NoError(t, err)

    _, err = f.refunds.ApproveRefund(ctx, a.ID)
    require.NoError(t, err)
    _, err = f.refunds.ProcessRefund(ctx, b.ID)
    require.NoError(t, err)
    _, err = f.refunds.ApproveRefund(ctx, b.ID)
    require.NoError(t, err)

    assert.Equal(t, model.PaymentRefunded, f.payment(pay.Payment.ID).Status)
}

func TestProcessAndRejectRefund(t *testing.T) {
    f := newFixture(t)
    ctx := context.Background()
    res, pay := paidAt160k(t, f)

    ref, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 10000, "popcorn was cold")
    require.NoError(t, err)

    processing, err := f.refunds.ProcessRefund(ctx, ref.ID)
    require.NoError(t, err)
    assert.Equal(t, model.RefundProcessing, processing.Status)

    _, err = f.refunds.ProcessRefund(ctx, ref.ID)
    requireKind(t, err, KindConflict)

    _, err = f.refunds.RejectRefund(ctx, ref.ID, "too late")
    requireKind(t, err, KindConflict)

    other, err := f.refunds.CreateRefund(ctx, pay.Payment.ID, customerID, 10000, "seat broken")
    require.NoError(t, err)
    _, err = f.refunds.RejectRefund(ctx, other.ID, "")
    requireKind(t, err, KindValidation)

    rejected, err := f.refunds.RejectRefund(ctx, other.ID, "seat was fine")
    require.NoError(t, err)
    assert.Equal(t, model.RefundFailed, rejected.Status)
    assert.Equal(t, "seat broken | Rejected: seat was fine", rejected.Reason)

    assert.Equal(t, model.PaymentCompleted, f.payment(pay.Payment.ID).Status)
    assert.Equal(t, model.OrderConfirmed, f.order(res.Order.ID).Status)

    got, err := f.refunds.GetRefund(ctx, other.ID)
    require.NoError(t, err)
    assert.Equal(t, model.RefundFailed, got.Status)
}
