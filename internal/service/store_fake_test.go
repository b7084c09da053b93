package service

import (
    "context"
    "errors"
    "net/url"
    "sort"
    "strconv"
    "sync"
    "testing"
    "time"

    "github.com/shopspring/decimal"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/cinema-booking-payments/internal/model"
    "github.com/iliyamo/cinema-booking-payments/internal/payment/vnpay"
    "github.com/iliyamo/cinema-booking-payments/internal/repository"
    "github.com/iliyamo/cinema-booking-payments/internal/service/ports"
)

// memStore is an in-memory ports.Store.  Transactions are serialised by a
// single mutex and rolled back by restoring a snapshot.
type memStore struct {
    mu   sync.Mutex
    data *memData
}

type memData struct {
    seq         uint64
    orders      map[uint64]model.Order
    lines       []model.OrderConcession
    tickets     map[uint64]model.Ticket
    payments    map[uint64]model.Payment
    refunds     map[uint64]model.Refund
    promotions  map[string]model.Promotion
    accounts    map[uint64]model.LoyaltyAccount
    loyaltyLog  []model.LoyaltyTransaction
    concessions map[uint64]model.Concession
}

func newMemStore() *memStore {
    return &memStore{data: &memData{
        orders:      map[uint64]model.Order{},
        tickets:     map[uint64]model.Ticket{},
        payments:    map[uint64]model.Payment{},
        refunds:     map[uint64]model.Refund{},
        promotions:  map[string]model.Promotion{},
        accounts:    map[uint64]model.LoyaltyAccount{},
        concessions: map[uint64]model.Concession{},
    }}
}

func (d *memData) clone() *memData {
    c := &memData{
        seq:         d.seq,
        orders:      make(map[uint64]model.Order, len(d.orders)),
        lines:       append([]model.OrderConcession(nil), d.lines...),
        tickets:     make(map[uint64]model.Ticket, len(d.tickets)),
        payments:    make(map[uint64]model.Payment, len(d.payments)),
        refunds:     make(map[uint64]model.Refund, len(d.refunds)),
        promotions:  make(map[string]model.Promotion, len(d.promotions)),
        accounts:    make(map[uint64]model.LoyaltyAccount, len(d.accounts)),
        loyaltyLog:  append([]model.LoyaltyTransaction(nil), d.loyaltyLog...),
        concessions: d.concessions,
    }
    for k, v := range d.orders {
        c.orders[k] = v
    }
    for k, v := range d.tickets {
        c.tickets[k] = v
    }
    for k, v := range d.payments {
        c.payments[k] = v
    }
    for k, v := range d.refunds {
        c.refunds[k] = v
    }
    for k, v := range d.promotions {
        c.promotions[k] = v
    }
    for k, v := range d.accounts {
        c.accounts[k] = v
    }
    return c
}

func (d *memData) next() uint64 {
    d.seq++
    return d.seq
}

func (s *memStore) Repos() ports.Repos { return s.repos(false) }

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r ports.Repos) error) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    snapshot := s.data.clone()
    if err := fn(ctx, s.repos(true)); err != nil {
        s.data = snapshot
        return err
    }
    return nil
}

func (s *memStore) repos(inTx bool) ports.Repos {
    b := memBase{s: s, inTx: inTx}
    return ports.Repos{
        Orders:      memOrders{b},
        Tickets:     memTickets{b},
        Payments:    memPayments{b},
        Refunds:     memRefunds{b},
        Promotions:  memPromotions{b},
        Loyalty:     memLoyalty{b},
        Concessions: memConcessions{b},
    }
}

// view runs f under the store lock unless already inside a transaction.
func (s *memStore) view(f func(d *memData)) {
    s.mu.Lock()
    defer s.mu.Unlock()
    f(s.data)
}

type memBase struct {
    s    *memStore
    inTx bool
}

func (b memBase) do(f func(d *memData) error) error {
    if b.inTx {
        return f(b.s.data)
    }
    b.s.mu.Lock()
    defer b.s.mu.Unlock()
    return f(b.s.data)
}

type memOrders struct{ memBase }

func (m memOrders) Create(_ context.Context, o *model.Order) error {
    return m.do(func(d *memData) error {
        if o.Status == model.OrderPending {
            for _, x := range d.orders {
                if x.Status == model.OrderPending && x.UserID == o.UserID && x.ShowtimeID == o.ShowtimeID {
                    return repository.ErrConflict
                }
            }
        }
        o.ID = d.next()
        o.CreatedAt = time.Now().UTC()
        o.UpdatedAt = o.CreatedAt
        d.orders[o.ID] = *o
        return nil
    })
}

func (m memOrders) get(id uint64) (*model.Order, error) {
    var out *model.Order
    err := m.do(func(d *memData) error {
        o, ok := d.orders[id]
        if !ok {
            return repository.ErrNotFound
        }
        out = &o
        return nil
    })
    return out, err
}

func (m memOrders) GetByID(_ context.Context, id uint64) (*model.Order, error) { return m.get(id) }
func (m memOrders) GetByIDForUpdate(_ context.Context, id uint64) (*model.Order, error) {
    return m.get(id)
}

func (m memOrders) FindPendingByUserAndShowtime(_ context.Context, userID, showtimeID uint64) (*model.Order, error) {
    var out *model.Order
    err := m.do(func(d *memData) error {
        for _, o := range d.orders {
            if o.Status == model.OrderPending && o.UserID == userID && o.ShowtimeID == showtimeID {
                o := o
                out = &o
                return nil
            }
        }
        return repository.ErrNotFound
    })
    return out, err
}

func (m memOrders) ListByUser(_ context.Context, userID uint64, limit, offset int) ([]model.Order, error) {
    var out []model.Order
    err := m.do(func(d *memData) error {
        for _, o := range d.orders {
            if o.UserID == userID {
                out = append(out, o)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
    if offset >= len(out) {
        return []model.Order{}, err
    }
    out = out[offset:]
    if len(out) > limit {
        out = out[:limit]
    }
    return out, err
}

func (m memOrders) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]model.Order, error) {
    var out []model.Order
    err := m.do(func(d *memData) error {
        for _, o := range d.orders {
            if o.Status == model.OrderPending && o.HoldExpired(now) {
                out = append(out, o)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    if len(out) > limit {
        out = out[:limit]
    }
    return out, err
}

func (m memOrders) Update(_ context.Context, o *model.Order) error {
    return m.do(func(d *memData) error {
        if _, ok := d.orders[o.ID]; !ok {
            return repository.ErrNotFound
        }
        o.UpdatedAt = time.Now().UTC()
        d.orders[o.ID] = *o
        return nil
    })
}

func (m memOrders) AddConcessions(_ context.Context, lines []model.OrderConcession) error {
    return m.do(func(d *memData) error {
        for i := range lines {
            lines[i].ID = d.next()
            d.lines = append(d.lines, lines[i])
        }
        return nil
    })
}

func (m memOrders) ListConcessions(_ context.Context, orderID uint64) ([]model.OrderConcession, error) {
    out := []model.OrderConcession{}
    err := m.do(func(d *memData) error {
        for _, l := range d.lines {
            if l.OrderID == orderID {
                out = append(out, l)
            }
        }
        return nil
    })
    return out, err
}

type memTickets struct{ memBase }

func (m memTickets) CreateBulk(_ context.Context, tickets []model.Ticket) error {
    return m.do(func(d *memData) error {
        for i := range tickets {
            tickets[i].ID = d.next()
            d.tickets[tickets[i].ID] = tickets[i]
        }
        return nil
    })
}

func (m memTickets) ListByOrder(_ context.Context, orderID uint64) ([]model.Ticket, error) {
    out := []model.Ticket{}
    err := m.do(func(d *memData) error {
        for _, t := range d.tickets {
            if t.OrderID == orderID {
                out = append(out, t)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, err
}

func (m memTickets) FindValidSeats(_ context.Context, showtimeID uint64, seatIDs []uint64) ([]uint64, error) {
    want := make(map[uint64]bool, len(seatIDs))
    for _, id := range seatIDs {
        want[id] = true
    }
    var out []uint64
    err := m.do(func(d *memData) error {
        for _, t := range d.tickets {
            if t.ShowtimeID == showtimeID && t.Status == model.TicketValid && want[t.SeatID] {
                out = append(out, t.SeatID)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out, err
}

func (m memTickets) UpdateStatusByOrder(_ context.Context, orderID uint64, from, to model.TicketStatus) (int64, error) {
    var n int64
    err := m.do(func(d *memData) error {
        for id, t := range d.tickets {
            if t.OrderID == orderID && t.Status == from {
                t.Status = to
                d.tickets[id] = t
                n++
            }
        }
        return nil
    })
    return n, err
}

type memPayments struct{ memBase }

func (m memPayments) Create(_ context.Context, p *model.Payment) error {
    return m.do(func(d *memData) error {
        for _, x := range d.payments {
            if x.TxnRef == p.TxnRef {
                return repository.ErrConflict
            }
        }
        p.ID = d.next()
        d.payments[p.ID] = *p
        return nil
    })
}

func (m memPayments) find(match func(p model.Payment) bool) (*model.Payment, error) {
    var out *model.Payment
    err := m.do(func(d *memData) error {
        for _, p := range d.payments {
            if match(p) {
                p := p
                out = &p
                return nil
            }
        }
        return repository.ErrNotFound
    })
    return out, err
}

func (m memPayments) GetByID(_ context.Context, id uint64) (*model.Payment, error) {
    return m.find(func(p model.Payment) bool { return p.ID == id })
}

func (m memPayments) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Payment, error) {
    return m.GetByID(ctx, id)
}

func (m memPayments) GetByTxnRef(_ context.Context, ref string) (*model.Payment, error) {
    return m.find(func(p model.Payment) bool { return p.TxnRef == ref })
}

func (m memPayments) GetByTxnRefForUpdate(ctx context.Context, ref string) (*model.Payment, error) {
    return m.GetByTxnRef(ctx, ref)
}

func (m memPayments) FindPendingByOrder(_ context.Context, orderID uint64) (*model.Payment, error) {
    return m.find(func(p model.Payment) bool { return p.OrderID == orderID && p.Status == model.PaymentPending })
}

func (m memPayments) ListByOrder(_ context.Context, orderID uint64) ([]model.Payment, error) {
    out := []model.Payment{}
    err := m.do(func(d *memData) error {
        for _, p := range d.payments {
            if p.OrderID == orderID {
                out = append(out, p)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, err
}

func (m memPayments) Update(_ context.Context, p *model.Payment) error {
    return m.do(func(d *memData) error {
        if _, ok := d.payments[p.ID]; !ok {
            return repository.ErrNotFound
        }
        d.payments[p.ID] = *p
        return nil
    })
}

type memRefunds struct{ memBase }

func (m memRefunds) Create(_ context.Context, r *model.Refund) error {
    return m.do(func(d *memData) error {
        r.ID = d.next()
        d.refunds[r.ID] = *r
        return nil
    })
}

func (m memRefunds) GetByID(_ context.Context, id uint64) (*model.Refund, error) {
    var out *model.Refund
    err := m.do(func(d *memData) error {
        r, ok := d.refunds[id]
        if !ok {
            return repository.ErrNotFound
        }
        out = &r
        return nil
    })
    return out, err
}

func (m memRefunds) GetByIDForUpdate(ctx context.Context, id uint64) (*model.Refund, error) {
    return m.GetByID(ctx, id)
}

func (m memRefunds) SumActiveByPayment(_ context.Context, paymentID uint64) (int64, error) {
    var sum int64
    err := m.do(func(d *memData) error {
        for _, r := range d.refunds {
            if r.PaymentID == paymentID && r.Status.CountsTowardCeiling() {
                sum += r.Amount
            }
        }
        return nil
    })
    return sum, err
}

func (m memRefunds) ListByPayment(_ context.Context, paymentID uint64) ([]model.Refund, error) {
    out := []model.Refund{}
    err := m.do(func(d *memData) error {
        for _, r := range d.refunds {
            if r.PaymentID == paymentID {
                out = append(out, r)
            }
        }
        return nil
    })
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, err
}

func (m memRefunds) Update(_ context.Context, r *model.Refund) error {
    return m.do(func(d *memData) error {
        if _, ok := d.refunds[r.ID]; !ok {
            return repository.ErrNotFound
        }
        d.refunds[r.ID] = *r
        return nil
    })
}

type memPromotions struct{ memBase }

func (m memPromotions) GetByCode(_ context.Context, code string) (*model.Promotion, error) {
    var out *model.Promotion
    err := m.do(func(d *memData) error {
        p, ok := d.promotions[code]
        if !ok {
            return repository.ErrNotFound
        }
        out = &p
        return nil
    })
    return out, err
}

func (m memPromotions) IncrementUsage(_ context.Context, code string) error {
    return m.do(func(d *memData) error {
        p, ok := d.promotions[code]
        if !ok {
            return repository.ErrNotFound
        }
        p.CurrentUsage++
        d.promotions[code] = p
        return nil
    })
}

type memLoyalty struct{ memBase }

func (m memLoyalty) GetAccountByUser(_ context.Context, userID uint64) (*model.LoyaltyAccount, error) {
    var out *model.LoyaltyAccount
    err := m.do(func(d *memData) error {
        for _, a := range d.accounts {
            if a.UserID == userID {
                a := a
                out = &a
                return nil
            }
        }
        return repository.ErrNotFound
    })
    return out, err
}

func (m memLoyalty) GetAccountByUserForUpdate(ctx context.Context, userID uint64) (*model.LoyaltyAccount, error) {
    return m.GetAccountByUser(ctx, userID)
}

func (m memLoyalty) AdjustPoints(_ context.Context, accountID uint64, delta int64) error {
    return m.do(func(d *memData) error {
        a, ok := d.accounts[accountID]
        if !ok {
            return repository.ErrNotFound
        }
        if a.CurrentPoints+delta < 0 {
            return repository.ErrConflict
        }
        a.CurrentPoints += delta
        d.accounts[accountID] = a
        return nil
    })
}

func (m memLoyalty) AddTransaction(_ context.Context, t *model.LoyaltyTransaction) error {
    return m.do(func(d *memData) error {
        t.ID = d.next()
        d.loyaltyLog = append(d.loyaltyLog, *t)
        return nil
    })
}

type memConcessions struct{ memBase }

func (m memConcessions) GetByIDs(_ context.Context, ids []uint64) (map[uint64]model.Concession, error) {
    out := make(map[uint64]model.Concession, len(ids))
    err := m.do(func(d *memData) error {
        for _, id := range ids {
            if c, ok := d.concessions[id]; ok {
                out[id] = c
            }
        }
        return nil
    })
    return out, err
}

// --- collaborators ---

type fakeSeatHolds struct {
    mu        sync.Mutex
    holds     map[[2]uint64]model.HeldSeats
    showtimes map[uint64]model.ShowtimeDetails
    err       error
}

func (f *fakeSeatHolds) hold(showtimeID, userID uint64, h model.HeldSeats) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.holds[[2]uint64{showtimeID, userID}] = h
}

func (f *fakeSeatHolds) GetHeldSeatsWithPricing(_ context.Context, showtimeID, userID uint64) (model.HeldSeats, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.err != nil {
        return model.HeldSeats{}, f.err
    }
    return f.holds[[2]uint64{showtimeID, userID}], nil
}

func (f *fakeSeatHolds) GetShowtimeDetails(_ context.Context, showtimeID uint64) (*model.ShowtimeDetails, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.err != nil {
        return nil, f.err
    }
    st, ok := f.showtimes[showtimeID]
    if !ok {
        return nil, repository.ErrNotFound
    }
    return &st, nil
}

type fakeUsers struct {
    detail *model.UserDetail
    err    error
}

func (f *fakeUsers) GetUserDetail(context.Context, uint64) (*model.UserDetail, error) {
    return f.detail, f.err
}

type sentNotification struct {
    kind    string
    order   model.Order
    tickets []model.Ticket
    refund  *int64
}

type fakeNotifier struct {
    mu    sync.Mutex
    sent  []sentNotification
    err   error
    panic any // when set, each send records itself and then panics with it
}

func (f *fakeNotifier) SendBookingConfirmation(_ context.Context, o *model.Order, tickets []model.Ticket) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, sentNotification{kind: "confirmation", order: *o, tickets: tickets})
    if f.panic != nil {
        panic(f.panic)
    }
    return f.err
}

func (f *fakeNotifier) SendBookingCancellation(_ context.Context, o *model.Order, refund *int64) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.sent = append(f.sent, sentNotification{kind: "cancellation", order: *o, refund: refund})
    if f.panic != nil {
        panic(f.panic)
    }
    return f.err
}

func (f *fakeNotifier) all() []sentNotification {
    f.mu.Lock()
    defer f.mu.Unlock()
    return append([]sentNotification(nil), f.sent...)
}

// --- fixture ---

const (
    customerID = uint64(7)
    showtimeID = uint64(10)
    popcornID  = uint64(501)
)

var errBroker = errors.New("broker unavailable")

type fixture struct {
    store      *memStore
    seats      *fakeSeatHolds
    users      *fakeUsers
    notifier   *fakeNotifier
    dispatcher *Dispatcher
    gateway    *vnpay.Gateway
    now        time.Time
    booking    *BookingService
    payments   *PaymentService
    refunds    *RefundService
}

func newFixture(t *testing.T) *fixture {
    t.Helper()
    f := &fixture{
        store:    newMemStore(),
        users:    &fakeUsers{detail: &model.UserDetail{Email: "an@example.com", FullName: "Nguyen Van An", Phone: "0901000000"}},
        notifier: &fakeNotifier{},
        now:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
    }
    f.seats = &fakeSeatHolds{
        holds: map[[2]uint64]model.HeldSeats{},
        showtimes: map[uint64]model.ShowtimeDetails{
            showtimeID: {ShowtimeID: showtimeID, MovieTitle: "Dune", StartTime: f.now.Add(3 * time.Hour)},
            11:         {ShowtimeID: 11, MovieTitle: "Dune", StartTime: f.now.Add(27 * time.Hour)},
        },
    }
    f.seats.hold(showtimeID, customerID, model.HeldSeats{
        Seats: []model.HeldSeat{
            {ID: 1, Price: 100000, Type: "standard", RowLetter: "A", SeatNumber: 1},
            {ID: 2, Price: 100000, Type: "standard", RowLetter: "A", SeatNumber: 2},
        },
        LockTTLSeconds: 900,
    })

    d := f.store.data
    d.promotions["WELCOME10"] = model.Promotion{
        ID: 1, Code: "WELCOME10", Type: model.PromotionPercentage, Value: decimal.NewFromInt(10),
        MaxDiscount: 15000, StartsAt: f.now.Add(-24 * time.Hour), EndsAt: f.now.Add(24 * time.Hour), IsActive: true,
    }
    d.accounts[900] = model.LoyaltyAccount{ID: 900, UserID: customerID, CurrentPoints: 250}
    d.concessions[popcornID] = model.Concession{ID: popcornID, Name: "Popcorn", Price: 45000, Available: true}
    d.seq = 1000

    gw, err := vnpay.New(vnpay.Config{
        TmnCode:    "CINEMA01",
        HashSecret: "SECRETKEY",
        PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
        ReturnURL:  "https://cinema.example/payments/return",
    })
    require.NoError(t, err)
    f.gateway = gw

    f.dispatcher = NewDispatcher(f.notifier, f.users, nil, zap.NewNop())
    deps := Deps{
        Store:      f.store,
        SeatHolds:  f.seats,
        Users:      f.users,
        Dispatcher: f.dispatcher,
        Logger:     zap.NewNop(),
        Clock:      func() time.Time { return f.now },
    }
    f.booking, err = NewBookingService(deps, BookingOptions{MaxReschedules: 1})
    require.NoError(t, err)
    f.payments, err = NewPaymentService(deps, gw, PaymentOptions{ZeroAmountThreshold: 1000})
    require.NoError(t, err)
    f.refunds, err = NewRefundService(deps)
    require.NoError(t, err)
    return f
}

func (f *fixture) order(id uint64) model.Order {
    var o model.Order
    f.store.view(func(d *memData) { o = d.orders[id] })
    return o
}

func (f *fixture) payment(id uint64) model.Payment {
    var p model.Payment
    f.store.view(func(d *memData) { p = d.payments[id] })
    return p
}

func (f *fixture) ticketsOf(orderID uint64) []model.Ticket {
    ts, _ := f.store.Repos().Tickets.ListByOrder(context.Background(), orderID)
    return ts
}

func (f *fixture) promotionUsage(code string) int {
    var n int
    f.store.view(func(d *memData) { n = d.promotions[code].CurrentUsage })
    return n
}

func (f *fixture) points() int64 {
    var n int64
    f.store.view(func(d *memData) { n = d.accounts[900].CurrentPoints })
    return n
}

func (f *fixture) snapshot() *memData {
    var c *memData
    f.store.view(func(d *memData) { c = d.clone() })
    return c
}

// callback builds a signed gateway notification for p.
func (f *fixture) callback(p *model.Payment, amount int64, code string) url.Values {
    v := url.Values{}
    v.Set("vnp_TmnCode", "CINEMA01")
    v.Set("vnp_TxnRef", p.TxnRef)
    v.Set("vnp_Amount", strconv.FormatInt(amount*100, 10))
    v.Set("vnp_ResponseCode", code)
    v.Set("vnp_TransactionStatus", code)
    v.Set("vnp_TransactionNo", "14012345")
    v.Set("vnp_BankCode", "NCB")
    v.Set("vnp_OrderInfo", "Thanh toan don hang")
    v.Set("vnp_PayDate", "20260501121000")
    v.Set(vnpay.ParamSecureHash, f.gateway.Sign(v))
    return v
}

// paidOrder creates an order for the default hold, starts a gateway
// payment and confirms it through the webhook.
func (f *fixture) paidOrder(t *testing.T) (*OrderResult, *PaymentResult) {
    t.Helper()
    ctx := context.Background()
    res, err := f.booking.CreateOrder(ctx, customerID, CreateOrderRequest{ShowtimeID: showtimeID})
    require.NoError(t, err)
    pay, err := f.payments.CreatePayment(ctx, res.Order.ID, customerID, "", "10.0.0.1")
    require.NoError(t, err)
    ack := f.payments.HandlePaymentWebhook(ctx, f.callback(&pay.Payment, pay.Payment.Amount, "00"))
    require.Equal(t, vnpay.AckConfirmSuccess, ack.RspCode)
    f.dispatcher.Wait()
    return res, pay
}
