package billing_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-billing/internal/billing"
	"github.com/noah-isme/backend-billing/internal/common"
	"github.com/noah-isme/backend-billing/internal/events"
	"github.com/noah-isme/backend-billing/internal/lock"
	"github.com/noah-isme/backend-billing/internal/payment"
	"github.com/noah-isme/backend-billing/internal/pricing"
	"github.com/noah-isme/backend-billing/internal/stock"
)

type fakeProduct struct {
	stockID      string
	sellingPrice float64
	taxPercent   float64
	itemsPerBox  int
}

// fakeStore keeps bills and stock in memory. Reservations honour the same
// contract as the database: the decrement only happens when enough units
// remain, checked and applied under one lock.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]fakeProduct // productID -> product
	units    map[string]int        // stockID -> available loose-equivalent units
	bills    map[string]billing.Bill
	seq      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		products: map[string]fakeProduct{},
		units:    map[string]int{},
		bills:    map[string]billing.Bill{},
	}
}

func (f *fakeStore) addProduct(productID string, p fakeProduct, available int) {
	f.products[productID] = p
	f.units[p.stockID] = available
}

func (f *fakeStore) ResolveLines(ctx context.Context, tenantID string, reqs []billing.LineRequest) ([]pricing.LineInput, error) {
	inputs := make([]pricing.LineInput, 0, len(reqs))
	for _, req := range reqs {
		p, ok := f.products[req.ProductID]
		if !ok {
			return nil, stock.ErrNotFound
		}
		inputs = append(inputs, pricing.LineInput{
			StockID:       p.stockID,
			ProductID:     req.ProductID,
			WarehouseID:   req.WarehouseID,
			SellingPrice:  p.sellingPrice,
			TaxPercent:    p.taxPercent,
			QuantityBoxes: req.QuantityBoxes,
			QuantityLoose: req.QuantityLoose,
			ItemsPerBox:   p.itemsPerBox,
		})
	}
	return inputs, nil
}

func (f *fakeStore) CreateBill(ctx context.Context, tenantID string, draft billing.Draft) (billing.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	needed := map[string]int{}
	for _, line := range draft.Lines {
		needed[line.StockID] += line.TotalItems
	}
	for stockID, units := range needed {
		if f.units[stockID] < units {
			return billing.Bill{}, stock.ErrInsufficientStock
		}
	}
	for stockID, units := range needed {
		f.units[stockID] -= units
	}

	f.seq++
	bill := billing.Bill{
		ID:             fmt.Sprintf("bill-%d", f.seq),
		InvoiceNumber:  fmt.Sprintf("INV-20260830-%05d", f.seq),
		BillDate:       time.Now(),
		CustomerName:   draft.Customer.Name,
		CustomerPhone:  draft.Customer.Phone,
		TotalItems:     draft.Totals.TotalItems,
		TotalBeforeTax: draft.Totals.TotalBeforeTax,
		TotalTax:       draft.Totals.TotalTax,
		GrandTotal:     draft.Totals.GrandTotal,
		Payment:        draft.Payment,
		Collected:      draft.Summary.AmountCollected,
		Balance:        draft.Summary.BalanceAmount,
		PaymentStatus:  draft.Summary.Status,
		DeliveryStatus: billing.DeliveryNotDispatched,
	}
	if draft.DriverID != "" {
		driverID := draft.DriverID
		bill.DeliveryStatus = billing.DeliveryAssigned
		bill.DriverID = &driverID
	}
	f.bills[bill.ID] = bill
	return bill, nil
}

func (f *fakeStore) GetBill(ctx context.Context, tenantID, billID string) (billing.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	return bill, nil
}

func (f *fakeStore) ListBills(ctx context.Context, tenantID string, filter billing.ListFilter) ([]billing.Bill, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]billing.Bill, 0, len(f.bills))
	for _, b := range f.bills {
		out = append(out, b)
	}
	return out, len(out), nil
}

func (f *fakeStore) UpdatePayment(ctx context.Context, tenantID, billID string, split payment.Split, summary payment.Summary) (billing.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	bill.Payment = split
	bill.Collected = summary.AmountCollected
	bill.Balance = summary.BalanceAmount
	bill.PaymentStatus = summary.Status
	f.bills[billID] = bill
	return bill, nil
}

func (f *fakeStore) SetDelivery(ctx context.Context, tenantID, billID string, status billing.DeliveryStatus, driverID *string) (billing.Bill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bill, ok := f.bills[billID]
	if !ok {
		return billing.Bill{}, billing.ErrBillNotFound
	}
	bill.DeliveryStatus = status
	if driverID != nil {
		bill.DriverID = driverID
	}
	f.bills[billID] = bill
	return bill, nil
}

type memEventStore struct {
	mu     sync.Mutex
	topics []string
}

func (m *memEventStore) InsertDomainEvent(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) (events.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, topic)
	return events.Event{ID: "ev-1", TenantID: tenantID, Topic: topic, AggregateID: aggregateID, Payload: payload, OccurredAt: time.Now()}, nil
}

func (m *memEventStore) emitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.topics...)
}

func newTestService(t *testing.T, store billing.Store) (*billing.Service, *memEventStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	es := &memEventStore{}
	return &billing.Service{
		Store:   store,
		Locker:  lock.Locker{R: rdb, RetryBackoff: time.Millisecond},
		Bus:     &events.Bus{Store: es},
		Log:     zerolog.Nop(),
		LockTTL: time.Second,
	}, es
}

func appErrCode(t *testing.T, err error) (string, int) {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code, appErr.HTTPStatus
}

func TestCreateComputesInclusiveTaxTotals(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 118, taxPercent: 18, itemsPerBox: 12}, 500)
	store.addProduct("prod-b", fakeProduct{stockID: "stk-b", sellingPrice: 118, taxPercent: 18, itemsPerBox: 10}, 500)
	svc, es := newTestService(t, store)

	bill, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "Ravi Traders", Phone: "+919900112233"},
		Lines: []billing.LineRequest{
			{ProductID: "prod-a", WarehouseID: "wh-1", QuantityBoxes: 1, QuantityLoose: 1},
			{ProductID: "prod-b", WarehouseID: "wh-1", QuantityBoxes: 1},
		},
		Payment: payment.Split{Mode: payment.ModeCash, CashAmount: 2300},
	})
	require.NoError(t, err)

	require.Equal(t, 23, bill.TotalItems)
	require.InDelta(t, 2714, bill.GrandTotal, 1e-9)
	require.InDelta(t, 414, bill.TotalTax, 1e-9)
	require.InDelta(t, 2300, bill.TotalBeforeTax, 1e-9)

	require.InDelta(t, 2300, bill.Collected, 1e-9)
	require.InDelta(t, 414, bill.Balance, 1e-9)
	require.Equal(t, payment.StatusPartiallyPaid, bill.PaymentStatus)
	require.Equal(t, billing.DeliveryNotDispatched, bill.DeliveryStatus)
	require.Equal(t, []string{events.TopicBillCreated}, es.emitted())

	// Stock was decremented by the loose-equivalent quantity of each line.
	require.Equal(t, 500-13, store.units["stk-a"])
	require.Equal(t, 500-10, store.units["stk-b"])
}

func TestCreateFullyPaidEmitsPaidEvent(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 100, taxPercent: 0, itemsPerBox: 1}, 10)
	svc, es := newTestService(t, store)

	bill, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityLoose: 2}},
		Payment:  payment.Split{CashAmount: 200},
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatusFullyPaid, bill.PaymentStatus)
	require.Equal(t, []string{events.TopicBillCreated, events.TopicBillPaid}, es.emitted())
}

func TestCreateWithDriverStartsAssigned(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 100, taxPercent: 0, itemsPerBox: 1}, 10)
	svc, _ := newTestService(t, store)

	bill, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityLoose: 1}},
		Payment:  payment.Split{CashAmount: 100},
		DriverID: "driver-7",
	})
	require.NoError(t, err)
	require.Equal(t, billing.DeliveryAssigned, bill.DeliveryStatus)
	require.NotNil(t, bill.DriverID)
	require.Equal(t, "driver-7", *bill.DriverID)
}

func TestCreateRejectsEmptyAndInvalidInput(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())

	_, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
	})
	code, status := appErrCode(t, err)
	require.Equal(t, "VALIDATION_ERROR", code)
	require.Equal(t, http.StatusBadRequest, status)

	_, err = svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1"}},
	})
	code, _ = appErrCode(t, err)
	require.Equal(t, "VALIDATION_ERROR", code)
}

func TestCreateRejectsOverpayment(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 100, taxPercent: 0, itemsPerBox: 1}, 10)
	svc, es := newTestService(t, store)

	_, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityLoose: 1}},
		Payment:  payment.Split{CashAmount: 150},
	})
	code, status := appErrCode(t, err)
	require.Equal(t, "OVERPAYMENT", code)
	require.Equal(t, http.StatusBadRequest, status)

	// Nothing was persisted or reserved.
	require.Empty(t, es.emitted())
	require.Equal(t, 10, store.units["stk-a"])
}

func TestCreateInsufficientStockConflict(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 10, taxPercent: 0, itemsPerBox: 12}, 5)
	svc, _ := newTestService(t, store)

	_, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityBoxes: 1}},
		Payment:  payment.Split{CashAmount: 0},
	})
	code, status := appErrCode(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", code)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestConcurrentCreatesOnLastStockOnlyOneWins(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 10, taxPercent: 0, itemsPerBox: 12}, 12)
	svc, _ := newTestService(t, store)

	in := billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityBoxes: 1}},
		Payment:  payment.Split{CashAmount: 120},
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "tenant-1", "user-1", in)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, conflicted int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		code, _ := appErrCode(t, err)
		require.Equal(t, "INSUFFICIENT_STOCK", code)
		conflicted++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)
	require.Equal(t, 0, store.units["stk-a"])
}

func TestTopUpTransitionsToFullyPaid(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 100, taxPercent: 0, itemsPerBox: 1}, 10)
	svc, es := newTestService(t, store)

	bill, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityLoose: 10}},
		Payment:  payment.Split{CashAmount: 400},
	})
	require.NoError(t, err)
	require.Equal(t, payment.StatusPartiallyPaid, bill.PaymentStatus)

	updated, err := svc.TopUp(context.Background(), "tenant-1", bill.ID, payment.Split{UPIAmount: 600})
	require.NoError(t, err)
	require.Equal(t, payment.StatusFullyPaid, updated.PaymentStatus)
	require.Equal(t, payment.ModeSplit, updated.Payment.Mode)
	require.InDelta(t, 0, updated.Balance, 1e-9)
	require.Contains(t, es.emitted(), events.TopicBillPaid)

	// A further top-up would exceed the total.
	_, err = svc.TopUp(context.Background(), "tenant-1", bill.ID, payment.Split{CashAmount: 1})
	code, _ := appErrCode(t, err)
	require.Equal(t, "OVERPAYMENT", code)
}

func TestTopUpUnknownBill(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())
	_, err := svc.TopUp(context.Background(), "tenant-1", "missing", payment.Split{CashAmount: 1})
	code, status := appErrCode(t, err)
	require.Equal(t, "NOT_FOUND", code)
	require.Equal(t, http.StatusNotFound, status)
}

func TestDeliveryLifecycle(t *testing.T) {
	store := newFakeStore()
	store.addProduct("prod-a", fakeProduct{stockID: "stk-a", sellingPrice: 100, taxPercent: 0, itemsPerBox: 1}, 10)
	svc, es := newTestService(t, store)

	bill, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "prod-a", WarehouseID: "wh-1", QuantityLoose: 1}},
		Payment:  payment.Split{},
	})
	require.NoError(t, err)

	assigned, err := svc.AssignDriver(context.Background(), "tenant-1", bill.ID, "driver-1")
	require.NoError(t, err)
	require.Equal(t, billing.DeliveryAssigned, assigned.DeliveryStatus)
	require.NotNil(t, assigned.DriverID)
	require.Equal(t, "driver-1", *assigned.DriverID)

	delivered, err := svc.MarkDelivered(context.Background(), "tenant-1", bill.ID)
	require.NoError(t, err)
	require.Equal(t, billing.DeliveryDelivered, delivered.DeliveryStatus)
	// Delivery never touches payment state.
	require.Equal(t, payment.StatusPending, delivered.PaymentStatus)
	require.Contains(t, es.emitted(), events.TopicBillDelivered)

	_, err = svc.MarkDelivered(context.Background(), "tenant-1", bill.ID)
	code, status := appErrCode(t, err)
	require.Equal(t, "ALREADY_DELIVERED", code)
	require.Equal(t, http.StatusConflict, status)
}

func TestAssignDriverRequiresDriverID(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())
	_, err := svc.AssignDriver(context.Background(), "tenant-1", "bill-1", " ")
	code, _ := appErrCode(t, err)
	require.Equal(t, "VALIDATION_ERROR", code)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	svc, _ := newTestService(t, errorStore{})
	_, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "p", WarehouseID: "w", QuantityLoose: 1}},
	})
	require.ErrorIs(t, err, errBoom)
}

func TestCreateTimeoutCancelsSlowStore(t *testing.T) {
	svc, _ := newTestService(t, stalledStore{})
	svc.CreateTimeout = 20 * time.Millisecond
	_, err := svc.Create(context.Background(), "tenant-1", "user-1", billing.CreateInput{
		Customer: billing.CustomerInput{Name: "A", Phone: "1"},
		Lines:    []billing.LineRequest{{ProductID: "p", WarehouseID: "w", QuantityLoose: 1}},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// stalledStore blocks line resolution until the context expires.
type stalledStore struct {
	errorStore
}

func (stalledStore) ResolveLines(ctx context.Context, _ string, _ []billing.LineRequest) ([]pricing.LineInput, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var errBoom = errors.New("boom")

type errorStore struct{}

func (errorStore) ResolveLines(context.Context, string, []billing.LineRequest) ([]pricing.LineInput, error) {
	return nil, errBoom
}
func (errorStore) CreateBill(context.Context, string, billing.Draft) (billing.Bill, error) {
	return billing.Bill{}, errBoom
}
func (errorStore) GetBill(context.Context, string, string) (billing.Bill, error) {
	return billing.Bill{}, errBoom
}
func (errorStore) ListBills(context.Context, string, billing.ListFilter) ([]billing.Bill, int, error) {
	return nil, 0, errBoom
}
func (errorStore) UpdatePayment(context.Context, string, string, payment.Split, payment.Summary) (billing.Bill, error) {
	return billing.Bill{}, errBoom
}
func (errorStore) SetDelivery(context.Context, string, string, billing.DeliveryStatus, *string) (billing.Bill, error) {
	return billing.Bill{}, errBoom
}
