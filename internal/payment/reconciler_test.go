package payment

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"coursepay/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	orders    map[int64]*models.Order
	err       error
	purchases int
	refunds   int
	dumps     int
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	s := &fakeStore{orders: make(map[int64]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) WithLockedOrder(ctx context.Context, orderID int64, fn func(tx OrderTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	work := *order
	if err := fn(&fakeTx{store: s, order: &work}); err != nil {
		return err
	}
	*order = work
	return nil
}

type fakeTx struct {
	store *fakeStore
	order *models.Order
}

func (t *fakeTx) Order() *models.Order { return t.order }

func (t *fakeTx) MarkPurchased(dump string) error {
	t.store.purchases++
	t.order.Status = models.OrderStatusPurchased
	t.order.ProcessorReplyDump = dump
	return nil
}

func (t *fakeTx) MarkRefunded(dump string) error {
	t.store.refunds++
	t.order.Status = models.OrderStatusRefunded
	t.order.ProcessorReplyDump = dump
	return nil
}

func (t *fakeTx) SaveReplyDump(dump string) error {
	t.store.dumps++
	t.order.ProcessorReplyDump = dump
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (a *fakeAudit) Record(ctx context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return a.err
}

type fakeReporter struct {
	kinds []RejectKind
}

func (r *fakeReporter) ReportRejection(ctx context.Context, rejected *RejectedError) {
	r.kinds = append(r.kinds, rejected.Kind)
}

type reconcilerFixture struct {
	proc     *Processor
	store    *fakeStore
	audit    *fakeAudit
	reporter *fakeReporter
	logs     *observer.ObservedLogs
	rec      *Reconciler
}

func newReconcilerFixture(t *testing.T, orders ...*models.Order) *reconcilerFixture {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	f := &reconcilerFixture{
		proc:     newTestProcessor(t),
		store:    newFakeStore(orders...),
		audit:    &fakeAudit{},
		reporter: &fakeReporter{},
		logs:     logs,
	}
	f.rec = NewReconciler(f.proc, f.store, f.audit, zap.New(core)).WithReporter(f.reporter)
	return f
}

func (f *reconcilerFixture) handle(t *testing.T, fields map[string]string) (*Outcome, error) {
	t.Helper()
	form := encode(t, f.proc, fields)
	return f.rec.Handle(context.Background(), form, form.Encode())
}

func (f *reconcilerFixture) handleForm(form url.Values) (*Outcome, error) {
	return f.rec.Handle(context.Background(), form, form.Encode())
}

func payingOrder() *models.Order {
	return &models.Order{ID: 42, Currency: "JPY", TotalCost: 1000, TotalTax: 80, Status: models.OrderStatusPaying}
}

func requireRejected(t *testing.T, err error, kind RejectKind) *RejectedError {
	t.Helper()
	rejected, ok := AsRejected(err)
	require.True(t, ok, "want rejection, got %v", err)
	assert.Equal(t, kind, rejected.Kind)
	return rejected
}

func TestReconciler_CardCapture(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())

	out, err := f.handle(t, cardFields("SHOP-42", JobCapture, StatusCapture))
	require.NoError(t, err)
	assert.Equal(t, DispositionCapture, out.Disposition)
	assert.Equal(t, int64(42), out.OrderID)
	assert.Equal(t, MethodCard, out.Method)
	assert.False(t, out.AlreadyPurchased)

	order := f.store.orders[42]
	assert.Equal(t, models.OrderStatusPurchased, order.Status)
	assert.NotEmpty(t, order.ProcessorReplyDump)
	assert.Equal(t, 1, f.store.purchases)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Equal(t, DispositionCapture, entry.Disposition)
	assert.Zero(t, entry.RejectKind)
	assert.Equal(t, int64(42), entry.OrderID)
	assert.Equal(t, "SHOP-42", entry.Fields[KeyOrderID])

	accepted := f.logs.FilterMessage("Payment callback accepted").All()
	require.Len(t, accepted, 1)
	assert.Equal(t, zapcore.InfoLevel, accepted[0].Level)
	assert.Equal(t, "capture", accepted[0].ContextMap()["disposition"])
	assert.Empty(t, f.reporter.kinds)
}

func TestReconciler_DuplicateCaptureIsIdempotent(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	fields := cardFields("SHOP-42", JobCapture, StatusCapture)

	_, err := f.handle(t, fields)
	require.NoError(t, err)

	out, err := f.handle(t, fields)
	require.NoError(t, err)
	assert.True(t, out.AlreadyPurchased)
	assert.Equal(t, 1, f.store.purchases)
	assert.Equal(t, 1, f.store.dumps)
	assert.Len(t, f.audit.entries, 2)
}

func TestReconciler_CarrierCaptureAndCancel(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())

	out, err := f.handle(t, carrierFields("SHOP-42", JobCapture, StatusReqSuccess))
	require.NoError(t, err)
	assert.Equal(t, DispositionIgnore, out.Disposition)
	assert.Equal(t, models.OrderStatusPaying, f.store.orders[42].Status)
	assert.Equal(t, 1, f.store.dumps)

	out, err = f.handle(t, carrierFields("SHOP-42", JobCapture, StatusCapture))
	require.NoError(t, err)
	assert.Equal(t, DispositionCapture, out.Disposition)
	assert.Equal(t, MethodCarrierBilling, out.Method)
	assert.Equal(t, models.OrderStatusPurchased, f.store.orders[42].Status)

	out, err = f.handle(t, carrierFields("SHOP-42", JobCancel, StatusCancel))
	require.NoError(t, err)
	assert.Equal(t, DispositionCancel, out.Disposition)
	assert.Equal(t, models.OrderStatusRefunded, f.store.orders[42].Status)
	assert.Equal(t, 1, f.store.refunds)
}

func TestReconciler_CardRefund(t *testing.T) {
	for _, job := range []string{JobVoid, JobReturn, JobReturnX} {
		t.Run(job, func(t *testing.T) {
			order := payingOrder()
			order.Status = models.OrderStatusPurchased
			f := newReconcilerFixture(t, order)

			out, err := f.handle(t, cardFields("SHOP-42", job, job))
			require.NoError(t, err)
			assert.Equal(t, DispositionCancel, out.Disposition)
			assert.Equal(t, models.OrderStatusRefunded, f.store.orders[42].Status)
		})
	}
}

func TestReconciler_ProcessorError(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	fields := cardFields("SHOP-42", JobCapture, StatusCapture)
	fields[KeyErrorCode] = "E101"
	fields[KeyErrorInfo] = "card declined"

	out, err := f.handle(t, fields)
	assert.Nil(t, out)
	requireRejected(t, err, RejectProcessorError)
	assert.ErrorIs(t, err, ErrProcessorError)
	assert.Contains(t, err.Error(), "E101")

	assert.Equal(t, models.OrderStatusPaying, f.store.orders[42].Status)
	assert.Zero(t, f.store.dumps)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, RejectProcessorError, f.audit.entries[0].RejectKind)
	assert.Zero(t, f.audit.entries[0].OrderID)

	rejected := f.logs.FilterMessage("Payment callback rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.WarnLevel, rejected[0].Level)
	assert.Equal(t, "SHOP-42", rejected[0].ContextMap()["order_ref"])
	assert.Equal(t, []RejectKind{RejectProcessorError}, f.reporter.kinds)
}

func TestReconciler_ForgedSignature(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	form := encode(t, f.proc, cardFields("SHOP-42", JobCapture, StatusCapture))
	form.Set("p014", "tx-forged")

	_, err := f.handleForm(form)
	requireRejected(t, err, RejectSignatureInvalid)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	assert.Equal(t, models.OrderStatusPaying, f.store.orders[42].Status)
	assert.Zero(t, f.store.dumps)

	rejected := f.logs.FilterMessage("Payment callback rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, zapcore.ErrorLevel, rejected[0].Level)
	assert.Equal(t, "signature_invalid", rejected[0].ContextMap()["reject_kind"])
}

func TestReconciler_DataInvalid(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		value  string
		tamper bool
	}{
		{"UnsupportedPaymentType", "p018", "5", true},
		{"ForeignPrefix", KeyOrderID, "OTHER-42", false},
		{"MalformedOrderID", KeyOrderID, "SHOP-4x", false},
		{"NonNumericAmount", KeyAmount, "ten", false},
		{"SignedAmount", KeyAmount, "+1000", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t, payingOrder())
			fields := cardFields("SHOP-42", JobCapture, StatusCapture)
			if !tt.tamper {
				fields[tt.field] = tt.value
			}
			form := encode(t, f.proc, fields)
			if tt.tamper {
				form.Set(tt.field, tt.value)
			}

			_, err := f.handleForm(form)
			requireRejected(t, err, RejectDataInvalid)
			assert.ErrorIs(t, err, ErrDataInvalid)
			assert.Equal(t, models.OrderStatusPaying, f.store.orders[42].Status)
			assert.Len(t, f.audit.entries, 1)
		})
	}
}

func TestReconciler_UnknownOrder(t *testing.T) {
	f := newReconcilerFixture(t)

	_, err := f.handle(t, cardFields("SHOP-7", JobCapture, StatusCapture))
	rejected := requireRejected(t, err, RejectUnknownOrder)
	assert.Equal(t, int64(7), rejected.OrderID)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, int64(7), f.audit.entries[0].OrderID)
}

func TestReconciler_UnknownState(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())

	_, err := f.handle(t, cardFields("SHOP-42", JobCapture, StatusReqSuccess))
	requireRejected(t, err, RejectUnknownState)

	order := f.store.orders[42]
	assert.Equal(t, models.OrderStatusPaying, order.Status)
	assert.NotEmpty(t, order.ProcessorReplyDump)
	assert.Equal(t, 1, f.store.dumps)
}

func TestReconciler_AmountMismatch(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"Amount", KeyAmount, "999"},
		{"Tax", KeyTax, "0"},
		{"Currency", KeyCurrency, "usd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReconcilerFixture(t, payingOrder())
			fields := cardFields("SHOP-42", JobCapture, StatusCapture)
			fields[tt.key] = tt.value

			_, err := f.handle(t, fields)
			rejected := requireRejected(t, err, RejectAmountMismatch)
			assert.Equal(t, int64(42), rejected.OrderID)

			order := f.store.orders[42]
			assert.Equal(t, models.OrderStatusPaying, order.Status)
			assert.NotEmpty(t, order.ProcessorReplyDump)
			assert.Zero(t, f.store.purchases)

			logged := f.logs.FilterMessage("Payment callback rejected").All()
			require.Len(t, logged, 1)
			assert.Equal(t, zapcore.ErrorLevel, logged[0].Level)
			assert.Equal(t, int64(42), logged[0].ContextMap()["order_id"])
		})
	}
}

func TestReconciler_CurrencyCaseInsensitive(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())

	_, err := f.handle(t, cardFields("SHOP-42", JobCapture, StatusCapture))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPurchased, f.store.orders[42].Status)
}

func TestReconciler_InfrastructureError(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	f.store.err = errors.New("connection refused")

	out, err := f.handle(t, cardFields("SHOP-42", JobCapture, StatusCapture))
	assert.Nil(t, out)
	require.Error(t, err)
	_, rejected := AsRejected(err)
	assert.False(t, rejected)

	assert.Empty(t, f.audit.entries)
	assert.Empty(t, f.reporter.kinds)
	failed := f.logs.FilterMessage("Payment callback failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
}

func TestReconciler_AuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	f.audit.err = errors.New("disk full")

	out, err := f.handle(t, cardFields("SHOP-42", JobCapture, StatusCapture))
	require.NoError(t, err)
	assert.Equal(t, DispositionCapture, out.Disposition)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to record callback audit entry").Len())
}

func TestReconciler_ConcurrentCapturesPurchaseOnce(t *testing.T) {
	f := newReconcilerFixture(t, payingOrder())
	form := encode(t, f.proc, cardFields("SHOP-42", JobCapture, StatusCapture))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.rec.Handle(context.Background(), form, form.Encode())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.purchases)
	assert.Equal(t, 7, f.store.dumps)
}
