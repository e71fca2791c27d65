package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"coursepay/internal/models"
)

// Callback acknowledgement tokens returned to the processor.
const (
	AckOK = "0"
	AckNG = "1"
)

// OrderStore is the persistence boundary used by the Reconciler.
type OrderStore interface {
	// WithLockedOrder loads the order under a row lock and runs fn in the same
	// transaction. It returns ErrOrderNotFound when the order does not exist.
	WithLockedOrder(ctx context.Context, orderID int64, fn func(tx OrderTx) error) error
}

// OrderTx applies state transitions to a locked order.
type OrderTx interface {
	Order() *models.Order
	// MarkPurchased moves the order to purchased and runs the purchase side
	// effect of every line item once.
	MarkPurchased(replyDump string) error
	MarkRefunded(replyDump string) error
	SaveReplyDump(replyDump string) error
}

// AuditEntry describes one terminal callback outcome.
type AuditEntry struct {
	OrderID     int64
	Disposition Disposition
	RejectKind  RejectKind
	PaymentType string
	Job         string
	Status      string
	RawBody     string
	Fields      map[string]string
}

type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// RejectionReporter forwards rejections to operators.
type RejectionReporter interface {
	ReportRejection(ctx context.Context, rejected *RejectedError)
}

// Outcome is the result of an accepted callback.
type Outcome struct {
	Disposition Disposition
	OrderID     int64
	Method      PaymentMethod
	// AlreadyPurchased is set when a capture arrived for an order that was
	// already purchased; only the reply dump was updated.
	AlreadyPurchased bool
}

// Reconciler authenticates result notifications, reconciles them against the
// stored order and applies the resulting transition exactly once.
type Reconciler struct {
	proc     *Processor
	store    OrderStore
	audit    AuditRecorder
	reporter RejectionReporter
	logger   *zap.Logger
}

func NewReconciler(proc *Processor, store OrderStore, audit AuditRecorder, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		proc:   proc,
		store:  store,
		audit:  audit,
		logger: logger,
	}
}

// WithReporter sets the operator reporter for rejections.
func (r *Reconciler) WithReporter(reporter RejectionReporter) *Reconciler {
	r.reporter = reporter
	return r
}

// Handle processes one notification. Rejections are returned as
// *RejectedError; any other error is an infrastructure failure.
func (r *Reconciler) Handle(ctx context.Context, form url.Values, rawBody string) (*Outcome, error) {
	params := r.proc.ParseResult(form)
	outcome, err := r.reconcile(ctx, params, rawBody)
	r.finish(ctx, params, rawBody, outcome, err)
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, params *ResultParams, rawBody string) (*Outcome, error) {
	if params.HasError() {
		return nil, reject(RejectProcessorError, 0,
			fmt.Errorf("error_code=%q error_info=%q", params.ErrorCode(), params.Get(KeyErrorInfo)))
	}

	method, err := params.PaymentMethod()
	if err != nil {
		return nil, reject(RejectDataInvalid, 0, err)
	}

	if err := params.Verify(); err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			return nil, reject(RejectSignatureInvalid, 0, nil)
		}
		return nil, reject(RejectDataInvalid, 0, err)
	}

	charge, err := params.Charge()
	if err != nil {
		return nil, reject(RejectDataInvalid, 0, err)
	}

	orderID, err := r.proc.orderIDs.Parse(params.OrderRef())
	if err != nil {
		return nil, reject(RejectDataInvalid, 0, err)
	}

	disposition, known := Classify(method, params.Job(), params.Status())
	outcome := &Outcome{Disposition: disposition, OrderID: orderID, Method: method}

	var rejected *RejectedError
	err = r.store.WithLockedOrder(ctx, orderID, func(tx OrderTx) error {
		if !known {
			rejected = reject(RejectUnknownState, orderID,
				fmt.Errorf("job=%q status=%q method=%s", params.Job(), params.Status(), method))
			return tx.SaveReplyDump(rawBody)
		}

		switch disposition {
		case DispositionCapture:
			order := tx.Order()
			if err := matchCharge(order, charge); err != nil {
				rejected = reject(RejectAmountMismatch, orderID, err)
				return tx.SaveReplyDump(rawBody)
			}
			if order.Status == models.OrderStatusPurchased {
				outcome.AlreadyPurchased = true
				return tx.SaveReplyDump(rawBody)
			}
			return tx.MarkPurchased(rawBody)
		case DispositionCancel:
			return tx.MarkRefunded(rawBody)
		case DispositionIgnore:
			return tx.SaveReplyDump(rawBody)
		}
		return fmt.Errorf("unhandled disposition %d", disposition)
	})
	if errors.Is(err, ErrOrderNotFound) {
		return nil, reject(RejectUnknownOrder, orderID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile order %d: %w", orderID, err)
	}
	if rejected != nil {
		return nil, rejected
	}
	return outcome, nil
}

// matchCharge compares the processor's claim with the stored totals. The
// order's numbers are authoritative.
func matchCharge(order *models.Order, c Charge) error {
	var diffs []string
	if c.Amount != order.TotalCost {
		diffs = append(diffs, fmt.Sprintf("amount %d != %d", c.Amount, order.TotalCost))
	}
	if c.Tax != order.TotalTax {
		diffs = append(diffs, fmt.Sprintf("tax %d != %d", c.Tax, order.TotalTax))
	}
	if !strings.EqualFold(c.Currency, order.Currency) {
		diffs = append(diffs, fmt.Sprintf("currency %q != %q", c.Currency, order.Currency))
	}
	if len(diffs) > 0 {
		return errors.New(strings.Join(diffs, "; "))
	}
	return nil
}

func rejectionLevel(kind RejectKind) zapcore.Level {
	switch kind {
	case RejectSignatureInvalid, RejectAmountMismatch:
		return zapcore.ErrorLevel
	case RejectProcessorError, RejectDataInvalid, RejectUnknownOrder, RejectUnknownState:
		return zapcore.WarnLevel
	}
	return zapcore.ErrorLevel
}

func (r *Reconciler) finish(ctx context.Context, params *ResultParams, rawBody string, outcome *Outcome, err error) {
	log := r.logger.With(
		zap.String("payment_type", params.PaymentType()),
		zap.String("job", params.Job()),
		zap.String("status", params.Status()),
	)

	entry := AuditEntry{
		PaymentType: params.PaymentType(),
		Job:         params.Job(),
		Status:      params.Status(),
		RawBody:     rawBody,
		Fields:      params.Fields(),
	}

	if outcome != nil {
		entry.OrderID = outcome.OrderID
		entry.Disposition = outcome.Disposition
		log.Info("Payment callback accepted",
			zap.Int64("order_id", outcome.OrderID),
			zap.Stringer("disposition", outcome.Disposition),
			zap.Bool("already_purchased", outcome.AlreadyPurchased),
		)
	} else if rejected, ok := AsRejected(err); ok {
		entry.OrderID = rejected.OrderID
		entry.RejectKind = rejected.Kind

		fields := []zap.Field{zap.String("reject_kind", rejected.Kind.String()), zap.Error(err)}
		if rejected.OrderID != 0 {
			fields = append(fields, zap.Int64("order_id", rejected.OrderID))
		} else if ref := params.OrderRef(); ref != "" {
			fields = append(fields, zap.String("order_ref", ref))
		}
		if ce := log.Check(rejectionLevel(rejected.Kind), "Payment callback rejected"); ce != nil {
			ce.Write(fields...)
		}
		if r.reporter != nil {
			r.reporter.ReportRejection(ctx, rejected)
		}
	} else {
		// Not terminal: the processor redelivers.
		log.Error("Payment callback failed", zap.String("order_ref", params.OrderRef()), zap.Error(err))
		return
	}

	if r.audit == nil {
		return
	}
	if err := r.audit.Record(ctx, entry); err != nil {
		log.Error("Failed to record callback audit entry", zap.Error(err))
	}
}
