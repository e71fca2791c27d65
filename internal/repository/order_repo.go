package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coursepay/internal/models"
	"coursepay/internal/payment"
)

// ErrOrderNotPayable is returned when a checkout is started for an order that
// is neither in the cart nor already paying.
var ErrOrderNotPayable = errors.New("order is not payable")

// ItemHook runs once per line item when its order is purchased, inside the
// purchase transaction.
type ItemHook func(tx *gorm.DB, order *models.Order, item *models.OrderItem) error

// OrderRepository handles order database operations.
type OrderRepository struct {
	db       *gorm.DB
	itemHook ItemHook
	now      func() time.Time
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db, now: time.Now}
}

// WithItemHook registers the post-purchase side effect for line items.
func (r *OrderRepository) WithItemHook(hook ItemHook) *OrderRepository {
	r.itemHook = hook
	return r
}

// FindByID returns an order with its items.
func (r *OrderRepository) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payment.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Create inserts an order and its items.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// MarkPaying moves a cart or paying order to paying and stamps checkout_at.
func (r *OrderRepository) MarkPaying(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, []models.OrderStatus{models.OrderStatusCart, models.OrderStatusPaying}).
		Updates(map[string]interface{}{
			"status":      models.OrderStatusPaying,
			"checkout_at": r.now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrOrderNotPayable
	}
	return nil
}

// ExpireStaleCheckouts returns paying orders whose checkout started before
// cutoff to the cart.
func (r *OrderRepository) ExpireStaleCheckouts(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND checkout_at < ?", models.OrderStatusPaying, cutoff).
		Updates(map[string]interface{}{
			"status":      models.OrderStatusCart,
			"checkout_at": nil,
		})
	return res.RowsAffected, res.Error
}

// WithLockedOrder loads the order with SELECT ... FOR UPDATE and runs fn in
// the same transaction. A non-nil error from fn rolls everything back.
func (r *OrderRepository) WithLockedOrder(ctx context.Context, orderID int64, fn func(tx payment.OrderTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, "id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payment.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("lock order %d: %w", orderID, err)
		}
		if err := tx.Where("order_id = ?", orderID).Find(&order.Items).Error; err != nil {
			return fmt.Errorf("load items of order %d: %w", orderID, err)
		}
		return fn(&orderTx{db: tx, order: &order, itemHook: r.itemHook, now: r.now})
	})
}

type orderTx struct {
	db       *gorm.DB
	order    *models.Order
	itemHook ItemHook
	now      func() time.Time
}

func (t *orderTx) Order() *models.Order { return t.order }

func (t *orderTx) MarkPurchased(replyDump string) error {
	now := t.now()
	for i := range t.order.Items {
		item := &t.order.Items[i]
		if item.Status == models.OrderStatusPurchased {
			continue
		}
		err := t.db.Model(&models.OrderItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
			"status":       models.OrderStatusPurchased,
			"fulfilled_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("purchase item %d: %w", item.ID, err)
		}
		item.Status = models.OrderStatusPurchased
		item.FulfilledAt = &now

		if t.itemHook != nil {
			if err := t.itemHook(t.db, t.order, item); err != nil {
				return fmt.Errorf("item hook for item %d: %w", item.ID, err)
			}
		}
	}

	if err := t.update(map[string]interface{}{
		"status":               models.OrderStatusPurchased,
		"purchased_at":         now,
		"processor_reply_dump": replyDump,
	}); err != nil {
		return err
	}
	t.order.Status = models.OrderStatusPurchased
	t.order.PurchasedAt = &now
	t.order.ProcessorReplyDump = replyDump
	return nil
}

func (t *orderTx) MarkRefunded(replyDump string) error {
	now := t.now()
	if err := t.update(map[string]interface{}{
		"status":               models.OrderStatusRefunded,
		"refunded_at":          now,
		"processor_reply_dump": replyDump,
	}); err != nil {
		return err
	}
	t.order.Status = models.OrderStatusRefunded
	t.order.RefundedAt = &now
	t.order.ProcessorReplyDump = replyDump
	return nil
}

func (t *orderTx) SaveReplyDump(replyDump string) error {
	if err := t.update(map[string]interface{}{"processor_reply_dump": replyDump}); err != nil {
		return err
	}
	t.order.ProcessorReplyDump = replyDump
	return nil
}

func (t *orderTx) update(updates map[string]interface{}) error {
	err := t.db.Model(&models.Order{}).Where("id = ?", t.order.ID).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update order %d: %w", t.order.ID, err)
	}
	return nil
}
