package models

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusCart      OrderStatus = "cart"
	OrderStatusPaying    OrderStatus = "paying"
	OrderStatusPurchased OrderStatus = "purchased"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// Order maps to the `orders` table. Amounts are in the minor unit of Currency.
type Order struct {
	ID                 int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID             int64       `gorm:"column:user_id;index" json:"user_id"`
	Currency           string      `gorm:"column:currency;size:8" json:"currency"`
	TotalCost          int64       `gorm:"column:total_cost" json:"total_cost"`
	TotalTax           int64       `gorm:"column:total_tax" json:"total_tax"`
	Status             OrderStatus `gorm:"column:status;size:32;index" json:"status"`
	ProcessorReplyDump string      `gorm:"column:processor_reply_dump;type:text" json:"-"`
	CheckoutAt         *time.Time  `gorm:"column:checkout_at" json:"checkout_at,omitempty"`
	PurchasedAt        *time.Time  `gorm:"column:purchased_at" json:"purchased_at,omitempty"`
	RefundedAt         *time.Time  `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	CreatedAt          time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time   `gorm:"column:updated_at" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

// Payable reports whether a checkout may be started for the order.
func (o *Order) Payable() bool {
	return o.Status == OrderStatusCart || o.Status == OrderStatusPaying
}

// OrderItem maps to the `order_items` table.
type OrderItem struct {
	ID          int64       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID     int64       `gorm:"column:order_id;index" json:"order_id"`
	CourseID    string      `gorm:"column:course_id;size:255" json:"course_id"`
	Description string      `gorm:"column:description;size:1024" json:"description"`
	UnitCost    int64       `gorm:"column:unit_cost" json:"unit_cost"`
	Qty         int         `gorm:"column:qty" json:"qty"`
	Status      OrderStatus `gorm:"column:status;size:32" json:"status"`
	FulfilledAt *time.Time  `gorm:"column:fulfilled_at" json:"fulfilled_at,omitempty"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// LineCost is UnitCost * Qty.
func (i *OrderItem) LineCost() int64 {
	return i.UnitCost * int64(i.Qty)
}

// CallbackLog maps to the `callback_logs` table: one row per terminal
// processor notification, accepted or rejected.
type CallbackLog struct {
	ID          string            `gorm:"column:id;primaryKey;size:36" json:"id"`
	OrderID     *int64            `gorm:"column:order_id;index" json:"order_id,omitempty"`
	Disposition string            `gorm:"column:disposition;size:32" json:"disposition"`
	RejectKind  string            `gorm:"column:reject_kind;size:32" json:"reject_kind,omitempty"`
	PaymentType string            `gorm:"column:payment_type;size:8" json:"payment_type"`
	Job         string            `gorm:"column:job;size:32" json:"job"`
	Status      string            `gorm:"column:status;size:32" json:"status"`
	RawBody     string            `gorm:"column:raw_body;type:text" json:"raw_body"`
	Fields      datatypes.JSONMap `gorm:"column:fields" json:"fields"`
	ReceivedAt  time.Time         `gorm:"column:received_at;index" json:"received_at"`
}

func (CallbackLog) TableName() string {
	return "callback_logs"
}

// Enrollment maps to the `enrollments` table: course access granted by a
// purchased order item.
type Enrollment struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"column:user_id;uniqueIndex:idx_enrollment_user_course" json:"user_id"`
	CourseID    string    `gorm:"column:course_id;size:255;uniqueIndex:idx_enrollment_user_course" json:"course_id"`
	OrderItemID int64     `gorm:"column:order_item_id" json:"order_item_id"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}
