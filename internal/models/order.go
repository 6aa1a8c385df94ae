package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderPaymentState string

const (
	OrderUnpaid        OrderPaymentState = "unpaid"
	OrderPartiallyPaid OrderPaymentState = "partial"
	OrderPaid          OrderPaymentState = "paid"
)

// Order is the restaurant order payments are taken against. Only the
// payment-facing bookkeeping lives here; menu and kitchen state belong to
// the ordering service.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderNumber string          `gorm:"type:varchar(100);uniqueIndex" json:"order_number"`
	TableName   string          `gorm:"type:varchar(50)" json:"table_name,omitempty"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(15,2)" json:"subtotal"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"tax_amount"`
	ServiceFee  decimal.Decimal `gorm:"type:decimal(15,2)" json:"service_fee"`
	TipAmount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"tip_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	Currency    string          `gorm:"type:varchar(3);default:'USD'" json:"currency"`

	PaidAmount   decimal.Decimal   `gorm:"type:decimal(15,2)" json:"paid_amount"`
	PaymentState OrderPaymentState `gorm:"type:varchar(20);default:'unpaid'" json:"payment_state"`

	// Relationships
	Items    []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Payments []Payment   `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

// OrderItem is one line on an order; item-based bill splits assign these to
// participants.
type OrderItem struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID   uint            `gorm:"index" json:"order_id"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(15,2)" json:"unit_price"`
	Quantity  int             `gorm:"default:1" json:"quantity"`
}
