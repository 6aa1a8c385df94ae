package models

import (
	"time"

	"gorm.io/gorm"
)

// CustomerPaymentMethod is a saved, tokenized payment method. The card is
// never stored; only the gateway token plus display fields.
type CustomerPaymentMethod struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CustomerID             uint    `gorm:"index;uniqueIndex:idx_customer_gateway_method" json:"customer_id"`
	Gateway                Gateway `gorm:"type:varchar(50);uniqueIndex:idx_customer_gateway_method" json:"gateway"`
	GatewayPaymentMethodID string  `gorm:"type:varchar(255);uniqueIndex:idx_customer_gateway_method" json:"gateway_payment_method_id"`
	GatewayCustomerID      string  `gorm:"type:varchar(255)" json:"gateway_customer_id"`

	MethodType  PaymentMethodType `gorm:"type:varchar(30)" json:"method_type"`
	DisplayName string            `gorm:"type:varchar(255)" json:"display_name"`

	CardBrand    string `gorm:"type:varchar(50)" json:"card_brand,omitempty"`
	CardLastFour string `gorm:"type:varchar(4)" json:"card_last_four,omitempty"`
	CardExpMonth int    `json:"card_exp_month,omitempty"`
	CardExpYear  int    `json:"card_exp_year,omitempty"`

	// At most one default per (customer, gateway); enforced by PaymentService,
	// not by a storage constraint.
	IsDefault bool `gorm:"default:false" json:"is_default"`
	IsActive  bool `gorm:"default:true" json:"is_active"`
}

// GatewayCustomer maps an internal customer to the id a gateway knows them
// by, so a customer is created once per gateway and reused for saved cards.
type GatewayCustomer struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	CustomerID        uint    `gorm:"index;uniqueIndex:idx_gateway_customer" json:"customer_id"`
	Gateway           Gateway `gorm:"type:varchar(50);uniqueIndex:idx_gateway_customer" json:"gateway"`
	GatewayCustomerID string  `gorm:"type:varchar(255)" json:"gateway_customer_id"`

	Email string `gorm:"type:varchar(255)" json:"email,omitempty"`
	Name  string `gorm:"type:varchar(255)" json:"name,omitempty"`
}
