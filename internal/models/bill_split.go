package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SplitMethod string

const (
	SplitMethodEqual      SplitMethod = "equal"
	SplitMethodPercentage SplitMethod = "percentage"
	SplitMethodAmount     SplitMethod = "amount"
	SplitMethodItem       SplitMethod = "item"
	SplitMethodCustom     SplitMethod = "custom"
)

type SplitStatus string

const (
	SplitStatusPending       SplitStatus = "pending"
	SplitStatusActive        SplitStatus = "active"
	SplitStatusPartiallyPaid SplitStatus = "partially_paid"
	SplitStatusCompleted     SplitStatus = "completed"
	SplitStatusCanceled      SplitStatus = "canceled"
)

type TipMethod string

const (
	TipMethodPercentage TipMethod = "percentage"
	TipMethodFixed      TipMethod = "fixed"
	TipMethodRoundUp    TipMethod = "round_up"
)

// BillSplit is one split configuration over one order.
// TotalAmount = Subtotal + TaxAmount + ServiceCharge + TipAmount, and active
// participants' totals sum to TotalAmount within one minor unit per
// participant.
type BillSplit struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID uint        `gorm:"index" json:"order_id"`
	Method  SplitMethod `gorm:"type:varchar(20)" json:"method"`
	Status  SplitStatus `gorm:"type:varchar(20);index" json:"status"`

	Subtotal      decimal.Decimal `gorm:"type:decimal(15,2)" json:"subtotal"`
	TaxAmount     decimal.Decimal `gorm:"type:decimal(15,2)" json:"tax_amount"`
	ServiceCharge decimal.Decimal `gorm:"type:decimal(15,2)" json:"service_charge"`
	TipAmount     decimal.Decimal `gorm:"type:decimal(15,2)" json:"tip_amount"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	Currency      string          `gorm:"type:varchar(3);default:'USD'" json:"currency"`

	// Method-specific parameters: percentages, fixed amounts or item
	// assignments keyed by participant name.
	SplitConfig map[string]interface{} `gorm:"serializer:json" json:"split_config,omitempty"`

	OrganizerName  string `gorm:"type:varchar(255)" json:"organizer_name"`
	OrganizerEmail string `gorm:"type:varchar(255)" json:"organizer_email,omitempty"`

	AllowPartialPayments bool       `gorm:"default:true" json:"allow_partial_payments"`
	RequireAllAcceptance bool       `gorm:"default:false" json:"require_all_acceptance"`
	AutoClose            bool       `gorm:"default:true" json:"auto_close"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`

	// Relationships
	Order        Order              `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Participants []SplitParticipant `gorm:"foreignKey:BillSplitID" json:"participants,omitempty"`
}
