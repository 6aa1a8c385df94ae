package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RefundRequestStatus string

const (
	RefundRequestPendingApproval RefundRequestStatus = "pending_approval"
	RefundRequestApproved        RefundRequestStatus = "approved"
	RefundRequestAutoApproved    RefundRequestStatus = "auto_approved"
	RefundRequestRejected        RefundRequestStatus = "rejected"
	RefundRequestProcessed       RefundRequestStatus = "processed"
)

// RefundRequest is the customer-facing ask that precedes an actual refund.
// RefundID being set is the guard against processing a request twice.
type RefundRequest struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PaymentID       uint            `gorm:"index" json:"payment_id"`
	RequestedAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"requested_amount"`
	Currency        string          `gorm:"type:varchar(3)" json:"currency"`
	ReasonCode      string          `gorm:"type:varchar(50)" json:"reason_code"`
	ReasonDetail    string          `gorm:"type:text" json:"reason_detail,omitempty"`
	RequestedBy     string          `gorm:"type:varchar(255)" json:"requested_by"`

	Status     RefundRequestStatus `gorm:"type:varchar(30);index" json:"status"`
	ReviewedBy string              `gorm:"type:varchar(255)" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time          `json:"reviewed_at,omitempty"`
	ReviewNote string              `gorm:"type:text" json:"review_note,omitempty"`

	RefundID    *uint      `gorm:"index" json:"refund_id,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	// Relationships
	Payment Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
	Refund  *Refund `gorm:"foreignKey:RefundID" json:"refund,omitempty"`
}

// RefundPolicy drives auto-approval and the creation time window.
type RefundPolicy struct {
	AutoApproveEnabled   bool
	AutoApproveThreshold decimal.Decimal
	RefundWindowHours    int
	ManualReviewReasons  []string
}

// DefaultRefundPolicy mirrors the back-office defaults: small refunds
// auto-approve, sensitive reason codes always get a human.
func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{
		AutoApproveEnabled:   true,
		AutoApproveThreshold: decimal.NewFromInt(20),
		RefundWindowHours:    24 * 30,
		ManualReviewReasons:  []string{"duplicate_charge", "overcharge", "price_dispute", "test_refund"},
	}
}
