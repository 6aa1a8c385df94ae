package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCanceled   RefundStatus = "canceled"
)

func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusFailed || s == RefundStatusCanceled
}

// CountsAgainstPayment reports whether a refund in this status reserves part
// of the payment's refundable amount. Failed and canceled refunds free it up.
func (s RefundStatus) CountsAgainstPayment() bool {
	return s != RefundStatusFailed && s != RefundStatusCanceled
}

// Refund is one refund against exactly one payment.
type Refund struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	PaymentID       uint            `gorm:"index" json:"payment_id"`
	Gateway         Gateway         `gorm:"type:varchar(50)" json:"gateway"`
	GatewayRefundID string          `gorm:"type:varchar(255);index" json:"gateway_refund_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`
	Currency        string          `gorm:"type:varchar(3)" json:"currency"`
	Status          RefundStatus    `gorm:"type:varchar(30);index" json:"status"`
	Reason          string          `gorm:"type:varchar(255)" json:"reason,omitempty"`
	InitiatedBy     string          `gorm:"type:varchar(255)" json:"initiated_by,omitempty"`
	IdempotencyKey  string          `gorm:"type:varchar(100);uniqueIndex" json:"idempotency_key"`

	FeeRefunded *decimal.Decimal `gorm:"type:decimal(15,2)" json:"fee_refunded,omitempty"`

	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	FailureMessage string     `gorm:"type:text" json:"failure_message,omitempty"`

	Metadata map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`

	// Relationships
	Payment Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}

var refundRank = map[RefundStatus]int{
	RefundStatusPending:    1,
	RefundStatusProcessing: 2,
	RefundStatusCompleted:  3,
}

// EvalRefundTransition mirrors EvalPaymentTransition for refund rows.
func EvalRefundTransition(current, target RefundStatus) TransitionOutcome {
	if current == target {
		return TransitionNoop
	}
	if current.IsTerminal() {
		return TransitionNoop
	}

	switch target {
	case RefundStatusFailed:
		return TransitionApply
	case RefundStatusCanceled:
		if current == RefundStatusPending || current == RefundStatusProcessing {
			return TransitionApply
		}
		return TransitionNoop
	case RefundStatusProcessing, RefundStatusCompleted:
		if refundRank[target] > refundRank[current] {
			return TransitionApply
		}
		return TransitionNoop
	case RefundStatusPending:
		return TransitionNoop
	}
	return TransitionInvalid
}
