package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Gateway string

const (
	GatewayStripe   Gateway = "stripe"
	GatewaySquare   Gateway = "square"
	GatewayPayPal   Gateway = "paypal"
	GatewayMidtrans Gateway = "midtrans"
	GatewayCash     Gateway = "cash"
	GatewayManual   Gateway = "manual"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusRequiresAction    PaymentStatus = "requires_action"
	PaymentStatusCompleted         PaymentStatus = "completed"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCanceled          PaymentStatus = "canceled"
	PaymentStatusDisputed          PaymentStatus = "disputed"
)

type PaymentMethodType string

const (
	MethodCard   PaymentMethodType = "card"
	MethodWallet PaymentMethodType = "wallet"
	MethodBank   PaymentMethodType = "bank_transfer"
	MethodPayPal PaymentMethodType = "paypal"
	MethodCash   PaymentMethodType = "cash"
	MethodOther  PaymentMethodType = "other"
)

// Payment is one payment attempt against one order. Rows are never hard
// deleted; refunded and canceled payments remain as history.
type Payment struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID          uint              `gorm:"index" json:"order_id"`
	Gateway          Gateway           `gorm:"type:varchar(50);not null" json:"gateway"`
	GatewayPaymentID string            `gorm:"type:varchar(255);index" json:"gateway_payment_id"`
	Amount           decimal.Decimal   `gorm:"type:decimal(15,2)" json:"amount"`
	Currency         string            `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Status           PaymentStatus     `gorm:"type:varchar(30);index" json:"status"`
	MethodType       PaymentMethodType `gorm:"type:varchar(30)" json:"method_type"`

	// Fee/net are estimates at creation time, overwritten once the gateway
	// reports settled figures.
	FeeAmount *decimal.Decimal `gorm:"type:decimal(15,2)" json:"fee_amount,omitempty"`
	NetAmount *decimal.Decimal `gorm:"type:decimal(15,2)" json:"net_amount,omitempty"`

	RequiresAction bool   `gorm:"default:false" json:"requires_action"`
	ActionURL      string `gorm:"type:text" json:"action_url,omitempty"`

	IdempotencyKey string `gorm:"type:varchar(100);uniqueIndex" json:"idempotency_key"`

	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	FailureCode    string     `gorm:"type:varchar(100)" json:"failure_code,omitempty"`
	FailureMessage string     `gorm:"type:text" json:"failure_message,omitempty"`

	CardBrand    string `gorm:"type:varchar(50)" json:"card_brand,omitempty"`
	CardLastFour string `gorm:"type:varchar(4)" json:"card_last_four,omitempty"`

	Metadata map[string]interface{} `gorm:"serializer:json" json:"metadata,omitempty"`

	// Relationships
	Order   Order    `gorm:"foreignKey:OrderID" json:"order,omitempty"`
	Refunds []Refund `gorm:"foreignKey:PaymentID" json:"refunds,omitempty"`
}

// paymentRank orders the happy path; transitions never move backwards in it.
var paymentRank = map[PaymentStatus]int{
	PaymentStatusPending:           1,
	PaymentStatusRequiresAction:    2,
	PaymentStatusProcessing:        3,
	PaymentStatusCompleted:         4,
	PaymentStatusPartiallyRefunded: 5,
	PaymentStatusRefunded:          6,
	PaymentStatusDisputed:          7,
}

// IsTerminal reports whether no further transitions are possible.
// Completed is not terminal: a completed payment can still be refunded
// or disputed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCanceled || s == PaymentStatusRefunded
}

type TransitionOutcome int

const (
	TransitionApply TransitionOutcome = iota
	TransitionNoop
	TransitionInvalid
)

// EvalPaymentTransition decides whether moving a payment from current to
// target should be applied, silently ignored, or rejected. The same rules
// serve the synchronous gateway response, manual status sync and the webhook
// path, so the two can never diverge. Re-applying the current status is a
// no-op, and so is any attempt to move backwards (e.g. a late "failed"
// webhook after the payment already completed).
func EvalPaymentTransition(current, target PaymentStatus) TransitionOutcome {
	if current == target {
		return TransitionNoop
	}
	if current.IsTerminal() {
		return TransitionNoop
	}

	switch target {
	case PaymentStatusFailed:
		// Failure only applies before the money moved.
		if paymentRank[current] < paymentRank[PaymentStatusCompleted] {
			return TransitionApply
		}
		return TransitionNoop
	case PaymentStatusCanceled:
		switch current {
		case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusRequiresAction:
			return TransitionApply
		}
		return TransitionNoop
	case PaymentStatusDisputed:
		switch current {
		case PaymentStatusCompleted, PaymentStatusPartiallyRefunded:
			return TransitionApply
		}
		return TransitionInvalid
	case PaymentStatusPartiallyRefunded, PaymentStatusRefunded:
		switch current {
		case PaymentStatusCompleted, PaymentStatusPartiallyRefunded:
			return TransitionApply
		}
		return TransitionInvalid
	case PaymentStatusProcessing:
		// requires_action resolves back into processing once the customer
		// completed the challenge/redirect.
		if current == PaymentStatusPending || current == PaymentStatusRequiresAction {
			return TransitionApply
		}
		return TransitionNoop
	case PaymentStatusRequiresAction:
		if current == PaymentStatusPending || current == PaymentStatusProcessing {
			return TransitionApply
		}
		return TransitionNoop
	case PaymentStatusCompleted:
		if paymentRank[current] < paymentRank[PaymentStatusCompleted] {
			return TransitionApply
		}
		return TransitionNoop
	case PaymentStatusPending:
		// Nothing moves back to pending.
		return TransitionNoop
	}
	return TransitionInvalid
}
