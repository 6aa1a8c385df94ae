package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "pending"
	ParticipantStatusAccepted ParticipantStatus = "accepted"
	ParticipantStatusDeclined ParticipantStatus = "declined"
	ParticipantStatusPaid     ParticipantStatus = "paid"
)

// SplitParticipant is one person's share of a bill split. PaidAmount only
// ever grows; status flips to paid once PaidAmount covers TotalAmount.
type SplitParticipant struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	BillSplitID uint `gorm:"index" json:"bill_split_id"`

	Name  string `gorm:"type:varchar(255)" json:"name"`
	Email string `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone string `gorm:"type:varchar(50)" json:"phone,omitempty"`

	ShareAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"share_amount"`
	TipAmount   decimal.Decimal `gorm:"type:decimal(15,2)" json:"tip_amount"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(15,2)" json:"total_amount"`
	PaidAmount  decimal.Decimal `gorm:"type:decimal(15,2)" json:"paid_amount"`

	Status ParticipantStatus `gorm:"type:varchar(20);index" json:"status"`

	// Opaque token for unauthenticated participant access (the public
	// /p/:token pages).
	AccessToken string `gorm:"type:varchar(100);uniqueIndex" json:"-"`

	// Relationships
	BillSplit   BillSplit           `gorm:"foreignKey:BillSplitID" json:"bill_split,omitempty"`
	Allocations []PaymentAllocation `gorm:"foreignKey:ParticipantID" json:"allocations,omitempty"`
}

// PaymentAllocation links a payment to the participant share it covers.
// One payment can cover a participant partially, and a participant may pay
// across several payments.
type PaymentAllocation struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	BillSplitID   uint            `gorm:"index" json:"bill_split_id"`
	ParticipantID uint            `gorm:"index" json:"participant_id"`
	PaymentID     uint            `gorm:"index" json:"payment_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`

	// Relationships
	Payment Payment `gorm:"foreignKey:PaymentID" json:"payment,omitempty"`
}
