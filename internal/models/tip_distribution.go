package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TipDistributionMethod string

const (
	TipDistributePool       TipDistributionMethod = "pool"
	TipDistributePercentage TipDistributionMethod = "percentage"
	TipDistributeRole       TipDistributionMethod = "role"
	TipDistributeDirect     TipDistributionMethod = "direct"
)

// StaffMember is a tip recipient. Role weights drive role-based
// distribution.
type StaffMember struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string `gorm:"type:varchar(255)" json:"name"`
	Email    string `gorm:"type:varchar(255)" json:"email,omitempty"`
	Role     string `gorm:"type:varchar(50)" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// TipDistribution is a post-hoc allocation of a completed tip to staff.
// The line amounts sum exactly to TipAmount; any rounding remainder goes to
// the first recipient.
type TipDistribution struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	OrderID   uint                  `gorm:"index" json:"order_id"`
	Method    TipDistributionMethod `gorm:"type:varchar(20)" json:"method"`
	TipAmount decimal.Decimal       `gorm:"type:decimal(15,2)" json:"tip_amount"`
	Currency  string                `gorm:"type:varchar(3)" json:"currency"`

	// Method parameters: per-staff percentages, role weights or direct
	// amounts.
	Config map[string]interface{} `gorm:"serializer:json" json:"config,omitempty"`

	DistributedAt *time.Time `json:"distributed_at,omitempty"`

	// Relationships
	Lines []TipDistributionLine `gorm:"foreignKey:TipDistributionID" json:"lines,omitempty"`
}

// TipDistributionLine is one staff member's cut.
type TipDistributionLine struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	TipDistributionID uint            `gorm:"index" json:"tip_distribution_id"`
	StaffID           uint            `gorm:"index" json:"staff_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2)" json:"amount"`

	// Relationships
	Staff StaffMember `gorm:"foreignKey:StaffID" json:"staff,omitempty"`
}
