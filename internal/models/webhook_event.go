package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// PaymentWebhookEvent is one received, signature-verified gateway event.
// Rows are append-only; retries increment RetryCount on the existing row.
// (Gateway, GatewayEventID) is the deduplication key when the gateway
// supplies an event id.
type PaymentWebhookEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Gateway        Gateway `gorm:"type:varchar(50);not null;uniqueIndex:idx_webhook_gateway_event,where:gateway_event_id IS NOT NULL" json:"gateway"`
	GatewayEventID *string `gorm:"type:varchar(255);uniqueIndex:idx_webhook_gateway_event,where:gateway_event_id IS NOT NULL" json:"gateway_event_id,omitempty"`
	EventType      string  `gorm:"type:varchar(100);index" json:"event_type"`

	Headers json.RawMessage `gorm:"type:jsonb" json:"headers"`
	Payload json.RawMessage `gorm:"type:jsonb" json:"payload"`

	Processed    bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	ErrorMessage string     `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int        `gorm:"default:0" json:"retry_count"`

	PaymentID *uint `json:"payment_id,omitempty"`
	RefundID  *uint `json:"refund_id,omitempty"`
}
