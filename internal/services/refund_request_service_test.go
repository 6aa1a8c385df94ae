package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dinepay/internal/models"
)

func TestAutoApproves(t *testing.T) {
	svc := &RefundRequestService{policy: models.DefaultRefundPolicy()}

	tests := []struct {
		name   string
		amount string
		reason string
		want   bool
	}{
		{"small cold food refund", "8.50", "cold_food", true},
		{"exactly at threshold", "20.00", "wrong_item", true},
		{"over threshold", "20.01", "wrong_item", false},
		{"duplicate charge always reviewed", "5.00", "duplicate_charge", false},
		{"overcharge always reviewed", "1.00", "overcharge", false},
		{"price dispute always reviewed", "3.00", "price_dispute", false},
		{"test refund always reviewed", "0.01", "test_refund", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := svc.autoApproves(decimal.RequireFromString(tt.amount), tt.reason)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutoApprovesDisabledPolicy(t *testing.T) {
	policy := models.DefaultRefundPolicy()
	policy.AutoApproveEnabled = false
	svc := &RefundRequestService{policy: policy}

	assert.False(t, svc.autoApproves(decimal.RequireFromString("1.00"), "cold_food"))
}
