package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinepay/internal/models"
)

func TestMapStripeEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		wantID    string
		want      models.PaymentStatus
	}{
		{
			name:      "payment intent succeeded",
			eventType: "payment_intent.succeeded",
			payload:   `{"id": "pi_123", "status": "succeeded"}`,
			wantID:    "pi_123",
			want:      models.PaymentStatusCompleted,
		},
		{
			name:      "payment intent processing",
			eventType: "payment_intent.processing",
			payload:   `{"id": "pi_123"}`,
			wantID:    "pi_123",
			want:      models.PaymentStatusProcessing,
		},
		{
			name:      "dispute resolves through payment intent",
			eventType: "charge.dispute.created",
			payload:   `{"id": "dp_1", "payment_intent": "pi_999"}`,
			wantID:    "pi_999",
			want:      models.PaymentStatusDisputed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, ok := mapWebhookEvent(models.GatewayStripe, tt.eventType, json.RawMessage(tt.payload))
			require.True(t, ok)
			assert.Equal(t, tt.wantID, action.paymentGatewayID)
			assert.Equal(t, tt.want, action.targetPayment)
		})
	}
}

func TestMapStripeFailureCarriesDeclineDetails(t *testing.T) {
	payload := `{"id": "pi_123", "last_payment_error": {"code": "card_declined", "message": "Your card was declined."}}`
	action, ok := mapWebhookEvent(models.GatewayStripe, "payment_intent.payment_failed", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusFailed, action.targetPayment)
	assert.Equal(t, "card_declined", action.failureCode)
	assert.Equal(t, "Your card was declined.", action.failureMessage)
}

func TestMapStripeChargeUpdatedCarriesSettledFees(t *testing.T) {
	payload := `{"id": "ch_1", "payment_intent": "pi_123", "currency": "usd",
		"balance_transaction": {"id": "txn_1", "fee": 103, "net": 2397, "currency": "usd"}}`
	action, ok := mapWebhookEvent(models.GatewayStripe, "charge.updated", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "pi_123", action.paymentGatewayID)
	assert.Equal(t, models.PaymentStatusCompleted, action.targetPayment)
	require.NotNil(t, action.feeAmount)
	require.NotNil(t, action.netAmount)
	assert.Equal(t, "1.03", action.feeAmount.StringFixed(2))
	assert.Equal(t, "23.97", action.netAmount.StringFixed(2))
}

func TestMapStripeChargeUpdatedWithoutBalanceObjectIgnored(t *testing.T) {
	// Before settlement the balance transaction is a bare id string; there
	// is nothing to reconcile yet.
	payload := `{"id": "ch_1", "payment_intent": "pi_123", "currency": "usd", "balance_transaction": "txn_1"}`
	_, ok := mapWebhookEvent(models.GatewayStripe, "charge.updated", json.RawMessage(payload))
	assert.False(t, ok)
}

func TestMapStripeRefundEvent(t *testing.T) {
	payload := `{"id": "re_123", "status": "succeeded"}`
	action, ok := mapWebhookEvent(models.GatewayStripe, "refund.updated", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "re_123", action.refundGatewayID)
	assert.Equal(t, models.RefundStatusCompleted, action.targetRefund)
	assert.Empty(t, action.paymentGatewayID)
}

func TestMapSquarePaymentEvent(t *testing.T) {
	payload := `{"data": {"object": {"payment": {"id": "sq_pay_1", "status": "COMPLETED"}}}}`
	action, ok := mapWebhookEvent(models.GatewaySquare, "payment.updated", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "sq_pay_1", action.paymentGatewayID)
	assert.Equal(t, models.PaymentStatusCompleted, action.targetPayment)
}

func TestMapSquareDisputeEvent(t *testing.T) {
	payload := `{"data": {"object": {"dispute": {"disputed_payment": {"payment_id": "sq_pay_9"}}}}}`
	action, ok := mapWebhookEvent(models.GatewaySquare, "dispute.created", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "sq_pay_9", action.paymentGatewayID)
	assert.Equal(t, models.PaymentStatusDisputed, action.targetPayment)
}

func TestMapPayPalCaptureUsesRelatedOrderID(t *testing.T) {
	payload := `{"resource": {"id": "cap_1", "status": "COMPLETED", "supplementary_data": {"related_ids": {"order_id": "order_77"}}}}`
	action, ok := mapWebhookEvent(models.GatewayPayPal, "PAYMENT.CAPTURE.COMPLETED", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "order_77", action.paymentGatewayID)
	assert.Equal(t, models.PaymentStatusCompleted, action.targetPayment)
}

func TestMapPayPalRefundTargetsRefundRow(t *testing.T) {
	payload := `{"resource": {"id": "refund_42", "status": "COMPLETED"}}`
	action, ok := mapWebhookEvent(models.GatewayPayPal, "PAYMENT.CAPTURE.REFUNDED", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, "refund_42", action.refundGatewayID)
	assert.Equal(t, models.RefundStatusCompleted, action.targetRefund)
}

func TestMapMidtransStatuses(t *testing.T) {
	tests := []struct {
		status string
		want   models.PaymentStatus
	}{
		{"pending", models.PaymentStatusRequiresAction},
		{"settlement", models.PaymentStatusCompleted},
		{"capture", models.PaymentStatusCompleted},
		{"cancel", models.PaymentStatusCanceled},
		{"expire", models.PaymentStatusCanceled},
		{"refund", models.PaymentStatusRefunded},
		{"partial_refund", models.PaymentStatusPartiallyRefunded},
		{"chargeback", models.PaymentStatusDisputed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			payload := `{"order_id": "DP-1", "transaction_status": "` + tt.status + `"}`
			action, ok := mapWebhookEvent(models.GatewayMidtrans, "transaction."+tt.status, json.RawMessage(payload))
			require.True(t, ok)
			assert.Equal(t, "DP-1", action.paymentGatewayID)
			assert.Equal(t, tt.want, action.targetPayment)
		})
	}
}

func TestMapMidtransDenyCarriesMessage(t *testing.T) {
	payload := `{"order_id": "DP-2", "transaction_status": "deny", "status_message": "Bank rejected the transaction"}`
	action, ok := mapWebhookEvent(models.GatewayMidtrans, "transaction.deny", json.RawMessage(payload))
	require.True(t, ok)
	assert.Equal(t, models.PaymentStatusFailed, action.targetPayment)
	assert.Equal(t, "deny", action.failureCode)
	assert.Equal(t, "Bank rejected the transaction", action.failureMessage)
}

func TestMapWebhookEventIgnoresUnknown(t *testing.T) {
	cases := []struct {
		gw        models.Gateway
		eventType string
		payload   string
	}{
		{models.GatewayStripe, "customer.created", `{"id": "cus_1"}`},
		{models.GatewaySquare, "catalog.version.updated", `{}`},
		{models.GatewayPayPal, "BILLING.SUBSCRIPTION.CREATED", `{"resource": {"id": "x"}}`},
		{models.GatewayMidtrans, "transaction.authorize_capture", `{"order_id": "DP-3", "transaction_status": "unknown_status"}`},
		{models.GatewayCash, "anything", `{}`},
	}
	for _, tt := range cases {
		_, ok := mapWebhookEvent(tt.gw, tt.eventType, json.RawMessage(tt.payload))
		assert.False(t, ok, "%s %s should be ignored", tt.gw, tt.eventType)
	}
}

func TestMapWebhookEventRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		gw        models.Gateway
		eventType string
		payload   string
	}{
		{models.GatewayStripe, "payment_intent.succeeded", `{"status": "succeeded"}`},
		{models.GatewaySquare, "payment.updated", `{"data": {"object": {}}}`},
		{models.GatewayMidtrans, "transaction.settlement", `{"transaction_status": "settlement"}`},
		{models.GatewayStripe, "payment_intent.succeeded", `not json`},
	}
	for _, tt := range cases {
		_, ok := mapWebhookEvent(tt.gw, tt.eventType, json.RawMessage(tt.payload))
		assert.False(t, ok, "%s with payload %q should not map", tt.eventType, tt.payload)
	}
}
