package services

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

// webhookAction is the normalized instruction extracted from one gateway
// event: which local row it targets and which shared status to move it to.
// Settled fee figures, when the event carries them, replace the provisional
// estimate recorded at creation time.
type webhookAction struct {
	paymentGatewayID string
	refundGatewayID  string
	targetPayment    models.PaymentStatus
	targetRefund     models.RefundStatus
	failureCode      string
	failureMessage   string
	feeAmount        *decimal.Decimal
	netAmount        *decimal.Decimal
}

// mapWebhookEvent translates a gateway's native event into a webhookAction.
// The second return is false for event types we deliberately ignore.
func mapWebhookEvent(gw models.Gateway, eventType string, payload json.RawMessage) (webhookAction, bool) {
	switch gw {
	case models.GatewayStripe:
		return mapStripeEvent(eventType, payload)
	case models.GatewaySquare:
		return mapSquareEvent(eventType, payload)
	case models.GatewayPayPal:
		return mapPayPalEvent(eventType, payload)
	case models.GatewayMidtrans:
		return mapMidtransEvent(eventType, payload)
	}
	return webhookAction{}, false
}

var stripeEventToStatus = map[string]models.PaymentStatus{
	"payment_intent.processing":      models.PaymentStatusProcessing,
	"payment_intent.requires_action": models.PaymentStatusRequiresAction,
	"payment_intent.succeeded":       models.PaymentStatusCompleted,
	"payment_intent.payment_failed":  models.PaymentStatusFailed,
	"payment_intent.canceled":        models.PaymentStatusCanceled,
}

func mapStripeEvent(eventType string, payload json.RawMessage) (webhookAction, bool) {
	if target, ok := stripeEventToStatus[eventType]; ok {
		// Payload is the PaymentIntent object.
		var pi struct {
			ID               string `json:"id"`
			LastPaymentError *struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"last_payment_error"`
		}
		if err := json.Unmarshal(payload, &pi); err != nil || pi.ID == "" {
			return webhookAction{}, false
		}
		action := webhookAction{paymentGatewayID: pi.ID, targetPayment: target}
		if target == models.PaymentStatusFailed && pi.LastPaymentError != nil {
			action.failureCode = pi.LastPaymentError.Code
			action.failureMessage = pi.LastPaymentError.Message
		}
		return action, true
	}

	switch eventType {
	case "charge.updated":
		// Fires once the balance transaction settles. The fee only rides
		// along when the transaction is inlined as an object; a bare id
		// string gives us nothing to reconcile.
		var charge struct {
			PaymentIntent      string          `json:"payment_intent"`
			Currency           string          `json:"currency"`
			BalanceTransaction json.RawMessage `json:"balance_transaction"`
		}
		if err := json.Unmarshal(payload, &charge); err != nil || charge.PaymentIntent == "" {
			return webhookAction{}, false
		}
		var bt struct {
			Fee      int64  `json:"fee"`
			Net      int64  `json:"net"`
			Currency string `json:"currency"`
		}
		if len(charge.BalanceTransaction) == 0 || charge.BalanceTransaction[0] != '{' ||
			json.Unmarshal(charge.BalanceTransaction, &bt) != nil || bt.Fee <= 0 {
			return webhookAction{}, false
		}
		currency := bt.Currency
		if currency == "" {
			currency = charge.Currency
		}
		fee := money.FromMinorUnits(bt.Fee, currency)
		net := money.FromMinorUnits(bt.Net, currency)
		return webhookAction{
			paymentGatewayID: charge.PaymentIntent,
			targetPayment:    models.PaymentStatusCompleted,
			feeAmount:        &fee,
			netAmount:        &net,
		}, true
	case "charge.dispute.created":
		// Payload is the Dispute object; its charge links back via
		// payment_intent.
		var dispute struct {
			PaymentIntent string `json:"payment_intent"`
		}
		if err := json.Unmarshal(payload, &dispute); err != nil || dispute.PaymentIntent == "" {
			return webhookAction{}, false
		}
		return webhookAction{paymentGatewayID: dispute.PaymentIntent, targetPayment: models.PaymentStatusDisputed}, true
	case "refund.updated", "charge.refund.updated":
		var refund struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			FailureReason string `json:"failure_reason"`
		}
		if err := json.Unmarshal(payload, &refund); err != nil || refund.ID == "" {
			return webhookAction{}, false
		}
		target := models.RefundStatusProcessing
		switch refund.Status {
		case "succeeded":
			target = models.RefundStatusCompleted
		case "failed":
			target = models.RefundStatusFailed
		case "canceled":
			target = models.RefundStatusCanceled
		}
		return webhookAction{
			refundGatewayID: refund.ID,
			targetRefund:    target,
			failureMessage:  refund.FailureReason,
		}, true
	}
	return webhookAction{}, false
}

func mapSquareEvent(eventType string, payload json.RawMessage) (webhookAction, bool) {
	switch eventType {
	case "payment.created", "payment.updated":
		var event struct {
			Data struct {
				Object struct {
					Payment struct {
						ID     string `json:"id"`
						Status string `json:"status"`
					} `json:"payment"`
				} `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &event); err != nil || event.Data.Object.Payment.ID == "" {
			return webhookAction{}, false
		}
		p := event.Data.Object.Payment
		return webhookAction{
			paymentGatewayID: p.ID,
			targetPayment:    squareWebhookStatus(p.Status),
		}, true
	case "refund.created", "refund.updated":
		var event struct {
			Data struct {
				Object struct {
					Refund struct {
						ID     string `json:"id"`
						Status string `json:"status"`
					} `json:"refund"`
				} `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &event); err != nil || event.Data.Object.Refund.ID == "" {
			return webhookAction{}, false
		}
		r := event.Data.Object.Refund
		target := models.RefundStatusProcessing
		switch r.Status {
		case "COMPLETED":
			target = models.RefundStatusCompleted
		case "FAILED", "REJECTED":
			target = models.RefundStatusFailed
		}
		return webhookAction{refundGatewayID: r.ID, targetRefund: target}, true
	case "dispute.created":
		var event struct {
			Data struct {
				Object struct {
					Dispute struct {
						DisputedPayment struct {
							PaymentID string `json:"payment_id"`
						} `json:"disputed_payment"`
					} `json:"dispute"`
				} `json:"object"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &event); err != nil {
			return webhookAction{}, false
		}
		id := event.Data.Object.Dispute.DisputedPayment.PaymentID
		if id == "" {
			return webhookAction{}, false
		}
		return webhookAction{paymentGatewayID: id, targetPayment: models.PaymentStatusDisputed}, true
	}
	return webhookAction{}, false
}

func squareWebhookStatus(status string) models.PaymentStatus {
	switch status {
	case "APPROVED", "PENDING":
		return models.PaymentStatusProcessing
	case "COMPLETED":
		return models.PaymentStatusCompleted
	case "CANCELED":
		return models.PaymentStatusCanceled
	case "FAILED":
		return models.PaymentStatusFailed
	}
	return models.PaymentStatusPending
}

func mapPayPalEvent(eventType string, payload json.RawMessage) (webhookAction, bool) {
	// Capture events carry the order id under supplementary_data; refund
	// events carry their own id.
	var event struct {
		Resource struct {
			ID                string `json:"id"`
			Status            string `json:"status"`
			SupplementaryData *struct {
				RelatedIDs struct {
					OrderID string `json:"order_id"`
				} `json:"related_ids"`
			} `json:"supplementary_data"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return webhookAction{}, false
	}

	orderID := event.Resource.ID
	if event.Resource.SupplementaryData != nil && event.Resource.SupplementaryData.RelatedIDs.OrderID != "" {
		orderID = event.Resource.SupplementaryData.RelatedIDs.OrderID
	}

	switch eventType {
	case "CHECKOUT.ORDER.APPROVED":
		return webhookAction{paymentGatewayID: event.Resource.ID, targetPayment: models.PaymentStatusProcessing}, true
	case "PAYMENT.CAPTURE.PENDING":
		return webhookAction{paymentGatewayID: orderID, targetPayment: models.PaymentStatusProcessing}, true
	case "PAYMENT.CAPTURE.COMPLETED":
		return webhookAction{paymentGatewayID: orderID, targetPayment: models.PaymentStatusCompleted}, true
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		return webhookAction{
			paymentGatewayID: orderID,
			targetPayment:    models.PaymentStatusFailed,
			failureCode:      "capture_denied",
			failureMessage:   "The payment capture was denied by PayPal.",
		}, true
	case "CUSTOMER.DISPUTE.CREATED":
		return webhookAction{paymentGatewayID: orderID, targetPayment: models.PaymentStatusDisputed}, true
	case "PAYMENT.CAPTURE.REFUNDED":
		// The resource here is the refund itself.
		return webhookAction{refundGatewayID: event.Resource.ID, targetRefund: models.RefundStatusCompleted}, true
	}
	return webhookAction{}, false
}

func mapMidtransEvent(eventType string, payload json.RawMessage) (webhookAction, bool) {
	var notif struct {
		OrderID           string `json:"order_id"`
		TransactionStatus string `json:"transaction_status"`
		StatusMessage     string `json:"status_message"`
	}
	if err := json.Unmarshal(payload, &notif); err != nil || notif.OrderID == "" {
		return webhookAction{}, false
	}

	var target models.PaymentStatus
	switch notif.TransactionStatus {
	case "pending":
		target = models.PaymentStatusRequiresAction
	case "authorize":
		target = models.PaymentStatusProcessing
	case "capture", "settlement":
		target = models.PaymentStatusCompleted
	case "deny", "failure":
		return webhookAction{
			paymentGatewayID: notif.OrderID,
			targetPayment:    models.PaymentStatusFailed,
			failureCode:      notif.TransactionStatus,
			failureMessage:   notif.StatusMessage,
		}, true
	case "cancel", "expire":
		target = models.PaymentStatusCanceled
	case "refund":
		target = models.PaymentStatusRefunded
	case "partial_refund":
		target = models.PaymentStatusPartiallyRefunded
	case "chargeback":
		target = models.PaymentStatusDisputed
	default:
		return webhookAction{}, false
	}
	return webhookAction{paymentGatewayID: notif.OrderID, targetPayment: target}, true
}
