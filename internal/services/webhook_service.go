package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"dinepay/internal/gateway"
	"dinepay/internal/models"
)

// WebhookOutcome is what ProcessWebhook reports back to the HTTP handler.
// Everything except OutcomeRejected is acknowledged 2xx to the gateway.
type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
	OutcomeDeferred  WebhookOutcome = "deferred"
	OutcomeRejected  WebhookOutcome = "rejected"
)

// maxWebhookRetries caps how often the background sweep redelivers a failed
// event before giving up.
const maxWebhookRetries = 3

// WebhookService verifies, deduplicates, persists and applies gateway
// webhook events. Status changes go through the PaymentService transition
// primitives, so the async path can never diverge from the sync path.
type WebhookService struct {
	db       *gorm.DB
	gateways *gateway.Registry
	payments *PaymentService
	splits   *BillSplitService
	cache    *RedisCache
}

func NewWebhookService(db *gorm.DB, gateways *gateway.Registry, payments *PaymentService, cache *RedisCache) *WebhookService {
	return &WebhookService{db: db, gateways: gateways, payments: payments, cache: cache}
}

// AttachSplits enables split allocation for payments that complete through
// webhooks.
func (s *WebhookService) AttachSplits(splits *BillSplitService) {
	s.splits = splits
}

// ProcessWebhook runs the full receipt pipeline:
// verify signature -> dedup on (gateway, event id) -> persist append-only ->
// dispatch -> mark processed. A handler failure leaves the row unprocessed
// with the error recorded; the periodic sweep redelivers it.
func (s *WebhookService) ProcessWebhook(ctx context.Context, gw models.Gateway, headers http.Header, body []byte) (WebhookOutcome, error) {
	adapter, err := s.gateways.Get(gw)
	if err != nil {
		return OutcomeRejected, validationErr("gateway", "%v", err)
	}

	verified, err := adapter.VerifyWebhook(headers, body)
	if err != nil {
		// Forged or unsigned requests are rejected without side effects.
		log.Printf("webhook %s: signature rejected from %s", gw, headers.Get("X-Forwarded-For"))
		return OutcomeRejected, gateway.ErrWebhookVerification
	}

	var eventID *string
	if verified.EventID != "" {
		eventID = &verified.EventID

		// Fast path before the unique index: most duplicates are gateway
		// retry bursts within seconds of each other.
		if s.cache != nil {
			seen, err := s.cache.SetNX(ctx, fmt.Sprintf("webhook:seen:%s:%s", gw, verified.EventID), 1, time.Hour)
			if err == nil && !seen {
				return OutcomeDuplicate, nil
			}
		}

		var count int64
		if err := s.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
			Where("gateway = ? AND gateway_event_id = ?", gw, verified.EventID).
			Count(&count).Error; err != nil {
			return OutcomeRejected, err
		}
		if count > 0 {
			return OutcomeDuplicate, nil
		}
	}

	headerJSON, _ := json.Marshal(flattenHeaders(headers))
	event := models.PaymentWebhookEvent{
		Gateway:        gw,
		GatewayEventID: eventID,
		EventType:      verified.EventType,
		Headers:        headerJSON,
		Payload:        verified.Payload,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		// A concurrent receipt may have won the unique index race.
		var count int64
		s.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).
			Where("gateway = ? AND gateway_event_id = ?", gw, verified.EventID).
			Count(&count)
		if count > 0 {
			return OutcomeDuplicate, nil
		}
		return OutcomeRejected, err
	}

	return s.dispatch(ctx, &event), nil
}

// dispatch applies one stored event and updates its processed bookkeeping.
func (s *WebhookService) dispatch(ctx context.Context, event *models.PaymentWebhookEvent) WebhookOutcome {
	action, recognized := mapWebhookEvent(event.Gateway, event.EventType, event.Payload)
	now := time.Now()

	if !recognized {
		// Gateways send many event types that are irrelevant to us;
		// acknowledge and move on.
		log.Printf("webhook %s: ignoring event type %s", event.Gateway, event.EventType)
		s.db.WithContext(ctx).Model(event).Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
		})
		return OutcomeIgnored
	}

	if err := s.apply(ctx, event, action); err != nil {
		log.Printf("webhook event %d: handler failed: %v", event.ID, err)
		s.db.WithContext(ctx).Model(event).Updates(map[string]interface{}{
			"error_message": err.Error(),
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
		return OutcomeDeferred
	}

	s.db.WithContext(ctx).Model(event).Updates(map[string]interface{}{
		"processed":     true,
		"processed_at":  now,
		"error_message": "",
		"payment_id":    event.PaymentID,
		"refund_id":     event.RefundID,
	})
	return OutcomeProcessed
}

// apply resolves the local row the event talks about and runs the shared
// transition primitive.
func (s *WebhookService) apply(ctx context.Context, event *models.PaymentWebhookEvent, action webhookAction) error {
	if action.refundGatewayID != "" {
		var refund models.Refund
		err := s.db.WithContext(ctx).
			Where("gateway = ? AND gateway_refund_id = ?", event.Gateway, action.refundGatewayID).
			First(&refund).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("refund %s not found", action.refundGatewayID)
			}
			return err
		}
		event.RefundID = &refund.ID
		_, err = s.payments.ApplyRefundTransition(ctx, &refund, action.targetRefund, func(r *models.Refund) {
			if action.failureMessage != "" {
				r.FailureMessage = action.failureMessage
			}
		})
		return err
	}

	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("gateway = ? AND gateway_payment_id = ?", event.Gateway, action.paymentGatewayID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("payment %s not found", action.paymentGatewayID)
		}
		return err
	}
	event.PaymentID = &payment.ID

	// Settled fees replace the creation-time estimate even when the status
	// itself is already final, so a post-completion balance event still
	// lands before its transition noops.
	if action.feeAmount != nil {
		err := s.db.WithContext(ctx).Model(&payment).Updates(map[string]interface{}{
			"fee_amount": action.feeAmount,
			"net_amount": action.netAmount,
		}).Error
		if err != nil {
			return err
		}
		payment.FeeAmount = action.feeAmount
		payment.NetAmount = action.netAmount
	}

	applied, err := s.payments.ApplyPaymentTransition(ctx, &payment, action.targetPayment, func(p *models.Payment) {
		if action.failureCode != "" {
			p.FailureCode = action.failureCode
		}
		if action.failureMessage != "" {
			p.FailureMessage = action.failureMessage
		}
	})
	if err != nil {
		return err
	}
	if applied && action.targetPayment == models.PaymentStatusCompleted {
		s.allocateToSplit(ctx, &payment)
	}
	return nil
}

// allocateToSplit credits a completed payment against the split participant
// it was taken for. Redirect-flow payments complete via webhook, long after
// the public pay endpoint returned, so this is where their share settles.
// Allocation failures are logged, not retried: the transition already
// applied, so a redelivery would noop before reaching this point.
func (s *WebhookService) allocateToSplit(ctx context.Context, payment *models.Payment) {
	if s.splits == nil || payment.Metadata == nil {
		return
	}
	raw, ok := payment.Metadata["participant_id"]
	if !ok {
		return
	}
	var participantID uint
	switch v := raw.(type) {
	case float64:
		participantID = uint(v)
	case uint:
		participantID = v
	default:
		return
	}
	if err := s.splits.RecordParticipantPayment(ctx, participantID, payment.ID, payment.Amount); err != nil {
		log.Printf("payment %d: split allocation for participant %d failed: %v", payment.ID, participantID, err)
	}
}

// RetryFailedEvents redelivers unprocessed events below the retry cap.
// Called by the scheduled-task worker every few minutes.
func (s *WebhookService) RetryFailedEvents(ctx context.Context, limit int) (int, error) {
	var events []models.PaymentWebhookEvent
	err := s.db.WithContext(ctx).
		Where("processed = ? AND retry_count > 0 AND retry_count < ?", false, maxWebhookRetries).
		Order("created_at asc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range events {
		if outcome := s.dispatch(ctx, &events[i]); outcome == OutcomeProcessed {
			retried++
		}
	}
	return retried, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	// Never persist credentials that may ride along on the request.
	delete(out, "Authorization")
	delete(out, "Cookie")
	return out
}
