package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dinepay/internal/models"
)

// RefundRequestService runs the approval workflow in front of actual
// refunds. Small, uncontested requests auto-approve under the policy;
// everything else waits for a reviewer. Processing delegates to the
// PaymentService and records the resulting refund id on the request, which
// doubles as the processed-once guard.
type RefundRequestService struct {
	db       *gorm.DB
	payments *PaymentService
	email    *EmailService
	policy   models.RefundPolicy
}

func NewRefundRequestService(db *gorm.DB, payments *PaymentService, email *EmailService, policy models.RefundPolicy) *RefundRequestService {
	return &RefundRequestService{db: db, payments: payments, email: email, policy: policy}
}

type CreateRefundRequestInput struct {
	PaymentID    uint
	Amount       *decimal.Decimal // nil requests the full payment amount
	ReasonCode   string
	ReasonDetail string
	RequestedBy  string
}

// CreateRequest validates the ask against the payment and the refund
// window, then either auto-approves it per policy or parks it for review.
// Auto-approved requests are processed immediately.
func (s *RefundRequestService) CreateRequest(ctx context.Context, in CreateRefundRequestInput) (*models.RefundRequest, error) {
	payment, err := s.payments.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded:
	default:
		return nil, validationErr("payment_id", "cannot request a refund on a %s payment", payment.Status)
	}

	if payment.ProcessedAt != nil && s.policy.RefundWindowHours > 0 {
		window := time.Duration(s.policy.RefundWindowHours) * time.Hour
		if time.Since(*payment.ProcessedAt) > window {
			return nil, validationErr("payment_id", "payment is outside the %d-hour refund window", s.policy.RefundWindowHours)
		}
	}

	amount := payment.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be positive, got %s", amount)
	}
	if amount.GreaterThan(payment.Amount) {
		return nil, validationErr("amount", "requested %s exceeds payment amount %s", amount, payment.Amount)
	}

	request := models.RefundRequest{
		PaymentID:       payment.ID,
		RequestedAmount: amount,
		Currency:        payment.Currency,
		ReasonCode:      in.ReasonCode,
		ReasonDetail:    in.ReasonDetail,
		RequestedBy:     in.RequestedBy,
		Status:          models.RefundRequestPendingApproval,
	}
	if s.autoApproves(amount, in.ReasonCode) {
		now := time.Now()
		request.Status = models.RefundRequestAutoApproved
		request.ReviewedAt = &now
		request.ReviewNote = "auto-approved by policy"
	}

	if err := s.db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, err
	}

	if request.Status == models.RefundRequestAutoApproved {
		if err := s.Process(ctx, request.ID, "system"); err != nil {
			// The approval stands; the refund sweep or a reviewer can retry
			// processing.
			log.Printf("refund request %d: auto-approved but processing failed: %v", request.ID, err)
		}
		if err := s.db.WithContext(ctx).First(&request, request.ID).Error; err != nil {
			return nil, err
		}
	}
	return &request, nil
}

// autoApproves applies the policy: enabled, small enough, and not a reason
// code that always needs human eyes.
func (s *RefundRequestService) autoApproves(amount decimal.Decimal, reasonCode string) bool {
	if !s.policy.AutoApproveEnabled {
		return false
	}
	if amount.GreaterThan(s.policy.AutoApproveThreshold) {
		return false
	}
	return !slices.Contains(s.policy.ManualReviewReasons, reasonCode)
}

// Review approves or rejects a pending request.
func (s *RefundRequestService) Review(ctx context.Context, requestID uint, approve bool, reviewedBy, note string) (*models.RefundRequest, error) {
	request, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.RefundRequestPendingApproval {
		return nil, validationErr("status", "request is %s, not pending approval", request.Status)
	}

	now := time.Now()
	target := models.RefundRequestApproved
	if !approve {
		target = models.RefundRequestRejected
	}
	err = s.db.WithContext(ctx).Model(request).Updates(map[string]interface{}{
		"status":      target,
		"reviewed_by": reviewedBy,
		"reviewed_at": now,
		"review_note": note,
	}).Error
	if err != nil {
		return nil, err
	}
	request.Status = target
	request.ReviewedBy = reviewedBy
	request.ReviewedAt = &now
	request.ReviewNote = note

	if s.email != nil {
		var payment models.Payment
		if err := s.db.WithContext(ctx).First(&payment, request.PaymentID).Error; err == nil {
			s.email.SendRefundRequestNotice(request.RequestedBy, request)
		}
	}

	if approve {
		if err := s.Process(ctx, request.ID, reviewedBy); err != nil {
			log.Printf("refund request %d: approved but processing failed: %v", request.ID, err)
		}
		if err := s.db.WithContext(ctx).First(request, request.ID).Error; err != nil {
			return nil, err
		}
	}
	return request, nil
}

// Process executes an approved request through the payment orchestrator.
// A request processes at most once: the refund id on the row is the guard.
func (s *RefundRequestService) Process(ctx context.Context, requestID uint, initiatedBy string) error {
	request, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	switch request.Status {
	case models.RefundRequestApproved, models.RefundRequestAutoApproved:
	default:
		return validationErr("status", "request is %s, not approved", request.Status)
	}
	if request.RefundID != nil {
		return &ConflictError{Message: fmt.Sprintf("request %d already processed as refund %d", request.ID, *request.RefundID)}
	}

	refund, err := s.payments.CreateRefund(ctx, CreateRefundInput{
		PaymentID:   request.PaymentID,
		Amount:      &request.RequestedAmount,
		Reason:      request.ReasonCode,
		InitiatedBy: initiatedBy,
	})
	if err != nil {
		return err
	}

	now := time.Now()
	return s.db.WithContext(ctx).Model(request).Updates(map[string]interface{}{
		"status":       models.RefundRequestProcessed,
		"refund_id":    refund.ID,
		"processed_at": now,
	}).Error
}

func (s *RefundRequestService) GetRequest(ctx context.Context, id uint) (*models.RefundRequest, error) {
	var request models.RefundRequest
	if err := s.db.WithContext(ctx).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("refund request %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &request, nil
}

// ListPending returns requests waiting for review, oldest first.
func (s *RefundRequestService) ListPending(ctx context.Context) ([]models.RefundRequest, error) {
	var requests []models.RefundRequest
	err := s.db.WithContext(ctx).
		Where("status = ?", models.RefundRequestPendingApproval).
		Order("created_at asc").
		Preload("Payment").
		Find(&requests).Error
	return requests, err
}
