package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dinepay/internal/gateway"
	"dinepay/internal/models"
)

// PaymentService orchestrates the payment and refund lifecycle across all
// configured gateways. Payment/Refund status fields are mutated only through
// this service and the webhook reconciliation service, both of which go
// through the same transition primitives.
type PaymentService struct {
	db       *gorm.DB
	gateways *gateway.Registry
	retry    gateway.RetryConfig
}

func NewPaymentService(db *gorm.DB, gateways *gateway.Registry) *PaymentService {
	return &PaymentService{
		db:       db,
		gateways: gateways,
		retry:    gateway.DefaultRetryConfig(),
	}
}

type CreatePaymentInput struct {
	OrderID       uint
	Gateway       models.Gateway
	Amount        decimal.Decimal
	Currency      string
	MethodToken   string
	SavedMethodID *uint
	CustomerID    *uint
	ReturnURL     string
	Metadata      map[string]interface{}

	// ForceNew skips redirect-session reuse and always opens a fresh
	// gateway payment.
	ForceNew bool
}

// CreatePayment runs one payment attempt end to end. The PENDING row is
// committed before the gateway call so a crash mid-call leaves a recoverable
// local record instead of an orphaned external charge; the idempotency key
// on that row makes the gateway call itself safe to retry.
//
// A gateway decline comes back as a FAILED payment with failure fields set,
// not as an error. Infrastructure errors propagate with the payment left
// PENDING for later reconciliation.
func (s *PaymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*models.Payment, error) {
	if !in.Amount.IsPositive() {
		return nil, validationErr("amount", "must be positive, got %s", in.Amount)
	}

	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, in.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", in.OrderID, ErrNotFound)
		}
		return nil, err
	}
	if order.PaymentState == models.OrderPaid {
		return nil, validationErr("order_id", "order %s is already fully paid", order.OrderNumber)
	}

	adapter, err := s.gateways.Get(in.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}

	if in.Currency == "" {
		in.Currency = order.Currency
	}

	// Reuse an open redirect session instead of stacking charges: if the
	// customer already has a live action URL for this order and gateway,
	// re-check gateway truth and hand the same redirect back.
	if !in.ForceNew {
		if reused := s.reusableSession(ctx, &order, in); reused != nil {
			return reused, nil
		}
	}

	methodToken := in.MethodToken
	var gatewayCustomerID string
	if in.SavedMethodID != nil {
		saved, err := s.savedMethod(ctx, *in.SavedMethodID, in.Gateway)
		if err != nil {
			return nil, err
		}
		methodToken = saved.GatewayPaymentMethodID
		gatewayCustomerID = saved.GatewayCustomerID
	}

	// 1. Flush the PENDING row first.
	payment := models.Payment{
		OrderID:        order.ID,
		Gateway:        in.Gateway,
		Amount:         in.Amount,
		Currency:       in.Currency,
		Status:         models.PaymentStatusPending,
		IdempotencyKey: uuid.NewString(),
		Metadata:       in.Metadata,
	}
	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, err
	}

	// 2. Call the gateway outside any transaction.
	req := &gateway.CreatePaymentRequest{
		Amount:         in.Amount,
		Currency:       in.Currency,
		OrderNumber:    order.OrderNumber,
		Description:    fmt.Sprintf("Order %s", order.OrderNumber),
		CustomerID:     gatewayCustomerID,
		MethodToken:    methodToken,
		IdempotencyKey: payment.IdempotencyKey,
		ReturnURL:      in.ReturnURL,
		Metadata:       map[string]string{"payment_id": fmt.Sprintf("%d", payment.ID)},
	}
	var resp *gateway.PaymentResponse
	err = gateway.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = adapter.CreatePayment(ctx, req)
		return callErr
	})
	if err != nil {
		log.Printf("payment %d: gateway %s create failed: %v", payment.ID, in.Gateway, err)
		return nil, err
	}

	// 3. Write the outcome back.
	s.applyGatewayResponse(&payment, resp)
	if err := s.db.WithContext(ctx).Save(&payment).Error; err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		if err := s.RefreshOrderPaymentState(ctx, payment.OrderID); err != nil {
			log.Printf("payment %d: order bookkeeping failed: %v", payment.ID, err)
		}
	}
	return &payment, nil
}

// reusableSession finds an open redirect payment for the same order, gateway,
// amount and payer identity, refreshed against the gateway first. Returns nil
// when there is nothing to reuse.
func (s *PaymentService) reusableSession(ctx context.Context, order *models.Order, in CreatePaymentInput) *models.Payment {
	var candidates []models.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ? AND gateway = ? AND requires_action = ? AND action_url <> ''", order.ID, in.Gateway, true).
		Where("status IN ?", []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusRequiresAction}).
		Where("amount = ?", in.Amount).
		Order("created_at desc").
		Limit(5).
		Find(&candidates).Error
	if err != nil {
		return nil
	}

	// Sessions are scoped to the payer: two split participants with equal
	// shares must never trade sessions, or the completion webhook credits
	// the wrong participant.
	var existing models.Payment
	found := false
	for _, c := range candidates {
		if sessionIdentityMatches(c.Metadata, in.Metadata) {
			existing = c
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if existing.GatewayPaymentID != "" {
		refreshed, err := s.SyncPaymentStatus(ctx, existing.ID)
		if err != nil {
			log.Printf("payment %d: session refresh failed, opening a new one: %v", existing.ID, err)
			return nil
		}
		existing = *refreshed
	}
	switch existing.Status {
	case models.PaymentStatusPending, models.PaymentStatusRequiresAction:
		log.Printf("order %s: reusing open %s payment session %d", order.OrderNumber, in.Gateway, existing.ID)
		return &existing
	}
	return nil
}

// sessionIdentityMatches reports whether an open session belongs to the same
// payer as the incoming request. Split payments carry their participant in
// Metadata; absent on both sides counts as the same (plain order) payer.
func sessionIdentityMatches(existing, requested map[string]interface{}) bool {
	for _, key := range []string{"bill_split_id", "participant_id"} {
		a, okA := metadataID(existing, key)
		b, okB := metadataID(requested, key)
		if okA != okB || a != b {
			return false
		}
	}
	return true
}

// metadataID normalizes a metadata identity value for comparison: values read
// back from the JSON column arrive as float64 while fresh inputs carry uint.
func metadataID(m map[string]interface{}, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	switch n := v.(type) {
	case string:
		return n, true
	case float64:
		return decimal.NewFromFloat(n).String(), true
	case int:
		return decimal.NewFromInt(int64(n)).String(), true
	case uint:
		return decimal.NewFromInt(int64(n)).String(), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}

// applyGatewayResponse folds an adapter response into the local row. Decline
// data lands in the failure fields.
func (s *PaymentService) applyGatewayResponse(payment *models.Payment, resp *gateway.PaymentResponse) {
	if resp.GatewayPaymentID != "" {
		payment.GatewayPaymentID = resp.GatewayPaymentID
	}
	payment.Status = resp.Status
	payment.RequiresAction = resp.RequiresAction
	payment.ActionURL = resp.ActionURL
	if resp.MethodType != "" {
		payment.MethodType = resp.MethodType
	}
	if resp.CardBrand != "" {
		payment.CardBrand = resp.CardBrand
		payment.CardLastFour = resp.CardLastFour
	}
	if resp.FeeAmount != nil {
		payment.FeeAmount = resp.FeeAmount
		payment.NetAmount = resp.NetAmount
	}
	if !resp.Success {
		payment.Status = models.PaymentStatusFailed
		payment.FailureCode = resp.DeclineCode
		payment.FailureMessage = resp.DeclineMessage
		if payment.FailureMessage == "" {
			payment.FailureMessage = "The payment was declined. Please try another payment method."
		}
	}
	if payment.Status == models.PaymentStatusCompleted && payment.ProcessedAt == nil {
		now := time.Now()
		payment.ProcessedAt = &now
	}
}

// CapturePayment completes an authorized payment. Capturing anything other
// than a processing/requires_action payment is a validation error resolved
// before any gateway call.
func (s *PaymentService) CapturePayment(ctx context.Context, paymentID uint, amount *decimal.Decimal) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case models.PaymentStatusProcessing, models.PaymentStatusRequiresAction, models.PaymentStatusPending:
	default:
		return nil, validationErr("status", "cannot capture a %s payment", payment.Status)
	}

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}

	var resp *gateway.PaymentResponse
	err = gateway.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = adapter.CapturePayment(ctx, payment.GatewayPaymentID, amount)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return payment, s.reconcileFromResponse(ctx, payment, resp)
}

// CancelPayment voids a payment that has not completed.
func (s *PaymentService) CancelPayment(ctx context.Context, paymentID uint) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case models.PaymentStatusPending, models.PaymentStatusProcessing, models.PaymentStatusRequiresAction:
	default:
		return nil, validationErr("status", "cannot cancel a %s payment", payment.Status)
	}

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}

	var resp *gateway.PaymentResponse
	err = gateway.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = adapter.CancelPayment(ctx, payment.GatewayPaymentID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return payment, s.reconcileFromResponse(ctx, payment, resp)
}

// SyncPaymentStatus pulls current truth from the gateway and applies it
// through the same transition primitive the webhook path uses, for when
// webhooks are delayed or lost.
func (s *PaymentService) SyncPaymentStatus(ctx context.Context, paymentID uint) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.GatewayPaymentID == "" {
		return payment, nil
	}
	// Offline gateways have no remote record to consult.
	if payment.Gateway == models.GatewayCash || payment.Gateway == models.GatewayManual {
		return payment, nil
	}

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}

	var resp *gateway.PaymentResponse
	err = gateway.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = adapter.GetPayment(ctx, payment.GatewayPaymentID)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return payment, s.reconcileFromResponse(ctx, payment, resp)
}

// reconcileFromResponse applies a fetched gateway state via the transition
// primitive. Invalid transitions from a status pull are logged, not raised:
// the local row is the curated record and a stale read must not corrupt it.
func (s *PaymentService) reconcileFromResponse(ctx context.Context, payment *models.Payment, resp *gateway.PaymentResponse) error {
	target := resp.Status
	if !resp.Success && resp.DeclineCode != "" {
		target = models.PaymentStatusFailed
	}
	changed, err := s.ApplyPaymentTransition(ctx, payment, target, func(p *models.Payment) {
		if resp.GatewayPaymentID != "" {
			p.GatewayPaymentID = resp.GatewayPaymentID
		}
		p.RequiresAction = resp.RequiresAction
		p.ActionURL = resp.ActionURL
		if resp.FeeAmount != nil {
			p.FeeAmount = resp.FeeAmount
			p.NetAmount = resp.NetAmount
		}
		if target == models.PaymentStatusFailed {
			p.FailureCode = resp.DeclineCode
			p.FailureMessage = resp.DeclineMessage
		}
	})
	if err != nil {
		log.Printf("payment %d: transition %s -> %s rejected: %v", payment.ID, payment.Status, target, err)
		return nil
	}
	if changed {
		log.Printf("payment %d: status -> %s", payment.ID, payment.Status)
	}
	return nil
}

// ApplyPaymentTransition is the single write path for payment status. It
// evaluates the transition rules, applies the mutation when allowed, and
// keeps the owning order's bookkeeping current. Returns whether the row
// changed; invalid transitions return a ValidationError.
func (s *PaymentService) ApplyPaymentTransition(ctx context.Context, payment *models.Payment, target models.PaymentStatus, mutate func(*models.Payment)) (bool, error) {
	switch models.EvalPaymentTransition(payment.Status, target) {
	case models.TransitionNoop:
		return false, nil
	case models.TransitionInvalid:
		return false, validationErr("status", "transition %s -> %s is not allowed", payment.Status, target)
	}

	payment.Status = target
	if mutate != nil {
		mutate(payment)
	}
	if target == models.PaymentStatusCompleted && payment.ProcessedAt == nil {
		now := time.Now()
		payment.ProcessedAt = &now
	}
	if err := s.db.WithContext(ctx).Save(payment).Error; err != nil {
		return false, err
	}
	if err := s.RefreshOrderPaymentState(ctx, payment.OrderID); err != nil {
		log.Printf("payment %d: order bookkeeping failed: %v", payment.ID, err)
	}
	return true, nil
}

// ApplyRefundTransition is the refund counterpart; completing a refund also
// rolls the parent payment to REFUNDED or PARTIALLY_REFUNDED.
func (s *PaymentService) ApplyRefundTransition(ctx context.Context, refund *models.Refund, target models.RefundStatus, mutate func(*models.Refund)) (bool, error) {
	switch models.EvalRefundTransition(refund.Status, target) {
	case models.TransitionNoop:
		return false, nil
	case models.TransitionInvalid:
		return false, validationErr("status", "refund transition %s -> %s is not allowed", refund.Status, target)
	}

	refund.Status = target
	if mutate != nil {
		mutate(refund)
	}
	if target == models.RefundStatusCompleted && refund.ProcessedAt == nil {
		now := time.Now()
		refund.ProcessedAt = &now
	}
	if err := s.db.WithContext(ctx).Save(refund).Error; err != nil {
		return false, err
	}

	if target == models.RefundStatusCompleted {
		if err := s.rollUpRefunds(ctx, refund.PaymentID); err != nil {
			log.Printf("refund %d: payment roll-up failed: %v", refund.ID, err)
		}
	}
	return true, nil
}

// rollUpRefunds recomputes the parent payment's refund standing from all its
// completed refunds.
func (s *PaymentService) rollUpRefunds(ctx context.Context, paymentID uint) error {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		return err
	}

	var refunds []models.Refund
	if err := s.db.WithContext(ctx).Where("payment_id = ? AND status = ?", paymentID, models.RefundStatusCompleted).Find(&refunds).Error; err != nil {
		return err
	}
	refunded := decimal.Zero
	for _, r := range refunds {
		refunded = refunded.Add(r.Amount)
	}

	target := models.PaymentStatusPartiallyRefunded
	if refunded.GreaterThanOrEqual(payment.Amount) {
		target = models.PaymentStatusRefunded
	}
	_, err := s.ApplyPaymentTransition(ctx, &payment, target, nil)
	return err
}

type CreateRefundInput struct {
	PaymentID   uint
	Amount      *decimal.Decimal // nil refunds the full remaining amount
	Reason      string
	InitiatedBy string
	Metadata    map[string]interface{}
}

// CreateRefund validates the refund against the payment's remaining
// refundable amount, flushes a PENDING row, then calls the gateway — the
// same crash-safety pattern as CreatePayment.
func (s *PaymentService) CreateRefund(ctx context.Context, in CreateRefundInput) (*models.Refund, error) {
	payment, err := s.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	switch payment.Status {
	case models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded:
	default:
		return nil, validationErr("status", "cannot refund a %s payment", payment.Status)
	}

	adapter, err := s.gateways.Get(payment.Gateway)
	if err != nil {
		return nil, validationErr("gateway", "%v", err)
	}
	if !adapter.SupportsRefunds() {
		return nil, validationErr("gateway", "%s does not support refunds", payment.Gateway)
	}

	// Existing non-failed refunds reserve their amounts.
	var existing []models.Refund
	if err := s.db.WithContext(ctx).Where("payment_id = ?", payment.ID).Find(&existing).Error; err != nil {
		return nil, err
	}
	reserved := decimal.Zero
	for _, r := range existing {
		if r.Status.CountsAgainstPayment() {
			reserved = reserved.Add(r.Amount)
		}
	}
	remaining := payment.Amount.Sub(reserved)

	amount := remaining
	if in.Amount != nil {
		amount = *in.Amount
	}
	if !amount.IsPositive() {
		return nil, validationErr("amount", "must be positive, got %s", amount)
	}
	if amount.GreaterThan(remaining) {
		return nil, validationErr("amount", "refund %s exceeds remaining refundable %s", amount, remaining)
	}
	if amount.LessThan(payment.Amount) && !adapter.SupportsPartialRefunds() {
		return nil, validationErr("amount", "%s does not support partial refunds", payment.Gateway)
	}

	refund := models.Refund{
		PaymentID:      payment.ID,
		Gateway:        payment.Gateway,
		Amount:         amount,
		Currency:       payment.Currency,
		Status:         models.RefundStatusPending,
		Reason:         in.Reason,
		InitiatedBy:    in.InitiatedBy,
		IdempotencyKey: uuid.NewString(),
		Metadata:       in.Metadata,
	}
	if err := s.db.WithContext(ctx).Create(&refund).Error; err != nil {
		return nil, err
	}

	req := &gateway.RefundRequest{
		GatewayPaymentID: payment.GatewayPaymentID,
		Amount:           &amount,
		Currency:         payment.Currency,
		Reason:           in.Reason,
		IdempotencyKey:   refund.IdempotencyKey,
	}
	var resp *gateway.RefundResponse
	err = gateway.WithRetry(ctx, s.retry, func(ctx context.Context) error {
		var callErr error
		resp, callErr = adapter.CreateRefund(ctx, req)
		return callErr
	})
	if err != nil {
		log.Printf("refund %d: gateway %s call failed: %v", refund.ID, payment.Gateway, err)
		return nil, err
	}

	if resp.GatewayRefundID != "" {
		refund.GatewayRefundID = resp.GatewayRefundID
	}
	if !resp.Success {
		refund.FailureMessage = resp.DeclineMessage
	}
	if _, err := s.ApplyRefundTransition(ctx, &refund, resp.Status, nil); err != nil {
		return nil, err
	}
	return &refund, nil
}

// RefreshOrderPaymentState recomputes the order's paid amount from payments
// whose money was actually captured.
func (s *PaymentService) RefreshOrderPaymentState(ctx context.Context, orderID uint) error {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, orderID).Error; err != nil {
		return err
	}

	var payments []models.Payment
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Find(&payments).Error; err != nil {
		return err
	}

	paid := decimal.Zero
	for _, p := range payments {
		switch p.Status {
		case models.PaymentStatusCompleted, models.PaymentStatusPartiallyRefunded, models.PaymentStatusDisputed:
			paid = paid.Add(p.Amount)
		}
	}

	state := models.OrderUnpaid
	switch {
	case paid.GreaterThanOrEqual(order.TotalAmount) && order.TotalAmount.IsPositive():
		state = models.OrderPaid
	case paid.IsPositive():
		state = models.OrderPartiallyPaid
	}

	return s.db.WithContext(ctx).Model(&order).Updates(map[string]interface{}{
		"paid_amount":   paid,
		"payment_state": state,
	}).Error
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &payment, nil
}

func (s *PaymentService) ListOrderPayments(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Preload("Refunds").
		Find(&payments).Error
	return payments, err
}

func (s *PaymentService) savedMethod(ctx context.Context, id uint, gw models.Gateway) (*models.CustomerPaymentMethod, error) {
	var method models.CustomerPaymentMethod
	if err := s.db.WithContext(ctx).First(&method, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("payment method %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	if !method.IsActive {
		return nil, validationErr("payment_method", "method %d is no longer active", id)
	}
	if method.Gateway != gw {
		return nil, validationErr("payment_method", "method %d belongs to gateway %s", id, method.Gateway)
	}
	return &method, nil
}
