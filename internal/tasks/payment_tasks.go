package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

// RetryWebhookEventsTaskDef re-dispatches webhook events whose handler
// failed on delivery. Runs on a recurring schedule.
type RetryWebhookEventsTaskDef struct{}

func (t *RetryWebhookEventsTaskDef) TaskID() string {
	return "retry_webhook_events"
}

func (t *RetryWebhookEventsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Webhooks == nil {
		return nil, fmt.Errorf("webhook service not configured")
	}

	limit := intArg(task.Arguments, "limit", 50)
	recovered, err := deps.Webhooks.RetryFailedEvents(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("webhook retry sweep failed: %w", err)
	}

	return map[string]interface{}{
		"status":    "success",
		"recovered": recovered,
	}, nil
}

var RetryWebhookEventsTask = &RetryWebhookEventsTaskDef{}

// SyncPaymentStatusesTaskDef reconciles payments stuck in a non-terminal
// status by pulling the gateway's view. Covers webhooks that never arrived.
type SyncPaymentStatusesTaskDef struct{}

func (t *SyncPaymentStatusesTaskDef) TaskID() string {
	return "sync_payment_statuses"
}

// staleAfter is how long a payment may sit in a non-terminal status before
// the sweep asks the gateway about it.
const staleAfter = 15 * time.Minute

func (t *SyncPaymentStatusesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Payments == nil {
		return nil, fmt.Errorf("payment service not configured")
	}

	limit := intArg(task.Arguments, "limit", 100)
	cutoff := time.Now().Add(-staleAfter)

	var payments []models.Payment
	err := db.WithContext(ctx).
		Where("status IN ?", []models.PaymentStatus{
			models.PaymentStatusPending,
			models.PaymentStatusProcessing,
			models.PaymentStatusRequiresAction,
		}).
		Where("gateway NOT IN ?", []models.Gateway{models.GatewayCash, models.GatewayManual}).
		Where("gateway_payment_id <> ''").
		Where("updated_at < ?", cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}

	synced := 0
	failed := 0
	for _, p := range payments {
		if _, err := deps.Payments.SyncPaymentStatus(ctx, p.ID); err != nil {
			failed++
			log.Printf("[Task: sync_payment_statuses] payment %d sync failed: %v", p.ID, err)
			continue
		}
		synced++
	}

	return map[string]interface{}{
		"status":  "success",
		"scanned": len(payments),
		"synced":  synced,
		"failed":  failed,
	}, nil
}

var SyncPaymentStatusesTask = &SyncPaymentStatusesTaskDef{}

// ExpireBillSplitsTaskDef cancels splits that passed their expiry without
// collecting anything.
type ExpireBillSplitsTaskDef struct{}

func (t *ExpireBillSplitsTaskDef) TaskID() string {
	return "expire_bill_splits"
}

func (t *ExpireBillSplitsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Splits == nil {
		return nil, fmt.Errorf("bill split service not configured")
	}

	expired, err := deps.Splits.ExpireStaleSplits(ctx)
	if err != nil {
		return nil, fmt.Errorf("split expiry sweep failed: %w", err)
	}

	return map[string]interface{}{
		"status":  "success",
		"expired": expired,
	}, nil
}

var ExpireBillSplitsTask = &ExpireBillSplitsTaskDef{}

// ProcessApprovedRefundsTaskDef picks up refund requests that were approved
// but whose gateway call failed at approval time, and retries processing.
type ProcessApprovedRefundsTaskDef struct{}

func (t *ProcessApprovedRefundsTaskDef) TaskID() string {
	return "process_approved_refunds"
}

func (t *ProcessApprovedRefundsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Refunds == nil {
		return nil, fmt.Errorf("refund request service not configured")
	}

	limit := intArg(task.Arguments, "limit", 25)

	var requests []models.RefundRequest
	err := db.WithContext(ctx).
		Where("status IN ?", []models.RefundRequestStatus{
			models.RefundRequestApproved,
			models.RefundRequestAutoApproved,
		}).
		Where("refund_id IS NULL").
		Order("created_at asc").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed refund requests: %w", err)
	}

	processed := 0
	failed := 0
	for _, r := range requests {
		if err := deps.Refunds.Process(ctx, r.ID, "system"); err != nil {
			failed++
			log.Printf("[Task: process_approved_refunds] request %d: %v", r.ID, err)
			continue
		}
		processed++
	}

	return map[string]interface{}{
		"status":    "success",
		"scanned":   len(requests),
		"processed": processed,
		"failed":    failed,
	}, nil
}

var ProcessApprovedRefundsTask = &ProcessApprovedRefundsTaskDef{}

// DistributePooledTipsTaskDef runs on a recurring schedule (typically a
// weekly RRULE) and pool-distributes collected tips for paid orders that have
// no distribution yet, across all active staff.
type DistributePooledTipsTaskDef struct{}

func (t *DistributePooledTipsTaskDef) TaskID() string {
	return "distribute_pooled_tips"
}

func (t *DistributePooledTipsTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Tips == nil {
		return nil, fmt.Errorf("tip service not configured")
	}

	limit := intArg(task.Arguments, "limit", 50)

	var staff []models.StaffMember
	if err := db.WithContext(ctx).Where("is_active = ?", true).Find(&staff).Error; err != nil {
		return nil, fmt.Errorf("failed to load staff: %w", err)
	}
	if len(staff) == 0 {
		return map[string]interface{}{"status": "skipped", "reason": "no active staff"}, nil
	}

	recipients := make([]services.TipRecipientInput, 0, len(staff))
	for _, m := range staff {
		recipients = append(recipients, services.TipRecipientInput{StaffID: m.ID})
	}

	distributed := db.WithContext(ctx).Model(&models.TipDistribution{}).Select("order_id")
	var orders []models.Order
	err := db.WithContext(ctx).
		Where("tip_amount > 0 AND payment_state = ?", models.OrderPaid).
		Where("id NOT IN (?)", distributed).
		Order("created_at asc").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list undistributed orders: %w", err)
	}

	done := 0
	failed := 0
	for _, order := range orders {
		_, err := deps.Tips.Distribute(ctx, services.DistributeTipInput{
			OrderID:    order.ID,
			Method:     models.TipDistributePool,
			Recipients: recipients,
		})
		if err != nil {
			failed++
			log.Printf("[Task: distribute_pooled_tips] order %s: %v", order.OrderNumber, err)
			continue
		}
		done++
	}

	return map[string]interface{}{
		"status":      "success",
		"scanned":     len(orders),
		"distributed": done,
		"failed":      failed,
	}, nil
}

var DistributePooledTipsTask = &DistributePooledTipsTaskDef{}

// intArg reads a numeric task argument. JSON-decoded numbers arrive as
// float64.
func intArg(args map[string]interface{}, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
