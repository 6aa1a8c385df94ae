package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"dinepay/internal/models"
)

// SendSplitRemindersArgs defines the arguments for a split reminder task
type SendSplitRemindersArgs struct {
	BillSplitID  uint `json:"bill_split_id"`
	AttemptCount int  `json:"attempt_count"`
}

// SendSplitRemindersTaskDef re-sends payment links to participants who have
// not settled their share yet. Partial failures reschedule a follow-up task
// carrying only the participants that failed, up to MaxAttempt rounds.
type SendSplitRemindersTaskDef struct{}

// TaskID returns the unique identifier for this task
func (t *SendSplitRemindersTaskDef) TaskID() string {
	return "send_split_reminders"
}

// CreateTask builds a ScheduledTask record for this task
func (t *SendSplitRemindersTaskDef) CreateTask(args SendSplitRemindersArgs, due time.Time) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, due, nil, models.ScheduledTaskTypeOneTime, 3)
}

// HandleExecution emails every unsettled participant their payment link
func (t *SendSplitRemindersTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if deps.Email == nil {
		return nil, fmt.Errorf("email service not configured")
	}

	argsBytes, err := json.Marshal(task.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}
	var parsedArgs SendSplitRemindersArgs
	if err := json.Unmarshal(argsBytes, &parsedArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	var split models.BillSplit
	err = db.WithContext(ctx).Preload("Participants").First(&split, parsedArgs.BillSplitID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Printf("[Task: send_split_reminders] split %d no longer exists, skipping", parsedArgs.BillSplitID)
			return map[string]interface{}{"status": "skipped", "reason": "split not found"}, nil
		}
		return nil, fmt.Errorf("failed to load split %d: %w", parsedArgs.BillSplitID, err)
	}

	switch split.Status {
	case models.SplitStatusPending, models.SplitStatusActive, models.SplitStatusPartiallyPaid:
	default:
		log.Printf("[Task: send_split_reminders] split %d is %s, nothing to remind", split.ID, split.Status)
		return map[string]interface{}{"status": "skipped", "reason": string(split.Status)}, nil
	}

	total := 0
	successCount := 0
	skippedCount := 0
	failureCount := 0
	var failures []string

	for i := range split.Participants {
		p := &split.Participants[i]
		switch p.Status {
		case models.ParticipantStatusDeclined, models.ParticipantStatusPaid:
			continue
		}
		total++
		if p.Email == "" {
			skippedCount++
			continue
		}

		if err := deps.Email.SendSplitReminder(ctx, &split, p); err != nil {
			log.Printf("[Task: send_split_reminders] split %d: reminder to %s failed: %v", split.ID, p.Email, err)
			failureCount++
			failures = append(failures, fmt.Sprintf("%s: %v", p.Email, err))
			continue
		}
		successCount++
	}

	result := map[string]interface{}{
		"status":  "success",
		"total":   total,
		"success": successCount,
		"skipped": skippedCount,
		"failure": failureCount,
	}

	if failureCount > 0 {
		result["errors"] = failures

		attempt := parsedArgs.AttemptCount
		maxRetries := task.MaxAttempt
		if attempt < maxRetries {
			log.Printf("[Task: send_split_reminders] %d reminders failed, rescheduling attempt %d", failureCount, attempt+1)

			newArgs := parsedArgs
			newArgs.AttemptCount = attempt + 1

			newTask, err := BuildScheduledTask(t.TaskID(), newArgs, time.Now().Add(5*time.Minute), nil, models.ScheduledTaskTypeOneTime, maxRetries)
			if err == nil {
				db.WithContext(ctx).Create(newTask)
			} else {
				log.Printf("[Task: send_split_reminders] failed to create retry task: %v", err)
			}
		} else {
			log.Printf("[Task: send_split_reminders] max attempts (%d) reached for split %d", maxRetries, split.ID)
			return result, fmt.Errorf("max attempts reached, %d reminders undelivered", failureCount)
		}
	}

	return result, nil
}

// SendSplitRemindersTask is the singleton instance of SendSplitRemindersTaskDef
var SendSplitRemindersTask = &SendSplitRemindersTaskDef{}
