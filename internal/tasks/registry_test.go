package tasks

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"dinepay/internal/models"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := &Registry{handlers: make(map[string]TaskHandler)}

	called := false
	r.Register("test_task", func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
		called = true
		return nil, nil
	})

	handler, ok := r.Get("test_task")
	if !ok {
		t.Fatal("expected handler to be registered")
	}
	if _, err := handler(context.Background(), nil, models.ScheduledTask{}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !called {
		t.Error("handler was not invoked")
	}

	if _, ok := r.Get("missing_task"); ok {
		t.Error("expected missing task to not resolve")
	}
}

func TestDefineTasksRegistersAllHandlers(t *testing.T) {
	DefineTasks()

	names := []string{
		"log_info",
		"retry_webhook_events",
		"sync_payment_statuses",
		"expire_bill_splits",
		"process_approved_refunds",
		"distribute_pooled_tips",
		"send_split_reminders",
	}
	for _, name := range names {
		if _, ok := GetHandler(name); !ok {
			t.Errorf("task %q not registered", name)
		}
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]interface{}
		want int
	}{
		{"missing key", map[string]interface{}{}, 50},
		{"json number", map[string]interface{}{"limit": float64(10)}, 10},
		{"native int", map[string]interface{}{"limit": 25}, 25},
		{"wrong type", map[string]interface{}{"limit": "ten"}, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intArg(tt.args, "limit", 50); got != tt.want {
				t.Errorf("intArg = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestBuildScheduledTask(t *testing.T) {
	args := SendSplitRemindersArgs{BillSplitID: 7, AttemptCount: 1}
	task, err := BuildScheduledTask("send_split_reminders", args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
	if err != nil {
		t.Fatalf("BuildScheduledTask: %v", err)
	}
	if task.TaskName != "send_split_reminders" {
		t.Errorf("TaskName = %q", task.TaskName)
	}
	if got := task.Arguments["bill_split_id"]; got != float64(7) {
		t.Errorf("bill_split_id = %v; want 7", got)
	}
	if task.Status != models.ScheduledTaskStatusActive {
		t.Errorf("Status = %q; want active", task.Status)
	}
}
