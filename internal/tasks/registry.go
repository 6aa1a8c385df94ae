package tasks

import (
	"context"
	"sync"

	"gorm.io/gorm"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

// TaskHandler executes one scheduled task run and returns a result map for
// the history row.
type TaskHandler func(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error)

// Deps are the service handles task handlers run against. Configure is
// called once by the worker before any task executes.
type Deps struct {
	Payments *services.PaymentService
	Webhooks *services.WebhookService
	Splits   *services.BillSplitService
	Tips     *services.TipService
	Refunds  *services.RefundRequestService
	Email    *services.EmailService
}

var deps Deps

// Configure wires the services task handlers depend on.
func Configure(d Deps) {
	deps = d
}

// Registry stores the mapping of task names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]TaskHandler
}

// GlobalRegistry is the default global registry
var GlobalRegistry = &Registry{
	handlers: make(map[string]TaskHandler),
}

// Register adds a handler for a task name
func (r *Registry) Register(name string, handler TaskHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get retrieves a handler for a task name
func (r *Registry) Get(name string) (TaskHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[name]
	return handler, ok
}

// RegisterHandler is a helper to register to the global registry
func RegisterHandler(name string, handler TaskHandler) {
	GlobalRegistry.Register(name, handler)
}

// GetHandler is a helper to get from the global registry
func GetHandler(name string) (TaskHandler, bool) {
	return GlobalRegistry.Get(name)
}
