// Package gateway defines the capability contract every payment gateway
// adapter satisfies, plus the registry the orchestrator resolves adapters
// from. Declined payments are data on the response structs, never Go errors;
// errors coming out of an adapter always mean infrastructure trouble
// (network, auth, gateway 5xx) or a local validation failure.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
)

// ErrWebhookVerification is returned by VerifyWebhook when the signature or
// required headers do not check out. Callers reject the request without side
// effects.
var ErrWebhookVerification = errors.New("webhook verification failed")

// ErrUnsupported marks an operation the gateway has no equivalent for, e.g.
// saving cards with the cash adapter.
var ErrUnsupported = errors.New("operation not supported by gateway")

// InfraError wraps transport-level failures from a gateway call. Retryable
// errors are network faults, timeouts, 429 and 5xx responses.
type InfraError struct {
	Gateway   models.Gateway
	Op        string
	Status    int
	Retryable bool
	Err       error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }

// RetryableStatus reports whether an HTTP status from a gateway should be
// retried. 4xx other than 429 means the request itself is wrong and never
// retries.
func RetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// CreatePaymentRequest carries everything an adapter needs to start a
// charge. IdempotencyKey makes client retries safe at the gateway.
type CreatePaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	OrderNumber    string
	Description    string
	CustomerID     string // gateway-side customer id, optional
	CustomerEmail  string
	CustomerName   string
	MethodToken    string // saved payment method token, optional
	IdempotencyKey string
	ReturnURL      string
	Metadata       map[string]string
}

// PaymentResponse is the adapter's normalized view of a gateway reply.
// Success=false with DeclineCode set is a processed-and-declined payment,
// not an error.
type PaymentResponse struct {
	Success          bool
	GatewayPaymentID string
	Status           models.PaymentStatus
	RequiresAction   bool
	ActionURL        string
	MethodType       models.PaymentMethodType
	CardBrand        string
	CardLastFour     string
	FeeAmount        *decimal.Decimal
	NetAmount        *decimal.Decimal
	DeclineCode      string
	DeclineMessage   string
	Raw              json.RawMessage
}

// RefundRequest targets the gateway's payment id, not ours. A nil Amount
// asks for a full refund.
type RefundRequest struct {
	GatewayPaymentID string
	Amount           *decimal.Decimal
	Currency         string
	Reason           string
	IdempotencyKey   string
}

type RefundResponse struct {
	Success         bool
	GatewayRefundID string
	Status          models.RefundStatus
	Amount          decimal.Decimal
	DeclineMessage  string
	Raw             json.RawMessage
}

type CustomerRequest struct {
	Email string
	Name  string
	Phone string
}

// SavedMethodData is the display-safe description of a tokenized method.
type SavedMethodData struct {
	GatewayPaymentMethodID string
	MethodType             models.PaymentMethodType
	DisplayName            string
	CardBrand              string
	CardLastFour           string
	CardExpMonth           int
	CardExpYear            int
}

// VerifiedEvent is a signature-checked webhook in the gateway's native
// shape. EventID may be empty for gateways that do not assign one; mapping
// to our statuses happens in the reconciliation service.
type VerifiedEvent struct {
	EventID   string
	EventType string
	Payload   json.RawMessage
}

// Adapter is the capability set all gateway implementations satisfy.
type Adapter interface {
	Name() models.Gateway

	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error)
	// CapturePayment completes an authorized payment. A nil amount captures
	// the full authorization; auto-capturing gateways just re-fetch state.
	CapturePayment(ctx context.Context, gatewayPaymentID string, amount *decimal.Decimal) (*PaymentResponse, error)
	GetPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error)
	// CancelPayment is valid pre-capture only. Gateways without an explicit
	// cancel return current status instead of failing.
	CancelPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error)

	CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
	GetRefund(ctx context.Context, gatewayRefundID string) (*RefundResponse, error)

	CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error)
	UpdateCustomer(ctx context.Context, gatewayCustomerID string, req *CustomerRequest) error
	SavePaymentMethod(ctx context.Context, gatewayCustomerID, token string) (*SavedMethodData, error)
	ListPaymentMethods(ctx context.Context, gatewayCustomerID string) ([]SavedMethodData, error)
	DeletePaymentMethod(ctx context.Context, gatewayCustomerID, methodID string) error

	// VerifyWebhook checks the signature over the raw body using
	// constant-time comparison and returns the gateway's native payload.
	// Missing required headers reject.
	VerifyWebhook(headers http.Header, body []byte) (*VerifiedEvent, error)

	SupportsRefunds() bool
	SupportsPartialRefunds() bool

	// PublicConfig returns only values safe to hand to a client: publishable
	// key, application id, test-mode flag. Secrets are never reachable here.
	PublicConfig() map[string]string
}

// Registry maps the gateway enum to its adapter instance. Populated once at
// startup from configuration.
type Registry struct {
	adapters map[models.Gateway]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Gateway]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

func (r *Registry) Get(g models.Gateway) (Adapter, error) {
	a, ok := r.adapters[g]
	if !ok {
		return nil, fmt.Errorf("gateway %q not configured", g)
	}
	return a, nil
}

func (r *Registry) Names() []models.Gateway {
	names := make([]models.Gateway, 0, len(r.adapters))
	for g := range r.adapters {
		names = append(names, g)
	}
	return names
}
