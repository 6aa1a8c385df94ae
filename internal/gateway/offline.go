package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
)

// offlineAdapter backs the cash and manual gateways. Nothing leaves the
// process: payments complete immediately with no fees, refunds are recorded
// locally, and there is no gateway to send webhooks.
type offlineAdapter struct {
	name   models.Gateway
	method models.PaymentMethodType
}

func NewCashAdapter() Adapter {
	return &offlineAdapter{name: models.GatewayCash, method: models.MethodCash}
}

// NewManualAdapter covers payments settled outside the system entirely:
// gift certificates, comps, bank transfers keyed in by a manager.
func NewManualAdapter() Adapter {
	return &offlineAdapter{name: models.GatewayManual, method: models.MethodOther}
}

func (a *offlineAdapter) Name() models.Gateway { return a.name }

func (a *offlineAdapter) SupportsRefunds() bool        { return true }
func (a *offlineAdapter) SupportsPartialRefunds() bool { return true }

func (a *offlineAdapter) PublicConfig() map[string]string {
	return map[string]string{}
}

func (a *offlineAdapter) CreatePayment(_ context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	fee := decimal.Zero
	net := req.Amount
	return &PaymentResponse{
		Success:          true,
		GatewayPaymentID: string(a.name) + "_" + uuid.NewString(),
		Status:           models.PaymentStatusCompleted,
		MethodType:       a.method,
		FeeAmount:        &fee,
		NetAmount:        &net,
	}, nil
}

func (a *offlineAdapter) CapturePayment(_ context.Context, gatewayPaymentID string, _ *decimal.Decimal) (*PaymentResponse, error) {
	return &PaymentResponse{
		Success:          true,
		GatewayPaymentID: gatewayPaymentID,
		Status:           models.PaymentStatusCompleted,
		MethodType:       a.method,
	}, nil
}

// GetPayment has no remote record to consult; the local row is the source of
// truth and callers must not overwrite it from here.
func (a *offlineAdapter) GetPayment(_ context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	return &PaymentResponse{
		Success:          true,
		GatewayPaymentID: gatewayPaymentID,
		Status:           models.PaymentStatusCompleted,
		MethodType:       a.method,
	}, nil
}

func (a *offlineAdapter) CancelPayment(_ context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	return &PaymentResponse{
		Success:          true,
		GatewayPaymentID: gatewayPaymentID,
		Status:           models.PaymentStatusCanceled,
		MethodType:       a.method,
	}, nil
}

func (a *offlineAdapter) CreateRefund(_ context.Context, req *RefundRequest) (*RefundResponse, error) {
	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}
	return &RefundResponse{
		Success:         true,
		GatewayRefundID: string(a.name) + "_rf_" + uuid.NewString(),
		Status:          models.RefundStatusCompleted,
		Amount:          amount,
	}, nil
}

func (a *offlineAdapter) GetRefund(_ context.Context, gatewayRefundID string) (*RefundResponse, error) {
	return &RefundResponse{
		Success:         true,
		GatewayRefundID: gatewayRefundID,
		Status:          models.RefundStatusCompleted,
	}, nil
}

func (a *offlineAdapter) CreateCustomer(context.Context, *CustomerRequest) (string, error) {
	return "", ErrUnsupported
}

func (a *offlineAdapter) UpdateCustomer(context.Context, string, *CustomerRequest) error {
	return ErrUnsupported
}

func (a *offlineAdapter) SavePaymentMethod(context.Context, string, string) (*SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *offlineAdapter) ListPaymentMethods(context.Context, string) ([]SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *offlineAdapter) DeletePaymentMethod(context.Context, string, string) error {
	return ErrUnsupported
}

func (a *offlineAdapter) VerifyWebhook(http.Header, []byte) (*VerifiedEvent, error) {
	return nil, ErrWebhookVerification
}
