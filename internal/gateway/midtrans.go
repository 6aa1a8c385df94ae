package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
)

// MidtransConfig configures the Midtrans adapter used by locations in the
// Indonesian market. Midtrans keys transactions by the reference we send, so
// GatewayPaymentID on responses is that reference, not a gateway id.
type MidtransConfig struct {
	ServerKey string
	ClientKey string
	TestMode  bool
}

type MidtransAdapter struct {
	cfg  MidtransConfig
	snap snap.Client
	core coreapi.Client
}

func NewMidtransAdapter(cfg MidtransConfig) *MidtransAdapter {
	env := midtrans.Production
	if cfg.TestMode {
		env = midtrans.Sandbox
	}

	a := &MidtransAdapter{cfg: cfg}
	a.snap.New(cfg.ServerKey, env)
	a.core.New(cfg.ServerKey, env)
	return a
}

func (a *MidtransAdapter) Name() models.Gateway { return models.GatewayMidtrans }

func (a *MidtransAdapter) SupportsRefunds() bool        { return true }
func (a *MidtransAdapter) SupportsPartialRefunds() bool { return true }

func (a *MidtransAdapter) PublicConfig() map[string]string {
	return map[string]string{
		"client_key": a.cfg.ClientKey,
		"test_mode":  boolString(a.cfg.TestMode),
	}
}

var midtransPaymentStatus = map[string]models.PaymentStatus{
	"pending":        models.PaymentStatusPending,
	"authorize":      models.PaymentStatusProcessing,
	"capture":        models.PaymentStatusCompleted,
	"settlement":     models.PaymentStatusCompleted,
	"deny":           models.PaymentStatusFailed,
	"failure":        models.PaymentStatusFailed,
	"cancel":         models.PaymentStatusCanceled,
	"expire":         models.PaymentStatusCanceled,
	"refund":         models.PaymentStatusRefunded,
	"partial_refund": models.PaymentStatusPartiallyRefunded,
	"chargeback":     models.PaymentStatusDisputed,
}

func midtransErr(op string, err *midtrans.Error) *InfraError {
	return &InfraError{
		Gateway:   models.GatewayMidtrans,
		Op:        op,
		Status:    err.StatusCode,
		Retryable: RetryableStatus(err.StatusCode),
		Err:       err,
	}
}

// grossAmount converts to whole rupiah, the unit GrossAmt expects.
func grossAmount(amount decimal.Decimal) int64 {
	return amount.RoundBank(0).IntPart()
}

// midtransReference builds the transaction reference. Midtrans rejects a
// reused order_id, and one order can carry several payment attempts (split
// shares, retries after a decline), so the reference is unique per attempt
// while staying stable across retries of the same attempt.
func midtransReference(req *CreatePaymentRequest) string {
	if id, ok := req.Metadata["payment_id"]; ok && id != "" {
		return fmt.Sprintf("%s-P%s", req.OrderNumber, id)
	}
	return req.OrderNumber + "-" + req.IdempotencyKey
}

// CreatePayment creates a Snap transaction. The payer finishes on the
// hosted page, so every new payment starts in requires_action.
func (a *MidtransAdapter) CreatePayment(_ context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	reference := midtransReference(req)
	param := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  reference,
			GrossAmt: grossAmount(req.Amount),
		},
	}
	if req.CustomerEmail != "" || req.CustomerName != "" {
		param.CustomerDetail = &midtrans.CustomerDetails{
			FName: req.CustomerName,
			Email: req.CustomerEmail,
		}
	}

	resp, err := a.snap.CreateTransaction(param)
	if err != nil {
		return nil, midtransErr("create_payment", err)
	}
	return &PaymentResponse{
		Success:          true,
		GatewayPaymentID: reference,
		Status:           models.PaymentStatusRequiresAction,
		RequiresAction:   true,
		ActionURL:        resp.RedirectURL,
		MethodType:       models.MethodWallet,
	}, nil
}

// CapturePayment: Snap transactions settle on their own; capture re-fetches.
func (a *MidtransAdapter) CapturePayment(ctx context.Context, gatewayPaymentID string, _ *decimal.Decimal) (*PaymentResponse, error) {
	return a.GetPayment(ctx, gatewayPaymentID)
}

func (a *MidtransAdapter) GetPayment(_ context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	status, err := a.core.CheckTransaction(gatewayPaymentID)
	if err != nil {
		return nil, midtransErr("get_payment", err)
	}
	return a.statusToResponse(gatewayPaymentID, status.TransactionStatus, status.StatusMessage), nil
}

func (a *MidtransAdapter) CancelPayment(_ context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	resp, err := a.core.CancelTransaction(gatewayPaymentID)
	if err != nil {
		return nil, midtransErr("cancel_payment", err)
	}
	return a.statusToResponse(gatewayPaymentID, resp.TransactionStatus, resp.StatusMessage), nil
}

func (a *MidtransAdapter) statusToResponse(gatewayPaymentID, txStatus, message string) *PaymentResponse {
	mapped := mapLookupPayment(midtransPaymentStatus, txStatus)
	resp := &PaymentResponse{
		Success:          mapped != models.PaymentStatusFailed,
		GatewayPaymentID: gatewayPaymentID,
		Status:           mapped,
		MethodType:       models.MethodWallet,
	}
	if mapped == models.PaymentStatusFailed {
		resp.DeclineCode = txStatus
		resp.DeclineMessage = message
	}
	return resp
}

func (a *MidtransAdapter) CreateRefund(_ context.Context, req *RefundRequest) (*RefundResponse, error) {
	param := &coreapi.RefundReq{
		RefundKey: req.IdempotencyKey,
		Reason:    req.Reason,
	}
	if req.Amount != nil {
		param.Amount = grossAmount(*req.Amount)
	}

	resp, err := a.core.RefundTransaction(req.GatewayPaymentID, param)
	if err != nil {
		if err.StatusCode == http.StatusPaymentRequired || err.StatusCode == http.StatusPreconditionFailed {
			return &RefundResponse{
				Success:        false,
				Status:         models.RefundStatusFailed,
				DeclineMessage: err.Message,
			}, nil
		}
		return nil, midtransErr("create_refund", err)
	}

	amount := decimal.Zero
	if v, perr := decimal.NewFromString(resp.RefundAmount); perr == nil {
		amount = v
	} else if req.Amount != nil {
		amount = *req.Amount
	}
	return &RefundResponse{
		Success:         true,
		GatewayRefundID: resp.RefundKey,
		Status:          models.RefundStatusCompleted,
		Amount:          amount,
	}, nil
}

// GetRefund: refund state is folded into the transaction status; there is no
// standalone refund lookup on the core API.
func (a *MidtransAdapter) GetRefund(context.Context, string) (*RefundResponse, error) {
	return nil, ErrUnsupported
}

func (a *MidtransAdapter) CreateCustomer(context.Context, *CustomerRequest) (string, error) {
	return "", ErrUnsupported
}

func (a *MidtransAdapter) UpdateCustomer(context.Context, string, *CustomerRequest) error {
	return ErrUnsupported
}

func (a *MidtransAdapter) SavePaymentMethod(context.Context, string, string) (*SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *MidtransAdapter) ListPaymentMethods(context.Context, string) ([]SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *MidtransAdapter) DeletePaymentMethod(context.Context, string, string) error {
	return ErrUnsupported
}

// VerifyWebhook checks the notification's signature_key field:
// SHA512(order_id + status_code + gross_amount + server_key). Midtrans does
// not assign event ids, so EventID stays empty, receipt dedup is skipped, and
// replays are absorbed by the status transition noops instead.
func (a *MidtransAdapter) VerifyWebhook(_ http.Header, body []byte) (*VerifiedEvent, error) {
	var notif struct {
		OrderID           string `json:"order_id"`
		StatusCode        string `json:"status_code"`
		GrossAmount       string `json:"gross_amount"`
		SignatureKey      string `json:"signature_key"`
		TransactionStatus string `json:"transaction_status"`
	}
	if err := json.Unmarshal(body, &notif); err != nil {
		return nil, ErrWebhookVerification
	}
	if notif.SignatureKey == "" {
		return nil, ErrWebhookVerification
	}

	sum := sha512.Sum512([]byte(notif.OrderID + notif.StatusCode + notif.GrossAmount + a.cfg.ServerKey))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(notif.SignatureKey)) != 1 {
		return nil, ErrWebhookVerification
	}

	return &VerifiedEvent{
		EventType: "transaction." + notif.TransactionStatus,
		Payload:   json.RawMessage(body),
	}, nil
}
