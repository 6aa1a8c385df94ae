package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

// PayPalConfig holds the REST credentials for PayPal. WebhookID identifies
// the registered webhook subscription; verification is delegated to
// PayPal's verify-webhook-signature endpoint since the transmission
// signature scheme requires their cert chain.
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	BaseURL      string // https://api-m.paypal.com or the sandbox host
	TestMode     bool
	FeePercent   decimal.Decimal
	FeeFixed     decimal.Decimal
}

type PayPalAdapter struct {
	cfg    PayPalConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewPayPalAdapter(cfg PayPalConfig) *PayPalAdapter {
	if cfg.BaseURL == "" {
		if cfg.TestMode {
			cfg.BaseURL = "https://api-m.sandbox.paypal.com"
		} else {
			cfg.BaseURL = "https://api-m.paypal.com"
		}
	}
	return &PayPalAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *PayPalAdapter) Name() models.Gateway { return models.GatewayPayPal }

func (a *PayPalAdapter) SupportsRefunds() bool        { return true }
func (a *PayPalAdapter) SupportsPartialRefunds() bool { return true }

func (a *PayPalAdapter) PublicConfig() map[string]string {
	return map[string]string{
		"client_id": a.cfg.ClientID,
		"test_mode": boolString(a.cfg.TestMode),
	}
}

var paypalOrderStatus = map[string]models.PaymentStatus{
	"CREATED":               models.PaymentStatusPending,
	"SAVED":                 models.PaymentStatusPending,
	"PAYER_ACTION_REQUIRED": models.PaymentStatusRequiresAction,
	"APPROVED":              models.PaymentStatusProcessing,
	"COMPLETED":             models.PaymentStatusCompleted,
	"VOIDED":                models.PaymentStatusCanceled,
}

var paypalRefundStatus = map[string]models.RefundStatus{
	"PENDING":   models.RefundStatusProcessing,
	"COMPLETED": models.RefundStatusCompleted,
	"FAILED":    models.RefundStatusFailed,
	"CANCELLED": models.RefundStatusCanceled,
}

// token returns a cached OAuth2 access token, refreshing it one minute
// before expiry.
func (a *PayPalAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", &InfraError{Gateway: models.GatewayPayPal, Op: "oauth_token", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &InfraError{
			Gateway:   models.GatewayPayPal,
			Op:        "oauth_token",
			Status:    resp.StatusCode,
			Retryable: RetryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("paypal: decode token: %w", err)
	}
	a.accessToken = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

// call issues one authenticated REST request. requestID, when set, goes into
// PayPal-Request-Id so gateway-side retries stay idempotent.
func (a *PayPalAdapter) call(ctx context.Context, method, path, requestID string, payload, out any) error {
	tok, err := a.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("paypal: encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &InfraError{Gateway: models.GatewayPayPal, Op: method + " " + path, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &InfraError{Gateway: models.GatewayPayPal, Op: method + " " + path, Retryable: true, Err: err}
	}

	if resp.StatusCode >= 400 {
		var perr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &perr)
		return &InfraError{
			Gateway:   models.GatewayPayPal,
			Op:        method + " " + path,
			Status:    resp.StatusCode,
			Retryable: RetryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("%s: %s", perr.Name, perr.Message),
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("paypal: decode %s: %w", path, err)
		}
	}
	return nil
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	PurchaseUnits []struct {
		Amount   paypalAmount `json:"amount"`
		Payments *struct {
			Captures []struct {
				ID                        string       `json:"id"`
				Status                    string       `json:"status"`
				Amount                    paypalAmount `json:"amount"`
				SellerReceivableBreakdown *struct {
					PayPalFee paypalAmount `json:"paypal_fee"`
					NetAmount paypalAmount `json:"net_amount"`
				} `json:"seller_receivable_breakdown"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (a *PayPalAdapter) orderToResponse(o *paypalOrder) *PaymentResponse {
	raw, _ := json.Marshal(o)
	resp := &PaymentResponse{
		Success:          o.Status != "VOIDED",
		GatewayPaymentID: o.ID,
		Status:           mapLookupPayment(paypalOrderStatus, o.Status),
		MethodType:       models.MethodWallet,
		Raw:              raw,
	}
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			resp.RequiresAction = resp.Status == models.PaymentStatusPending || resp.Status == models.PaymentStatusRequiresAction
			resp.ActionURL = l.Href
		}
	}
	if resp.ActionURL != "" && resp.Status == models.PaymentStatusPending {
		// An unapproved order is waiting on the payer, not on us.
		resp.Status = models.PaymentStatusRequiresAction
		resp.RequiresAction = true
	}
	if resp.Status == models.PaymentStatusCompleted && len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			capture := pu.Payments.Captures[0]
			if capture.SellerReceivableBreakdown != nil {
				if fee, err := decimal.NewFromString(capture.SellerReceivableBreakdown.PayPalFee.Value); err == nil {
					net, nerr := decimal.NewFromString(capture.SellerReceivableBreakdown.NetAmount.Value)
					if nerr == nil {
						resp.FeeAmount = &fee
						resp.NetAmount = &net
					}
				}
			}
		}
		if resp.FeeAmount == nil {
			if amount, err := decimal.NewFromString(pu.Amount.Value); err == nil {
				fee, net := money.CalculateFee(amount, a.cfg.FeePercent, a.cfg.FeeFixed)
				resp.FeeAmount = &fee
				resp.NetAmount = &net
			}
		}
	}
	return resp
}

func (a *PayPalAdapter) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderNumber,
			"description":  req.Description,
			"amount": paypalAmount{
				CurrencyCode: strings.ToUpper(req.Currency),
				Value:        money.Round(req.Amount, req.Currency).StringFixed(money.Exponent(req.Currency)),
			},
		}},
	}
	if req.ReturnURL != "" {
		payload["payment_source"] = map[string]any{
			"paypal": map[string]any{
				"experience_context": map[string]any{
					"return_url": req.ReturnURL,
				},
			},
		}
	}

	var order paypalOrder
	if err := a.call(ctx, http.MethodPost, "/v2/checkout/orders", req.IdempotencyKey, payload, &order); err != nil {
		return nil, err
	}
	return a.orderToResponse(&order), nil
}

// CapturePayment captures an approved order. PayPal reports payer declines
// as a 422 INSTRUMENT_DECLINED, which we surface as decline data.
func (a *PayPalAdapter) CapturePayment(ctx context.Context, gatewayPaymentID string, _ *decimal.Decimal) (*PaymentResponse, error) {
	var order paypalOrder
	err := a.call(ctx, http.MethodPost, "/v2/checkout/orders/"+gatewayPaymentID+"/capture", "", map[string]any{}, &order)
	if err != nil {
		var infra *InfraError
		if isPayPalDecline(err, &infra) {
			return &PaymentResponse{
				Success:        false,
				Status:         models.PaymentStatusFailed,
				DeclineCode:    "instrument_declined",
				DeclineMessage: infra.Err.Error(),
			}, nil
		}
		return nil, err
	}
	return a.orderToResponse(&order), nil
}

func (a *PayPalAdapter) GetPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	var order paypalOrder
	if err := a.call(ctx, http.MethodGet, "/v2/checkout/orders/"+gatewayPaymentID, "", nil, &order); err != nil {
		return nil, err
	}
	return a.orderToResponse(&order), nil
}

// CancelPayment: the orders API has no explicit void for an uncaptured
// order; it simply expires. Report current state so callers can mark the
// local row canceled once nothing was captured.
func (a *PayPalAdapter) CancelPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	resp, err := a.GetPayment(ctx, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if resp.Status != models.PaymentStatusCompleted {
		resp.Status = models.PaymentStatusCanceled
	}
	return resp, nil
}

type paypalRefund struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Amount paypalAmount `json:"amount"`
}

// CreateRefund refunds a capture. The capture id is resolved from the order
// because callers track order ids.
func (a *PayPalAdapter) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	var order paypalOrder
	if err := a.call(ctx, http.MethodGet, "/v2/checkout/orders/"+req.GatewayPaymentID, "", nil, &order); err != nil {
		return nil, err
	}
	if len(order.PurchaseUnits) == 0 || order.PurchaseUnits[0].Payments == nil || len(order.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, &InfraError{
			Gateway: models.GatewayPayPal,
			Op:      "create_refund",
			Err:     fmt.Errorf("order %s has no capture to refund", req.GatewayPaymentID),
		}
	}
	capture := order.PurchaseUnits[0].Payments.Captures[0]

	payload := map[string]any{}
	if req.Amount != nil {
		payload["amount"] = paypalAmount{
			CurrencyCode: strings.ToUpper(req.Currency),
			Value:        money.Round(*req.Amount, req.Currency).StringFixed(money.Exponent(req.Currency)),
		}
	}
	if req.Reason != "" {
		payload["note_to_payer"] = req.Reason
	}

	var refund paypalRefund
	if err := a.call(ctx, http.MethodPost, "/v2/payments/captures/"+capture.ID+"/refund", req.IdempotencyKey, payload, &refund); err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if v, perr := decimal.NewFromString(refund.Amount.Value); perr == nil {
		amount = v
	} else if req.Amount != nil {
		amount = *req.Amount
	}
	raw, _ := json.Marshal(refund)
	return &RefundResponse{
		Success:         refund.Status != "FAILED" && refund.Status != "CANCELLED",
		GatewayRefundID: refund.ID,
		Status:          mapLookupRefund(paypalRefundStatus, refund.Status),
		Amount:          amount,
		Raw:             raw,
	}, nil
}

func (a *PayPalAdapter) GetRefund(ctx context.Context, gatewayRefundID string) (*RefundResponse, error) {
	var refund paypalRefund
	if err := a.call(ctx, http.MethodGet, "/v2/payments/refunds/"+gatewayRefundID, "", nil, &refund); err != nil {
		return nil, err
	}
	amount := decimal.Zero
	if v, perr := decimal.NewFromString(refund.Amount.Value); perr == nil {
		amount = v
	}
	return &RefundResponse{
		Success:         refund.Status != "FAILED" && refund.Status != "CANCELLED",
		GatewayRefundID: refund.ID,
		Status:          mapLookupRefund(paypalRefundStatus, refund.Status),
		Amount:          amount,
	}, nil
}

// Customers and vaulted methods are not part of the checkout integration;
// payers authenticate with their own PayPal account each time.
func (a *PayPalAdapter) CreateCustomer(context.Context, *CustomerRequest) (string, error) {
	return "", ErrUnsupported
}

func (a *PayPalAdapter) UpdateCustomer(context.Context, string, *CustomerRequest) error {
	return ErrUnsupported
}

func (a *PayPalAdapter) SavePaymentMethod(context.Context, string, string) (*SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *PayPalAdapter) ListPaymentMethods(context.Context, string) ([]SavedMethodData, error) {
	return nil, ErrUnsupported
}

func (a *PayPalAdapter) DeletePaymentMethod(context.Context, string, string) error {
	return ErrUnsupported
}

// VerifyWebhook delegates to PayPal's verify-webhook-signature endpoint,
// which validates the transmission signature against their cert chain.
func (a *PayPalAdapter) VerifyWebhook(headers http.Header, body []byte) (*VerifiedEvent, error) {
	transmissionID := headers.Get("Paypal-Transmission-Id")
	if transmissionID == "" {
		return nil, ErrWebhookVerification
	}

	payload := map[string]any{
		"transmission_id":   transmissionID,
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := a.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", "", payload, &result); err != nil {
		return nil, ErrWebhookVerification
	}
	if result.VerificationStatus != "SUCCESS" {
		return nil, ErrWebhookVerification
	}

	var event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrWebhookVerification
	}
	return &VerifiedEvent{
		EventID:   event.ID,
		EventType: event.EventType,
		Payload:   json.RawMessage(body),
	}, nil
}

func isPayPalDecline(err error, out **InfraError) bool {
	return strings.Contains(err.Error(), "INSTRUMENT_DECLINED") && errors.As(err, out)
}
