package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

const squareAPIVersion = "2024-01-18"

// SquareConfig holds the REST credentials for Square. NotificationURL must
// match the webhook subscription exactly; it is part of the signed payload.
type SquareConfig struct {
	AccessToken     string
	ApplicationID   string
	LocationID      string
	WebhookSecret   string
	NotificationURL string
	BaseURL         string // https://connect.squareup.com or the sandbox host
	TestMode        bool
	FeePercent      decimal.Decimal
	FeeFixed        decimal.Decimal
}

type SquareAdapter struct {
	cfg    SquareConfig
	client *http.Client
}

func NewSquareAdapter(cfg SquareConfig) *SquareAdapter {
	if cfg.BaseURL == "" {
		if cfg.TestMode {
			cfg.BaseURL = "https://connect.squareupsandbox.com"
		} else {
			cfg.BaseURL = "https://connect.squareup.com"
		}
	}
	return &SquareAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *SquareAdapter) Name() models.Gateway { return models.GatewaySquare }

func (a *SquareAdapter) SupportsRefunds() bool        { return true }
func (a *SquareAdapter) SupportsPartialRefunds() bool { return true }

func (a *SquareAdapter) PublicConfig() map[string]string {
	return map[string]string{
		"application_id": a.cfg.ApplicationID,
		"location_id":    a.cfg.LocationID,
		"test_mode":      boolString(a.cfg.TestMode),
	}
}

var squarePaymentStatus = map[string]models.PaymentStatus{
	"APPROVED":  models.PaymentStatusProcessing,
	"PENDING":   models.PaymentStatusProcessing,
	"COMPLETED": models.PaymentStatusCompleted,
	"CANCELED":  models.PaymentStatusCanceled,
	"FAILED":    models.PaymentStatusFailed,
}

var squareRefundStatus = map[string]models.RefundStatus{
	"PENDING":   models.RefundStatusProcessing,
	"APPROVED":  models.RefundStatusProcessing,
	"COMPLETED": models.RefundStatusCompleted,
	"REJECTED":  models.RefundStatusFailed,
	"FAILED":    models.RefundStatusFailed,
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareCard struct {
	ID       string `json:"id,omitempty"`
	Brand    string `json:"card_brand"`
	Last4    string `json:"last_4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
	CardDetails *struct {
		Card squareCard `json:"card"`
	} `json:"card_details"`
	ProcessingFee []struct {
		AmountMoney squareMoney `json:"amount_money"`
	} `json:"processing_fee"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type squareErrorBody struct {
	Errors []squareError `json:"errors"`
}

// call issues one Square REST request. Non-2xx responses with a
// PAYMENT_METHOD_ERROR category come back as (body, decline, nil); anything
// else becomes an InfraError with retryability from the status code.
func (a *SquareAdapter) call(ctx context.Context, method, path string, payload, out any) (*squareError, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("square: encode %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("square: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Square-Version", squareAPIVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &InfraError{Gateway: models.GatewaySquare, Op: method + " " + path, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &InfraError{Gateway: models.GatewaySquare, Op: method + " " + path, Retryable: true, Err: err}
	}

	if resp.StatusCode >= 400 {
		var errBody squareErrorBody
		_ = json.Unmarshal(raw, &errBody)
		if len(errBody.Errors) > 0 {
			e := errBody.Errors[0]
			if e.Category == "PAYMENT_METHOD_ERROR" {
				return &e, nil
			}
			return nil, &InfraError{
				Gateway:   models.GatewaySquare,
				Op:        method + " " + path,
				Status:    resp.StatusCode,
				Retryable: RetryableStatus(resp.StatusCode),
				Err:       fmt.Errorf("%s: %s", e.Code, e.Detail),
			}
		}
		return nil, &InfraError{
			Gateway:   models.GatewaySquare,
			Op:        method + " " + path,
			Status:    resp.StatusCode,
			Retryable: RetryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("square: decode %s: %w", path, err)
		}
	}
	return nil, nil
}

func (a *SquareAdapter) paymentToResponse(p *squarePayment, raw json.RawMessage) *PaymentResponse {
	resp := &PaymentResponse{
		Success:          p.Status != "FAILED" && p.Status != "CANCELED",
		GatewayPaymentID: p.ID,
		Status:           mapLookupPayment(squarePaymentStatus, p.Status),
		MethodType:       models.MethodCard,
		Raw:              raw,
	}
	if p.CardDetails != nil {
		resp.CardBrand = p.CardDetails.Card.Brand
		resp.CardLastFour = p.CardDetails.Card.Last4
	}
	if resp.Status == models.PaymentStatusCompleted {
		amount := money.FromMinorUnits(p.AmountMoney.Amount, p.AmountMoney.Currency)
		if len(p.ProcessingFee) > 0 {
			fee := decimal.Zero
			for _, f := range p.ProcessingFee {
				fee = fee.Add(money.FromMinorUnits(f.AmountMoney.Amount, f.AmountMoney.Currency))
			}
			net := amount.Sub(fee)
			resp.FeeAmount = &fee
			resp.NetAmount = &net
		} else {
			fee, net := money.CalculateFee(amount, a.cfg.FeePercent, a.cfg.FeeFixed)
			resp.FeeAmount = &fee
			resp.NetAmount = &net
		}
	}
	return resp
}

func (a *SquareAdapter) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	payload := map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"source_id":       req.MethodToken,
		"location_id":     a.cfg.LocationID,
		"amount_money": squareMoney{
			Amount:   money.ToMinorUnits(req.Amount, req.Currency),
			Currency: req.Currency,
		},
		"reference_id": req.OrderNumber,
		"autocomplete": true,
	}
	if req.CustomerID != "" {
		payload["customer_id"] = req.CustomerID
	}
	if req.Description != "" {
		payload["note"] = req.Description
	}

	var result struct {
		Payment squarePayment `json:"payment"`
	}
	decline, err := a.call(ctx, http.MethodPost, "/v2/payments", payload, &result)
	if err != nil {
		return nil, err
	}
	if decline != nil {
		return &PaymentResponse{
			Success:        false,
			Status:         models.PaymentStatusFailed,
			DeclineCode:    decline.Code,
			DeclineMessage: decline.Detail,
		}, nil
	}
	raw, _ := json.Marshal(result.Payment)
	return a.paymentToResponse(&result.Payment, raw), nil
}

// CapturePayment: payments are created with autocomplete, so capture just
// re-fetches current state.
func (a *SquareAdapter) CapturePayment(ctx context.Context, gatewayPaymentID string, _ *decimal.Decimal) (*PaymentResponse, error) {
	return a.GetPayment(ctx, gatewayPaymentID)
}

func (a *SquareAdapter) GetPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	var result struct {
		Payment squarePayment `json:"payment"`
	}
	if _, err := a.call(ctx, http.MethodGet, "/v2/payments/"+gatewayPaymentID, nil, &result); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(result.Payment)
	return a.paymentToResponse(&result.Payment, raw), nil
}

func (a *SquareAdapter) CancelPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	var result struct {
		Payment squarePayment `json:"payment"`
	}
	if _, err := a.call(ctx, http.MethodPost, "/v2/payments/"+gatewayPaymentID+"/cancel", map[string]any{}, &result); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(result.Payment)
	return a.paymentToResponse(&result.Payment, raw), nil
}

type squareRefund struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

func (a *SquareAdapter) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	if req.Amount == nil {
		// Square requires an explicit amount; resolve it from the payment.
		var result struct {
			Payment squarePayment `json:"payment"`
		}
		if _, err := a.call(ctx, http.MethodGet, "/v2/payments/"+req.GatewayPaymentID, nil, &result); err != nil {
			return nil, err
		}
		full := money.FromMinorUnits(result.Payment.AmountMoney.Amount, result.Payment.AmountMoney.Currency)
		req.Amount = &full
		if req.Currency == "" {
			req.Currency = result.Payment.AmountMoney.Currency
		}
	}

	payload := map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"payment_id":      req.GatewayPaymentID,
		"amount_money": squareMoney{
			Amount:   money.ToMinorUnits(*req.Amount, req.Currency),
			Currency: req.Currency,
		},
	}
	if req.Reason != "" {
		payload["reason"] = req.Reason
	}

	var result struct {
		Refund squareRefund `json:"refund"`
	}
	decline, err := a.call(ctx, http.MethodPost, "/v2/refunds", payload, &result)
	if err != nil {
		return nil, err
	}
	if decline != nil {
		return &RefundResponse{
			Success:        false,
			Status:         models.RefundStatusFailed,
			DeclineMessage: decline.Detail,
		}, nil
	}
	raw, _ := json.Marshal(result.Refund)
	return &RefundResponse{
		Success:         result.Refund.Status != "FAILED" && result.Refund.Status != "REJECTED",
		GatewayRefundID: result.Refund.ID,
		Status:          mapLookupRefund(squareRefundStatus, result.Refund.Status),
		Amount:          money.FromMinorUnits(result.Refund.AmountMoney.Amount, result.Refund.AmountMoney.Currency),
		Raw:             raw,
	}, nil
}

func (a *SquareAdapter) GetRefund(ctx context.Context, gatewayRefundID string) (*RefundResponse, error) {
	var result struct {
		Refund squareRefund `json:"refund"`
	}
	if _, err := a.call(ctx, http.MethodGet, "/v2/refunds/"+gatewayRefundID, nil, &result); err != nil {
		return nil, err
	}
	return &RefundResponse{
		Success:         result.Refund.Status != "FAILED" && result.Refund.Status != "REJECTED",
		GatewayRefundID: result.Refund.ID,
		Status:          mapLookupRefund(squareRefundStatus, result.Refund.Status),
		Amount:          money.FromMinorUnits(result.Refund.AmountMoney.Amount, result.Refund.AmountMoney.Currency),
	}, nil
}

func (a *SquareAdapter) CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error) {
	payload := map[string]any{
		"email_address": req.Email,
		"given_name":    req.Name,
	}
	if req.Phone != "" {
		payload["phone_number"] = req.Phone
	}
	var result struct {
		Customer struct {
			ID string `json:"id"`
		} `json:"customer"`
	}
	if _, err := a.call(ctx, http.MethodPost, "/v2/customers", payload, &result); err != nil {
		return "", err
	}
	return result.Customer.ID, nil
}

func (a *SquareAdapter) UpdateCustomer(ctx context.Context, gatewayCustomerID string, req *CustomerRequest) error {
	payload := map[string]any{
		"email_address": req.Email,
		"given_name":    req.Name,
	}
	_, err := a.call(ctx, http.MethodPut, "/v2/customers/"+gatewayCustomerID, payload, nil)
	return err
}

func (a *SquareAdapter) SavePaymentMethod(ctx context.Context, gatewayCustomerID, token string) (*SavedMethodData, error) {
	payload := map[string]any{
		"idempotency_key": token,
		"source_id":       token,
		"card": map[string]any{
			"customer_id": gatewayCustomerID,
		},
	}
	var result struct {
		Card squareCard `json:"card"`
	}
	if _, err := a.call(ctx, http.MethodPost, "/v2/cards", payload, &result); err != nil {
		return nil, err
	}
	return squareMethodData(result.Card), nil
}

func (a *SquareAdapter) ListPaymentMethods(ctx context.Context, gatewayCustomerID string) ([]SavedMethodData, error) {
	var result struct {
		Cards []squareCard `json:"cards"`
	}
	path := "/v2/cards?customer_id=" + gatewayCustomerID
	if _, err := a.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	out := make([]SavedMethodData, 0, len(result.Cards))
	for _, c := range result.Cards {
		out = append(out, *squareMethodData(c))
	}
	return out, nil
}

func (a *SquareAdapter) DeletePaymentMethod(ctx context.Context, _, methodID string) error {
	_, err := a.call(ctx, http.MethodPost, "/v2/cards/"+methodID+"/disable", map[string]any{}, nil)
	return err
}

// VerifyWebhook checks Square's x-square-hmacsha256-signature: base64 of
// HMAC-SHA256 over the notification URL concatenated with the raw body.
func (a *SquareAdapter) VerifyWebhook(headers http.Header, body []byte) (*VerifiedEvent, error) {
	sig := headers.Get("X-Square-Hmacsha256-Signature")
	if sig == "" {
		return nil, ErrWebhookVerification
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(a.cfg.NotificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return nil, ErrWebhookVerification
	}

	var event struct {
		EventID string `json:"event_id"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrWebhookVerification
	}
	return &VerifiedEvent{
		EventID:   event.EventID,
		EventType: event.Type,
		Payload:   json.RawMessage(body),
	}, nil
}

func squareMethodData(c squareCard) *SavedMethodData {
	return &SavedMethodData{
		GatewayPaymentMethodID: c.ID,
		MethodType:             models.MethodCard,
		DisplayName:            c.Brand + " •••• " + c.Last4,
		CardBrand:              c.Brand,
		CardLastFour:           c.Last4,
		CardExpMonth:           c.ExpMonth,
		CardExpYear:            c.ExpYear,
	}
}

func mapLookupPayment(m map[string]models.PaymentStatus, key string) models.PaymentStatus {
	if s, ok := m[key]; ok {
		return s
	}
	return models.PaymentStatusPending
}

func mapLookupRefund(m map[string]models.RefundStatus, key string) models.RefundStatus {
	if s, ok := m[key]; ok {
		return s
	}
	return models.RefundStatusPending
}
