package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
)

func TestRegistryResolvesByName(t *testing.T) {
	reg := NewRegistry(NewCashAdapter(), NewManualAdapter())

	a, err := reg.Get(models.GatewayCash)
	if err != nil {
		t.Fatalf("Get(cash): %v", err)
	}
	if a.Name() != models.GatewayCash {
		t.Errorf("Name() = %s; want cash", a.Name())
	}

	if _, err := reg.Get(models.GatewayStripe); err == nil {
		t.Error("expected error for unconfigured gateway")
	}
}

func TestRetryableStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusUnprocessableEntity, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
	}
	for _, tt := range tests {
		if got := RetryableStatus(tt.status); got != tt.retryable {
			t.Errorf("RetryableStatus(%d) = %v; want %v", tt.status, got, tt.retryable)
		}
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 4, BaseDelay: 1, MaxDelay: 1}, func(context.Context) error {
		calls++
		return &InfraError{Gateway: models.GatewayStripe, Op: "create_payment", Status: 400, Retryable: false, Err: errors.New("bad request")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1 (non-retryable must not retry)", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 4, BaseDelay: 1, MaxDelay: 1}, func(context.Context) error {
		calls++
		return &InfraError{Gateway: models.GatewaySquare, Op: "create_payment", Status: 503, Retryable: true, Err: errors.New("unavailable")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 4 {
		t.Errorf("calls = %d; want 4", calls)
	}
}

func TestWithRetrySucceedsMidway(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryConfig{MaxAttempts: 4, BaseDelay: 1, MaxDelay: 1}, func(context.Context) error {
		calls++
		if calls < 3 {
			return &InfraError{Gateway: models.GatewaySquare, Op: "get_payment", Retryable: true, Err: errors.New("timeout")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d; want 3", calls)
	}
}

func TestSquareVerifyWebhook(t *testing.T) {
	cfg := SquareConfig{
		WebhookSecret:   "test-signature-key",
		NotificationURL: "https://example.com/webhooks/square",
	}
	a := NewSquareAdapter(cfg)

	body := []byte(`{"event_id":"evt_123","type":"payment.updated","data":{}}`)
	mac := hmac.New(sha256.New, []byte(cfg.WebhookSecret))
	mac.Write([]byte(cfg.NotificationURL))
	mac.Write(body)
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("X-Square-Hmacsha256-Signature", sig)

	event, err := a.VerifyWebhook(headers, body)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.EventID != "evt_123" {
		t.Errorf("EventID = %s; want evt_123", event.EventID)
	}
	if event.EventType != "payment.updated" {
		t.Errorf("EventType = %s; want payment.updated", event.EventType)
	}
}

func TestSquareVerifyWebhookRejects(t *testing.T) {
	a := NewSquareAdapter(SquareConfig{
		WebhookSecret:   "test-signature-key",
		NotificationURL: "https://example.com/webhooks/square",
	})
	body := []byte(`{"event_id":"evt_123"}`)

	// Missing header.
	if _, err := a.VerifyWebhook(http.Header{}, body); !errors.Is(err, ErrWebhookVerification) {
		t.Errorf("missing header: err = %v; want ErrWebhookVerification", err)
	}

	// Wrong signature.
	headers := http.Header{}
	headers.Set("X-Square-Hmacsha256-Signature", "bm90LXRoZS1zaWduYXR1cmU=")
	if _, err := a.VerifyWebhook(headers, body); !errors.Is(err, ErrWebhookVerification) {
		t.Errorf("bad signature: err = %v; want ErrWebhookVerification", err)
	}

	// Signature computed over a different body.
	mac := hmac.New(sha256.New, []byte("test-signature-key"))
	mac.Write([]byte("https://example.com/webhooks/square"))
	mac.Write([]byte(`{"event_id":"evt_other"}`))
	headers.Set("X-Square-Hmacsha256-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	if _, err := a.VerifyWebhook(headers, body); !errors.Is(err, ErrWebhookVerification) {
		t.Errorf("tampered body: err = %v; want ErrWebhookVerification", err)
	}
}

func TestMidtransVerifyWebhook(t *testing.T) {
	a := NewMidtransAdapter(MidtransConfig{ServerKey: "server-key", TestMode: true})

	sum := sha512.Sum512([]byte("ORD-1" + "200" + "150000.00" + "server-key"))
	body := []byte(`{"order_id":"ORD-1","status_code":"200","gross_amount":"150000.00","transaction_status":"settlement","signature_key":"` + hex.EncodeToString(sum[:]) + `"}`)

	event, err := a.VerifyWebhook(http.Header{}, body)
	if err != nil {
		t.Fatalf("VerifyWebhook: %v", err)
	}
	if event.EventType != "transaction.settlement" {
		t.Errorf("EventType = %s; want transaction.settlement", event.EventType)
	}
	if event.EventID != "" {
		t.Errorf("EventID = %s; want empty (midtrans assigns none)", event.EventID)
	}
}

func TestMidtransVerifyWebhookRejectsBadSignature(t *testing.T) {
	a := NewMidtransAdapter(MidtransConfig{ServerKey: "server-key", TestMode: true})
	body := []byte(`{"order_id":"ORD-1","status_code":"200","gross_amount":"150000.00","transaction_status":"settlement","signature_key":"deadbeef"}`)
	if _, err := a.VerifyWebhook(http.Header{}, body); !errors.Is(err, ErrWebhookVerification) {
		t.Errorf("err = %v; want ErrWebhookVerification", err)
	}
}

func TestMidtransReferenceUniquePerAttempt(t *testing.T) {
	first := &CreatePaymentRequest{
		OrderNumber:    "ORD-1",
		IdempotencyKey: "key-a",
		Metadata:       map[string]string{"payment_id": "10"},
	}
	second := &CreatePaymentRequest{
		OrderNumber:    "ORD-1",
		IdempotencyKey: "key-b",
		Metadata:       map[string]string{"payment_id": "11"},
	}

	if got := midtransReference(first); got != "ORD-1-P10" {
		t.Errorf("reference = %s; want ORD-1-P10", got)
	}
	if midtransReference(first) == midtransReference(second) {
		t.Error("two payment attempts on one order must not share a reference")
	}
	if midtransReference(first) != midtransReference(first) {
		t.Error("retrying the same attempt must keep its reference")
	}

	bare := &CreatePaymentRequest{OrderNumber: "ORD-2", IdempotencyKey: "key-c"}
	if got := midtransReference(bare); got != "ORD-2-key-c" {
		t.Errorf("reference without payment_id = %s; want ORD-2-key-c", got)
	}
}

func TestStatusMapsDefaultToPending(t *testing.T) {
	if got := mapLookupPayment(squarePaymentStatus, "SOME_FUTURE_STATUS"); got != models.PaymentStatusPending {
		t.Errorf("unknown square status mapped to %s; want pending", got)
	}
	if got := mapLookupPayment(paypalOrderStatus, "SOME_FUTURE_STATUS"); got != models.PaymentStatusPending {
		t.Errorf("unknown paypal status mapped to %s; want pending", got)
	}
	if got := mapLookupPayment(midtransPaymentStatus, "some_future_status"); got != models.PaymentStatusPending {
		t.Errorf("unknown midtrans status mapped to %s; want pending", got)
	}
	if got := mapLookupRefund(squareRefundStatus, "SOME_FUTURE_STATUS"); got != models.RefundStatusPending {
		t.Errorf("unknown square refund status mapped to %s; want pending", got)
	}
}

func TestOfflineAdapterCompletesImmediately(t *testing.T) {
	for _, a := range []Adapter{NewCashAdapter(), NewManualAdapter()} {
		resp, err := a.CreatePayment(context.Background(), &CreatePaymentRequest{
			Amount:   decimal.RequireFromString("42.50"),
			Currency: "USD",
		})
		if err != nil {
			t.Fatalf("%s CreatePayment: %v", a.Name(), err)
		}
		if !resp.Success || resp.Status != models.PaymentStatusCompleted {
			t.Errorf("%s: status = %s success = %v; want completed/true", a.Name(), resp.Status, resp.Success)
		}
		if resp.GatewayPaymentID == "" {
			t.Errorf("%s: missing synthetic gateway payment id", a.Name())
		}
		if resp.FeeAmount == nil || !resp.FeeAmount.IsZero() {
			t.Errorf("%s: offline payments carry no fee", a.Name())
		}
		if _, err := a.VerifyWebhook(http.Header{}, nil); !errors.Is(err, ErrWebhookVerification) {
			t.Errorf("%s: webhooks must always reject", a.Name())
		}
		if _, err := a.SavePaymentMethod(context.Background(), "c", "t"); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: SavePaymentMethod must be unsupported", a.Name())
		}
	}
}
