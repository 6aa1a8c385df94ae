package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

// StripeConfig carries the keys and the provisional fee schedule for the
// Stripe adapter. Actual settled fees arrive later via balance transactions
// on webhooks.
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	TestMode       bool
	FeePercent     decimal.Decimal // e.g. 2.9
	FeeFixed       decimal.Decimal // e.g. 0.30
}

type StripeAdapter struct {
	cfg StripeConfig
	api *client.API
}

func NewStripeAdapter(cfg StripeConfig) *StripeAdapter {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeAdapter{cfg: cfg, api: api}
}

func (a *StripeAdapter) Name() models.Gateway { return models.GatewayStripe }

func (a *StripeAdapter) SupportsRefunds() bool        { return true }
func (a *StripeAdapter) SupportsPartialRefunds() bool { return true }

func (a *StripeAdapter) PublicConfig() map[string]string {
	return map[string]string{
		"publishable_key": a.cfg.PublishableKey,
		"test_mode":       boolString(a.cfg.TestMode),
	}
}

// stripePaymentStatus converges Stripe's intent statuses onto ours.
// Unknown values stay pending rather than guessing a terminal state.
var stripePaymentStatus = map[stripe.PaymentIntentStatus]models.PaymentStatus{
	stripe.PaymentIntentStatusRequiresPaymentMethod: models.PaymentStatusPending,
	stripe.PaymentIntentStatusRequiresConfirmation:  models.PaymentStatusPending,
	stripe.PaymentIntentStatusRequiresAction:        models.PaymentStatusRequiresAction,
	stripe.PaymentIntentStatusProcessing:            models.PaymentStatusProcessing,
	stripe.PaymentIntentStatusRequiresCapture:       models.PaymentStatusProcessing,
	stripe.PaymentIntentStatusSucceeded:             models.PaymentStatusCompleted,
	stripe.PaymentIntentStatusCanceled:              models.PaymentStatusCanceled,
}

var stripeRefundStatus = map[stripe.RefundStatus]models.RefundStatus{
	stripe.RefundStatusPending:   models.RefundStatusProcessing,
	stripe.RefundStatusSucceeded: models.RefundStatusCompleted,
	stripe.RefundStatusFailed:    models.RefundStatusFailed,
	stripe.RefundStatusCanceled:  models.RefundStatusCanceled,
}

func mapStripePaymentStatus(s stripe.PaymentIntentStatus) models.PaymentStatus {
	if mapped, ok := stripePaymentStatus[s]; ok {
		return mapped
	}
	return models.PaymentStatusPending
}

func mapStripeRefundStatus(s stripe.RefundStatus) models.RefundStatus {
	if mapped, ok := stripeRefundStatus[s]; ok {
		return mapped
	}
	return models.RefundStatusPending
}

// stripeErr splits a stripe-go error into decline data vs infrastructure
// error. Card declines come back as (resp, nil); everything else wraps into
// an InfraError with retryability from the HTTP status.
func (a *StripeAdapter) stripeErr(op string, err error) (*PaymentResponse, error) {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Type == stripe.ErrorTypeCard {
			return &PaymentResponse{
				Success:        false,
				Status:         models.PaymentStatusFailed,
				DeclineCode:    string(sErr.Code),
				DeclineMessage: sErr.Msg,
			}, nil
		}
		return nil, &InfraError{
			Gateway:   models.GatewayStripe,
			Op:        op,
			Status:    sErr.HTTPStatusCode,
			Retryable: RetryableStatus(sErr.HTTPStatusCode),
			Err:       err,
		}
	}
	// Transport-level failure, no HTTP response at all.
	return nil, &InfraError{Gateway: models.GatewayStripe, Op: op, Retryable: true, Err: err}
}

func (a *StripeAdapter) intentToResponse(pi *stripe.PaymentIntent) *PaymentResponse {
	resp := &PaymentResponse{
		Success:          pi.Status != stripe.PaymentIntentStatusCanceled,
		GatewayPaymentID: pi.ID,
		Status:           mapStripePaymentStatus(pi.Status),
		MethodType:       models.MethodCard,
		Raw:              pi.LastResponse.RawJSON,
	}
	if pi.Status == stripe.PaymentIntentStatusRequiresAction && pi.NextAction != nil {
		resp.RequiresAction = true
		if pi.NextAction.RedirectToURL != nil {
			resp.ActionURL = pi.NextAction.RedirectToURL.URL
		}
	}
	if pi.PaymentMethod != nil && pi.PaymentMethod.Card != nil {
		resp.CardBrand = string(pi.PaymentMethod.Card.Brand)
		resp.CardLastFour = pi.PaymentMethod.Card.Last4
	}
	if resp.Status == models.PaymentStatusCompleted {
		amount := money.FromMinorUnits(pi.Amount, string(pi.Currency))
		fee, net := money.CalculateFee(amount, a.cfg.FeePercent, a.cfg.FeeFixed)
		resp.FeeAmount = &fee
		resp.NetAmount = &net
	}
	return resp
}

func (a *StripeAdapter) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(money.ToMinorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("order_number", req.OrderNumber)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.MethodToken != "" {
		params.PaymentMethod = stripe.String(req.MethodToken)
		params.Confirm = stripe.Bool(true)
		params.OffSession = stripe.Bool(req.ReturnURL == "")
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}

	pi, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return a.stripeErr("create_payment", err)
	}
	return a.intentToResponse(pi), nil
}

func (a *StripeAdapter) CapturePayment(ctx context.Context, gatewayPaymentID string, amount *decimal.Decimal) (*PaymentResponse, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if amount != nil {
		pi, err := a.api.PaymentIntents.Get(gatewayPaymentID, &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}})
		if err != nil {
			return a.stripeErr("capture_payment", err)
		}
		params.AmountToCapture = stripe.Int64(money.ToMinorUnits(*amount, string(pi.Currency)))
	}
	pi, err := a.api.PaymentIntents.Capture(gatewayPaymentID, params)
	if err != nil {
		return a.stripeErr("capture_payment", err)
	}
	return a.intentToResponse(pi), nil
}

func (a *StripeAdapter) GetPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	params := &stripe.PaymentIntentParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("payment_method")
	pi, err := a.api.PaymentIntents.Get(gatewayPaymentID, params)
	if err != nil {
		return a.stripeErr("get_payment", err)
	}
	return a.intentToResponse(pi), nil
}

func (a *StripeAdapter) CancelPayment(ctx context.Context, gatewayPaymentID string) (*PaymentResponse, error) {
	params := &stripe.PaymentIntentCancelParams{Params: stripe.Params{Context: ctx}}
	pi, err := a.api.PaymentIntents.Cancel(gatewayPaymentID, params)
	if err != nil {
		return a.stripeErr("cancel_payment", err)
	}
	return a.intentToResponse(pi), nil
}

func (a *StripeAdapter) CreateRefund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.GatewayPaymentID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	if req.Amount != nil {
		params.Amount = stripe.Int64(money.ToMinorUnits(*req.Amount, req.Currency))
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	ref, err := a.api.Refunds.New(params)
	if err != nil {
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.HTTPStatusCode < http.StatusInternalServerError && sErr.HTTPStatusCode != http.StatusTooManyRequests {
			return &RefundResponse{
				Success:        false,
				Status:         models.RefundStatusFailed,
				DeclineMessage: sErr.Msg,
			}, nil
		}
		return nil, &InfraError{Gateway: models.GatewayStripe, Op: "create_refund", Retryable: true, Err: err}
	}

	return &RefundResponse{
		Success:         ref.Status != stripe.RefundStatusFailed,
		GatewayRefundID: ref.ID,
		Status:          mapStripeRefundStatus(ref.Status),
		Amount:          money.FromMinorUnits(ref.Amount, string(ref.Currency)),
		Raw:             ref.LastResponse.RawJSON,
	}, nil
}

func (a *StripeAdapter) GetRefund(ctx context.Context, gatewayRefundID string) (*RefundResponse, error) {
	params := &stripe.RefundParams{Params: stripe.Params{Context: ctx}}
	ref, err := a.api.Refunds.Get(gatewayRefundID, params)
	if err != nil {
		return nil, &InfraError{Gateway: models.GatewayStripe, Op: "get_refund", Retryable: true, Err: err}
	}
	return &RefundResponse{
		Success:         ref.Status != stripe.RefundStatusFailed,
		GatewayRefundID: ref.ID,
		Status:          mapStripeRefundStatus(ref.Status),
		Amount:          money.FromMinorUnits(ref.Amount, string(ref.Currency)),
	}, nil
}

func (a *StripeAdapter) CreateCustomer(ctx context.Context, req *CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.Context = ctx
	if req.Phone != "" {
		params.Phone = stripe.String(req.Phone)
	}
	cust, err := a.api.Customers.New(params)
	if err != nil {
		return "", &InfraError{Gateway: models.GatewayStripe, Op: "create_customer", Retryable: true, Err: err}
	}
	return cust.ID, nil
}

func (a *StripeAdapter) UpdateCustomer(ctx context.Context, gatewayCustomerID string, req *CustomerRequest) error {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.Context = ctx
	_, err := a.api.Customers.Update(gatewayCustomerID, params)
	if err != nil {
		return &InfraError{Gateway: models.GatewayStripe, Op: "update_customer", Retryable: true, Err: err}
	}
	return nil
}

func (a *StripeAdapter) SavePaymentMethod(ctx context.Context, gatewayCustomerID, token string) (*SavedMethodData, error) {
	params := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(gatewayCustomerID),
	}
	params.Context = ctx
	pm, err := a.api.PaymentMethods.Attach(token, params)
	if err != nil {
		return nil, &InfraError{Gateway: models.GatewayStripe, Op: "save_payment_method", Retryable: false, Err: err}
	}
	return stripeMethodData(pm), nil
}

func (a *StripeAdapter) ListPaymentMethods(ctx context.Context, gatewayCustomerID string) ([]SavedMethodData, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(gatewayCustomerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	params.Context = ctx

	var out []SavedMethodData
	iter := a.api.PaymentMethods.List(params)
	for iter.Next() {
		out = append(out, *stripeMethodData(iter.PaymentMethod()))
	}
	if err := iter.Err(); err != nil {
		return nil, &InfraError{Gateway: models.GatewayStripe, Op: "list_payment_methods", Retryable: true, Err: err}
	}
	return out, nil
}

func (a *StripeAdapter) DeletePaymentMethod(ctx context.Context, gatewayCustomerID, methodID string) error {
	params := &stripe.PaymentMethodDetachParams{Params: stripe.Params{Context: ctx}}
	if _, err := a.api.PaymentMethods.Detach(methodID, params); err != nil {
		return &InfraError{Gateway: models.GatewayStripe, Op: "delete_payment_method", Retryable: false, Err: err}
	}
	return nil
}

func (a *StripeAdapter) VerifyWebhook(headers http.Header, body []byte) (*VerifiedEvent, error) {
	sig := headers.Get("Stripe-Signature")
	if sig == "" {
		return nil, ErrWebhookVerification
	}
	event, err := webhook.ConstructEvent(body, sig, a.cfg.WebhookSecret)
	if err != nil {
		return nil, ErrWebhookVerification
	}
	return &VerifiedEvent{
		EventID:   event.ID,
		EventType: string(event.Type),
		Payload:   event.Data.Raw,
	}, nil
}

func stripeMethodData(pm *stripe.PaymentMethod) *SavedMethodData {
	data := &SavedMethodData{
		GatewayPaymentMethodID: pm.ID,
		MethodType:             models.MethodCard,
		DisplayName:            "Card",
	}
	if pm.Card != nil {
		data.CardBrand = string(pm.Card.Brand)
		data.CardLastFour = pm.Card.Last4
		data.CardExpMonth = int(pm.Card.ExpMonth)
		data.CardExpYear = int(pm.Card.ExpYear)
		data.DisplayName = string(pm.Card.Brand) + " •••• " + pm.Card.Last4
	}
	return data
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
