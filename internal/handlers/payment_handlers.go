package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

type PaymentHandler struct {
	payments *services.PaymentService
}

func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type createPaymentRequest struct {
	Gateway       models.Gateway         `json:"gateway"`
	Amount        decimal.Decimal        `json:"amount"`
	Currency      string                 `json:"currency"`
	MethodToken   string                 `json:"method_token"`
	SavedMethodID *uint                  `json:"saved_method_id"`
	CustomerID    *uint                  `json:"customer_id"`
	ReturnURL     string                 `json:"return_url"`
	Metadata      map[string]interface{} `json:"metadata"`
	ForceNew      bool                   `json:"force_new"`
}

// CreatePayment takes a payment against an order. Declines come back as a
// 201 with a failed payment; only infrastructure problems error out.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	orderID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req createPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	payment, err := h.payments.CreatePayment(c.Request().Context(), services.CreatePaymentInput{
		OrderID:       orderID,
		Gateway:       req.Gateway,
		Amount:        req.Amount,
		Currency:      req.Currency,
		MethodToken:   req.MethodToken,
		SavedMethodID: req.SavedMethodID,
		CustomerID:    req.CustomerID,
		ReturnURL:     req.ReturnURL,
		Metadata:      req.Metadata,
		ForceNew:      req.ForceNew,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, payment)
}

// ListOrderPayments returns every payment attempt against an order.
func (h *PaymentHandler) ListOrderPayments(c echo.Context) error {
	orderID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	payments, err := h.payments.ListOrderPayments(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payments)
}

// GetPayment returns one payment with its refunds.
func (h *PaymentHandler) GetPayment(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.GetPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

type captureRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// CapturePayment settles a previously authorized payment.
func (h *PaymentHandler) CapturePayment(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	payment, err := h.payments.CapturePayment(c.Request().Context(), id, req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

// CancelPayment voids a payment that has not completed.
func (h *PaymentHandler) CancelPayment(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.CancelPayment(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

// SyncPayment pulls the gateway's current view of a payment and reconciles
// the local status.
func (h *PaymentHandler) SyncPayment(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.SyncPaymentStatus(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

type createRefundRequest struct {
	Amount *decimal.Decimal       `json:"amount"`
	Reason string                 `json:"reason"`
	Meta   map[string]interface{} `json:"metadata"`
}

// CreateRefund issues a refund directly, bypassing the approval workflow.
// Reserved for managers; regular staff go through refund requests.
func (h *PaymentHandler) CreateRefund(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req createRefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	refund, err := h.payments.CreateRefund(c.Request().Context(), services.CreateRefundInput{
		PaymentID:   id,
		Amount:      req.Amount,
		Reason:      req.Reason,
		InitiatedBy: actor(c),
		Metadata:    req.Meta,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, refund)
}
