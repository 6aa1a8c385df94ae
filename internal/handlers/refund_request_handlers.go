package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"dinepay/internal/services"
)

type RefundRequestHandler struct {
	requests *services.RefundRequestService
}

func NewRefundRequestHandler(requests *services.RefundRequestService) *RefundRequestHandler {
	return &RefundRequestHandler{requests: requests}
}

type createRefundRequestBody struct {
	PaymentID    uint             `json:"payment_id"`
	Amount       *decimal.Decimal `json:"amount"`
	ReasonCode   string           `json:"reason_code"`
	ReasonDetail string           `json:"reason_detail"`
}

// CreateRequest files a refund request. Small ones auto-approve and process
// immediately per policy; the response carries the final state.
func (h *RefundRequestHandler) CreateRequest(c echo.Context) error {
	var req createRefundRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ReasonCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reason_code is required")
	}

	request, err := h.requests.CreateRequest(c.Request().Context(), services.CreateRefundRequestInput{
		PaymentID:    req.PaymentID,
		Amount:       req.Amount,
		ReasonCode:   req.ReasonCode,
		ReasonDetail: req.ReasonDetail,
		RequestedBy:  actor(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, request)
}

// GetRequest returns one refund request.
func (h *RefundRequestHandler) GetRequest(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	request, err := h.requests.GetRequest(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, request)
}

// ListPending returns requests waiting for a reviewer.
func (h *RefundRequestHandler) ListPending(c echo.Context) error {
	requests, err := h.requests.ListPending(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, requests)
}

type reviewRequestBody struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// ReviewRequest approves or rejects a pending request. Approval processes
// the refund in the same call.
func (h *RefundRequestHandler) ReviewRequest(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req reviewRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	request, err := h.requests.Review(c.Request().Context(), id, req.Approve, actor(c), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, request)
}
