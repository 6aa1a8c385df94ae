package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

type BillSplitHandler struct {
	splits   *services.BillSplitService
	payments *services.PaymentService
}

func NewBillSplitHandler(splits *services.BillSplitService, payments *services.PaymentService) *BillSplitHandler {
	return &BillSplitHandler{splits: splits, payments: payments}
}

type splitParticipantRequest struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

type itemAssignmentRequest struct {
	OrderItemID  uint     `json:"order_item_id"`
	Participants []string `json:"participants"`
}

type createSplitRequest struct {
	Method         models.SplitMethod        `json:"method"`
	TipMethod      models.TipMethod          `json:"tip_method"`
	TipValue       decimal.Decimal           `json:"tip_value"`
	OrganizerName  string                    `json:"organizer_name"`
	OrganizerEmail string                    `json:"organizer_email"`
	Participants   []splitParticipantRequest `json:"participants"`
	Assignments    []itemAssignmentRequest   `json:"assignments"`

	AllowPartialPayments bool       `json:"allow_partial_payments"`
	RequireAllAcceptance bool       `json:"require_all_acceptance"`
	AutoClose            bool       `json:"auto_close"`
	ExpiresAt            *time.Time `json:"expires_at"`
}

// CreateSplit opens a bill split over an order and emails every participant
// their payment link.
func (h *BillSplitHandler) CreateSplit(c echo.Context) error {
	orderID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req createSplitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	in := services.CreateSplitInput{
		OrderID:              orderID,
		Method:               req.Method,
		TipMethod:            req.TipMethod,
		TipValue:             req.TipValue,
		OrganizerName:        req.OrganizerName,
		OrganizerEmail:       req.OrganizerEmail,
		AllowPartialPayments: req.AllowPartialPayments,
		RequireAllAcceptance: req.RequireAllAcceptance,
		AutoClose:            req.AutoClose,
		ExpiresAt:            req.ExpiresAt,
	}
	for _, p := range req.Participants {
		in.Participants = append(in.Participants, services.SplitParticipantInput{
			Name:       p.Name,
			Email:      p.Email,
			Phone:      p.Phone,
			Percentage: p.Percentage,
			Amount:     p.Amount,
		})
	}
	for _, a := range req.Assignments {
		in.Assignments = append(in.Assignments, services.ItemAssignment{
			OrderItemID:  a.OrderItemID,
			Participants: a.Participants,
		})
	}

	split, err := h.splits.CreateSplit(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, split)
}

// GetSplit returns a split with its participants, staff view.
func (h *BillSplitHandler) GetSplit(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	split, err := h.splits.GetSplit(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, split)
}

// CancelSplit closes a split that is no longer wanted.
func (h *BillSplitHandler) CancelSplit(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	if err := h.splits.CancelSplit(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ShowParticipant is the public view behind a participant's access token:
// their share, what they have paid, and the split's overall state.
func (h *BillSplitHandler) ShowParticipant(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing access token")
	}

	participant, err := h.splits.GetParticipantByToken(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, participant)
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

// RespondToInvitation records a participant's accept or decline.
func (h *BillSplitHandler) RespondToInvitation(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing access token")
	}
	var req respondRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	participant, err := h.splits.RespondToInvitation(c.Request().Context(), token, req.Accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, participant)
}

type participantPayRequest struct {
	Gateway     models.Gateway   `json:"gateway"`
	Amount      *decimal.Decimal `json:"amount"` // nil pays the full remaining share
	MethodToken string           `json:"method_token"`
	ReturnURL   string           `json:"return_url"`
}

// PayShare takes a payment for a participant's share through the regular
// payment pipeline, then records the allocation against the split.
func (h *BillSplitHandler) PayShare(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing access token")
	}
	var req participantPayRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	participant, err := h.splits.GetParticipantByToken(c.Request().Context(), token)
	if err != nil {
		return err
	}

	// Amounts are checked against the share before any money moves;
	// redirect flows would otherwise only fail at webhook time, with the
	// charge already taken.
	amount, err := shareChargeAmount(participant, req.Amount)
	if err != nil {
		return err
	}

	payment, err := h.payments.CreatePayment(c.Request().Context(), services.CreatePaymentInput{
		OrderID:     participant.BillSplit.OrderID,
		Gateway:     req.Gateway,
		Amount:      amount,
		Currency:    participant.BillSplit.Currency,
		MethodToken: req.MethodToken,
		ReturnURL:   req.ReturnURL,
		Metadata: map[string]interface{}{
			"bill_split_id":  participant.BillSplitID,
			"participant_id": participant.ID,
		},
	})
	if err != nil {
		return err
	}

	// Only money that actually arrived counts against the share. Redirect
	// flows allocate later when the completion webhook lands.
	if payment.Status == models.PaymentStatusCompleted {
		if err := h.splits.RecordParticipantPayment(c.Request().Context(), participant.ID, payment.ID, amount); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusCreated, payment)
}

// shareChargeAmount resolves how much to charge a participant: the full
// remaining share by default, or the requested amount when it fits inside
// what is still owed.
func shareChargeAmount(participant *models.SplitParticipant, requested *decimal.Decimal) (decimal.Decimal, error) {
	remaining := participant.TotalAmount.Sub(participant.PaidAmount)
	if !remaining.IsPositive() {
		return decimal.Decimal{}, echo.NewHTTPError(http.StatusBadRequest, "share is already fully paid")
	}
	amount := remaining
	if requested != nil {
		amount = *requested
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}
	if amount.GreaterThan(remaining) {
		return decimal.Decimal{}, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("amount %s exceeds the remaining share %s", amount, remaining))
	}
	return amount, nil
}
