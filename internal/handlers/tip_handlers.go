package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

type TipHandler struct {
	tips *services.TipService
}

func NewTipHandler(tips *services.TipService) *TipHandler {
	return &TipHandler{tips: tips}
}

type tipRecipientRequest struct {
	StaffID uint            `json:"staff_id"`
	Value   decimal.Decimal `json:"value"`
}

type distributeTipRequest struct {
	Method      models.TipDistributionMethod `json:"method"`
	Recipients  []tipRecipientRequest        `json:"recipients"`
	RoleWeights map[string]decimal.Decimal   `json:"role_weights"`
}

// DistributeTip allocates an order's collected tip to staff.
func (h *TipHandler) DistributeTip(c echo.Context) error {
	orderID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req distributeTipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	in := services.DistributeTipInput{
		OrderID:     orderID,
		Method:      req.Method,
		RoleWeights: req.RoleWeights,
	}
	for _, r := range req.Recipients {
		in.Recipients = append(in.Recipients, services.TipRecipientInput{
			StaffID: r.StaffID,
			Value:   r.Value,
		})
	}

	dist, err := h.tips.Distribute(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, dist)
}

// ListDistributions returns an order's tip distribution runs.
func (h *TipHandler) ListDistributions(c echo.Context) error {
	orderID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	dists, err := h.tips.ListDistributions(c.Request().Context(), orderID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dists)
}
