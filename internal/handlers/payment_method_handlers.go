package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

type PaymentMethodHandler struct {
	methods *services.PaymentMethodService
}

func NewPaymentMethodHandler(methods *services.PaymentMethodService) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

type saveMethodRequest struct {
	CustomerEmail string         `json:"customer_email"`
	CustomerName  string         `json:"customer_name"`
	Gateway       models.Gateway `json:"gateway"`
	Token         string         `json:"token"`
	SetDefault    bool           `json:"set_default"`
}

// SaveMethod tokenizes a payment method with the gateway and stores the
// display-safe record for the customer.
func (h *PaymentMethodHandler) SaveMethod(c echo.Context) error {
	customerID, err := paramUint(c, "customerId")
	if err != nil {
		return err
	}
	var req saveMethodRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	method, err := h.methods.SaveMethod(c.Request().Context(), services.SaveMethodInput{
		CustomerID:    customerID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Gateway:       req.Gateway,
		Token:         req.Token,
		SetDefault:    req.SetDefault,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, method)
}

// ListMethods returns the customer's active saved methods.
func (h *PaymentMethodHandler) ListMethods(c echo.Context) error {
	customerID, err := paramUint(c, "customerId")
	if err != nil {
		return err
	}
	methods, err := h.methods.ListMethods(c.Request().Context(), customerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, methods)
}

// SetDefault marks one saved method as the customer's default.
func (h *PaymentMethodHandler) SetDefault(c echo.Context) error {
	customerID, err := paramUint(c, "customerId")
	if err != nil {
		return err
	}
	methodID, err := paramUint(c, "methodId")
	if err != nil {
		return err
	}
	if err := h.methods.SetDefault(c.Request().Context(), customerID, methodID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteMethod detaches a saved method from the gateway and deactivates it
// locally.
func (h *PaymentMethodHandler) DeleteMethod(c echo.Context) error {
	customerID, err := paramUint(c, "customerId")
	if err != nil {
		return err
	}
	methodID, err := paramUint(c, "methodId")
	if err != nil {
		return err
	}
	if err := h.methods.DeleteMethod(c.Request().Context(), customerID, methodID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
