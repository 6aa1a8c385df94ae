package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"dinepay/internal/models"
	"dinepay/internal/services"
)

type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// maxWebhookBody caps how much we read from a webhook request.
const maxWebhookBody = 1 << 20

// HandleWebhook receives gateway callbacks. The raw body goes to the
// service untouched since signature verification covers the exact bytes.
// Everything except a verification failure acknowledges 200 so gateways
// stop redelivering; failed dispatches are retried by the sweep task.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	gw := models.Gateway(c.Param("gateway"))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	outcome, err := h.webhooks.ProcessWebhook(c.Request().Context(), gw, c.Request().Header, body)
	if err != nil && outcome == services.OutcomeRejected {
		return err
	}

	return c.JSON(http.StatusOK, map[string]string{"outcome": string(outcome)})
}
