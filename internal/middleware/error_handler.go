package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"dinepay/internal/gateway"
	"dinepay/internal/services"
)

// CustomErrorHandler creates a custom error handler for Echo. Service-layer
// errors map onto JSON responses with the appropriate status code; gateway
// infrastructure failures surface as 502 so clients know to retry.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."
	var field string

	var he *echo.HTTPError
	var validation *services.ValidationError
	var conflict *services.ConflictError
	var infra *gateway.InfraError

	switch {
	case errors.As(err, &he):
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
	case errors.As(err, &validation):
		code = http.StatusBadRequest
		message = validation.Message
		field = validation.Field
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
		message = err.Error()
	case errors.As(err, &conflict):
		code = http.StatusConflict
		message = conflict.Message
	case errors.Is(err, gateway.ErrWebhookVerification):
		code = http.StatusUnauthorized
		message = "webhook signature verification failed"
	case errors.Is(err, gateway.ErrUnsupported):
		code = http.StatusBadRequest
		message = err.Error()
	case errors.As(err, &infra):
		code = http.StatusBadGateway
		message = "payment gateway is unavailable"
	}

	c.Logger().Error(err)

	body := map[string]interface{}{"error": message}
	if field != "" {
		body["field"] = field
	}

	if err := c.JSON(code, body); err != nil {
		c.Logger().Error(err)
	}
}
