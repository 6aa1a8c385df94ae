package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"dinepay/internal/services"
)

type ConfigHandler struct {
	config *services.ConfigService
}

func NewConfigHandler(config *services.ConfigService) *ConfigHandler {
	return &ConfigHandler{config: config}
}

// GatewayConfig returns the client-safe configuration for every enabled
// gateway: publishable keys, application ids, test-mode flags.
func (h *ConfigHandler) GatewayConfig(c echo.Context) error {
	cfg, err := h.config.PublicGatewayConfig(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cfg)
}
