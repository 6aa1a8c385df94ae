package services

import (
	"log"
	"os"

	"github.com/shopspring/decimal"

	"dinepay/internal/gateway"
)

// NewGatewayRegistryFromEnv builds the adapter registry from environment
// variables. A gateway is enabled by setting its credential variables; cash
// and manual entry are always available. TEST_MODE puts every enabled
// gateway in its sandbox environment.
func NewGatewayRegistryFromEnv() *gateway.Registry {
	testMode := os.Getenv("TEST_MODE") == "true"

	adapters := []gateway.Adapter{
		gateway.NewCashAdapter(),
		gateway.NewManualAdapter(),
	}

	if key := os.Getenv("STRIPE_SECRET_KEY"); key != "" {
		adapters = append(adapters, gateway.NewStripeAdapter(gateway.StripeConfig{
			SecretKey:      key,
			PublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			TestMode:       testMode,
			FeePercent:     envDecimal("STRIPE_FEE_PERCENT", "2.9"),
			FeeFixed:       envDecimal("STRIPE_FEE_FIXED", "0.30"),
		}))
		log.Println("Gateway enabled: stripe")
	}

	if token := os.Getenv("SQUARE_ACCESS_TOKEN"); token != "" {
		adapters = append(adapters, gateway.NewSquareAdapter(gateway.SquareConfig{
			AccessToken:     token,
			ApplicationID:   os.Getenv("SQUARE_APPLICATION_ID"),
			LocationID:      os.Getenv("SQUARE_LOCATION_ID"),
			WebhookSecret:   os.Getenv("SQUARE_WEBHOOK_SECRET"),
			NotificationURL: os.Getenv("SQUARE_NOTIFICATION_URL"),
			TestMode:        testMode,
			FeePercent:      envDecimal("SQUARE_FEE_PERCENT", "2.6"),
			FeeFixed:        envDecimal("SQUARE_FEE_FIXED", "0.10"),
		}))
		log.Println("Gateway enabled: square")
	}

	if clientID := os.Getenv("PAYPAL_CLIENT_ID"); clientID != "" {
		adapters = append(adapters, gateway.NewPayPalAdapter(gateway.PayPalConfig{
			ClientID:     clientID,
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			WebhookID:    os.Getenv("PAYPAL_WEBHOOK_ID"),
			TestMode:     testMode,
			FeePercent:   envDecimal("PAYPAL_FEE_PERCENT", "3.49"),
			FeeFixed:     envDecimal("PAYPAL_FEE_FIXED", "0.49"),
		}))
		log.Println("Gateway enabled: paypal")
	}

	if serverKey := os.Getenv("MIDTRANS_SERVER_KEY"); serverKey != "" {
		adapters = append(adapters, gateway.NewMidtransAdapter(gateway.MidtransConfig{
			ServerKey: serverKey,
			ClientKey: os.Getenv("MIDTRANS_CLIENT_KEY"),
			TestMode:  testMode,
		}))
		log.Println("Gateway enabled: midtrans")
	}

	return gateway.NewRegistry(adapters...)
}

func envDecimal(key, fallback string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("Invalid decimal in %s, using %s: %v", key, fallback, err)
		return decimal.RequireFromString(fallback)
	}
	return d
}
