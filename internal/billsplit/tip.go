package billsplit

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

// CalculateTip computes the tip for a subtotal under the configured method.
//
//	percentage: subtotal × value/100
//	fixed:      value
//	round_up:   the smallest non-negative amount bringing the subtotal up
//	            to the next multiple of value
func CalculateTip(subtotal decimal.Decimal, method models.TipMethod, value decimal.Decimal, currency string) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("billsplit: negative tip value %s", value)
	}

	switch method {
	case models.TipMethodPercentage:
		return money.Round(subtotal.Mul(value).Div(decimal.NewFromInt(100)), currency), nil
	case models.TipMethodFixed:
		return money.Round(value, currency), nil
	case models.TipMethodRoundUp:
		if value.IsZero() {
			return decimal.Zero, nil
		}
		target := subtotal.Div(value).Ceil().Mul(value)
		return money.Round(target.Sub(subtotal), currency), nil
	default:
		return decimal.Zero, fmt.Errorf("billsplit: unsupported tip method %q", method)
	}
}

// DistributeTip splits a pooled tip across recipients by weight using the
// same largest-remainder policy as the bill allocator. Used by the tip
// distribution service for pool, percentage and role methods.
func DistributeTip(tip decimal.Decimal, weights []decimal.Decimal, currency string) []decimal.Decimal {
	return Allocate(tip, weights, currency)
}
