// Package money holds the currency-aware amount helpers shared by the
// gateway adapters and the bill-split allocator. All arithmetic is done on
// exact decimals; nothing here touches float64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are the ISO codes whose minor unit equals the major
// unit (no cents).
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// Exponent returns the number of decimal places for a currency's minor
// unit. Unknown currencies default to 2.
func Exponent(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts an exact amount to the integer minor units a
// gateway expects (25.00 USD -> 2500, 2500 JPY -> 2500). Rounding to the
// minor unit is banker's rounding.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := Exponent(currency)
	return amount.Shift(exp).RoundBank(0).IntPart()
}

// FromMinorUnits is the exact inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Exponent(currency))
}

// Round snaps an amount to the currency's minor unit using banker's
// rounding.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.RoundBank(Exponent(currency))
}

// CalculateFee returns (fee, net) for a flat percentage-plus-fixed fee
// schedule: fee = round(amount*pct/100 + fixed), net = amount - fee.
// Gateway adapters override the inputs with their own schedules.
func CalculateFee(amount, feePercent, feeFixed decimal.Decimal) (fee, net decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	fee = amount.Mul(feePercent).Div(hundred).Add(feeFixed).Round(2)
	net = amount.Sub(fee)
	return fee, net
}

// MustParse parses a decimal string and panics on malformed input. Only for
// constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("money: bad decimal literal %q: %v", s, err))
	}
	return d
}
