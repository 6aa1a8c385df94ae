package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		expected int64
	}{
		{
			name:     "two decimal currency",
			amount:   "25.00",
			currency: "USD",
			expected: 2500,
		},
		{
			name:     "two decimal with cents",
			amount:   "19.99",
			currency: "EUR",
			expected: 1999,
		},
		{
			name:     "zero decimal currency",
			amount:   "2500",
			currency: "JPY",
			expected: 2500,
		},
		{
			name:     "zero decimal korean won",
			amount:   "15000",
			currency: "KRW",
			expected: 15000,
		},
		{
			name:     "unknown currency defaults to two decimals",
			amount:   "10.50",
			currency: "ZZZ",
			expected: 1050,
		},
		{
			name:     "lowercase currency code",
			amount:   "1200",
			currency: "jpy",
			expected: 1200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToMinorUnits(MustParse(tt.amount), tt.currency)
			if got != tt.expected {
				t.Errorf("ToMinorUnits(%s, %s) = %d; want %d", tt.amount, tt.currency, got, tt.expected)
			}
		})
	}
}

func TestMinorUnitsRoundTrip(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
	}{
		{"25.00", "USD"},
		{"0.01", "USD"},
		{"19.99", "EUR"},
		{"2500", "JPY"},
		{"123456789.45", "GBP"},
	}

	for _, c := range cases {
		amount := MustParse(c.amount)
		back := FromMinorUnits(ToMinorUnits(amount, c.currency), c.currency)
		if !back.Equal(amount) {
			t.Errorf("round trip %s %s: got %s", c.amount, c.currency, back)
		}
	}
}

func TestCalculateFee(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		pct         string
		fixed       string
		expectedFee string
		expectedNet string
	}{
		{
			name:        "stripe style card fee",
			amount:      "25.00",
			pct:         "2.9",
			fixed:       "0.30",
			expectedFee: "1.03",
			expectedNet: "23.97",
		},
		{
			name:        "no fixed component",
			amount:      "100.00",
			pct:         "2",
			fixed:       "0",
			expectedFee: "2.00",
			expectedNet: "98.00",
		},
		{
			name:        "zero fee",
			amount:      "10.00",
			pct:         "0",
			fixed:       "0",
			expectedFee: "0.00",
			expectedNet: "10.00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, net := CalculateFee(MustParse(tt.amount), MustParse(tt.pct), MustParse(tt.fixed))
			if !fee.Equal(MustParse(tt.expectedFee)) {
				t.Errorf("fee = %s; want %s", fee, tt.expectedFee)
			}
			if !net.Equal(MustParse(tt.expectedNet)) {
				t.Errorf("net = %s; want %s", net, tt.expectedNet)
			}
		})
	}
}

func TestRoundUsesBankersRounding(t *testing.T) {
	// Ties round to the even cent.
	if got := Round(decimal.RequireFromString("1.005"), "USD"); !got.Equal(MustParse("1.00")) {
		t.Errorf("Round(1.005) = %s; want 1.00", got)
	}
	if got := Round(decimal.RequireFromString("1.015"), "USD"); !got.Equal(MustParse("1.02")) {
		t.Errorf("Round(1.015) = %s; want 1.02", got)
	}
}
