package handlers

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"dinepay/internal/models"
)

func TestShareChargeAmount(t *testing.T) {
	d := decimal.RequireFromString
	ptr := func(s string) *decimal.Decimal {
		v := d(s)
		return &v
	}

	participant := func(total, paid string) *models.SplitParticipant {
		return &models.SplitParticipant{TotalAmount: d(total), PaidAmount: d(paid)}
	}

	tests := []struct {
		name        string
		participant *models.SplitParticipant
		requested   *decimal.Decimal
		want        string
		wantErr     bool
	}{
		{"defaults to full remaining share", participant("12.00", "0"), nil, "12", false},
		{"defaults to remainder after partial payment", participant("12.00", "5.00"), nil, "7", false},
		{"explicit amount within the share", participant("12.00", "0"), ptr("4.00"), "4", false},
		{"exact remainder", participant("12.00", "5.00"), ptr("7.00"), "7", false},
		{"amount above the remaining share", participant("12.00", "5.00"), ptr("10.00"), "", true},
		{"amount above an unpaid share", participant("12.00", "0"), ptr("20.00"), "", true},
		{"zero amount", participant("12.00", "0"), ptr("0"), "", true},
		{"negative amount", participant("12.00", "0"), ptr("-1.00"), "", true},
		{"share already fully paid", participant("12.00", "12.00"), nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := shareChargeAmount(tt.participant, tt.requested)
			if tt.wantErr {
				he, ok := err.(*echo.HTTPError)
				if !ok {
					t.Fatalf("err = %v; want *echo.HTTPError", err)
				}
				if he.Code != http.StatusBadRequest {
					t.Errorf("status = %d; want 400", he.Code)
				}
				return
			}
			if err != nil {
				t.Fatalf("shareChargeAmount: %v", err)
			}
			if amount.String() != tt.want {
				t.Errorf("amount = %s; want %s", amount, tt.want)
			}
		})
	}
}
