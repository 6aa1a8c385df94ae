package billsplit

import (
	"testing"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

func participants(keys ...string) []Participant {
	out := make([]Participant, len(keys))
	for i, k := range keys {
		out[i] = Participant{Key: k}
	}
	return out
}

func sumShares(shares []Share, pick func(Share) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(pick(s))
	}
	return total
}

func TestComputeEqualSumsExactly(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		n        int
	}{
		{"evenly divisible", "30.00", 3},
		{"one cent leftover", "10.00", 3},
		{"two cents leftover", "100.00", 3},
		{"seven ways", "50.00", 7},
		{"single participant", "19.99", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := make([]string, tt.n)
			for i := range keys {
				keys[i] = string(rune('a' + i))
			}
			res, err := Compute(Input{
				Method:       models.SplitMethodEqual,
				Subtotal:     money.MustParse(tt.subtotal),
				Currency:     "USD",
				Participants: participants(keys...),
			})
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			got := sumShares(res.Shares, func(s Share) decimal.Decimal { return s.Base })
			if !got.Equal(money.MustParse(tt.subtotal)) {
				t.Errorf("base sum = %s; want %s", got, tt.subtotal)
			}
			// Shares differ by at most one cent.
			for _, s := range res.Shares {
				diff := s.Base.Sub(res.Shares[len(res.Shares)-1].Base).Abs()
				if diff.GreaterThan(money.MustParse("0.01")) {
					t.Errorf("share %s deviates by %s", s.Key, diff)
				}
			}
		})
	}
}

func TestComputeEqualRemainderGoesToFirst(t *testing.T) {
	res, err := Compute(Input{
		Method:       models.SplitMethodEqual,
		Subtotal:     money.MustParse("10.00"),
		Currency:     "USD",
		Participants: participants("alice", "bob", "carol"),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !res.Shares[0].Base.Equal(money.MustParse("3.34")) {
		t.Errorf("first share = %s; want 3.34", res.Shares[0].Base)
	}
	for _, s := range res.Shares[1:] {
		if !s.Base.Equal(money.MustParse("3.33")) {
			t.Errorf("share %s = %s; want 3.33", s.Key, s.Base)
		}
	}
}

func TestComputeEqualWithTipScenario(t *testing.T) {
	// subtotal 30.00, 3 participants, 20% tip -> 6.00 tip, 12.00 each.
	tip, err := CalculateTip(money.MustParse("30.00"), models.TipMethodPercentage, money.MustParse("20"), "USD")
	if err != nil {
		t.Fatalf("CalculateTip: %v", err)
	}
	if !tip.Equal(money.MustParse("6.00")) {
		t.Fatalf("tip = %s; want 6.00", tip)
	}

	res, err := Compute(Input{
		Method:       models.SplitMethodEqual,
		Subtotal:     money.MustParse("30.00"),
		Tip:          tip,
		Currency:     "USD",
		Participants: participants("a", "b", "c"),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, s := range res.Shares {
		if !s.Total.Equal(money.MustParse("12.00")) {
			t.Errorf("participant %s total = %s; want 12.00", s.Key, s.Total)
		}
	}
}

func TestComputePercentage(t *testing.T) {
	res, err := Compute(Input{
		Method:   models.SplitMethodPercentage,
		Subtotal: money.MustParse("80.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a", Percentage: money.MustParse("50")},
			{Key: "b", Percentage: money.MustParse("30")},
			{Key: "c", Percentage: money.MustParse("20")},
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	want := []string{"40.00", "24.00", "16.00"}
	for i, s := range res.Shares {
		if !s.Base.Equal(money.MustParse(want[i])) {
			t.Errorf("share %s = %s; want %s", s.Key, s.Base, want[i])
		}
	}
}

func TestComputePercentageRejectsBadSum(t *testing.T) {
	_, err := Compute(Input{
		Method:   models.SplitMethodPercentage,
		Subtotal: money.MustParse("80.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a", Percentage: money.MustParse("50")},
			{Key: "b", Percentage: money.MustParse("30")},
		},
	})
	if err == nil {
		t.Fatal("expected error for percentages summing to 80")
	}
}

func TestComputePercentageToleratesCentDrift(t *testing.T) {
	_, err := Compute(Input{
		Method:   models.SplitMethodPercentage,
		Subtotal: money.MustParse("80.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a", Percentage: money.MustParse("33.33")},
			{Key: "b", Percentage: money.MustParse("33.33")},
			{Key: "c", Percentage: money.MustParse("33.33")},
		},
	})
	if err != nil {
		t.Fatalf("99.99 should pass the ±0.01 tolerance: %v", err)
	}
}

func TestComputeAmount(t *testing.T) {
	res, err := Compute(Input{
		Method:   models.SplitMethodAmount,
		Subtotal: money.MustParse("50.00"),
		Tip:      money.MustParse("10.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a", Amount: money.MustParse("30.00")},
			{Key: "b", Amount: money.MustParse("20.00")},
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Tip follows the fixed shares proportionally: 6.00 / 4.00.
	if !res.Shares[0].Tip.Equal(money.MustParse("6.00")) {
		t.Errorf("a tip = %s; want 6.00", res.Shares[0].Tip)
	}
	if !res.Shares[1].Tip.Equal(money.MustParse("4.00")) {
		t.Errorf("b tip = %s; want 4.00", res.Shares[1].Tip)
	}
}

func TestComputeAmountRejectsMismatch(t *testing.T) {
	_, err := Compute(Input{
		Method:   models.SplitMethodAmount,
		Subtotal: money.MustParse("50.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a", Amount: money.MustParse("30.00")},
			{Key: "b", Amount: money.MustParse("25.00")},
		},
	})
	if err == nil {
		t.Fatal("expected error for amounts summing to 55 against subtotal 50")
	}
}

func TestComputeItem(t *testing.T) {
	res, err := Compute(Input{
		Method:       models.SplitMethodItem,
		Subtotal:     money.MustParse("45.00"),
		Currency:     "USD",
		Participants: participants("a", "b"),
		Items: []Item{
			{Key: "burger", UnitPrice: money.MustParse("15.00"), Quantity: 1, Assignees: []string{"a"}},
			{Key: "pizza", UnitPrice: money.MustParse("10.00"), Quantity: 2, Assignees: []string{"a", "b"}},
			{Key: "salad", UnitPrice: money.MustParse("10.00"), Quantity: 1, Assignees: []string{"b"}},
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !res.Shares[0].Base.Equal(money.MustParse("25.00")) {
		t.Errorf("a base = %s; want 25.00", res.Shares[0].Base)
	}
	if !res.Shares[1].Base.Equal(money.MustParse("20.00")) {
		t.Errorf("b base = %s; want 20.00", res.Shares[1].Base)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestComputeItemWarnsOnOrphanedItem(t *testing.T) {
	res, err := Compute(Input{
		Method:       models.SplitMethodItem,
		Subtotal:     money.MustParse("25.00"),
		Currency:     "USD",
		Participants: participants("a"),
		Items: []Item{
			{Key: "burger", UnitPrice: money.MustParse("15.00"), Quantity: 1, Assignees: []string{"a"}},
			{Key: "mystery", UnitPrice: money.MustParse("10.00"), Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v; want exactly one for the orphaned item", res.Warnings)
	}
	if !res.Shares[0].Base.Equal(money.MustParse("15.00")) {
		t.Errorf("a base = %s; orphaned cost must not be silently assigned", res.Shares[0].Base)
	}
}

func TestComputeExcludesDeclined(t *testing.T) {
	res, err := Compute(Input{
		Method:   models.SplitMethodEqual,
		Subtotal: money.MustParse("30.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "a"},
			{Key: "b", Declined: true},
			{Key: "c"},
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(res.Shares) != 2 {
		t.Fatalf("shares = %d; want 2", len(res.Shares))
	}
	for _, s := range res.Shares {
		if !s.Base.Equal(money.MustParse("15.00")) {
			t.Errorf("share %s = %s; want 15.00", s.Key, s.Base)
		}
	}
}

func TestComputeRejectsAllDeclined(t *testing.T) {
	_, err := Compute(Input{
		Method:       models.SplitMethodEqual,
		Subtotal:     money.MustParse("30.00"),
		Currency:     "USD",
		Participants: []Participant{{Key: "a", Declined: true}},
	})
	if err == nil {
		t.Fatal("expected error with no active participants")
	}
}

func TestComputeRejectsDuplicateKeys(t *testing.T) {
	_, err := Compute(Input{
		Method:   models.SplitMethodEqual,
		Subtotal: money.MustParse("30.00"),
		Currency: "USD",
		Participants: []Participant{
			{Key: "alex"},
			{Key: "alex"},
			{Key: "sam"},
		},
	})
	if err == nil {
		t.Fatal("expected error for duplicate participant keys")
	}
}

func TestCalculateTip(t *testing.T) {
	tests := []struct {
		name     string
		subtotal string
		method   models.TipMethod
		value    string
		expected string
	}{
		{"twenty percent", "30.00", models.TipMethodPercentage, "20", "6.00"},
		{"percentage rounds", "33.35", models.TipMethodPercentage, "15", "5.00"},
		{"fixed", "30.00", models.TipMethodFixed, "5.00", "5.00"},
		{"round up to next five", "27.50", models.TipMethodRoundUp, "5.00", "2.50"},
		{"round up already at multiple", "30.00", models.TipMethodRoundUp, "5.00", "0.00"},
		{"round up zero value", "27.50", models.TipMethodRoundUp, "0", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateTip(money.MustParse(tt.subtotal), tt.method, money.MustParse(tt.value), "USD")
			if err != nil {
				t.Fatalf("CalculateTip: %v", err)
			}
			if !got.Equal(money.MustParse(tt.expected)) {
				t.Errorf("tip = %s; want %s", got, tt.expected)
			}
		})
	}
}

func TestCalculateTipRejects(t *testing.T) {
	if _, err := CalculateTip(money.MustParse("30.00"), models.TipMethodPercentage, money.MustParse("-5"), "USD"); err == nil {
		t.Error("expected error for negative tip value")
	}
	if _, err := CalculateTip(money.MustParse("30.00"), models.TipMethod("karma"), money.MustParse("5"), "USD"); err == nil {
		t.Error("expected error for unknown tip method")
	}
}

func TestAllocateSumInvariant(t *testing.T) {
	weights := []decimal.Decimal{
		money.MustParse("1"), money.MustParse("2"), money.MustParse("3"), money.MustParse("0.5"),
	}
	totals := []string{"0.01", "0.10", "1.00", "99.99", "1234.56"}
	for _, total := range totals {
		parts := Allocate(money.MustParse(total), weights, "USD")
		sum := decimal.Zero
		for _, p := range parts {
			sum = sum.Add(p)
		}
		if !sum.Equal(money.MustParse(total)) {
			t.Errorf("Allocate(%s) parts sum to %s", total, sum)
		}
	}
}

func TestAllocateZeroWeightsFallsBackToEqual(t *testing.T) {
	parts := Allocate(money.MustParse("9.00"), []decimal.Decimal{decimal.Zero, decimal.Zero, decimal.Zero}, "USD")
	for i, p := range parts {
		if !p.Equal(money.MustParse("3.00")) {
			t.Errorf("part %d = %s; want 3.00", i, p)
		}
	}
}

func TestDistributeTipRemainderToFirst(t *testing.T) {
	// 0.10 across three equal recipients: 0.04 / 0.03 / 0.03.
	parts := DistributeTip(money.MustParse("0.10"), []decimal.Decimal{
		money.MustParse("1"), money.MustParse("1"), money.MustParse("1"),
	}, "USD")
	want := []string{"0.04", "0.03", "0.03"}
	for i, p := range parts {
		if !p.Equal(money.MustParse(want[i])) {
			t.Errorf("part %d = %s; want %s", i, p, want[i])
		}
	}
}
