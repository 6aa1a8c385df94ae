// Package billsplit holds the pure allocation math for splitting a bill
// between participants. Nothing here touches the database; the service layer
// feeds it rows and persists what comes back. All arithmetic is exact
// decimal and every allocation sums exactly to its input total.
//
// Remainder policy: shares are computed by the largest-remainder method,
// with leftover cents assigned to the earliest participants in input order.
package billsplit

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"dinepay/internal/models"
	"dinepay/internal/money"
)

// percentTolerance is how far the configured percentages may drift from 100
// (and fixed amounts from the subtotal) before the config is rejected.
var percentTolerance = decimal.RequireFromString("0.01")

// Participant is one person on the split. Key is the caller's identifier and
// must be unique within the split; display names are not suitable keys since
// two guests can share one. Percentage and Amount are only read for their
// respective methods. Declined participants are excluded from allocation
// entirely.
type Participant struct {
	Key        string
	Percentage decimal.Decimal
	Amount     decimal.Decimal
	Declined   bool
}

// Item is one order line for item-based splits. Assignees lists the
// participant keys sharing the line's cost equally.
type Item struct {
	Key       string
	UnitPrice decimal.Decimal
	Quantity  int
	Assignees []string
}

type Input struct {
	Method        models.SplitMethod
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	ServiceCharge decimal.Decimal
	Tip           decimal.Decimal
	Currency      string
	Participants  []Participant
	Items         []Item
}

// Share is one participant's computed slice of the bill. Total is always
// Base+Tax+Service+Tip.
type Share struct {
	Key     string
	Base    decimal.Decimal
	Tax     decimal.Decimal
	Service decimal.Decimal
	Tip     decimal.Decimal
	Total   decimal.Decimal
}

// Result carries the per-participant shares plus non-fatal findings such as
// order items nobody was assigned to.
type Result struct {
	Shares   []Share
	Warnings []string
}

// Compute allocates the bill across non-declined participants. The base
// shares sum exactly to the subtotal (except the amount method, where the
// configured amounts are kept verbatim), and the tax, service charge and
// tip allocations each sum exactly to their inputs.
func Compute(in Input) (*Result, error) {
	active := make([]Participant, 0, len(in.Participants))
	for _, p := range in.Participants {
		if !p.Declined {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("billsplit: no active participants")
	}
	if in.Subtotal.IsNegative() {
		return nil, fmt.Errorf("billsplit: negative subtotal %s", in.Subtotal)
	}
	seen := make(map[string]struct{}, len(active))
	for _, p := range active {
		if _, dup := seen[p.Key]; dup {
			return nil, fmt.Errorf("billsplit: duplicate participant key %q", p.Key)
		}
		seen[p.Key] = struct{}{}
	}

	var (
		bases    []decimal.Decimal
		warnings []string
		err      error
	)
	switch in.Method {
	case models.SplitMethodEqual:
		weights := make([]decimal.Decimal, len(active))
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		bases = Allocate(in.Subtotal, weights, in.Currency)
	case models.SplitMethodPercentage:
		bases, err = percentageBases(in, active)
	case models.SplitMethodAmount:
		bases, err = amountBases(in, active)
	case models.SplitMethodItem:
		bases, warnings = itemBases(in, active)
	default:
		return nil, fmt.Errorf("billsplit: unsupported split method %q", in.Method)
	}
	if err != nil {
		return nil, err
	}

	// Tax, service charge and tip follow each participant's share of the
	// subtotal. For amount splits the fixed share is the weight as-is.
	taxes := Allocate(in.Tax, bases, in.Currency)
	services := Allocate(in.ServiceCharge, bases, in.Currency)
	tips := Allocate(in.Tip, bases, in.Currency)

	shares := make([]Share, len(active))
	for i, p := range active {
		shares[i] = Share{
			Key:     p.Key,
			Base:    bases[i],
			Tax:     taxes[i],
			Service: services[i],
			Tip:     tips[i],
			Total:   bases[i].Add(taxes[i]).Add(services[i]).Add(tips[i]),
		}
	}
	return &Result{Shares: shares, Warnings: warnings}, nil
}

func percentageBases(in Input, active []Participant) ([]decimal.Decimal, error) {
	sum := decimal.Zero
	weights := make([]decimal.Decimal, len(active))
	for i, p := range active {
		if p.Percentage.IsNegative() {
			return nil, fmt.Errorf("billsplit: negative percentage for %s", p.Key)
		}
		weights[i] = p.Percentage
		sum = sum.Add(p.Percentage)
	}
	if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(percentTolerance) {
		return nil, fmt.Errorf("billsplit: percentages sum to %s, want 100", sum)
	}
	return Allocate(in.Subtotal, weights, in.Currency), nil
}

func amountBases(in Input, active []Participant) ([]decimal.Decimal, error) {
	sum := decimal.Zero
	bases := make([]decimal.Decimal, len(active))
	for i, p := range active {
		if p.Amount.IsNegative() {
			return nil, fmt.Errorf("billsplit: negative amount for %s", p.Key)
		}
		bases[i] = money.Round(p.Amount, in.Currency)
		sum = sum.Add(bases[i])
	}
	if sum.Sub(in.Subtotal).Abs().GreaterThan(percentTolerance) {
		return nil, fmt.Errorf("billsplit: amounts sum to %s, want %s", sum, in.Subtotal)
	}
	return bases, nil
}

func itemBases(in Input, active []Participant) ([]decimal.Decimal, []string) {
	index := make(map[string]int, len(active))
	for i, p := range active {
		index[p.Key] = i
	}

	bases := make([]decimal.Decimal, len(active))
	var warnings []string
	for _, item := range in.Items {
		assignees := make([]int, 0, len(item.Assignees))
		for _, key := range item.Assignees {
			if i, ok := index[key]; ok {
				assignees = append(assignees, i)
			}
		}
		if len(assignees) == 0 {
			warnings = append(warnings, fmt.Sprintf("item %s has no assigned participants; its cost is not allocated", item.Key))
			continue
		}

		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		weights := make([]decimal.Decimal, len(assignees))
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		parts := Allocate(lineTotal, weights, in.Currency)
		for i, idx := range assignees {
			bases[idx] = bases[idx].Add(parts[i])
		}
	}
	return bases, warnings
}

// Allocate divides total across weights by the largest-remainder method.
// The returned amounts are rounded to the currency's minor unit and sum
// exactly to the rounded total. Zero total weight falls back to an equal
// split. Ties on the fractional remainder go to the earlier index.
func Allocate(total decimal.Decimal, weights []decimal.Decimal, currency string) []decimal.Decimal {
	n := len(weights)
	out := make([]decimal.Decimal, n)
	if n == 0 {
		return out
	}

	sumW := decimal.Zero
	for _, w := range weights {
		sumW = sumW.Add(w)
	}
	if sumW.IsZero() {
		weights = make([]decimal.Decimal, n)
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		sumW = decimal.NewFromInt(int64(n))
	}

	exp := money.Exponent(currency)
	totalMinor := money.ToMinorUnits(total, currency)

	type cell struct {
		index int
		frac  decimal.Decimal
	}
	cells := make([]cell, n)
	assigned := int64(0)
	for i, w := range weights {
		exact := total.Mul(w).Div(sumW).Shift(exp)
		floor := exact.Floor()
		out[i] = floor
		assigned += floor.IntPart()
		cells[i] = cell{index: i, frac: exact.Sub(floor)}
	}

	// Hand leftover minor units to the largest fractional remainders,
	// earliest participant first on ties.
	sort.SliceStable(cells, func(a, b int) bool {
		return cells[a].frac.GreaterThan(cells[b].frac)
	})
	remainder := totalMinor - assigned
	for i := int64(0); i < remainder && i < int64(n); i++ {
		c := cells[i]
		out[c.index] = out[c.index].Add(decimal.NewFromInt(1))
	}

	for i := range out {
		out[i] = out[i].Shift(-exp)
	}
	return out
}
