package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dinepay/internal/billsplit"
	"dinepay/internal/models"
)

// TipService allocates collected tips to staff after the fact. Line amounts
// always sum exactly to the tip; the allocator hands rounding remainders to
// the first recipient.
type TipService struct {
	db *gorm.DB
}

func NewTipService(db *gorm.DB) *TipService {
	return &TipService{db: db}
}

type TipRecipientInput struct {
	StaffID uint
	// Percentage for the percentage method, fixed amount for direct.
	Value decimal.Decimal
}

type DistributeTipInput struct {
	OrderID    uint
	Method     models.TipDistributionMethod
	Recipients []TipRecipientInput
	// RoleWeights maps role name to weight for the role method; defaults
	// apply when empty.
	RoleWeights map[string]decimal.Decimal
}

// defaultRoleWeights is the house convention when a role method run does not
// supply its own weights.
var defaultRoleWeights = map[string]decimal.Decimal{
	"server":    decimal.NewFromInt(50),
	"bartender": decimal.NewFromInt(20),
	"busser":    decimal.NewFromInt(15),
	"kitchen":   decimal.NewFromInt(15),
}

// Distribute allocates the order's collected tip to staff and persists the
// run with its lines.
func (s *TipService) Distribute(ctx context.Context, in DistributeTipInput) (*models.TipDistribution, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).First(&order, in.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", in.OrderID, ErrNotFound)
		}
		return nil, err
	}
	if !order.TipAmount.IsPositive() {
		return nil, validationErr("tip", "order %s has no tip to distribute", order.OrderNumber)
	}
	if len(in.Recipients) == 0 {
		return nil, validationErr("recipients", "at least one recipient is required")
	}

	staff, err := s.loadStaff(ctx, in.Recipients)
	if err != nil {
		return nil, err
	}

	amounts, err := s.computeAmounts(order.TipAmount, order.Currency, in, staff)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dist := models.TipDistribution{
		OrderID:       order.ID,
		Method:        in.Method,
		TipAmount:     order.TipAmount,
		Currency:      order.Currency,
		Config:        tipConfig(in),
		DistributedAt: &now,
	}
	for i, r := range in.Recipients {
		dist.Lines = append(dist.Lines, models.TipDistributionLine{
			StaffID: r.StaffID,
			Amount:  amounts[i],
		})
	}

	if err := s.db.WithContext(ctx).Create(&dist).Error; err != nil {
		return nil, err
	}
	log.Printf("order %s: distributed %s %s tip across %d staff (%s)",
		order.OrderNumber, order.Currency, order.TipAmount, len(dist.Lines), in.Method)
	return &dist, nil
}

func (s *TipService) computeAmounts(tip decimal.Decimal, currency string, in DistributeTipInput, staff map[uint]models.StaffMember) ([]decimal.Decimal, error) {
	weights := make([]decimal.Decimal, len(in.Recipients))

	switch in.Method {
	case models.TipDistributePool:
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
	case models.TipDistributePercentage:
		sum := decimal.Zero
		for i, r := range in.Recipients {
			if r.Value.IsNegative() {
				return nil, validationErr("recipients", "negative percentage for staff %d", r.StaffID)
			}
			weights[i] = r.Value
			sum = sum.Add(r.Value)
		}
		if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(decimal.RequireFromString("0.01")) {
			return nil, validationErr("recipients", "percentages sum to %s, want 100", sum)
		}
	case models.TipDistributeRole:
		roleWeights := in.RoleWeights
		if len(roleWeights) == 0 {
			roleWeights = defaultRoleWeights
		}
		for i, r := range in.Recipients {
			member := staff[r.StaffID]
			w, ok := roleWeights[member.Role]
			if !ok {
				return nil, validationErr("recipients", "no weight configured for role %q", member.Role)
			}
			weights[i] = w
		}
	case models.TipDistributeDirect:
		sum := decimal.Zero
		amounts := make([]decimal.Decimal, len(in.Recipients))
		for i, r := range in.Recipients {
			if r.Value.IsNegative() {
				return nil, validationErr("recipients", "negative amount for staff %d", r.StaffID)
			}
			amounts[i] = r.Value
			sum = sum.Add(r.Value)
		}
		if !sum.Equal(tip) {
			return nil, validationErr("recipients", "direct amounts sum to %s, want %s", sum, tip)
		}
		return amounts, nil
	default:
		return nil, validationErr("method", "unsupported tip distribution method %q", in.Method)
	}

	return billsplit.DistributeTip(tip, weights, currency), nil
}

func (s *TipService) loadStaff(ctx context.Context, recipients []TipRecipientInput) (map[uint]models.StaffMember, error) {
	ids := make([]uint, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.StaffID)
	}

	var members []models.StaffMember
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}

	byID := make(map[uint]models.StaffMember, len(members))
	for _, m := range members {
		if !m.IsActive {
			return nil, validationErr("recipients", "staff member %s is inactive", m.Name)
		}
		byID[m.ID] = m
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("staff member %d: %w", id, ErrNotFound)
		}
	}
	return byID, nil
}

func tipConfig(in DistributeTipInput) map[string]interface{} {
	values := map[string]string{}
	for _, r := range in.Recipients {
		values[fmt.Sprintf("%d", r.StaffID)] = r.Value.String()
	}
	cfg := map[string]interface{}{"values": values}
	if len(in.RoleWeights) > 0 {
		roles := map[string]string{}
		for role, w := range in.RoleWeights {
			roles[role] = w.String()
		}
		cfg["role_weights"] = roles
	}
	return cfg
}

// ListDistributions returns the runs for an order, newest first.
func (s *TipService) ListDistributions(ctx context.Context, orderID uint) ([]models.TipDistribution, error) {
	var dists []models.TipDistribution
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at desc").
		Preload("Lines").
		Preload("Lines.Staff").
		Find(&dists).Error
	return dists, err
}
