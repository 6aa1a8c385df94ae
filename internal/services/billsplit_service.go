package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"dinepay/internal/billsplit"
	"dinepay/internal/models"
)

// BillSplitService owns the split workflow: creating a split over an order,
// invitation responses, recording participant payments and rolling the split
// status forward. The allocation math itself lives in internal/billsplit.
type BillSplitService struct {
	db    *gorm.DB
	email *EmailService
}

func NewBillSplitService(db *gorm.DB, email *EmailService) *BillSplitService {
	return &BillSplitService{db: db, email: email}
}

type SplitParticipantInput struct {
	Name       string
	Email      string
	Phone      string
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

type ItemAssignment struct {
	OrderItemID  uint
	Participants []string
}

type CreateSplitInput struct {
	OrderID        uint
	Method         models.SplitMethod
	TipMethod      models.TipMethod
	TipValue       decimal.Decimal
	OrganizerName  string
	OrganizerEmail string
	Participants   []SplitParticipantInput
	Assignments    []ItemAssignment

	AllowPartialPayments bool
	RequireAllAcceptance bool
	AutoClose            bool
	ExpiresAt            *time.Time
}

// CreateSplit validates the configuration, computes every participant's
// share and persists the split with one opaque access token per participant
// for the public payment pages. Splits start PENDING when acceptance is
// required, ACTIVE otherwise.
func (s *BillSplitService) CreateSplit(ctx context.Context, in CreateSplitInput) (*models.BillSplit, error) {
	if len(in.Participants) == 0 {
		return nil, validationErr("participants", "at least one participant is required")
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&order, in.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", in.OrderID, ErrNotFound)
		}
		return nil, err
	}

	tip, err := billsplit.CalculateTip(order.Subtotal, in.TipMethod, in.TipValue, order.Currency)
	if err != nil {
		return nil, validationErr("tip", "%v", err)
	}

	compIn := billsplit.Input{
		Method:        in.Method,
		Subtotal:      order.Subtotal,
		Tax:           order.TaxAmount,
		ServiceCharge: order.ServiceFee,
		Tip:           tip,
		Currency:      order.Currency,
	}
	for i, p := range in.Participants {
		compIn.Participants = append(compIn.Participants, billsplit.Participant{
			Key:        participantKey(i),
			Percentage: p.Percentage,
			Amount:     p.Amount,
		})
	}
	if in.Method == models.SplitMethodItem {
		compIn.Items, err = s.assignedItems(order.Items, in.Assignments, in.Participants)
		if err != nil {
			return nil, err
		}
	}

	result, err := billsplit.Compute(compIn)
	if err != nil {
		return nil, validationErr("split_config", "%v", err)
	}
	for _, w := range result.Warnings {
		log.Printf("bill split for order %s: %s", order.OrderNumber, w)
	}

	status := models.SplitStatusActive
	if in.RequireAllAcceptance {
		status = models.SplitStatusPending
	}

	split := models.BillSplit{
		OrderID:              order.ID,
		Method:               in.Method,
		Status:               status,
		Subtotal:             order.Subtotal,
		TaxAmount:            order.TaxAmount,
		ServiceCharge:        order.ServiceFee,
		TipAmount:            tip,
		TotalAmount:          order.Subtotal.Add(order.TaxAmount).Add(order.ServiceFee).Add(tip),
		Currency:             order.Currency,
		SplitConfig:          splitConfig(in),
		OrganizerName:        in.OrganizerName,
		OrganizerEmail:       in.OrganizerEmail,
		AllowPartialPayments: in.AllowPartialPayments,
		RequireAllAcceptance: in.RequireAllAcceptance,
		AutoClose:            in.AutoClose,
		ExpiresAt:            in.ExpiresAt,
	}

	// Nobody is declined at creation, so shares come back one per input
	// participant in input order.
	for i, p := range in.Participants {
		share := result.Shares[i]
		split.Participants = append(split.Participants, models.SplitParticipant{
			Name:        p.Name,
			Email:       p.Email,
			Phone:       p.Phone,
			ShareAmount: share.Base.Add(share.Tax).Add(share.Service),
			TipAmount:   share.Tip,
			TotalAmount: share.Total,
			PaidAmount:  decimal.Zero,
			Status:      models.ParticipantStatusPending,
			AccessToken: uuid.NewString(),
		})
	}

	if err := s.db.WithContext(ctx).Create(&split).Error; err != nil {
		return nil, err
	}

	if s.email != nil {
		for _, p := range split.Participants {
			if p.Email != "" {
				s.email.QueueSplitInvitation(ctx, &split, &p)
			}
		}
	}
	return &split, nil
}

// assignedItems resolves assignment names to allocation keys. A name shared
// by several participants fans out to all of them; an unknown name is a
// configuration error.
func (s *BillSplitService) assignedItems(items []models.OrderItem, assignments []ItemAssignment, participants []SplitParticipantInput) ([]billsplit.Item, error) {
	keysByName := make(map[string][]string, len(participants))
	for i, p := range participants {
		keysByName[p.Name] = append(keysByName[p.Name], participantKey(i))
	}
	byID := make(map[uint][]string, len(assignments))
	for _, a := range assignments {
		byID[a.OrderItemID] = a.Participants
	}

	out := make([]billsplit.Item, 0, len(items))
	for _, item := range items {
		var assignees []string
		for _, name := range byID[item.ID] {
			keys, ok := keysByName[name]
			if !ok {
				return nil, validationErr("assignments", "unknown participant %q on item %s", name, item.Name)
			}
			assignees = append(assignees, keys...)
		}
		out = append(out, billsplit.Item{
			Key:       item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Assignees: assignees,
		})
	}
	return out, nil
}

// participantKey is the positional allocation key for a creation-time
// participant. Persisted participants use their row id instead.
func participantKey(i int) string {
	return "p" + strconv.Itoa(i+1)
}

// splitConfig snapshots the method parameters for audit and recomputation.
func splitConfig(in CreateSplitInput) map[string]interface{} {
	cfg := map[string]interface{}{
		"tip_method": string(in.TipMethod),
		"tip_value":  in.TipValue.String(),
	}
	switch in.Method {
	case models.SplitMethodPercentage:
		percentages := map[string]string{}
		for _, p := range in.Participants {
			percentages[p.Name] = p.Percentage.String()
		}
		cfg["percentages"] = percentages
	case models.SplitMethodAmount:
		amounts := map[string]string{}
		for _, p := range in.Participants {
			amounts[p.Name] = p.Amount.String()
		}
		cfg["amounts"] = amounts
	case models.SplitMethodItem:
		assignments := map[string][]string{}
		for _, a := range in.Assignments {
			assignments[fmt.Sprintf("%d", a.OrderItemID)] = a.Participants
		}
		cfg["assignments"] = assignments
	}
	return cfg
}

func (s *BillSplitService) GetSplit(ctx context.Context, id uint) (*models.BillSplit, error) {
	var split models.BillSplit
	err := s.db.WithContext(ctx).Preload("Participants").Preload("Order").First(&split, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bill split %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &split, nil
}

// GetParticipantByToken resolves a public access token to the participant
// and their split. This is the only lookup the unauthenticated pages use.
func (s *BillSplitService) GetParticipantByToken(ctx context.Context, token string) (*models.SplitParticipant, error) {
	var participant models.SplitParticipant
	err := s.db.WithContext(ctx).
		Preload("BillSplit").
		Preload("BillSplit.Participants").
		Where("access_token = ?", token).
		First(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("participant: %w", ErrNotFound)
		}
		return nil, err
	}
	return &participant, nil
}

// RespondToInvitation records an accept/decline. A decline reallocates the
// declined share across the remaining participants as long as nobody has
// paid yet; once money moved, shares are frozen.
func (s *BillSplitService) RespondToInvitation(ctx context.Context, token string, accept bool) (*models.SplitParticipant, error) {
	participant, err := s.GetParticipantByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if participant.Status != models.ParticipantStatusPending {
		return nil, validationErr("status", "invitation already %s", participant.Status)
	}
	split := participant.BillSplit
	if split.Status == models.SplitStatusCanceled || split.Status == models.SplitStatusCompleted {
		return nil, validationErr("status", "bill split is %s", split.Status)
	}

	target := models.ParticipantStatusAccepted
	if !accept {
		target = models.ParticipantStatusDeclined
	}
	if err := s.db.WithContext(ctx).Model(participant).Update("status", target).Error; err != nil {
		return nil, err
	}
	participant.Status = target

	if !accept {
		if err := s.reallocateAfterDecline(ctx, &split); err != nil {
			log.Printf("bill split %d: reallocation after decline failed: %v", split.ID, err)
		}
	}
	if err := s.refreshSplitStatus(ctx, split.ID); err != nil {
		return nil, err
	}
	return participant, nil
}

// reallocateAfterDecline recomputes equal-method shares across remaining
// participants. Percentage/amount/item configs name specific people, so a
// decline there leaves a shortfall the organizer has to resolve; we log it
// rather than guessing.
func (s *BillSplitService) reallocateAfterDecline(ctx context.Context, split *models.BillSplit) error {
	var paid int64
	if err := s.db.WithContext(ctx).Model(&models.SplitParticipant{}).
		Where("bill_split_id = ? AND paid_amount > 0", split.ID).
		Count(&paid).Error; err != nil {
		return err
	}
	if paid > 0 {
		log.Printf("bill split %d: participant declined after payments started; shares frozen", split.ID)
		return nil
	}
	if split.Method != models.SplitMethodEqual {
		log.Printf("bill split %d: decline on %s split leaves a shortfall", split.ID, split.Method)
		return nil
	}

	var participants []models.SplitParticipant
	if err := s.db.WithContext(ctx).
		Where("bill_split_id = ?", split.ID).
		Order("id asc").
		Find(&participants).Error; err != nil {
		return err
	}

	compIn := billsplit.Input{
		Method:        models.SplitMethodEqual,
		Subtotal:      split.Subtotal,
		Tax:           split.TaxAmount,
		ServiceCharge: split.ServiceCharge,
		Tip:           split.TipAmount,
		Currency:      split.Currency,
	}
	for _, p := range participants {
		compIn.Participants = append(compIn.Participants, billsplit.Participant{
			Key:      strconv.FormatUint(uint64(p.ID), 10),
			Declined: p.Status == models.ParticipantStatusDeclined,
		})
	}
	result, err := billsplit.Compute(compIn)
	if err != nil {
		return err
	}

	shareByKey := make(map[string]billsplit.Share, len(result.Shares))
	for _, share := range result.Shares {
		shareByKey[share.Key] = share
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range participants {
			p := &participants[i]
			share, ok := shareByKey[strconv.FormatUint(uint64(p.ID), 10)]
			if !ok {
				continue
			}
			err := tx.Model(p).Updates(map[string]interface{}{
				"share_amount": share.Base.Add(share.Tax).Add(share.Service),
				"tip_amount":   share.Tip,
				"total_amount": share.Total,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordParticipantPayment books a completed payment against a participant's
// share: bumps paid_amount, writes the allocation row, flips the participant
// to PAID when covered, and re-evaluates the whole split.
func (s *BillSplitService) RecordParticipantPayment(ctx context.Context, participantID, paymentID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return validationErr("amount", "must be positive, got %s", amount)
	}

	var participant models.SplitParticipant
	if err := s.db.WithContext(ctx).Preload("BillSplit").First(&participant, participantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("participant %d: %w", participantID, ErrNotFound)
		}
		return err
	}
	split := participant.BillSplit

	switch split.Status {
	case models.SplitStatusActive, models.SplitStatusPartiallyPaid:
	default:
		return validationErr("status", "bill split is %s, not accepting payments", split.Status)
	}
	if participant.Status == models.ParticipantStatusDeclined {
		return validationErr("participant", "participant declined this split")
	}

	remaining := participant.TotalAmount.Sub(participant.PaidAmount)
	if !split.AllowPartialPayments && amount.LessThan(remaining) {
		return validationErr("amount", "partial payments are not allowed; %s remaining", remaining)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newPaid := participant.PaidAmount.Add(amount)
		updates := map[string]interface{}{"paid_amount": newPaid}
		if newPaid.GreaterThanOrEqual(participant.TotalAmount) {
			updates["status"] = models.ParticipantStatusPaid
		}
		if err := tx.Model(&participant).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Create(&models.PaymentAllocation{
			BillSplitID:   split.ID,
			ParticipantID: participant.ID,
			PaymentID:     paymentID,
			Amount:        amount,
		}).Error
	})
	if err != nil {
		return err
	}
	return s.refreshSplitStatus(ctx, split.ID)
}

// refreshSplitStatus re-derives the split status from all participants.
// Partial payments can land in any order, so this always scans the full set
// rather than trusting the participant just touched.
func (s *BillSplitService) refreshSplitStatus(ctx context.Context, splitID uint) error {
	var split models.BillSplit
	if err := s.db.WithContext(ctx).Preload("Participants").First(&split, splitID).Error; err != nil {
		return err
	}
	switch split.Status {
	case models.SplitStatusCanceled, models.SplitStatusCompleted:
		return nil
	}

	var (
		pending  int
		paid     int
		active   int
		anyMoney bool
	)
	for _, p := range split.Participants {
		if p.Status == models.ParticipantStatusDeclined {
			continue
		}
		active++
		if p.Status == models.ParticipantStatusPending {
			pending++
		}
		if p.Status == models.ParticipantStatusPaid {
			paid++
		}
		if p.PaidAmount.IsPositive() {
			anyMoney = true
		}
	}

	target := split.Status
	switch {
	case active == 0:
		target = models.SplitStatusCanceled
	case paid == active && (split.AutoClose || split.Status == models.SplitStatusPartiallyPaid || anyMoney):
		target = models.SplitStatusCompleted
	case anyMoney:
		target = models.SplitStatusPartiallyPaid
	case split.Status == models.SplitStatusPending && split.RequireAllAcceptance && pending == 0:
		target = models.SplitStatusActive
	}

	if target == split.Status {
		return nil
	}
	log.Printf("bill split %d: status %s -> %s", split.ID, split.Status, target)
	return s.db.WithContext(ctx).Model(&split).Update("status", target).Error
}

// CancelSplit cancels a split that has not started collecting money.
func (s *BillSplitService) CancelSplit(ctx context.Context, id uint) error {
	split, err := s.GetSplit(ctx, id)
	if err != nil {
		return err
	}
	switch split.Status {
	case models.SplitStatusPending, models.SplitStatusActive:
	default:
		return validationErr("status", "cannot cancel a %s split", split.Status)
	}
	return s.db.WithContext(ctx).Model(split).Update("status", models.SplitStatusCanceled).Error
}

// ExpireStaleSplits cancels unpaid splits past their expiry. Called from the
// scheduled-task worker.
func (s *BillSplitService) ExpireStaleSplits(ctx context.Context) (int, error) {
	var splits []models.BillSplit
	err := s.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]models.SplitStatus{models.SplitStatusPending, models.SplitStatusActive}, time.Now()).
		Find(&splits).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range splits {
		if err := s.db.WithContext(ctx).Model(&splits[i]).Update("status", models.SplitStatusCanceled).Error; err != nil {
			log.Printf("bill split %d: expiry failed: %v", splits[i].ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}
