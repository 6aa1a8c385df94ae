package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinepay/internal/models"
)

func TestAssignedItemsFansOutSharedNames(t *testing.T) {
	// Two guests can sit at one table under the same name. An assignment by
	// that name covers both of them; their allocation keys stay distinct.
	s := &BillSplitService{}
	participants := []SplitParticipantInput{
		{Name: "Alex"},
		{Name: "Alex"},
		{Name: "Sam"},
	}
	items := []models.OrderItem{
		{ID: 1, Name: "Ribeye", UnitPrice: decimal.RequireFromString("48.00"), Quantity: 1},
		{ID: 2, Name: "Fries", UnitPrice: decimal.RequireFromString("6.00"), Quantity: 2},
	}
	assignments := []ItemAssignment{
		{OrderItemID: 1, Participants: []string{"Alex"}},
		{OrderItemID: 2, Participants: []string{"Sam"}},
	}

	out, err := s.assignedItems(items, assignments, participants)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"p1", "p2"}, out[0].Assignees)
	assert.Equal(t, []string{"p3"}, out[1].Assignees)
}

func TestAssignedItemsRejectsUnknownName(t *testing.T) {
	s := &BillSplitService{}
	_, err := s.assignedItems(
		[]models.OrderItem{{ID: 1, Name: "Ribeye", UnitPrice: decimal.RequireFromString("48.00"), Quantity: 1}},
		[]ItemAssignment{{OrderItemID: 1, Participants: []string{"Nobody"}}},
		[]SplitParticipantInput{{Name: "Alex"}},
	)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
