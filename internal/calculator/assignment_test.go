package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmynk/splitqr/internal/models"
)

func twoItemBill() models.Bill {
	return models.Bill{
		ID: "b1",
		Items: []models.Item{
			{ID: "1", Name: "Pizza", Price: 450, AssignedTo: []string{}},
			{ID: "2", Name: "Fries", Price: 280, AssignedTo: []string{"u1"}},
		},
		Participants: []models.Participant{
			{ID: "u1", Initials: "AA", Color: "#E53935", Name: "A"},
			{ID: "u2", Initials: "BB", Color: "#7CB342", Name: "B"},
		},
		ServiceCharge: 50,
		GST:           30,
	}
}

func TestToggleAssignment(t *testing.T) {
	bill := twoItemBill()

	claimed := ToggleAssignment(bill, "1", "u2")
	assert.Equal(t, []string{"u2"}, claimed.Items[0].AssignedTo)
	assert.Equal(t, []string{"u1"}, claimed.Items[1].AssignedTo)
	assert.Equal(t, bill.Participants, claimed.Participants)

	unclaimed := ToggleAssignment(claimed, "2", "u1")
	assert.Empty(t, unclaimed.Items[1].AssignedTo)
	assert.Equal(t, []string{"u2"}, unclaimed.Items[0].AssignedTo)
}

func TestToggleAssignment_DoesNotMutateInput(t *testing.T) {
	bill := twoItemBill()
	_ = ToggleAssignment(bill, "2", "u1")
	_ = ToggleAssignment(bill, "2", "u2")

	assert.Equal(t, twoItemBill(), bill)
}

func TestToggleAssignment_DoubleToggleRestores(t *testing.T) {
	for _, itemID := range []string{"1", "2"} {
		for _, participant := range []string{"u1", "u2"} {
			bill := twoItemBill()
			twice := ToggleAssignment(ToggleAssignment(bill, itemID, participant), itemID, participant)
			assert.Equal(t, bill, twice, "item %s participant %s", itemID, participant)
		}
	}
}

func TestToggleAssignment_UnknownItemIsNoop(t *testing.T) {
	bill := twoItemBill()
	assert.Equal(t, bill, ToggleAssignment(bill, "missing", "u1"))
}

func TestToggleAssignment_NoClaimantLimit(t *testing.T) {
	bill := twoItemBill()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		bill = ToggleAssignment(bill, "2", id)
	}
	assert.Len(t, bill.Items[1].AssignedTo, 6)
	assert.InDelta(t, 280.0/6, ComputeShare(bill, "c").Subtotal, 1e-9)
}

func TestWithParticipant(t *testing.T) {
	bill := twoItemBill()

	out, added := WithParticipant(bill, models.Participant{ID: "u3", Initials: "C", Color: "#1E88E5"})
	assert.True(t, added)
	assert.Len(t, out.Participants, 3)
	assert.Len(t, bill.Participants, 2)

	again, added := WithParticipant(out, models.Participant{ID: "u3", Initials: "C", Color: "#1E88E5"})
	assert.False(t, added)
	assert.Len(t, again.Participants, 3)
}

func TestWithoutParticipant_StripsClaims(t *testing.T) {
	bill := ToggleAssignment(twoItemBill(), "1", "u1")

	out := WithoutParticipant(bill, "u1")
	assert.False(t, out.HasParticipant("u1"))
	for _, item := range out.Items {
		assert.NotContains(t, item.AssignedTo, "u1")
	}
	share := ComputeShare(out, "u1")
	assert.Zero(t, share.Total)
	assert.Empty(t, share.Items)

	assert.True(t, bill.HasParticipant("u1"), "input must not change")
}

func TestWithoutParticipant_UnknownIsNoop(t *testing.T) {
	bill := twoItemBill()
	assert.Equal(t, bill, WithoutParticipant(bill, "ghost"))
	assert.False(t, References(bill, "ghost"))
	assert.True(t, References(bill, "u2"))
}
