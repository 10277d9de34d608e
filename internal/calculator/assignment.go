package calculator

import (
	"slices"

	"github.com/mmynk/splitqr/internal/models"
)

// ToggleAssignment returns a copy of bill where participantID's claim on itemID is flipped:
// removed if present, appended otherwise. An unknown itemID yields an unchanged copy.
func ToggleAssignment(bill models.Bill, itemID, participantID string) models.Bill {
	out := bill.Clone()
	for i := range out.Items {
		item := &out.Items[i]
		if item.ID != itemID {
			continue
		}
		if item.IsClaimedBy(participantID) {
			item.AssignedTo = slices.DeleteFunc(item.AssignedTo, func(id string) bool {
				return id == participantID
			})
		} else {
			item.AssignedTo = append(item.AssignedTo, participantID)
		}
		break
	}
	return out
}

// WithParticipant returns a copy of bill with p appended. If a participant with the same ID
// is already present the copy is unchanged and added is false.
func WithParticipant(bill models.Bill, p models.Participant) (out models.Bill, added bool) {
	out = bill.Clone()
	if bill.HasParticipant(p.ID) {
		return out, false
	}
	out.Participants = append(out.Participants, p)
	return out, true
}

// WithoutParticipant returns a copy of bill without the participant, with their ID stripped
// from every item's claimants.
func WithoutParticipant(bill models.Bill, participantID string) models.Bill {
	out := bill.Clone()
	out.Participants = slices.DeleteFunc(out.Participants, func(p models.Participant) bool {
		return p.ID == participantID
	})
	for i := range out.Items {
		out.Items[i].AssignedTo = slices.DeleteFunc(out.Items[i].AssignedTo, func(id string) bool {
			return id == participantID
		})
	}
	return out
}

// References reports whether the bill mentions participantID as a participant or claimant.
func References(bill models.Bill, participantID string) bool {
	if bill.HasParticipant(participantID) {
		return true
	}
	for _, item := range bill.Items {
		if item.IsClaimedBy(participantID) {
			return true
		}
	}
	return false
}
