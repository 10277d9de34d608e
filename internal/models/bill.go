package models

import (
	"slices"
	"time"
)

// DefaultBillID is the bill opened when the scanned URL carries no bill parameter.
const DefaultBillID = "AS3-26"

// BillStatus is the lifecycle state of a bill.
type BillStatus string

const (
	BillStatusActive BillStatus = "active"
	BillStatusClosed BillStatus = "closed"
)

// Valid reports whether s is a known status.
func (s BillStatus) Valid() bool {
	return s == BillStatusActive || s == BillStatusClosed
}

// Bill is a shared restaurant check.
type Bill struct {
	// ID is the document identifier of the bill (also encoded in the QR code).
	ID string

	// Name is the display name of the venue.
	Name string

	// Items are the lines on the bill, in menu order.
	Items []Item

	// Participants are the people splitting the bill.
	Participants []Participant

	// ServiceCharge is a flat bill-level amount, allocated by subtotal proportion.
	ServiceCharge float64

	// GST is the flat bill-level tax amount, allocated by subtotal proportion.
	GST float64

	Status    BillStatus
	CreatedAt time.Time
}

// Item represents a single line on a bill.
// Items can be shared among any number of participants.
type Item struct {
	ID   string
	Name string
	Qty  int

	// Price is the line total. It is not multiplied by Qty.
	Price float64

	// AssignedTo holds the IDs of participants claiming this item.
	AssignedTo []string
}

// Clone returns a deep copy of the bill.
func (b Bill) Clone() Bill {
	out := b
	if b.Items != nil {
		out.Items = make([]Item, len(b.Items))
		for i, item := range b.Items {
			out.Items[i] = item.Clone()
		}
	}
	out.Participants = slices.Clone(b.Participants)
	return out
}

// Clone returns a copy of the item with its own claimant slice.
func (i Item) Clone() Item {
	out := i
	out.AssignedTo = slices.Clone(i.AssignedTo)
	return out
}

// IsClaimedBy reports whether the participant is among the item's claimants.
func (i Item) IsClaimedBy(participantID string) bool {
	return slices.Contains(i.AssignedTo, participantID)
}

// Item returns the item with the given ID.
func (b Bill) Item(id string) (Item, bool) {
	for _, item := range b.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}

// Participant returns the participant with the given ID.
func (b Bill) Participant(id string) (Participant, bool) {
	for _, p := range b.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// HasParticipant reports whether a participant with the given ID is on the bill.
func (b Bill) HasParticipant(id string) bool {
	_, ok := b.Participant(id)
	return ok
}

// Subtotal is the sum of all item prices, claimed or not.
func (b Bill) Subtotal() float64 {
	var sum float64
	for _, item := range b.Items {
		sum += item.Price
	}
	return sum
}
