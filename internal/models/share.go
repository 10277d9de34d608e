package models

// SharedItem is an item claimed by a participant, annotated with that participant's portion.
type SharedItem struct {
	Item

	// SharedPrice is Price divided by the number of claimants.
	SharedPrice float64
}

// Share represents one participant's calculated portion of a bill.
// This is the output of the share calculation and is never persisted.
type Share struct {
	ParticipantID string

	// Items are the items this participant claims, with their portion of each.
	Items []SharedItem

	// Subtotal is the sum of SharedPrice over Items.
	Subtotal float64

	// ServiceCharge is this participant's proportional part of the bill's service charge.
	// Calculated as: bill.ServiceCharge × (Subtotal / bill subtotal)
	ServiceCharge float64

	// GST is this participant's proportional part of the bill's tax.
	GST float64

	// Total is Subtotal + ServiceCharge + GST.
	Total float64
}
