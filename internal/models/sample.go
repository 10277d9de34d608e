package models

import "time"

// SampleBill is the bill used when no remote document exists, and the seed for new stores.
func SampleBill() Bill {
	return Bill{
		ID:            DefaultBillID,
		Name:          "hotel A",
		ServiceCharge: 50,
		GST:           30,
		Status:        BillStatusActive,
		CreatedAt:     time.Now().UTC(),
		Items: []Item{
			{ID: "item1", Name: "Margherita Pizza", Qty: 1, Price: 450, AssignedTo: []string{}},
			{ID: "item2", Name: "Truffle Fries", Qty: 2, Price: 280, AssignedTo: []string{}},
			{ID: "item3", Name: "Shawarma", Qty: 1, Price: 120, AssignedTo: []string{}},
			{ID: "item4", Name: "Loaded Fries", Qty: 1, Price: 150, AssignedTo: []string{}},
			{ID: "item5", Name: "Sharing Platter", Qty: 1, Price: 950, AssignedTo: []string{}},
			{ID: "item6", Name: "Coca Cola L", Qty: 1, Price: 90, AssignedTo: []string{}},
			{ID: "item7", Name: "Chicken Biriyani", Qty: 1, Price: 140, AssignedTo: []string{}},
		},
		Participants: []Participant{
			{ID: "userA", Initials: "FB", Color: "#E53935", Name: "First User"},
			{ID: "userB", Initials: "DN", Color: "#7CB342", Name: "Second User"},
			{ID: "userC", Initials: "AB", Color: "#1E88E5", Name: "Third User"},
		},
	}
}
