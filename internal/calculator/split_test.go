package calculator

import (
	"math"
	"testing"

	"github.com/mmynk/splitqr/internal/models"
)

func TestComputeShare(t *testing.T) {
	tests := []struct {
		name         string
		bill         models.Bill
		participant  string
		validateFunc func(t *testing.T, share models.Share)
	}{
		{
			name: "claimed item with unclaimed remainder",
			bill: models.Bill{
				Items: []models.Item{
					{ID: "1", Price: 450, AssignedTo: []string{}},
					{ID: "2", Price: 280, AssignedTo: []string{"u1"}},
				},
				ServiceCharge: 50,
				GST:           30,
			},
			participant: "u1",
			validateFunc: func(t *testing.T, share models.Share) {
				// proportion = 280/730, service = 50 × p, gst = 30 × p
				if math.Abs(share.Subtotal-280) > 0.001 {
					t.Errorf("subtotal = %v, want 280", share.Subtotal)
				}
				if math.Abs(share.ServiceCharge-19.178) > 0.001 {
					t.Errorf("service = %v, want ≈19.18", share.ServiceCharge)
				}
				if math.Abs(share.GST-11.507) > 0.001 {
					t.Errorf("gst = %v, want ≈11.51", share.GST)
				}
				if math.Abs(share.Total-310.685) > 0.001 {
					t.Errorf("total = %v, want ≈310.68", share.Total)
				}
				if len(share.Items) != 1 || share.Items[0].ID != "2" {
					t.Errorf("items = %+v, want only item 2", share.Items)
				}
			},
		},
		{
			name: "shared item splits evenly",
			bill: models.Bill{
				Items: []models.Item{
					{ID: "pizza", Price: 20, AssignedTo: []string{"alice", "bob"}},
				},
			},
			participant: "bob",
			validateFunc: func(t *testing.T, share models.Share) {
				if len(share.Items) != 1 {
					t.Fatalf("expected 1 item, got %d", len(share.Items))
				}
				if share.Items[0].SharedPrice != 10 {
					t.Errorf("shared price = %v, want 10", share.Items[0].SharedPrice)
				}
				if share.Total != 10 {
					t.Errorf("total = %v, want 10", share.Total)
				}
			},
		},
		{
			name: "participant without claims owes nothing",
			bill: models.Bill{
				Items:         []models.Item{{ID: "1", Price: 100, AssignedTo: []string{"alice"}}},
				ServiceCharge: 10,
				GST:           5,
			},
			participant: "bob",
			validateFunc: func(t *testing.T, share models.Share) {
				if share.Total != 0 || share.Subtotal != 0 || share.ServiceCharge != 0 || share.GST != 0 {
					t.Errorf("expected zero share, got %+v", share)
				}
				if share.Items == nil || len(share.Items) != 0 {
					t.Errorf("expected empty item list, got %v", share.Items)
				}
			},
		},
		{
			name: "zero bill subtotal guards the proportion",
			bill: models.Bill{
				Items:         []models.Item{{ID: "free", Price: 0, AssignedTo: []string{"alice"}}},
				ServiceCharge: 10,
				GST:           5,
			},
			participant: "alice",
			validateFunc: func(t *testing.T, share models.Share) {
				if share.Total != 0 {
					t.Errorf("total = %v, want 0", share.Total)
				}
				if math.IsNaN(share.ServiceCharge) || math.IsNaN(share.GST) {
					t.Errorf("charges must not be NaN: %+v", share)
				}
			},
		},
		{
			name:        "empty bill",
			bill:        models.Bill{ServiceCharge: 10},
			participant: "alice",
			validateFunc: func(t *testing.T, share models.Share) {
				if share.Total != 0 {
					t.Errorf("total = %v, want 0", share.Total)
				}
			},
		},
		{
			name: "price is the line total regardless of quantity",
			bill: models.Bill{
				Items: []models.Item{{ID: "fries", Qty: 2, Price: 280, AssignedTo: []string{"alice"}}},
			},
			participant: "alice",
			validateFunc: func(t *testing.T, share models.Share) {
				if share.Subtotal != 280 {
					t.Errorf("subtotal = %v, want 280", share.Subtotal)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateFunc(t, ComputeShare(tt.bill, tt.participant))
		})
	}
}

func TestComputeShare_Deterministic(t *testing.T) {
	bill := models.SampleBill()
	bill.Items[0].AssignedTo = []string{"userA", "userB"}
	bill.Items[4].AssignedTo = []string{"userA"}

	first := ComputeShare(bill, "userA")
	second := ComputeShare(bill, "userA")
	if first.Total != second.Total || len(first.Items) != len(second.Items) {
		t.Errorf("shares differ: %+v vs %+v", first, second)
	}
}

func TestSharedPrice_NoClaimants(t *testing.T) {
	if got := SharedPrice(models.Item{Price: 90}); got != 90 {
		t.Errorf("SharedPrice() = %v, want 90", got)
	}
}
