package calculator

import "github.com/mmynk/splitqr/internal/models"

// Summary is the checkout view of a whole bill.
type Summary struct {
	// Shares holds one share per participant, in bill order.
	Shares []models.Share

	// BillSubtotal is the sum of all item prices.
	BillSubtotal float64

	// GrandTotal is BillSubtotal plus the service charge and GST.
	GrandTotal float64

	// Claimed is the sum of every participant's total.
	Claimed float64

	// Unclaimed is what nobody has picked up yet (GrandTotal - Claimed).
	Unclaimed float64

	// UnclaimedItems are the items with no claimants.
	UnclaimedItems []models.Item
}

// Summarize computes every participant's share and what remains unclaimed.
// Claims by IDs that are no longer participants are not attributed to anyone.
func Summarize(bill models.Bill) Summary {
	summary := Summary{
		Shares:         make([]models.Share, 0, len(bill.Participants)),
		BillSubtotal:   bill.Subtotal(),
		UnclaimedItems: []models.Item{},
	}
	summary.GrandTotal = summary.BillSubtotal + bill.ServiceCharge + bill.GST

	for _, p := range bill.Participants {
		share := ComputeShare(bill, p.ID)
		summary.Claimed += share.Total
		summary.Shares = append(summary.Shares, share)
	}

	for _, item := range bill.Items {
		if len(item.AssignedTo) == 0 {
			summary.UnclaimedItems = append(summary.UnclaimedItems, item.Clone())
		}
	}

	summary.Unclaimed = summary.GrandTotal - summary.Claimed
	// Avoid floating point noise
	if summary.Unclaimed < 1e-9 && summary.Unclaimed > -1e-9 {
		summary.Unclaimed = 0
	}

	return summary
}
