// Package calculator holds the pure bill-splitting functions: per-participant shares,
// claim toggling and participant membership changes. Nothing here performs I/O and
// no input bill is ever mutated.
package calculator

import (
	"github.com/mmynk/splitqr/internal/models"
)

// ComputeShare computes what one participant owes, including proportional charges.
//
// Algorithm:
//   - shared_price = item.price / max(1, claimants)
//   - subtotal = Σ shared_price over claimed items
//   - proportion = subtotal / Σ price over ALL items (0 when the bill subtotal is 0)
//   - service = bill.service_charge × proportion, gst = bill.gst × proportion
//
// An unknown participant, or one with no claims, gets an empty share with all amounts 0.
func ComputeShare(bill models.Bill, participantID string) models.Share {
	share := models.Share{
		ParticipantID: participantID,
		Items:         []models.SharedItem{},
	}

	for _, item := range bill.Items {
		if !item.IsClaimedBy(participantID) {
			continue
		}
		shared := SharedPrice(item)
		share.Items = append(share.Items, models.SharedItem{
			Item:        item.Clone(),
			SharedPrice: shared,
		})
		share.Subtotal += shared
	}

	var proportion float64
	if billSubtotal := bill.Subtotal(); billSubtotal > 0 {
		proportion = share.Subtotal / billSubtotal
	}

	share.ServiceCharge = bill.ServiceCharge * proportion
	share.GST = bill.GST * proportion
	share.Total = share.Subtotal + share.ServiceCharge + share.GST

	return share
}

// SharedPrice is one claimant's portion of an item's price.
func SharedPrice(item models.Item) float64 {
	shareCount := len(item.AssignedTo)
	if shareCount < 1 {
		shareCount = 1
	}
	return item.Price / float64(shareCount)
}
