// Package tui renders bills, shares and checkout summaries for the terminal.
// Amounts are rounded to two decimals here and nowhere else.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmynk/splitqr/internal/calculator"
	"github.com/mmynk/splitqr/internal/models"
)

var (
	accent  = lipgloss.Color("#2E7D32")
	fg      = lipgloss.Color("#E8E6E3")
	dim     = lipgloss.Color("#6B7280")
	faint   = lipgloss.Color("#3F3F46")
	success = lipgloss.Color("#22C55E")
	danger  = lipgloss.Color("#EF4444")
	warning = lipgloss.Color("#F59E0B")
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 2).
			Width(60)

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	dimStyle      = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	mineStyle     = lipgloss.NewStyle().Foreground(success).Bold(true)
	closedStyle   = lipgloss.NewStyle().Foreground(danger).Bold(true)
	localStyle    = lipgloss.NewStyle().Foreground(warning)
	separatorLine = faintStyle.Render(strings.Repeat("─", 56))
)

// FormatAmount renders an amount with two decimals.
func FormatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Header is the boxed title shared by every view.
func Header(bill models.Bill, mode string) string {
	title := headerStyle.Render(bill.Name)
	meta := dimStyle.Render("bill " + bill.ID)
	if bill.Status == models.BillStatusClosed {
		meta += "  " + closedStyle.Render("closed")
	}
	if mode == "local" {
		meta += "  " + localStyle.Render("offline copy")
	}
	return boxStyle.Render(title + "\n" + meta)
}

// RenderBill lists the items with their claimants. Items held by currentID are marked.
func RenderBill(bill models.Bill, currentID, mode string) string {
	var b strings.Builder
	b.WriteString(Header(bill, mode))
	b.WriteString("\n\n")

	for _, item := range bill.Items {
		mark := faintStyle.Render("○")
		if currentID != "" && item.IsClaimedBy(currentID) {
			mark = mineStyle.Render("●")
		}
		name := padRight(fmt.Sprintf("%s x%d", item.Name, item.Qty), 28)
		price := padLeft(FormatAmount(item.Price), 9)
		fmt.Fprintf(&b, "  %s %s %s  %s  %s\n", mark, dimStyle.Render(padRight(item.ID, 6)),
			titleStyle.Render(name), price, claimants(bill, item))
	}

	b.WriteString("\n  " + separatorLine + "\n")
	writeLine(&b, "Subtotal", bill.Subtotal())
	writeLine(&b, "Service charge", bill.ServiceCharge)
	writeLine(&b, "GST", bill.GST)
	writeTotal(&b, "Total", bill.Subtotal()+bill.ServiceCharge+bill.GST)
	return b.String()
}

func claimants(bill models.Bill, item models.Item) string {
	if len(item.AssignedTo) == 0 {
		return faintStyle.Render("unclaimed")
	}
	tags := make([]string, 0, len(item.AssignedTo))
	for _, id := range item.AssignedTo {
		p, ok := bill.Participant(id)
		if !ok {
			continue
		}
		tags = append(tags, lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Color)).Render(p.Initials))
	}
	return strings.Join(tags, " ")
}

// RenderShare is one participant's checkout.
func RenderShare(bill models.Bill, share models.Share, mode string) string {
	var b strings.Builder
	b.WriteString(Header(bill, mode))
	b.WriteString("\n\n")

	name := share.ParticipantID
	if p, ok := bill.Participant(share.ParticipantID); ok && p.Name != "" {
		name = p.Name
	}
	b.WriteString("  " + titleStyle.Render(name) + "\n\n")

	if len(share.Items) == 0 {
		b.WriteString("  " + dimStyle.Render("No items claimed.") + "\n")
	}
	for _, item := range share.Items {
		label := item.Name
		if n := len(item.AssignedTo); n > 1 {
			label = fmt.Sprintf("%s (1/%d)", item.Name, n)
		}
		writeLine(&b, label, item.SharedPrice)
	}

	b.WriteString("\n  " + separatorLine + "\n")
	writeLine(&b, "Subtotal", share.Subtotal)
	writeLine(&b, "Service charge", share.ServiceCharge)
	writeLine(&b, "GST", share.GST)
	writeTotal(&b, "Total", share.Total)
	return b.String()
}

// RenderSummary lists every participant's total and what is still unclaimed.
func RenderSummary(bill models.Bill, summary calculator.Summary, currentID string) string {
	var b strings.Builder
	b.WriteString("  " + titleStyle.Render("Participants") + "\n\n")

	if len(summary.Shares) == 0 {
		b.WriteString("  " + dimStyle.Render("Nobody has joined yet.") + "\n")
	}
	for _, share := range summary.Shares {
		p, _ := bill.Participant(share.ParticipantID)
		bubble := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Color)).Render(padRight(p.Initials, 2))
		label := padRight(p.Name, 20)
		if share.ParticipantID == currentID {
			label = mineStyle.Render(label)
		}
		fmt.Fprintf(&b, "  %s %s %s  %s\n", bubble, label, dimStyle.Render(padRight(p.ID, 16)),
			padLeft(FormatAmount(share.Total), 9))
	}

	b.WriteString("\n  " + separatorLine + "\n")
	writeLine(&b, "Claimed", summary.Claimed)
	writeLine(&b, "Unclaimed", summary.Unclaimed)
	writeTotal(&b, "Grand total", summary.GrandTotal)

	if len(summary.UnclaimedItems) > 0 {
		names := make([]string, 0, len(summary.UnclaimedItems))
		for _, item := range summary.UnclaimedItems {
			names = append(names, item.Name)
		}
		b.WriteString("\n  " + dimStyle.Render("Still unclaimed: "+strings.Join(names, ", ")) + "\n")
	}
	return b.String()
}

func writeLine(b *strings.Builder, label string, amount float64) {
	fmt.Fprintf(b, "  %s %s\n", dimStyle.Render(padRight(label, 44)), padLeft(FormatAmount(amount), 10))
}

func writeTotal(b *strings.Builder, label string, amount float64) {
	fmt.Fprintf(b, "  %s %s\n", titleStyle.Render(padRight(label, 44)), titleStyle.Render(padLeft(FormatAmount(amount), 10)))
}

func padRight(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func padLeft(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return strings.Repeat(" ", width-n) + s
	}
	return s
}
