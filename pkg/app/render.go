package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"carecart/pkg/order"
	"carecart/pkg/pricing"
	"carecart/pkg/processing"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2E7D32"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#757575")).
			Width(12)

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#2E7D32"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9E9E9E"))

	cancelledStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#C62828"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#81C784")).
			Padding(0, 1)
)

// renderOrder draws the order summary and its step timeline.
func renderOrder(o order.Order) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Order #%s", o.ID)) + "\n")

	status := string(o.Status)
	if o.Status == order.StatusCancelled {
		status = cancelledStyle.Render(status)
	}
	rows := [][2]string{
		{"Service", o.Service},
		{"Status", status},
		{"Amount", fmt.Sprintf("%d DA", o.Amount)},
		{"Payment", o.PaymentMethod},
		{"Address", o.Address},
		{"ETA", o.EstimatedTime},
		{"Location", o.CurrentLocation},
	}
	for _, row := range rows {
		sb.WriteString(labelStyle.Render(row[0]) + row[1] + "\n")
	}
	if len(o.Items) > 0 {
		sb.WriteString("\n")
		for _, item := range o.Items {
			total, err := pricing.LineTotal(item)
			if err != nil {
				sb.WriteString(fmt.Sprintf("  %d x %s  -\n", item.Quantity, item.Name))
				continue
			}
			sb.WriteString(fmt.Sprintf("  %d x %s  %d DA\n", item.Quantity, item.Name, total))
		}
	}

	sb.WriteString("\n")
	for _, step := range o.Steps {
		if step.Completed {
			line := "● " + step.Title
			if step.Time != "" {
				line += "  " + step.Time
			}
			sb.WriteString(doneStyle.Render(line) + "\n")
			continue
		}
		sb.WriteString(pendingStyle.Render("○ "+step.Title) + "\n")
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// renderProgress is one line of the settlement animation.
func renderProgress(bar progress.Model, p processing.Progress) string {
	return fmt.Sprintf("%s %-24s", bar.ViewAs(p.Percent/100), p.StageName)
}
