package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/wms-platform/pick-floor/internal/application"
	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/picker"
)

var (
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	rushColor    = color.New(color.FgRed)
	highColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	headingColor = color.New(color.Bold)
)

func priorityLabel(p domain.Priority) string {
	switch p {
	case domain.PriorityRush:
		return rushColor.Sprint(string(p))
	case domain.PriorityHigh:
		return highColor.Sprint(string(p))
	default:
		return string(p)
	}
}

func unitState(u *domain.WorkUnit) string {
	switch {
	case u.HasOpenException():
		return errorColor.Sprint("exception")
	case u.OnHold:
		return warnColor.Sprint("on hold")
	case u.Status == domain.UnitStatusCompleted, u.Status == domain.UnitStatusCancelled:
		return dimColor.Sprint(string(u.Status))
	default:
		return string(u.Status)
	}
}

// printQueue writes the queue as a table, in queue order
func printQueue(w io.Writer, units []*domain.WorkUnit) {
	if len(units) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("Queue is empty"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tPRIORITY\tSTATE\tCLAIMED BY\tPICKED")
	for _, u := range units {
		claimedBy := u.ClaimedBy
		if claimedBy == "" {
			claimedBy = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n",
			u.UnitID, priorityLabel(u.Priority), unitState(u), claimedBy, u.PickedUnits(), u.TotalUnits())
	}
	tw.Flush()
}

// printPickList writes the session's items with their position, which the
// pick commands take
func printPickList(w io.Writer, session *picker.PickingSession) {
	unit := session.Unit()
	if unit == nil {
		return
	}
	fmt.Fprintf(w, "%s %s  %d/%d\n", headingColor.Sprint(unit.UnitID), priorityLabel(unit.Priority),
		unit.PickedUnits(), unit.TotalUnits())

	current, _ := session.CurrentItem()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, gi := range session.PickList() {
		marker := " "
		if i == current {
			marker = ">"
		}
		line := fmt.Sprintf("%s %d\t%s\t%s\t%d/%d\t%s",
			marker, i, gi.Item.LocationID, gi.Item.SKU, gi.Item.PickedQuantity, gi.Item.Quantity, gi.Item.Status)
		switch gi.Item.Status {
		case domain.ItemStatusCompleted:
			line = okColor.Sprint(line)
		case domain.ItemStatusShort:
			line = warnColor.Sprint(line)
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()
}

// printModal prompts for the open dialog
func printModal(w io.Writer, m picker.Modal) {
	switch m := m.(type) {
	case picker.QuantityModal:
		fmt.Fprintf(w, "Quantity for item %d (1-%d): :ok <qty>\n", m.ItemIndex, m.Remaining)
	case picker.ShortPickModal:
		fmt.Fprintf(w, "Short item %d, %d of %d picked: :ok <picked> <reason> [note]\n", m.ItemIndex, m.Picked, m.Target)
	case picker.EditQuantityModal:
		fmt.Fprintf(w, "Picked count for item %d is %d of %d: :ok <qty>\n", m.ItemIndex, m.Current, m.Target)
	case picker.ReleaseModal:
		fmt.Fprintf(w, "Release %s with %d units picked: :keep or :reset\n", m.UnitID, m.PickedUnits)
	case picker.BinCountModal:
		system := "an unknown quantity"
		if q := m.Reconciliation.SystemQuantity; q != nil {
			system = strconv.Itoa(*q)
		}
		fmt.Fprintln(w, warnColor.Sprintf("Count bin %s for %s, system shows %s: :count <qty> or :skip <qty>",
			m.LocationID, m.SKU, system))
	}
}

func printCountResult(w io.Writer, r *domain.CountResult) {
	line := fmt.Sprintf("Count recorded at %s: on hand %d (adjustment %+d), replenishment %s",
		r.LocationID, r.OnHand, r.Adjustment, r.ReplenStatus)
	if r.ReplenStatus == domain.ReplenStockout {
		fmt.Fprintln(w, errorColor.Sprint(line))
		return
	}
	fmt.Fprintln(w, okColor.Sprint(line))
}

func printExceptions(w io.Writer, units []*domain.WorkUnit) {
	if len(units) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("No open exceptions"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tITEM\tREASON\tRAISED BY")
	for _, u := range units {
		if u.Exception == nil {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.UnitID, u.Exception.ItemID, u.Exception.Reason, u.Exception.RaisedBy)
	}
	tw.Flush()
}

func printTimeline(w io.Writer, entries []application.TimelineEntryDTO) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		actor := e.ActorID
		if actor == "" {
			actor = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.OccurredAt.Local().Format("15:04:05"), e.EventType, actor)
	}
	tw.Flush()
}
