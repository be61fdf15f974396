// Package calendar implements the shared reservation calendar: slot
// generation, the reserve race gate, and the timer-driven transition from
// reserved to booked.
package calendar

import (
	"fmt"
	"time"
)

// Slot statuses. A slot moves strictly available -> reserved -> booked;
// never backward and never skipping reserved.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusBooked    = "booked"
)

// Slot is a single reservable calendar date. Holder is set if and only if
// the status is reserved or booked.
type Slot struct {
	ID     string `json:"id"`   // "YYYY-M-D", no zero padding
	Date   string `json:"date"` // ISO "YYYY-MM-DD"
	Status string `json:"status"`
	Holder string `json:"holder,omitempty"`
}

// Month groups the slots of one calendar month.
type Month struct {
	Label string `json:"label"` // e.g. "March 2026"
	Year  int    `json:"year"`
	Month int    `json:"month"` // 1-12
	Days  []Slot `json:"days"`
}

// Slot generation policy: monthCount consecutive months starting at the
// current month, one slot per anchor day, anchors clamped to the last valid
// day of short months.
const monthCount = 6

var dayAnchors = []int{3, 8, 13, 18, 23}

// generateMonths builds the initial slot set relative to now. Every slot
// starts available with no holder.
func generateMonths(now time.Time) []Month {
	months := make([]Month, 0, monthCount)

	for m := 0; m < monthCount; m++ {
		first := time.Date(now.Year(), now.Month()+time.Month(m), 1, 0, 0, 0, 0, now.Location())
		lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

		days := make([]Slot, 0, len(dayAnchors))
		for _, anchor := range dayAnchors {
			day := min(anchor, lastDay)
			date := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, now.Location())
			days = append(days, Slot{
				ID:     slotID(date),
				Date:   date.Format("2006-01-02"),
				Status: StatusAvailable,
			})
		}

		months = append(months, Month{
			Label: first.Format("January 2006"),
			Year:  first.Year(),
			Month: int(first.Month()),
			Days:  days,
		})
	}

	return months
}

// slotID formats a slot id as year-month-day without zero padding,
// e.g. "2026-3-8".
func slotID(date time.Time) string {
	return fmt.Sprintf("%d-%d-%d", date.Year(), int(date.Month()), date.Day())
}

// copyMonths makes a deep copy of a slot set so snapshots handed to
// callers or the persistence layer can't alias the engine's state.
func copyMonths(months []Month) []Month {
	out := make([]Month, len(months))
	for i, m := range months {
		out[i] = m
		out[i].Days = make([]Slot, len(m.Days))
		copy(out[i].Days, m.Days)
	}
	return out
}

// findSlot locates a slot by id within a slot set. Returns nil when absent.
func findSlot(months []Month, id string) *Slot {
	for i := range months {
		for j := range months[i].Days {
			if months[i].Days[j].ID == id {
				return &months[i].Days[j]
			}
		}
	}
	return nil
}
