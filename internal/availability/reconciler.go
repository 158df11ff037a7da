// Package availability projects raw schedule slots into the derived views
// the wizard renders: the set of selectable dates and the times available
// on a chosen date. All functions are pure; they never mutate the draft.
// Clearing a stale time selection when the date changes is the state
// machine's job.
package availability

import (
	"sort"

	"github.com/astroveda/booking-wizard-backend/internal/models"
)

// Dates returns the distinct dates that still have at least one bookable
// slot, deduplicated and sorted ascending. ISO dates sort correctly as
// strings.
func Dates(slots []models.ScheduleSlot) []string {
	seen := make(map[string]bool)
	dates := make([]string, 0)

	for _, slot := range slots {
		if !slot.HasCapacity() {
			continue
		}
		if !seen[slot.Date] {
			seen[slot.Date] = true
			dates = append(dates, slot.Date)
		}
	}

	sort.Strings(dates)
	return dates
}

// Times returns the sorted times still bookable on the given date.
// Empty when no date is chosen or the date has no bookable slots.
func Times(slots []models.ScheduleSlot, date string) []string {
	if date == "" {
		return []string{}
	}

	times := make([]string, 0)
	for _, slot := range slots {
		if slot.Date == date && slot.HasCapacity() {
			times = append(times, slot.Time)
		}
	}

	sort.Strings(times)
	return times
}

// HasTimes reports whether the given date still has any bookable time.
// A chosen date with no remaining times (a slot filled up elsewhere after
// the session's snapshot was taken) must be surfaced as an explicit
// "no times available" state, not a silent block.
func HasTimes(slots []models.ScheduleSlot, date string) bool {
	return len(Times(slots, date)) > 0
}
