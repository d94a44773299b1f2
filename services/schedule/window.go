package schedule

import (
	"time"

	"upnext/models"
)

// FilterWindow keeps entries whose canonical date falls inside the window,
// bounds inclusive. Pure; applied last, independent of how entries were
// produced, so a window shift can reuse the same resolved set.
func FilterWindow(entries []models.ResolvedScheduleEntry, window models.CalendarWindow) []models.ResolvedScheduleEntry {
	out := make([]models.ResolvedScheduleEntry, 0, len(entries))
	for _, e := range entries {
		day, err := time.Parse("2006-01-02", e.AirDate)
		if err != nil {
			continue
		}
		if window.Contains(day) {
			out = append(out, e)
		}
	}
	return out
}
