package risk

import (
	"sort"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// AttendanceRate is the share of records (0..100) where the student attended.
// Present and late count as attended; every record is in the denominator.
func AttendanceRate(records []*domain.AttendanceRecord) float64 {
	var total, attended int
	for _, r := range records {
		if r == nil {
			continue
		}
		total++
		if r.Status.Attended() {
			attended++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(attended) / float64(total) * 100
}

// WeeklyAttendance returns the attendance rate per 7-day bucket counted from
// the window start, oldest first. Weeks without records are skipped so they
// do not read as 0% attendance. A zero window starts at the earliest record.
func WeeklyAttendance(window domain.Window, records []*domain.AttendanceRecord) []float64 {
	inWindow := make([]*domain.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if !window.From.IsZero() && !window.Contains(r.Date) {
			continue
		}
		inWindow = append(inWindow, r)
	}
	if len(inWindow) == 0 {
		return nil
	}

	from := window.From
	if from.IsZero() {
		from = inWindow[0].Date
		for _, r := range inWindow {
			if r.Date.Before(from) {
				from = r.Date
			}
		}
	}

	const week = 7 * 24 * time.Hour
	buckets := make(map[int][]*domain.AttendanceRecord)
	for _, r := range inWindow {
		i := int(r.Date.Sub(from) / week)
		buckets[i] = append(buckets[i], r)
	}

	keys := make([]int, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	series := make([]float64, len(keys))
	for i, k := range keys {
		series[i] = AttendanceRate(buckets[k])
	}
	return series
}
