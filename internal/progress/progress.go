// Package progress turns hafalan submissions into per-unit completion.
package progress

import (
	"math"
	"sort"

	"github.com/tahfidz-hub/mizan/internal/domain"
)

// DefaultMasteryThreshold is the average grade a completed unit needs to be
// mastered.
const DefaultMasteryThreshold = 90.0

// Aggregator computes ProgressSnapshots. It holds configuration only.
type Aggregator struct {
	MasteryThreshold float64
}

// NewAggregator creates an aggregator with the given mastery threshold
// (DefaultMasteryThreshold when <= 0).
func NewAggregator(masteryThreshold float64) *Aggregator {
	if masteryThreshold <= 0 {
		masteryThreshold = DefaultMasteryThreshold
	}
	return &Aggregator{MasteryThreshold: masteryThreshold}
}

// Aggregate computes the snapshot of one unit from one student's records.
//
// Only approved records count. Overlapping ranges are not deduplicated: a
// re-approved range is credited again, then the total is capped at the
// unit's size. A unit with no approved sessions yields a zeroed, not-started
// snapshot.
func (a *Aggregator) Aggregate(unit domain.Unit, records []*domain.MemorizationRecord) domain.ProgressSnapshot {
	snap := domain.ProgressSnapshot{
		UnitID:        unit.ID,
		UnitName:      unit.Name,
		TotalSubUnits: unit.TotalSubUnits,
		Status:        domain.MasteryNotStarted,
	}

	var completed int
	var gradeSum float64
	var graded int

	for _, r := range records {
		if r == nil || r.Status != domain.SubmissionApproved || r.UnitID != unit.ID {
			continue
		}
		snap.SessionCount++
		completed += r.Span()
		if r.Grade != nil {
			gradeSum += *r.Grade
			graded++
		}
		if snap.UnitName == "" {
			snap.UnitName = r.UnitName
		}
	}

	if snap.SessionCount == 0 || unit.TotalSubUnits <= 0 {
		return snap
	}

	if completed > unit.TotalSubUnits {
		completed = unit.TotalSubUnits
	}
	snap.CompletedSubUnits = completed
	snap.Percentage = math.Min(100, float64(completed)/float64(unit.TotalSubUnits)*100)
	if graded > 0 {
		snap.AverageScore = gradeSum / float64(graded)
	}
	snap.Status = a.status(snap.Percentage, snap.AverageScore)

	return snap
}

func (a *Aggregator) status(percentage, average float64) domain.MasteryStatus {
	switch {
	case percentage <= 0:
		return domain.MasteryNotStarted
	case percentage < 100:
		return domain.MasteryInProgress
	case average >= a.MasteryThreshold:
		return domain.MasteryMastered
	default:
		return domain.MasteryCompleted
	}
}

// AggregateAll computes one snapshot per unit that appears in records or in
// units, ordered by unit id. Units missing from the catalog are sized from the
// widest range seen, so a stray record never divides by zero.
func (a *Aggregator) AggregateAll(units []*domain.Unit, records []*domain.MemorizationRecord) []domain.ProgressSnapshot {
	catalog := make(map[string]domain.Unit, len(units))
	for _, u := range units {
		if u != nil {
			catalog[u.ID] = *u
		}
	}

	byUnit := make(map[string][]*domain.MemorizationRecord)
	for _, r := range records {
		if r == nil {
			continue
		}
		byUnit[r.UnitID] = append(byUnit[r.UnitID], r)
		if _, ok := catalog[r.UnitID]; !ok {
			catalog[r.UnitID] = domain.Unit{ID: r.UnitID, Name: r.UnitName}
		}
	}

	ids := make([]string, 0, len(byUnit))
	for id := range byUnit {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snapshots := make([]domain.ProgressSnapshot, 0, len(ids))
	for _, id := range ids {
		unit := catalog[id]
		if unit.TotalSubUnits <= 0 {
			for _, r := range byUnit[id] {
				if r.RangeEnd > unit.TotalSubUnits {
					unit.TotalSubUnits = r.RangeEnd
				}
			}
		}
		snapshots = append(snapshots, a.Aggregate(unit, byUnit[id]))
	}
	return snapshots
}

// GradeSeries returns the grades of approved records oldest first.
func GradeSeries(records []*domain.MemorizationRecord) []float64 {
	approved := make([]*domain.MemorizationRecord, 0, len(records))
	for _, r := range records {
		if r != nil && r.Status == domain.SubmissionApproved && r.Grade != nil {
			approved = append(approved, r)
		}
	}
	sort.SliceStable(approved, func(i, j int) bool {
		return approved[i].Timestamp.Before(approved[j].Timestamp)
	})

	series := make([]float64, len(approved))
	for i, r := range approved {
		series[i] = *r.Grade
	}
	return series
}

// AverageGrade is the mean grade of approved, graded records (0 if none).
func AverageGrade(records []*domain.MemorizationRecord) float64 {
	series := GradeSeries(records)
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, g := range series {
		sum += g
	}
	return sum / float64(len(series))
}
