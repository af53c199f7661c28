// Package behavior scores behavior records into a composite score and a
// character grade.
package behavior

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/trend"
)

const (
	// Baseline is the composite score of a period with no net points.
	Baseline = 50

	// MaxSwing bounds how far one period's points can move the score.
	MaxSwing = 40

	// PointWeight scales total points before the swing clamp.
	PointWeight = 2

	// MinStrengthRecords is how many all-positive records a category needs
	// before it is called a strength.
	MinStrengthRecords = 3
)

type breakpoint struct {
	min   int
	grade string
}

var breakpoints = []breakpoint{
	{95, "A+"},
	{90, "A"},
	{85, "A-"},
	{80, "B+"},
	{75, "B"},
	{70, "B-"},
	{65, "C+"},
	{60, "C"},
	{55, "C-"},
	{50, "D"},
}

var categoryAdvice = map[domain.BehaviorCategory]string{
	domain.CategoryCharacter:  "Hold a one-on-one adab session and pair the student with a peer mentor",
	domain.CategoryWorship:    "Monitor congregational prayer and tilawah attendance more closely",
	domain.CategoryAcademic:   "Schedule extra muraja'ah sessions with the musyrif",
	domain.CategorySocial:     "Involve the student in group activities with clear roles",
	domain.CategoryDiscipline: "Agree on a daily routine checklist and review it weekly",
	domain.CategoryLeadership: "Give the student a small responsibility with close guidance",
}

// Scorer computes BehaviorSummaries. It holds configuration only.
type Scorer struct {
	NegativeProportion float64
	TrendThreshold     float64
}

// NewScorer creates a scorer from the analytics configuration.
func NewScorer(cfg domain.AnalyticsConfig) *Scorer {
	s := &Scorer{
		NegativeProportion: cfg.NegativeProportion,
		TrendThreshold:     cfg.BehaviorTrendThreshold,
	}
	if s.NegativeProportion <= 0 {
		s.NegativeProportion = domain.DefaultAnalyticsConfig().NegativeProportion
	}
	return s
}

// CompositeScore maps a period's total points to 0..100.
func CompositeScore(totalPoints int) int {
	swing := clamp(totalPoints*PointWeight, -MaxSwing, MaxSwing)
	return clamp(Baseline+swing, 0, 100)
}

// Grade maps a composite score to a letter grade.
func Grade(score int) string {
	for _, b := range breakpoints {
		if score >= b.min {
			return b.grade
		}
	}
	return "E"
}

// Score summarizes the records of one student. Records outside a non-zero
// window are ignored.
func (s *Scorer) Score(studentID string, window domain.Window, records []*domain.BehaviorRecord) domain.BehaviorSummary {
	summary := domain.BehaviorSummary{
		StudentID:       studentID,
		Window:          window,
		Categories:      []domain.CategoryBreakdown{},
		Trend:           domain.TrendStable,
		Strengths:       []string{},
		Weaknesses:      []string{},
		Recommendations: []string{},
	}

	inWindow := filter(window, records)
	byCategory := make(map[domain.BehaviorCategory]*domain.CategoryBreakdown)

	for _, r := range inWindow {
		summary.TotalRecords++
		summary.TotalPoints += r.Criterion.Points

		cb, ok := byCategory[r.Criterion.Category]
		if !ok {
			cb = &domain.CategoryBreakdown{
				Category: r.Criterion.Category,
				Label:    r.Criterion.Category.Label(),
			}
			byCategory[r.Criterion.Category] = cb
		}
		cb.Count++
		cb.Points += r.Criterion.Points

		switch r.Criterion.Polarity {
		case domain.PolarityPositive:
			summary.PositiveCount++
			cb.Positive++
		case domain.PolarityNegative:
			summary.NegativeCount++
			cb.Negative++
		default:
			summary.NeutralCount++
		}
	}

	summary.BehaviorScore = CompositeScore(summary.TotalPoints)
	summary.CharacterGrade = Grade(summary.BehaviorScore)

	if summary.TotalRecords == 0 {
		return summary
	}

	summary.AveragePoints = float64(summary.TotalPoints) / float64(summary.TotalRecords)

	for _, c := range domain.BehaviorCategories {
		if cb, ok := byCategory[c]; ok {
			cb.Percentage = float64(cb.Count) / float64(summary.TotalRecords) * 100
			summary.Categories = append(summary.Categories, *cb)
		}
	}
	// Categories outside the catalog go last, by name.
	var unknown []string
	for c := range byCategory {
		if _, ok := categoryAdvice[c]; !ok {
			unknown = append(unknown, string(c))
		}
	}
	sort.Strings(unknown)
	for _, c := range unknown {
		cb := byCategory[domain.BehaviorCategory(c)]
		cb.Percentage = float64(cb.Count) / float64(summary.TotalRecords) * 100
		summary.Categories = append(summary.Categories, *cb)
	}

	s.narrate(&summary)
	summary.Trend = trend.Detect(WeeklyPoints(window, inWindow), s.TrendThreshold).Direction

	return summary
}

func (s *Scorer) narrate(summary *domain.BehaviorSummary) {
	for _, cb := range summary.Categories {
		if cb.Count >= MinStrengthRecords && cb.Positive == cb.Count {
			summary.Strengths = append(summary.Strengths,
				fmt.Sprintf("Consistently positive %s (%d records)", cb.Label, cb.Count))
		}
	}

	negShare := float64(summary.NegativeCount) / float64(summary.TotalRecords)
	if negShare <= s.NegativeProportion {
		return
	}

	worst := worstCategory(summary.Categories)
	if worst == nil {
		return
	}
	summary.Weaknesses = append(summary.Weaknesses,
		fmt.Sprintf("%s needs attention: %d negative records in %s", worst.Label, worst.Negative, summary.Window.Label()))

	advice := categoryAdvice[worst.Category]
	if advice == "" {
		advice = "Discuss recent incidents with the student and guardian"
	}
	summary.Recommendations = append(summary.Recommendations, advice)
}

// worstCategory is the category with the most negative records, ties broken
// by lower points then display order.
func worstCategory(categories []domain.CategoryBreakdown) *domain.CategoryBreakdown {
	var worst *domain.CategoryBreakdown
	for i := range categories {
		cb := &categories[i]
		if cb.Negative == 0 {
			continue
		}
		if worst == nil || cb.Negative > worst.Negative ||
			(cb.Negative == worst.Negative && cb.Points < worst.Points) {
			worst = cb
		}
	}
	return worst
}

// WeeklyPoints returns point totals per 7-day bucket, oldest first. Buckets
// are counted back from the end of the window, so the newest week is always
// whole; a partial oldest bucket is scaled to a full week, and dropped when it
// covers less than a day. With a zero window the buckets span the records.
func WeeklyPoints(window domain.Window, records []*domain.BehaviorRecord) []float64 {
	if len(records) == 0 {
		return nil
	}

	from, to := window.From, window.To
	if from.IsZero() || to.IsZero() {
		sorted := make([]*domain.BehaviorRecord, len(records))
		copy(sorted, records)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].OccurredAt.Before(sorted[j].OccurredAt) })
		from = sorted[0].OccurredAt
		to = sorted[len(sorted)-1].OccurredAt.Add(time.Nanosecond)
	}

	const (
		day  = 24 * time.Hour
		week = 7 * day
	)
	span := to.Sub(from)
	n := int(math.Ceil(float64(span) / float64(week)))
	if n < 1 {
		n = 1
	}

	// Bucket j (newest first) holds (to-(j+1)*week, to-j*week].
	buckets := make([]float64, n)
	for _, r := range records {
		if r.OccurredAt.Before(from) || !r.OccurredAt.Before(to) {
			continue
		}
		j := int((to.Sub(r.OccurredAt) - 1) / week)
		if j < 0 || j >= n {
			continue
		}
		buckets[n-1-j] += float64(r.Criterion.Points)
	}

	if covered := span - time.Duration(n-1)*week; covered < week {
		if covered < day {
			return buckets[1:]
		}
		buckets[0] *= float64(week) / float64(covered)
	}
	return buckets
}

func filter(window domain.Window, records []*domain.BehaviorRecord) []*domain.BehaviorRecord {
	out := make([]*domain.BehaviorRecord, 0, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if !window.From.IsZero() && !window.Contains(r.OccurredAt) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
