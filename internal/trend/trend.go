// Package trend detects the direction of an ordered numeric series.
// It knows nothing about what the series measures; progress, attendance and
// behavior trends all go through it with their own thresholds.
package trend

import "github.com/tahfidz-hub/mizan/internal/domain"

// Result is the slope of a series and its classification.
type Result struct {
	Slope     float64               `json:"slope"`
	Direction domain.TrendDirection `json:"direction"`
	Points    int                   `json:"points"`
}

// Slope returns the ordinary least-squares slope of values (oldest first)
// over the index 0..n-1. Series shorter than 2 have slope 0.
func Slope(values []float64) float64 {
	n := float64(len(values))
	if len(values) < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Classify maps a slope to a direction. Slopes within ±threshold are stable.
func Classify(slope, threshold float64) domain.TrendDirection {
	if threshold < 0 {
		threshold = -threshold
	}
	switch {
	case slope > threshold:
		return domain.TrendImproving
	case slope < -threshold:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

// Detect computes and classifies the slope of values (oldest first).
func Detect(values []float64, threshold float64) Result {
	slope := Slope(values)
	return Result{
		Slope:     slope,
		Direction: Classify(slope, threshold),
		Points:    len(values),
	}
}

// Combine derives overall performance from the hafalan and attendance trends:
// improving only when both improve, declining when either declines.
func Combine(hafalan, attendance domain.TrendDirection) domain.TrendDirection {
	if hafalan == domain.TrendDeclining || attendance == domain.TrendDeclining {
		return domain.TrendDeclining
	}
	if hafalan == domain.TrendImproving && attendance == domain.TrendImproving {
		return domain.TrendImproving
	}
	return domain.TrendStable
}
