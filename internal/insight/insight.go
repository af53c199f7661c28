// Package insight synthesizes progress, behavior and risk into student,
// class and school-wide insights.
//
// Every entry point is pure and returns a valid structure for empty input,
// with InsufficientData set, so callers can render "no data yet" without
// special cases.
package insight

import (
	"fmt"
	"math"

	"github.com/tahfidz-hub/mizan/internal/behavior"
	"github.com/tahfidz-hub/mizan/internal/domain"
	"github.com/tahfidz-hub/mizan/internal/progress"
	"github.com/tahfidz-hub/mizan/internal/risk"
)

// Synthesizer composes the analytics components. It holds configuration only
// and is safe for concurrent use.
type Synthesizer struct {
	cfg      domain.AnalyticsConfig
	progress *progress.Aggregator
	behavior *behavior.Scorer
	risk     *risk.Classifier
}

// New creates a synthesizer from the analytics configuration.
func New(cfg domain.AnalyticsConfig) *Synthesizer {
	if cfg.OverduePaymentCritical <= 0 {
		cfg.OverduePaymentCritical = domain.DefaultAnalyticsConfig().OverduePaymentCritical
	}
	return &Synthesizer{
		cfg:      cfg,
		progress: progress.NewAggregator(cfg.MasteryThreshold),
		behavior: behavior.NewScorer(cfg),
		risk:     risk.NewClassifier(cfg),
	}
}

// Config returns the thresholds the synthesizer was built with.
func (s *Synthesizer) Config() domain.AnalyticsConfig {
	return s.cfg
}

// Progress exposes the progress aggregator for per-unit queries.
func (s *Synthesizer) Progress() *progress.Aggregator { return s.progress }

// Behavior exposes the behavior scorer.
func (s *Synthesizer) Behavior() *behavior.Scorer { return s.behavior }

// Risk exposes the risk classifier.
func (s *Synthesizer) Risk() *risk.Classifier { return s.risk }

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// appendUnique appends the strings of more that are not already in list.
func appendUnique(list []string, more ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		seen[s] = true
	}
	for _, s := range more {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		list = append(list, s)
	}
	return list
}
