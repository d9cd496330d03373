package insights

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Impact score weights: what happened (magnitude), how much it matters for
// the business (criticality), and how fresh it is (recency).
const (
	magnitudeWeight   = 0.3
	criticalityWeight = 0.4
	recencyWeight     = 0.3

	// fallbackScore applies when no matching anomaly can be found for an
	// insight at scoring time. The pipeline should never produce that case,
	// but it must not break ranking if it does.
	fallbackScore = 50
)

// anomalyKey identifies an anomaly for deduplication and scoring lookups.
func anomalyKey(page, metric string, epoch int64) string {
	return fmt.Sprintf("%s|%s|%d", page, metric, epoch)
}

// DeduplicateAnomalies merges the aggregate-level and granular-level passes:
// anomalies are keyed by (page, metric, hour); the first occurrence wins and
// later duplicates are dropped. Idempotent by construction.
func DeduplicateAnomalies(anomalies []Anomaly) []Anomaly {
	seen := make(map[string]bool, len(anomalies))
	deduped := make([]Anomaly, 0, len(anomalies))

	for _, a := range anomalies {
		key := anomalyKey(a.Page, a.Metric, a.Timestamp.Unix())
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, a)
	}

	return deduped
}

// Scorer computes impact scores against its own clock, so an insight's score
// decays over wall-clock time even if never recomputed.
type Scorer struct {
	clock Clock
}

// NewScorer creates a scorer; a nil clock defaults to the system clock.
func NewScorer(clock Clock) *Scorer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scorer{clock: clock}
}

// Score computes the 0-100 impact score for an insight, looking up its
// originating anomaly in the given set for the magnitude component.
func (s *Scorer) Score(insight BusinessInsight, anomalies []Anomaly) int {
	var source *Anomaly
	key := anomalyKey(insight.Page, insight.Metric, insight.DetectedAt.Unix())
	for i := range anomalies {
		a := &anomalies[i]
		if anomalyKey(a.Page, a.Metric, a.Timestamp.Unix()) == key {
			source = a
			break
		}
	}
	if source == nil {
		return fallbackScore
	}

	magnitude := math.Min(math.Abs(source.PercentageChange)/5, 100)
	criticality := criticalityFor(insight.Type)

	hoursSince := s.clock.Now().Sub(insight.DetectedAt).Hours()
	if hoursSince < 0 {
		hoursSince = 0
	}
	recency := math.Max(0, 100-hoursSince*10)

	score := magnitudeWeight*magnitude + criticalityWeight*criticality + recencyWeight*recency
	rounded := int(math.Round(score))
	if rounded < 0 {
		rounded = 0
	}
	if rounded > 100 {
		rounded = 100
	}
	return rounded
}

// criticalityFor maps an insight type to its business criticality. Checked in
// priority order: conversion/error problems outrank performance/engagement,
// which outrank pure traffic movements.
func criticalityFor(insightType string) float64 {
	switch {
	case strings.Contains(insightType, "Conversion") || strings.Contains(insightType, "Error"):
		return 90
	case strings.Contains(insightType, "Performance") || strings.Contains(insightType, "Engagement"):
		return 70
	case strings.Contains(insightType, "Traffic"):
		return 60
	default:
		return 50
	}
}

// RankTop scores every insight, sorts by score descending, and returns at
// most limit entries. Sorting is stable: equal scores keep their input order.
func (s *Scorer) RankTop(insights []BusinessInsight, anomalies []Anomaly, limit int) []BusinessInsight {
	if limit <= 0 {
		limit = 5
	}

	ranked := make([]BusinessInsight, len(insights))
	copy(ranked, insights)
	for i := range ranked {
		ranked[i].ImpactScore = s.Score(ranked[i], anomalies)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ImpactScore > ranked[j].ImpactScore
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
