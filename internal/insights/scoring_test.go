package insights

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoringNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func trafficAnomalyAt(page string, pct float64, detectedAt time.Time) Anomaly {
	return Anomaly{
		Page:             page,
		MetricType:       MetricTypeTraffic,
		Metric:           MetricPageViews,
		CurrentValue:     400,
		BaselineMean:     100,
		PercentageChange: pct,
		Timestamp:        detectedAt,
	}
}

func TestDeduplicateAnomalies(t *testing.T) {
	ts := scoringNow.Add(-2 * time.Hour)

	first := trafficAnomalyAt("/products", 340, ts)
	duplicate := trafficAnomalyAt("/products", 350, ts) // granular pass found it too
	other := trafficAnomalyAt("/pricing", 120, ts)

	deduped := DeduplicateAnomalies([]Anomaly{first, duplicate, other})
	require.Len(t, deduped, 2)

	// First occurrence wins
	assert.Equal(t, 340.0, deduped[0].PercentageChange)
	assert.Equal(t, "/pricing", deduped[1].Page)

	// Idempotent
	again := DeduplicateAnomalies(deduped)
	assert.Equal(t, deduped, again)
}

func TestDeduplicateDistinguishesHourAndMetric(t *testing.T) {
	ts := scoringNow.Add(-2 * time.Hour)

	a := trafficAnomalyAt("/products", 340, ts)
	differentHour := trafficAnomalyAt("/products", 340, ts.Add(-time.Hour))
	differentMetric := a
	differentMetric.Metric = MetricConversionRate

	deduped := DeduplicateAnomalies([]Anomaly{a, differentHour, differentMetric})
	assert.Len(t, deduped, 3)
}

func TestScoreTrafficSurge(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})

	detectedAt := scoringNow.Add(-3 * time.Hour)
	anomaly := trafficAnomalyAt("/products", 340, detectedAt)
	insight := BusinessInsight{
		Type:       TypeTrafficSurge,
		Metric:     MetricPageViews,
		Page:       "/products",
		DetectedAt: detectedAt,
	}

	// magnitude = min(340/5, 100) = 68; criticality = 60; recency = 100-30 = 70
	// 0.3*68 + 0.4*60 + 0.3*70 = 65.4 -> 65
	score := scorer.Score(insight, []Anomaly{anomaly})
	assert.Equal(t, 65, score)
}

func TestScoreCriticalityOrdering(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})
	detectedAt := scoringNow.Add(-time.Hour)

	anomalies := []Anomaly{
		trafficAnomalyAt("/a", 100, detectedAt),
	}
	conversionAnomaly := trafficAnomalyAt("/a", -100, detectedAt)
	conversionAnomaly.Metric = MetricConversionRate
	anomalies = append(anomalies, conversionAnomaly)

	traffic := scorer.Score(BusinessInsight{
		Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/a", DetectedAt: detectedAt,
	}, anomalies)
	conversion := scorer.Score(BusinessInsight{
		Type: TypeConversionDrop, Metric: MetricConversionRate, Page: "/a", DetectedAt: detectedAt,
	}, anomalies)

	// Same magnitude and recency; Conversion criticality (90) beats Traffic (60)
	assert.Greater(t, conversion, traffic)
}

func TestScoreMissingAnomalyFallsBack(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})

	insight := BusinessInsight{
		Type:       TypeTrafficSurge,
		Metric:     MetricPageViews,
		Page:       "/unknown",
		DetectedAt: scoringNow,
	}
	assert.Equal(t, 50, scorer.Score(insight, nil))
}

func TestScoreBounds(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})

	t.Run("stale anomaly decays to criticality floor", func(t *testing.T) {
		detectedAt := scoringNow.Add(-48 * time.Hour)
		anomaly := trafficAnomalyAt("/old", 5000, detectedAt)
		insight := BusinessInsight{
			Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/old", DetectedAt: detectedAt,
		}
		score := scorer.Score(insight, []Anomaly{anomaly})
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
		// magnitude 100, criticality 60, recency 0 -> 54
		assert.Equal(t, 54, score)
	})

	t.Run("future timestamp gets full recency", func(t *testing.T) {
		detectedAt := scoringNow.Add(time.Hour)
		anomaly := trafficAnomalyAt("/new", 500, detectedAt)
		insight := BusinessInsight{
			Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/new", DetectedAt: detectedAt,
		}
		// magnitude 100, criticality 60, recency 100 -> 84
		assert.Equal(t, 84, scorer.Score(insight, []Anomaly{anomaly}))
	})
}

func TestRankTop(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})
	detectedAt := scoringNow.Add(-time.Hour)

	var anomalies []Anomaly
	var insights []BusinessInsight
	pcts := []float64{50, 500, 150, 300, 80, 250, 120}
	for i, pct := range pcts {
		page := string(rune('a'+i)) + "-page"
		anomalies = append(anomalies, trafficAnomalyAt("/"+page, pct, detectedAt))
		insights = append(insights, BusinessInsight{
			Type:       TypeTrafficSurge,
			Metric:     MetricPageViews,
			Page:       "/" + page,
			DetectedAt: detectedAt,
		})
	}

	ranked := scorer.RankTop(insights, anomalies, 5)
	require.Len(t, ranked, 5)

	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].ImpactScore, ranked[i].ImpactScore)
	}

	// The weakest movements must not survive the cut
	for _, insight := range ranked {
		assert.NotEqual(t, "/a-page", insight.Page)
		assert.NotEqual(t, "/e-page", insight.Page)
	}
}

func TestRankTopDefaultsLimit(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})
	detectedAt := scoringNow.Add(-time.Hour)

	var insights []BusinessInsight
	var anomalies []Anomaly
	for i := 0; i < 8; i++ {
		page := string(rune('a'+i)) + "-page"
		anomalies = append(anomalies, trafficAnomalyAt("/"+page, float64(100+i), detectedAt))
		insights = append(insights, BusinessInsight{
			Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/" + page, DetectedAt: detectedAt,
		})
	}

	assert.Len(t, scorer.RankTop(insights, anomalies, 0), 5)
	assert.Len(t, scorer.RankTop(insights, anomalies, -3), 5)
}

func TestRankTopStableForEqualScores(t *testing.T) {
	scorer := NewScorer(FixedClock{Time: scoringNow})
	detectedAt := scoringNow.Add(-time.Hour)

	anomalies := []Anomaly{
		trafficAnomalyAt("/first", 100, detectedAt),
		trafficAnomalyAt("/second", 100, detectedAt),
	}
	insights := []BusinessInsight{
		{Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/first", DetectedAt: detectedAt},
		{Type: TypeTrafficSurge, Metric: MetricPageViews, Page: "/second", DetectedAt: detectedAt},
	}

	ranked := scorer.RankTop(insights, anomalies, 5)
	require.Len(t, ranked, 2)
	assert.Equal(t, "/first", ranked[0].Page)
	assert.Equal(t, "/second", ranked[1].Page)
}
