package insights_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepulse/internal/insights"
	"pagepulse/internal/metrics"
	"pagepulse/internal/testsupport"
	"pagepulse/internal/window"
)

var detectorNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestDetectAllFlagsTrafficSpike(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	// Flat baseline of 100 views/hour across the baseline window
	baseline := window.Baseline(detectorNow)
	for hour := baseline.Start; hour.Before(baseline.End); hour = hour.Add(time.Hour) {
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page:      "/products",
			ViewCount: 100,
			Hour:      hour,
		})
	}

	// One recent hour at 4x baseline
	spikeHour := detectorNow.Add(-time.Hour)
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page:      "/products",
		ViewCount: 400,
		Hour:      spikeHour,
	})

	detector := insights.NewDetector(db, logger, insights.FixedClock{Time: detectorNow}, 0)
	anomalies, err := detector.DetectAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)

	deduped := insights.DeduplicateAnomalies(anomalies)
	require.Len(t, deduped, 1)

	a := deduped[0]
	assert.Equal(t, "/products", a.Page)
	assert.Equal(t, insights.MetricPageViews, a.Metric)
	assert.Equal(t, insights.MetricTypeTraffic, a.MetricType)
	assert.InDelta(t, 400.0, a.CurrentValue, 0.0001)
	assert.InDelta(t, 100.0, a.BaselineMean, 0.0001)
	assert.InDelta(t, 300.0, a.PercentageChange, 0.0001)
	assert.WithinDuration(t, window.HourBucket(spikeHour), a.Timestamp, time.Second)
}

func TestDetectThresholdBoundary(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	// Alternating 90/110 baseline: mean 100, population stddev 10.
	// With multiplier 2.5 the threshold is exactly 25.
	baseline := window.Baseline(detectorNow)
	i := 0
	for hour := baseline.Start; hour.Before(baseline.End); hour = hour.Add(time.Hour) {
		views := 90
		if i%2 == 1 {
			views = 110
		}
		i++
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page:      "/boundary",
			ViewCount: views,
			Hour:      hour,
		})
	}

	// 125 deviates by exactly the threshold: not an anomaly.
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page:      "/boundary",
		ViewCount: 125,
		Hour:      detectorNow.Add(-2 * time.Hour),
	})
	// 126 crosses it.
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page:      "/boundary",
		ViewCount: 126,
		Hour:      detectorNow.Add(-time.Hour),
	})

	detector := insights.NewDetector(db, logger, insights.FixedClock{Time: detectorNow}, 2.5)
	anomalies, err := detector.DetectAll(context.Background())
	require.NoError(t, err)

	deduped := insights.DeduplicateAnomalies(anomalies)
	require.Len(t, deduped, 1)
	assert.InDelta(t, 126.0, deduped[0].CurrentValue, 0.0001)
}

func TestDetectZeroBaselineNeverFlags(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	baseline := window.Baseline(detectorNow)
	for hour := baseline.Start; hour.Before(baseline.End); hour = hour.Add(time.Hour) {
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page:      "/dead",
			ViewCount: 0,
			Hour:      hour,
		})
	}
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page:      "/dead",
		ViewCount: 50,
		Hour:      detectorNow.Add(-time.Hour),
	})

	detector := insights.NewDetector(db, logger, insights.FixedClock{Time: detectorNow}, 0)
	anomalies, err := detector.DetectAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDetectNoBaselineNoAnomaly(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	// Only recent data, no baseline history at all
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page:      "/brand-new",
		ViewCount: 1000,
		Hour:      detectorNow.Add(-time.Hour),
	})

	detector := insights.NewDetector(db, logger, insights.FixedClock{Time: detectorNow}, 0)
	anomalies, err := detector.DetectAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestDetectGranularDimensionSlice(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	// Two referrer slices with flat baselines. The spike lives entirely in
	// the instagram slice; the page aggregate averages stay calm because the
	// two slices are detected per-row, not summed.
	baseline := window.Baseline(detectorNow)
	for hour := baseline.Start; hour.Before(baseline.End); hour = hour.Add(time.Hour) {
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page: "/landing", Referrer: "google.com", DeviceType: "Desktop", Region: "US",
			ViewCount: 50, Hour: hour,
		})
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page: "/landing", Referrer: "instagram.com", DeviceType: "Mobile", Region: "US",
			ViewCount: 10, Hour: hour,
		})
	}

	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page: "/landing", Referrer: "instagram.com", DeviceType: "Mobile", Region: "US",
		ViewCount: 90, Hour: detectorNow.Add(-time.Hour),
	})

	detector := insights.NewDetector(db, logger, insights.FixedClock{Time: detectorNow}, 2.5)
	anomalies, err := detector.DetectAll(context.Background())
	require.NoError(t, err)

	var granular []insights.Anomaly
	for _, a := range anomalies {
		if a.Context.Referrer == "instagram.com" {
			granular = append(granular, a)
		}
	}
	require.NotEmpty(t, granular)
	assert.Equal(t, "/landing", granular[0].Page)
	assert.InDelta(t, 90.0, granular[0].CurrentValue, 0.0001)
	assert.Equal(t, "Mobile", granular[0].Context.DeviceType)
}
