package insights

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gorm.io/gorm"

	"pagepulse/internal/metrics"
	"pagepulse/internal/pkg/async"
	"pagepulse/internal/window"
)

// DefaultDeviationMultiplier is the fixed middle ground between 2 sigma (too
// many false positives at hourly granularity) and 3 sigma (misses real but
// less extreme incidents). Tunable via config, not derived.
const DefaultDeviationMultiplier = 2.5

const detectionWorkers = 4

// Detector compares recent observations against a rolling baseline and flags
// values whose absolute deviation exceeds multiplier x baseline stddev.
// It is stateless across invocations: every run re-derives its windows from
// the injected clock.
type Detector struct {
	db         *gorm.DB
	logger     *slog.Logger
	clock      Clock
	multiplier float64
}

// NewDetector creates a detector with the given deviation multiplier.
// A non-positive multiplier falls back to the default.
func NewDetector(db *gorm.DB, logger *slog.Logger, clock Clock, multiplier float64) *Detector {
	if multiplier <= 0 {
		multiplier = DefaultDeviationMultiplier
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Detector{
		db:         db,
		logger:     logger,
		clock:      clock,
		multiplier: multiplier,
	}
}

// DetectAll runs the page-aggregate pass over every known page, then the
// granular pass over every fully-specified dimensional combination, and
// returns the merged anomaly set. Duplicates across the two passes survive
// here; DeduplicateAnomalies merges them before insight generation.
func (d *Detector) DetectAll(ctx context.Context) ([]Anomaly, error) {
	now := d.clock.Now()
	baselineWindow := window.Baseline(now)
	recentWindow := window.Recent(now)

	pages, err := metrics.DistinctPages(d.db)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate pages: %w", err)
	}

	// Page-aggregate pass. Pages are independent and queries are read-only,
	// so they fan out over the worker pool.
	tasks := make([]async.Task, 0, len(pages))
	for _, page := range pages {
		filter := metrics.Filter{Page: page}
		tasks = append(tasks, async.Task{
			Name: page,
			Execute: func() (any, error) {
				return d.detect(filter, baselineWindow, recentWindow), nil
			},
		})
	}

	pool := async.NewPool(detectionWorkers)
	results := pool.Execute(ctx, tasks)

	var anomalies []Anomaly
	for _, page := range pages {
		result, ok := results[page]
		if !ok || result.Err != nil {
			continue
		}
		if found, ok := result.Data.([]Anomaly); ok {
			anomalies = append(anomalies, found...)
		}
	}

	// Granular pass: traffic metrics per (page, device, referrer, region).
	// Surfaces spikes confined to one dimension slice that the page
	// aggregate averages away.
	anomalies = append(anomalies, d.detectGranular(baselineWindow, recentWindow)...)

	d.logger.Debug("Anomaly detection completed",
		slog.Int("pages", len(pages)),
		slog.Int("anomalies", len(anomalies)))

	return anomalies, nil
}

// detect runs all tracked metrics for one filter and returns every flagged
// recent observation.
func (d *Detector) detect(f metrics.Filter, baselineWindow, recentWindow window.Window) []Anomaly {
	var anomalies []Anomaly

	for _, descriptor := range trackedMetrics {
		baseline, err := descriptor.fetch(d.db, f, baselineWindow)
		if err != nil {
			d.logger.Error("Failed to fetch baseline observations",
				slog.String("page", f.Page),
				slog.String("metric", descriptor.metric),
				slog.Any("error", err))
			continue
		}
		if len(baseline) == 0 {
			// No baseline, no anomaly: skip this metric for this page.
			continue
		}

		values := make([]float64, len(baseline))
		for i, o := range baseline {
			values[i] = o.value
		}
		mean := Mean(values)
		stdDev := StdDev(values, mean)

		recent, err := descriptor.fetch(d.db, f, recentWindow)
		if err != nil {
			d.logger.Error("Failed to fetch recent observations",
				slog.String("page", f.Page),
				slog.String("metric", descriptor.metric),
				slog.Any("error", err))
			continue
		}

		for _, o := range recent {
			if a, ok := d.evaluate(f.Page, descriptor, o, mean, stdDev); ok {
				anomalies = append(anomalies, a)
			}
		}
	}

	return anomalies
}

// evaluate applies the threshold test to a single recent observation.
// The mean > 0 guard exists because a zero baseline makes percentage change
// undefined and a deviation against a degenerate distribution is not
// meaningful.
func (d *Detector) evaluate(page string, descriptor metricDescriptor, o observation, mean, stdDev float64) (Anomaly, bool) {
	deviation := math.Abs(o.value - mean)
	threshold := d.multiplier * stdDev

	if deviation <= threshold || mean <= 0 {
		return Anomaly{}, false
	}

	return Anomaly{
		Page:             page,
		MetricType:       descriptor.metricType,
		Metric:           descriptor.metric,
		CurrentValue:     o.value,
		BaselineMean:     mean,
		BaselineStdDev:   stdDev,
		PercentageChange: (o.value - mean) / mean * 100,
		Timestamp:        o.hour,
		Context:          o.context,
	}, true
}

// detectGranular repeats detection per fully-specified dimensional
// combination rather than per page alone. Only the traffic family is tracked
// granularly; engagement and performance metrics are detected at page
// aggregate level only.
func (d *Detector) detectGranular(baselineWindow, recentWindow window.Window) []Anomaly {
	sets, err := metrics.DistinctDimensionSets(d.db, recentWindow)
	if err != nil {
		d.logger.Error("Failed to enumerate dimension sets for granular detection", slog.Any("error", err))
		return nil
	}

	granularDescriptor := trackedMetrics[0] // PageViews
	var anomalies []Anomaly

	for _, set := range sets {
		f := metrics.Filter{
			Page:       set.Page,
			DeviceType: set.DeviceType,
			Referrer:   set.Referrer,
			Region:     set.Region,
		}

		baseline, err := granularDescriptor.fetch(d.db, f, baselineWindow)
		if err != nil {
			d.logger.Error("Failed to fetch granular baseline",
				slog.String("page", set.Page),
				slog.Any("error", err))
			continue
		}
		if len(baseline) == 0 {
			continue
		}

		values := make([]float64, len(baseline))
		for i, o := range baseline {
			values[i] = o.value
		}
		mean := Mean(values)
		stdDev := StdDev(values, mean)

		recent, err := granularDescriptor.fetch(d.db, f, recentWindow)
		if err != nil {
			d.logger.Error("Failed to fetch granular recent observations",
				slog.String("page", set.Page),
				slog.Any("error", err))
			continue
		}

		for _, o := range recent {
			if a, ok := d.evaluate(set.Page, granularDescriptor, o, mean, stdDev); ok {
				anomalies = append(anomalies, a)
			}
		}
	}

	return anomalies
}
