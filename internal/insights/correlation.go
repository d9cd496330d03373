package insights

import (
	"log/slog"

	"gorm.io/gorm"

	"pagepulse/internal/metrics"
	"pagepulse/internal/window"
)

// correlationRule describes one cross-metric relationship: which anomaly
// triggers the lookup, which target metric to inspect, and the predicate that
// decides whether the pair co-moved. New relationships are added here without
// touching the analyzer loop.
type correlationRule struct {
	tag             string
	triggerMetric   string
	triggerIncrease bool
	targetMetric    string
	// fetchTarget extracts the target metric values for a page within a window.
	fetchTarget func(db *gorm.DB, page string, w window.Window) ([]float64, error)
	// matches reports whether the current target value relative to its
	// baseline constitutes the correlated movement.
	matches func(current, baseline float64) bool
}

func conversionRates(db *gorm.DB, page string, w window.Window) ([]float64, error) {
	rows, err := metrics.QueryUserActions(db, metrics.Filter{Page: page}, w)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.ConversionRate
	}
	return values, nil
}

func bounceRates(db *gorm.DB, page string, w window.Window) ([]float64, error) {
	rows, err := metrics.QueryUserActions(db, metrics.Filter{Page: page}, w)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = r.BounceRate
	}
	return values, nil
}

// The two relationships the engine recognizes.
var correlationRules = []correlationRule{
	{
		tag:             TagTrafficUpConversionsDown,
		triggerMetric:   MetricPageViews,
		triggerIncrease: true,
		targetMetric:    MetricConversionRate,
		fetchTarget:     conversionRates,
		matches: func(current, baseline float64) bool {
			// Conversion dropped >= 10% relative to its own baseline.
			return current < baseline*0.9
		},
	},
	{
		tag:             TagLoadTimeUpBounceRateUp,
		triggerMetric:   MetricLoadTime,
		triggerIncrease: true,
		targetMetric:    MetricBounceRate,
		fetchTarget:     bounceRates,
		matches: func(current, baseline float64) bool {
			// Bounce rate rose >= 10% relative to its own baseline.
			return current > baseline*1.1
		},
	},
}

// Analyzer looks for recognized cross-metric co-occurrences around detected
// anomalies by querying related metric families for the same page and hour.
type Analyzer struct {
	db     *gorm.DB
	logger *slog.Logger
	clock  Clock
}

// NewAnalyzer creates a correlation analyzer.
func NewAnalyzer(db *gorm.DB, logger *slog.Logger, clock Clock) *Analyzer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Analyzer{db: db, logger: logger, clock: clock}
}

// Analyze evaluates every rule against every anomaly and returns the
// correlations found. Anomalies with zero correlated metrics are omitted.
func (a *Analyzer) Analyze(anomalies []Anomaly) []Correlation {
	var correlations []Correlation

	for _, anomaly := range anomalies {
		var correlated []CorrelatedMetric

		for _, rule := range correlationRules {
			if anomaly.Metric != rule.triggerMetric {
				continue
			}
			if rule.triggerIncrease && anomaly.PercentageChange <= 0 {
				continue
			}

			if m, ok := a.applyRule(rule, anomaly); ok {
				correlated = append(correlated, m)
			}
		}

		if len(correlated) > 0 {
			correlations = append(correlations, Correlation{
				Primary:    anomaly,
				Correlated: correlated,
			})
		}
	}

	return correlations
}

// applyRule fetches the target metric for the anomaly's exact hour bucket and
// compares it against its own 24h baseline. A missing recent record means "no
// correlation available", not an error; a missing baseline falls back to the
// single recent value.
func (a *Analyzer) applyRule(rule correlationRule, anomaly Anomaly) (CorrelatedMetric, bool) {
	hourWindow := window.Hour(anomaly.Timestamp)

	recent, err := rule.fetchTarget(a.db, anomaly.Page, hourWindow)
	if err != nil {
		a.logger.Error("Correlation lookup failed",
			slog.String("tag", rule.tag),
			slog.String("page", anomaly.Page),
			slog.Any("error", err))
		return CorrelatedMetric{}, false
	}
	if len(recent) == 0 {
		return CorrelatedMetric{}, false
	}
	current := Mean(recent)

	baselineValues, err := rule.fetchTarget(a.db, anomaly.Page, window.Baseline(a.clock.Now()))
	if err != nil {
		a.logger.Error("Correlation baseline lookup failed",
			slog.String("tag", rule.tag),
			slog.String("page", anomaly.Page),
			slog.Any("error", err))
		return CorrelatedMetric{}, false
	}

	baseline := current // fallback when no baseline exists
	if len(baselineValues) > 0 {
		baseline = Mean(baselineValues)
	}
	if baseline <= 0 {
		return CorrelatedMetric{}, false
	}

	if !rule.matches(current, baseline) {
		return CorrelatedMetric{}, false
	}

	return CorrelatedMetric{
		Metric:           rule.targetMetric,
		Value:            current,
		PercentageChange: (current - baseline) / baseline * 100,
		Tag:              rule.tag,
	}, true
}
