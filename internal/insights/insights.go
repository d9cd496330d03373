// Package insights implements the anomaly detection, correlation, and
// insight-scoring engine.
//
// The package is organized into focused modules:
//   - insights.go: Anomaly/correlation record definitions
//   - statistics.go: Mean and population standard deviation
//   - clock.go: Injectable clock so tests can pin time
//   - descriptors.go: Tracked metric descriptors (family, label, accessor)
//   - detector.go: Baseline-vs-recent deviation detection
//   - correlation.go: Cross-metric correlation rules
//   - generator.go: Anomaly-to-narrative insight mapping
//   - scoring.go: Deduplication, impact scoring, and ranking
//   - engine.go: Invocation-level orchestration
//   - model.go: Persisted insight model
package insights

import "time"

// MetricType classifies an anomaly by business concern.
type MetricType string

const (
	MetricTypeTraffic     MetricType = "Traffic"
	MetricTypePerformance MetricType = "Performance"
	MetricTypeUserActions MetricType = "UserActions"
	MetricTypeConversion  MetricType = "Conversion"
	MetricTypeEngagement  MetricType = "Engagement"
)

// Human labels for the six tracked metrics.
const (
	MetricPageViews       = "PageViews"
	MetricSessionDuration = "Session Duration"
	MetricBounceRate      = "Bounce Rate"
	MetricConversionRate  = "Conversion Rate"
	MetricLoadTime        = "Load Time"
	MetricErrorRate       = "Error Rate"
)

// Correlation tags naming the specific cross-metric relationships detected.
const (
	TagTrafficUpConversionsDown = "traffic_up_conversions_down"
	TagLoadTimeUpBounceRateUp   = "load_time_up_bounce_rate_up"
)

// Context carries the dimensional tags of the observation that triggered an
// anomaly. All fields are optional; page-aggregate anomalies leave the
// dimensions of the underlying row as-is.
type Context struct {
	DeviceType   string
	Referrer     string
	Region       string
	PageCategory string
}

// Anomaly is a recent observation whose deviation from the baseline exceeded
// the configured threshold. Anomalies are ephemeral: they live for one engine
// invocation and are never persisted.
type Anomaly struct {
	Page             string
	MetricType       MetricType
	Metric           string
	CurrentValue     float64
	BaselineMean     float64
	BaselineStdDev   float64
	PercentageChange float64
	Timestamp        time.Time
	Context          Context
}

// CorrelatedMetric is a related metric observation that moved together with a
// primary anomaly in a recognized pattern.
type CorrelatedMetric struct {
	Metric           string
	Value            float64
	PercentageChange float64
	Tag              string
}

// Correlation links a primary anomaly with the related metrics that co-moved
// with it. Anomalies with no correlated metrics are simply absent from the
// correlation result set.
type Correlation struct {
	Primary    Anomaly
	Correlated []CorrelatedMetric
}

// HasTag reports whether any correlated metric carries the given tag.
func (c *Correlation) HasTag(tag string) bool {
	if c == nil {
		return false
	}
	for _, m := range c.Correlated {
		if m.Tag == tag {
			return true
		}
	}
	return false
}

// FindTag returns the correlated metric carrying the given tag, if any.
func (c *Correlation) FindTag(tag string) (CorrelatedMetric, bool) {
	if c == nil {
		return CorrelatedMetric{}, false
	}
	for _, m := range c.Correlated {
		if m.Tag == tag {
			return m, true
		}
	}
	return CorrelatedMetric{}, false
}

// BusinessInsight is the engine's output: a ranked, human-readable finding
// derived from one anomaly and its optional correlation. Insights are
// constructed fresh on every detection run and not mutated afterwards.
type BusinessInsight struct {
	Type            string            `json:"type"`
	Metric          string            `json:"metric"`
	Page            string            `json:"page"`
	Change          string            `json:"change"`
	BusinessInsight string            `json:"businessInsight"`
	SuggestedAction string            `json:"suggestedAction"`
	ImpactScore     int               `json:"impactScore"`
	DetectedAt      time.Time         `json:"detectedAt"`
	Context         map[string]string `json:"context,omitempty"`
}
