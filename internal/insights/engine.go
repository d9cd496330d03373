package insights

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
)

// DefaultInsightLimit caps the number of ranked insights returned per run.
const DefaultInsightLimit = 5

// Engine wires detection, correlation, generation, and ranking into one
// invocation-level pipeline. It is stateless across invocations: every call
// re-derives everything from current repository contents and the injected
// clock.
type Engine struct {
	db       *gorm.DB
	logger   *slog.Logger
	detector *Detector
	analyzer *Analyzer
	scorer   *Scorer
	limit    int
}

// EngineOption customizes engine construction.
type EngineOption func(*engineOptions)

type engineOptions struct {
	clock      Clock
	multiplier float64
	limit      int
}

// WithClock pins the engine's time source; intended for tests and for callers
// replaying historical windows.
func WithClock(clock Clock) EngineOption {
	return func(o *engineOptions) { o.clock = clock }
}

// WithDeviationMultiplier overrides the stddev multiple used to flag anomalies.
func WithDeviationMultiplier(multiplier float64) EngineOption {
	return func(o *engineOptions) { o.multiplier = multiplier }
}

// WithInsightLimit overrides the top-N cutoff for ranked insights.
func WithInsightLimit(limit int) EngineOption {
	return func(o *engineOptions) { o.limit = limit }
}

// NewEngine creates an insight engine over the given database connection.
func NewEngine(db *gorm.DB, logger *slog.Logger, opts ...EngineOption) *Engine {
	options := engineOptions{
		clock:      SystemClock{},
		multiplier: DefaultDeviationMultiplier,
		limit:      DefaultInsightLimit,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.limit <= 0 {
		options.limit = DefaultInsightLimit
	}

	return &Engine{
		db:       db,
		logger:   logger,
		detector: NewDetector(db, logger, options.clock, options.multiplier),
		analyzer: NewAnalyzer(db, logger, options.clock),
		scorer:   NewScorer(options.clock),
		limit:    options.limit,
	}
}

// GenerateInsights runs the full pipeline: detect anomalies, deduplicate,
// correlate, generate narratives, score, and rank. An empty result is a valid
// terminal state, not a failure.
func (e *Engine) GenerateInsights(ctx context.Context) ([]BusinessInsight, error) {
	anomalies, err := e.detector.DetectAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(anomalies) == 0 {
		e.logger.Debug("No anomalies detected")
		return []BusinessInsight{}, nil
	}

	deduped := DeduplicateAnomalies(anomalies)
	correlations := e.analyzer.Analyze(deduped)

	generated := make([]BusinessInsight, 0, len(deduped))
	for _, anomaly := range deduped {
		correlation := correlationFor(anomaly, correlations)
		if insight, ok := Generate(anomaly, correlation); ok {
			generated = append(generated, insight)
		}
	}

	ranked := e.scorer.RankTop(generated, deduped, e.limit)

	e.logger.Info("Insight generation completed",
		slog.Int("anomalies", len(deduped)),
		slog.Int("correlations", len(correlations)),
		slog.Int("insights", len(ranked)))

	return ranked, nil
}

// GenerateAndPersist runs GenerateInsights and writes the ranked insights as
// a fire-and-forget side effect: persistence failures are logged and
// swallowed, never failing the run.
func (e *Engine) GenerateAndPersist(ctx context.Context) ([]BusinessInsight, error) {
	ranked, err := e.GenerateInsights(ctx)
	if err != nil {
		return nil, err
	}

	for _, insight := range ranked {
		if err := SaveInsight(e.db, insight); err != nil {
			e.logger.Error("Failed to persist insight",
				slog.String("type", insight.Type),
				slog.String("page", insight.Page),
				slog.Any("error", err))
		}
	}

	return ranked, nil
}

// correlationFor finds the correlation relevant to an anomaly. Primary-match
// first; a conversion-rate anomaly additionally picks up the
// traffic-up/conversions-down correlation detected on the same page, so its
// narrative can attribute the drop to rising traffic.
func correlationFor(anomaly Anomaly, correlations []Correlation) *Correlation {
	key := anomalyKey(anomaly.Page, anomaly.Metric, anomaly.Timestamp.Unix())
	for i := range correlations {
		p := correlations[i].Primary
		if anomalyKey(p.Page, p.Metric, p.Timestamp.Unix()) == key {
			return &correlations[i]
		}
	}

	if anomaly.Metric == MetricConversionRate {
		for i := range correlations {
			if correlations[i].Primary.Page == anomaly.Page &&
				correlations[i].HasTag(TagTrafficUpConversionsDown) {
				return &correlations[i]
			}
		}
	}

	return nil
}
