package jobs

import (
	"context"
	"log/slog"
	"time"

	"pagepulse/internal/config"
	"pagepulse/internal/database"
	"pagepulse/internal/insights"
)

// DetectionJob runs the anomaly detection engine on schedule and persists
// the ranked insights it produces.
type DetectionJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewDetectionJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *DetectionJob {
	return &DetectionJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *DetectionJob) Run() error {
	start := time.Now()
	db := j.dbManager.GetConnection()

	engine := insights.NewEngine(db, j.logger,
		insights.WithDeviationMultiplier(j.cfg.GetDeviationMultiplier()),
		insights.WithInsightLimit(j.cfg.GetInsightLimit()),
	)

	results, err := engine.GenerateAndPersist(context.Background())
	if err != nil {
		return err
	}

	j.logger.Info("Detection run completed",
		slog.Int("insights", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
