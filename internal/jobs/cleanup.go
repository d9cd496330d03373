package jobs

import (
	"log/slog"
	"time"

	"pagepulse/internal/config"
	"pagepulse/internal/database"
	"pagepulse/internal/insights"
	"pagepulse/internal/metrics"
)

const cleanupBatchSize = 1000

// CleanupJob removes hourly aggregates and stored insights older than the
// retention period. Keeps the SQLite file size bounded.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.MetricRetentionDays
	db := j.dbManager.GetConnection()
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old metrics",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	deletedMetrics, err := metrics.DeleteOlderThan(db, cutoff, cleanupBatchSize)
	if err != nil {
		j.logger.Error("Failed to delete old metrics", slog.Any("error", err))
		return err
	}

	deletedInsights, err := insights.DeleteInsightsOlderThan(db, cutoff)
	if err != nil {
		j.logger.Error("Failed to delete old insights", slog.Any("error", err))
		return err
	}

	j.logger.Info("Cleanup completed",
		slog.Int64("deleted_metrics", deletedMetrics),
		slog.Int64("deleted_insights", deletedInsights))
	return nil
}
