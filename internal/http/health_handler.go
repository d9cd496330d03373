package http

import (
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"pagepulse/internal/insights"
	"pagepulse/internal/metrics"
)

// HealthStatus reports service liveness plus pipeline freshness: the newest
// ingested hour bucket and the last persisted detection run. Both are nil on
// an empty database, which is healthy, not degraded.
type HealthStatus struct {
	Status          string     `json:"status"`
	Timestamp       time.Time  `json:"timestamp"`
	DBStatus        string     `json:"db_status"`
	LatestMetricAt  *time.Time `json:"latest_metric_at,omitempty"`
	LastDetectionAt *time.Time `json:"last_detection_at,omitempty"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  "ok",
	}

	db := ctx.DBManager.GetConnection()
	if err := pingDatabase(db); err != nil {
		ctx.Logger.Error("Health check database failure", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
		return ctx.JSON(health)
	}

	health.LatestMetricAt = latestMetricHour(db)
	health.LastDetectionAt = lastDetectionTime(db)

	return ctx.JSON(health)
}

func pingDatabase(db *gorm.DB) error {
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// latestMetricHour returns the newest ingested traffic hour bucket, or nil
// when nothing has been ingested yet. Freshness is informational only.
func latestMetricHour(db *gorm.DB) *time.Time {
	var stat metrics.TrafficStat
	if err := db.Select("hour").Order("hour DESC").First(&stat).Error; err != nil {
		return nil
	}
	return &stat.Hour
}

// lastDetectionTime returns when the most recent persisted insight was
// detected, or nil when no detection run has stored anything.
func lastDetectionTime(db *gorm.DB) *time.Time {
	var insight insights.Insight
	if err := db.Select("detected_at").Order("detected_at DESC").First(&insight).Error; err != nil {
		return nil
	}
	return &insight.DetectedAt
}
