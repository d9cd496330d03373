package insights

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Insight is the persisted form of a BusinessInsight. The engine itself never
// reads these back; they exist for the caller's history views and audits.
type Insight struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	Type            string    `gorm:"not null;index"`
	Metric          string    `gorm:"not null"`
	Page            string    `gorm:"not null;index"`
	Change          string    `gorm:"not null"`
	BusinessInsight string    `gorm:"not null"`
	SuggestedAction string    `gorm:"not null"`
	ImpactScore     int       `gorm:"not null;default:0"`
	DetectedAt      time.Time `gorm:"type:datetime;not null;index"`
	Context         string    `gorm:"not null;default:''"` // JSON-encoded dimensional tags
	CreatedAt       time.Time
}

// SaveInsight persists one generated insight. Callers treat failures as
// recoverable: they log and move on, never aborting the response path.
func SaveInsight(db *gorm.DB, insight BusinessInsight) error {
	contextJSON := ""
	if len(insight.Context) > 0 {
		encoded, err := json.Marshal(insight.Context)
		if err != nil {
			return fmt.Errorf("failed to encode insight context: %w", err)
		}
		contextJSON = string(encoded)
	}

	record := Insight{
		Type:            insight.Type,
		Metric:          insight.Metric,
		Page:            insight.Page,
		Change:          insight.Change,
		BusinessInsight: insight.BusinessInsight,
		SuggestedAction: insight.SuggestedAction,
		ImpactScore:     insight.ImpactScore,
		DetectedAt:      insight.DetectedAt.UTC(),
		Context:         contextJSON,
	}

	if err := db.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to persist insight: %w", err)
	}
	return nil
}

// DeleteInsightsOlderThan removes persisted insights detected before the
// cutoff. Used by the retention cleanup job.
func DeleteInsightsOlderThan(db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.Where("detected_at < ?", cutoff.UTC()).Delete(&Insight{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired insights: %w", result.Error)
	}
	return result.RowsAffected, nil
}
