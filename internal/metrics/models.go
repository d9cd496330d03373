// Package metrics provides the hourly aggregate metric models and windowed
// query functions the detection engine reads from.
//
// Three parallel families share the same hourly bucketing and dimensional
// tags (page, device type, referrer, region):
//   - TrafficStat: page view volume
//   - UserActionStat: engagement and conversion behavior
//   - PerformanceStat: load time and error rate (no referrer dimension)
//
// Rows are immutable once written: a given (page, dimensions, hour) tuple has
// at most one row per family, enforced by the composite unique indexes.
package metrics

import "time"

// Metric family identifiers
const (
	FamilyTraffic     = "traffic"
	FamilyUserActions = "user_actions"
	FamilyPerformance = "performance"
)

// TrafficStat represents hourly aggregated page view statistics
type TrafficStat struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Page         string    `gorm:"uniqueIndex:idx_traffic_unique;not null"`
	PageCategory string    `gorm:"not null;default:''"`
	DeviceType   string    `gorm:"uniqueIndex:idx_traffic_unique;not null;default:''"`
	Referrer     string    `gorm:"uniqueIndex:idx_traffic_unique;not null;default:''"`
	Region       string    `gorm:"uniqueIndex:idx_traffic_unique;not null;default:''"`
	ViewCount    int       `gorm:"not null;default:0"`
	Hour         time.Time `gorm:"uniqueIndex:idx_traffic_unique;type:datetime;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserActionStat represents hourly aggregated engagement and conversion statistics
type UserActionStat struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	Page               string    `gorm:"uniqueIndex:idx_user_action_unique;not null"`
	PageCategory       string    `gorm:"not null;default:''"`
	DeviceType         string    `gorm:"uniqueIndex:idx_user_action_unique;not null;default:''"`
	Referrer           string    `gorm:"uniqueIndex:idx_user_action_unique;not null;default:''"`
	Region             string    `gorm:"uniqueIndex:idx_user_action_unique;not null;default:''"`
	AvgSessionDuration float64   `gorm:"not null;default:0"` // seconds
	BounceRate         float64   `gorm:"not null;default:0"` // 0-100
	ConversionRate     float64   `gorm:"not null;default:0"` // 0-100, 2 decimal places
	ConversionCount    int       `gorm:"not null;default:0"`
	Hour               time.Time `gorm:"uniqueIndex:idx_user_action_unique;type:datetime;not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PerformanceStat represents hourly aggregated page performance statistics.
// Performance rows carry no referrer dimension: load time and error rate are
// properties of the page delivery, not of how the visitor arrived.
type PerformanceStat struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Page         string    `gorm:"uniqueIndex:idx_performance_unique;not null"`
	PageCategory string    `gorm:"not null;default:''"`
	DeviceType   string    `gorm:"uniqueIndex:idx_performance_unique;not null;default:''"`
	Region       string    `gorm:"uniqueIndex:idx_performance_unique;not null;default:''"`
	AvgLoadTime  float64   `gorm:"not null;default:0"` // milliseconds
	ErrorRate    float64   `gorm:"not null;default:0"` // 0-100
	Hour         time.Time `gorm:"uniqueIndex:idx_performance_unique;type:datetime;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
