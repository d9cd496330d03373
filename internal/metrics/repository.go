package metrics

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pagepulse/internal/window"
)

// Filter narrows a metric query by dimensional tags. Empty fields are
// unbounded and match all values for that dimension.
type Filter struct {
	Page       string
	DeviceType string
	Referrer   string
	Region     string
}

// DimensionSet is a fully-specified dimensional combination observed in the
// repository. The granular detection pass iterates these.
type DimensionSet struct {
	Page       string
	DeviceType string
	Referrer   string
	Region     string
}

func applyFilter(query *gorm.DB, f Filter, withReferrer bool) *gorm.DB {
	if f.Page != "" {
		query = query.Where("page = ?", f.Page)
	}
	if f.DeviceType != "" {
		query = query.Where("device_type = ?", f.DeviceType)
	}
	if withReferrer && f.Referrer != "" {
		query = query.Where("referrer = ?", f.Referrer)
	}
	if f.Region != "" {
		query = query.Where("region = ?", f.Region)
	}
	return query
}

// QueryTraffic returns traffic rows matching the filter within [w.Start, w.End).
func QueryTraffic(db *gorm.DB, f Filter, w window.Window) ([]TrafficStat, error) {
	var rows []TrafficStat
	query := db.Model(&TrafficStat{}).
		Where("hour >= ? AND hour < ?", w.Start.UTC(), w.End.UTC())
	query = applyFilter(query, f, true)

	if err := query.Order("hour ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching traffic stats: %w", err)
	}
	return rows, nil
}

// QueryUserActions returns user action rows matching the filter within [w.Start, w.End).
func QueryUserActions(db *gorm.DB, f Filter, w window.Window) ([]UserActionStat, error) {
	var rows []UserActionStat
	query := db.Model(&UserActionStat{}).
		Where("hour >= ? AND hour < ?", w.Start.UTC(), w.End.UTC())
	query = applyFilter(query, f, true)

	if err := query.Order("hour ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching user action stats: %w", err)
	}
	return rows, nil
}

// QueryPerformance returns performance rows matching the filter within [w.Start, w.End).
// The referrer filter is ignored: performance rows carry no referrer dimension.
func QueryPerformance(db *gorm.DB, f Filter, w window.Window) ([]PerformanceStat, error) {
	var rows []PerformanceStat
	query := db.Model(&PerformanceStat{}).
		Where("hour >= ? AND hour < ?", w.Start.UTC(), w.End.UTC())
	query = applyFilter(query, f, false)

	if err := query.Order("hour ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching performance stats: %w", err)
	}
	return rows, nil
}

// DistinctPages returns every page path known to any metric family. The
// page-aggregate detection pass enumerates these.
func DistinctPages(db *gorm.DB) ([]string, error) {
	var pages []string

	query := `
    SELECT page FROM traffic_stats
    UNION
    SELECT page FROM user_action_stats
    UNION
    SELECT page FROM performance_stats
    ORDER BY page
    `

	if err := db.Raw(query).Scan(&pages).Error; err != nil {
		return nil, fmt.Errorf("error fetching distinct pages: %w", err)
	}
	return pages, nil
}

// DistinctDimensionSets returns the fully-specified (page, device, referrer,
// region) combinations with traffic rows inside the window. The granular
// detection pass runs once per combination.
func DistinctDimensionSets(db *gorm.DB, w window.Window) ([]DimensionSet, error) {
	var sets []DimensionSet

	query := `
    SELECT DISTINCT page, device_type, referrer, region
    FROM traffic_stats
    WHERE hour >= ? AND hour < ?
    ORDER BY page, device_type, referrer, region
    `

	if err := db.Raw(query, w.Start.UTC(), w.End.UTC()).Scan(&sets).Error; err != nil {
		return nil, fmt.Errorf("error fetching distinct dimension sets: %w", err)
	}
	return sets, nil
}

// InsertTraffic writes traffic rows, silently skipping rows whose composite
// key already exists. Metric rows are immutable once written.
func InsertTraffic(db *gorm.DB, rows []TrafficStat) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].Hour = window.HourBucket(rows[i].Hour)
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("error inserting traffic stats: %w", err)
	}
	return nil
}

// InsertUserActions writes user action rows, skipping existing composite keys.
func InsertUserActions(db *gorm.DB, rows []UserActionStat) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].Hour = window.HourBucket(rows[i].Hour)
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("error inserting user action stats: %w", err)
	}
	return nil
}

// InsertPerformance writes performance rows, skipping existing composite keys.
func InsertPerformance(db *gorm.DB, rows []PerformanceStat) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		rows[i].Hour = window.HourBucket(rows[i].Hour)
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("error inserting performance stats: %w", err)
	}
	return nil
}

// DeleteOlderThan removes metric rows from every family whose hour bucket
// predates the cutoff. Used by the retention cleanup job; deletes run in
// batches to avoid holding the write lock for too long.
func DeleteOlderThan(db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var total int64
	for _, model := range []any{&TrafficStat{}, &UserActionStat{}, &PerformanceStat{}} {
		for {
			result := db.Where("hour < ?", cutoff.UTC()).
				Limit(batchSize).
				Delete(model)
			if result.Error != nil {
				return total, fmt.Errorf("error deleting expired metric rows: %w", result.Error)
			}
			total += result.RowsAffected
			if result.RowsAffected < int64(batchSize) {
				break
			}
		}
	}
	return total, nil
}
