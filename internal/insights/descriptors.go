package insights

import (
	"time"

	"gorm.io/gorm"

	"pagepulse/internal/metrics"
	"pagepulse/internal/window"
)

// observation is one hourly-bucket-per-dimensional-combination value of a
// tracked metric, carrying the row's own dimensional context.
type observation struct {
	value   float64
	hour    time.Time
	context Context
}

// metricDescriptor enumerates one tracked metric: which family it lives in,
// its human label, the business concern it maps to, and how to extract its
// observations from the repository. The detector iterates these instead of
// branching on field names.
type metricDescriptor struct {
	metricType MetricType
	metric     string
	family     string
	fetch      func(db *gorm.DB, f metrics.Filter, w window.Window) ([]observation, error)
}

func trafficObservations(extract func(metrics.TrafficStat) float64) func(*gorm.DB, metrics.Filter, window.Window) ([]observation, error) {
	return func(db *gorm.DB, f metrics.Filter, w window.Window) ([]observation, error) {
		rows, err := metrics.QueryTraffic(db, f, w)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, len(rows))
		for i, r := range rows {
			obs[i] = observation{
				value: extract(r),
				hour:  r.Hour,
				context: Context{
					DeviceType:   r.DeviceType,
					Referrer:     r.Referrer,
					Region:       r.Region,
					PageCategory: r.PageCategory,
				},
			}
		}
		return obs, nil
	}
}

func userActionObservations(extract func(metrics.UserActionStat) float64) func(*gorm.DB, metrics.Filter, window.Window) ([]observation, error) {
	return func(db *gorm.DB, f metrics.Filter, w window.Window) ([]observation, error) {
		rows, err := metrics.QueryUserActions(db, f, w)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, len(rows))
		for i, r := range rows {
			obs[i] = observation{
				value: extract(r),
				hour:  r.Hour,
				context: Context{
					DeviceType:   r.DeviceType,
					Referrer:     r.Referrer,
					Region:       r.Region,
					PageCategory: r.PageCategory,
				},
			}
		}
		return obs, nil
	}
}

func performanceObservations(extract func(metrics.PerformanceStat) float64) func(*gorm.DB, metrics.Filter, window.Window) ([]observation, error) {
	return func(db *gorm.DB, f metrics.Filter, w window.Window) ([]observation, error) {
		rows, err := metrics.QueryPerformance(db, f, w)
		if err != nil {
			return nil, err
		}
		obs := make([]observation, len(rows))
		for i, r := range rows {
			obs[i] = observation{
				value: extract(r),
				hour:  r.Hour,
				context: Context{
					DeviceType:   r.DeviceType,
					Region:       r.Region,
					PageCategory: r.PageCategory,
				},
			}
		}
		return obs, nil
	}
}

// trackedMetrics is the complete set of metrics the detector watches,
// enumerated once and iterated for every page.
var trackedMetrics = []metricDescriptor{
	{
		metricType: MetricTypeTraffic,
		metric:     MetricPageViews,
		family:     metrics.FamilyTraffic,
		fetch:      trafficObservations(func(r metrics.TrafficStat) float64 { return float64(r.ViewCount) }),
	},
	{
		metricType: MetricTypeUserActions,
		metric:     MetricSessionDuration,
		family:     metrics.FamilyUserActions,
		fetch:      userActionObservations(func(r metrics.UserActionStat) float64 { return r.AvgSessionDuration }),
	},
	{
		metricType: MetricTypeEngagement,
		metric:     MetricBounceRate,
		family:     metrics.FamilyUserActions,
		fetch:      userActionObservations(func(r metrics.UserActionStat) float64 { return r.BounceRate }),
	},
	{
		metricType: MetricTypeConversion,
		metric:     MetricConversionRate,
		family:     metrics.FamilyUserActions,
		fetch:      userActionObservations(func(r metrics.UserActionStat) float64 { return r.ConversionRate }),
	},
	{
		metricType: MetricTypePerformance,
		metric:     MetricLoadTime,
		family:     metrics.FamilyPerformance,
		fetch:      performanceObservations(func(r metrics.PerformanceStat) float64 { return r.AvgLoadTime }),
	},
	{
		metricType: MetricTypePerformance,
		metric:     MetricErrorRate,
		family:     metrics.FamilyPerformance,
		fetch:      performanceObservations(func(r metrics.PerformanceStat) float64 { return r.ErrorRate }),
	},
}
