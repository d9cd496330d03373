// Package seeder populates the metric tables with realistic hourly data for
// development and testing. Steady-state values come from the embedded profile
// file; incidents injected into the recent window give the detection engine
// something to find.
package seeder

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"gopkg.in/yaml.v3"

	"pagepulse/internal/metrics"
	"pagepulse/internal/pkg/pages"
	"pagepulse/internal/window"
)

//go:embed profiles.yml
var profilesYAML []byte

// DefaultHours covers the full baseline window plus the recent window with
// headroom, so a detection run immediately after seeding has baselines for
// every page.
const DefaultHours = 40

// PageProfile is the steady-state metric profile of one seeded page.
type PageProfile struct {
	Path            string  `yaml:"path"`
	BaseViews       int     `yaml:"base_views"`
	SessionDuration float64 `yaml:"session_duration"`
	BounceRate      float64 `yaml:"bounce_rate"`
	ConversionRate  float64 `yaml:"conversion_rate"`
	LoadTime        float64 `yaml:"load_time"`
	ErrorRate       float64 `yaml:"error_rate"`
}

// Incident perturbs one metric of one page during the most recent hours.
type Incident struct {
	Kind       string  `yaml:"kind"`
	Page       string  `yaml:"page"`
	Referrer   string  `yaml:"referrer"`
	DeviceType string  `yaml:"device_type"`
	Factor     float64 `yaml:"factor"`
	Hours      int     `yaml:"hours"`
}

// Profiles is the full set of seed profiles and incidents.
type Profiles struct {
	Pages       []PageProfile `yaml:"pages"`
	DeviceTypes []string      `yaml:"device_types"`
	Referrers   []string      `yaml:"referrers"`
	Regions     []string      `yaml:"regions"`
	Incidents   []Incident    `yaml:"incidents"`
}

// Seeder handles the data seeding process.
type Seeder struct {
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	Hours     int
	rng       *rand.Rand
}

// NewSeeder creates a new seeder instance. The RNG is seeded with a fixed
// value so repeated runs generate identical data.
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, hours int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if hours <= 0 {
		hours = DefaultHours
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		Hours:     hours,
		rng:       rand.New(rand.NewPCG(42, 1)),
	}
}

// LoadProfiles parses the embedded profile file.
func LoadProfiles() (*Profiles, error) {
	var profiles Profiles
	if err := yaml.Unmarshal(profilesYAML, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse seed profiles: %w", err)
	}
	return &profiles, nil
}

// Seed generates hourly metric rows for every profile page across every
// dimensional combination, then applies the configured incidents to the
// recent hours.
func (s *Seeder) Seed(ctx context.Context) error {
	start := time.Now()
	profiles, err := LoadProfiles()
	if err != nil {
		return err
	}

	s.Logger.Info("Seeding metric data...",
		slog.Int("pages", len(profiles.Pages)),
		slog.Int("hours", s.Hours))

	db := s.DBManager.GetConnection()
	now := window.HourBucket(time.Now().UTC())

	var traffic []metrics.TrafficStat
	var userActions []metrics.UserActionStat
	var performance []metrics.PerformanceStat

	for h := s.Hours; h >= 1; h-- {
		hour := now.Add(-time.Duration(h) * time.Hour)
		hoursAgo := h

		for _, page := range profiles.Pages {
			category := pages.Classify(page.Path)

			for _, device := range profiles.DeviceTypes {
				for _, region := range profiles.Regions {
					for _, referrer := range profiles.Referrers {
						views := s.jitterInt(page.BaseViews, 0.2)
						views = applyTrafficIncidents(profiles.Incidents, page.Path, referrer, hoursAgo, views)

						traffic = append(traffic, metrics.TrafficStat{
							Page:         page.Path,
							PageCategory: category,
							DeviceType:   device,
							Referrer:     referrer,
							Region:       region,
							ViewCount:    views,
							Hour:         hour,
						})

						userActions = append(userActions, metrics.UserActionStat{
							Page:               page.Path,
							PageCategory:       category,
							DeviceType:         device,
							Referrer:           referrer,
							Region:             region,
							AvgSessionDuration: s.applyRateIncidents(profiles.Incidents, page.Path, hoursAgo, "session_drop", s.jitter(page.SessionDuration, 0.1)),
							BounceRate:         clampRate(s.applyRateIncidents(profiles.Incidents, page.Path, hoursAgo, "bounce_rise", s.jitter(page.BounceRate, 0.1))),
							ConversionRate:     clampRate(round2(s.applyRateIncidents(profiles.Incidents, page.Path, hoursAgo, "conversion_drop", s.jitter(page.ConversionRate, 0.1)))),
							ConversionCount:    int(float64(views) * page.ConversionRate / 100),
							Hour:               hour,
						})
					}

					performance = append(performance, metrics.PerformanceStat{
						Page:         page.Path,
						PageCategory: category,
						DeviceType:   device,
						Region:       region,
						AvgLoadTime:  s.applyDeviceIncidents(profiles.Incidents, page.Path, device, hoursAgo, "load_time_spike", s.jitter(page.LoadTime, 0.15)),
						ErrorRate:    clampRate(s.applyRateIncidents(profiles.Incidents, page.Path, hoursAgo, "error_spike", s.jitter(page.ErrorRate, 0.3))),
						Hour:         hour,
					})
				}
			}
		}
	}

	if err := metrics.InsertTraffic(db, traffic); err != nil {
		return fmt.Errorf("failed to seed traffic stats: %w", err)
	}
	if err := metrics.InsertUserActions(db, userActions); err != nil {
		return fmt.Errorf("failed to seed user action stats: %w", err)
	}
	if err := metrics.InsertPerformance(db, performance); err != nil {
		return fmt.Errorf("failed to seed performance stats: %w", err)
	}

	s.Logger.Info("Seeding completed",
		slog.Int("trafficRows", len(traffic)),
		slog.Int("userActionRows", len(userActions)),
		slog.Int("performanceRows", len(performance)),
		slog.Duration("elapsed", time.Since(start)))

	return nil
}

// jitter returns base perturbed by up to +-spread (fraction of base).
func (s *Seeder) jitter(base, spread float64) float64 {
	if base == 0 {
		return 0
	}
	delta := (s.rng.Float64()*2 - 1) * spread * base
	return base + delta
}

func (s *Seeder) jitterInt(base int, spread float64) int {
	v := int(s.jitter(float64(base), spread))
	if v < 0 {
		v = 0
	}
	return v
}

func applyTrafficIncidents(incidents []Incident, page, referrer string, hoursAgo int, views int) int {
	for _, inc := range incidents {
		if inc.Kind != "traffic_spike" || inc.Page != page || hoursAgo > inc.Hours {
			continue
		}
		if inc.Referrer != "" && inc.Referrer != referrer {
			continue
		}
		views = int(float64(views) * inc.Factor)
	}
	return views
}

func (s *Seeder) applyRateIncidents(incidents []Incident, page string, hoursAgo int, kind string, value float64) float64 {
	for _, inc := range incidents {
		if inc.Kind != kind || inc.Page != page || hoursAgo > inc.Hours {
			continue
		}
		value *= inc.Factor
	}
	return value
}

func (s *Seeder) applyDeviceIncidents(incidents []Incident, page, device string, hoursAgo int, kind string, value float64) float64 {
	for _, inc := range incidents {
		if inc.Kind != kind || inc.Page != page || hoursAgo > inc.Hours {
			continue
		}
		if inc.DeviceType != "" && inc.DeviceType != device {
			continue
		}
		value *= inc.Factor
	}
	return value
}

func clampRate(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
