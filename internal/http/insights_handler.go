package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"

	"pagepulse/internal/config"
	"pagepulse/internal/insights"
)

const insightsCacheKey = "latest"

// insightsCache memoizes engine runs so repeated API calls within the TTL
// do not re-scan the metric tables.
var (
	insightsCache     *cache.Cache[string, []insights.BusinessInsight]
	insightsCacheOnce sync.Once
)

func getInsightsCache(ctx *cartridge.Context) *cache.Cache[string, []insights.BusinessInsight] {
	insightsCacheOnce.Do(func() {
		cfg := config.GetConfig()
		db := ctx.DBManager.GetConnection()
		logger := ctx.Logger

		engine := insights.NewEngine(db, logger,
			insights.WithDeviationMultiplier(cfg.GetDeviationMultiplier()),
			insights.WithInsightLimit(cfg.GetInsightLimit()),
		)

		fetchFunc := func(key string) ([]insights.BusinessInsight, error) {
			return engine.GenerateInsights(context.Background())
		}
		ttl := time.Duration(cfg.InsightCacheTTLSeconds) * time.Second
		insightsCache = cache.NewCache[string, []insights.BusinessInsight](logger, ttl, fetchFunc)
	})
	return insightsCache
}

// ResetInsightsCache drops the memoized engine run so the next request
// rebuilds the cache against the current config and database.
func ResetInsightsCache() {
	insightsCacheOnce = sync.Once{}
	insightsCache = nil
}

// InsightsIndexAction serves the ranked insights for the source site.
// An empty result is a valid response, not an error.
func InsightsIndexAction(ctx *cartridge.Context) error {
	results, err := getInsightsCache(ctx).Get(insightsCacheKey)
	if err != nil {
		ctx.Logger.Error("Failed to generate insights", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate insights",
		})
	}

	if results == nil {
		results = []insights.BusinessInsight{}
	}

	return ctx.JSON(fiber.Map{
		"success":  true,
		"insights": results,
	})
}
