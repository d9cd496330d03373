package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "pagepulse/api/v1"
	"pagepulse/internal/config"
	"pagepulse/internal/http"
	"pagepulse/internal/http/middleware"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for the public metrics ingestion API (70 requests per
	// minute per IP). Ingestion batches are hourly aggregates, so legitimate
	// senders stay far below this.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter rate limiter for the insights API (30 requests per minute).
	// Each cache miss runs a full detection pass, so this also bounds engine load.
	insightsRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Public API config (metrics ingestion)
	// Rate limiting + CORS; CORS runs first so 403 responses carry CORS headers
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Get dependencies for middleware
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Insights API config: rate limiting + API key auth
	insightsAPIConfig := &cartridge.RouteConfig{
		EnableCORS: true,
		CustomMiddleware: []fiber.Handler{
			insightsRateLimiter,
			middleware.APIKeyAuth(db, logger),
		},
		CORSConfig: publicCORSConfig,
	}

	// === ROOT ROUTES ===

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/metrics", v1.CreateMetricsPublicAPIHandler, publicAPIConfig)
	srv.Options("/x/api/v1/metrics", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === INSIGHTS API ROUTES ===
	srv.Get("/api/v1/insights", http.InsightsIndexAction, insightsAPIConfig)
	srv.Options("/api/v1/insights", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, insightsAPIConfig)
}
