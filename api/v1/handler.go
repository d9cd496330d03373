package v1

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"pagepulse/internal/metrics"
	"pagepulse/internal/pkg/pages"
)

const (
	msgMetricsAccepted = "Metrics accepted"
	errInvalidRequest  = "Invalid request"
)

// TrafficParams is one hourly traffic aggregate in an ingestion batch.
type TrafficParams struct {
	Hour         time.Time `json:"hour"`
	Page         string    `json:"page"`
	PageCategory string    `json:"pageCategory"`
	DeviceType   string    `json:"deviceType"`
	Referrer     string    `json:"referrer"`
	Region       string    `json:"region"`
	ViewCount    int       `json:"viewCount"`
}

// UserActionParams is one hourly engagement aggregate in an ingestion batch.
type UserActionParams struct {
	Hour               time.Time `json:"hour"`
	Page               string    `json:"page"`
	PageCategory       string    `json:"pageCategory"`
	DeviceType         string    `json:"deviceType"`
	Referrer           string    `json:"referrer"`
	Region             string    `json:"region"`
	AvgSessionDuration float64   `json:"avgSessionDuration"`
	BounceRate         float64   `json:"bounceRate"`
	ConversionRate     float64   `json:"conversionRate"`
	ConversionCount    int       `json:"conversionCount"`
}

// PerformanceParams is one hourly performance aggregate in an ingestion batch.
type PerformanceParams struct {
	Hour         time.Time `json:"hour"`
	Page         string    `json:"page"`
	PageCategory string    `json:"pageCategory"`
	DeviceType   string    `json:"deviceType"`
	Region       string    `json:"region"`
	AvgLoadTime  float64   `json:"avgLoadTime"`
	ErrorRate    float64   `json:"errorRate"`
}

// CreateMetricsParams is the batch payload accepted by the public metrics API.
type CreateMetricsParams struct {
	Traffic     []TrafficParams     `json:"traffic"`
	UserActions []UserActionParams  `json:"userActions"`
	Performance []PerformanceParams `json:"performance"`
}

// CreateMetricsPublicAPIHandler ingests a batch of hourly aggregates. Rows
// that collide with an existing (page, dimensions, hour) tuple are silently
// skipped: hourly aggregates are immutable once written.
func CreateMetricsPublicAPIHandler(ctx *cartridge.Context) error {
	ctx.Logger.Info("Received metrics batch", slog.String("method", ctx.Method()), slog.String("path", ctx.Path()))

	params, err := validateAndParseRequest(ctx.Ctx)
	if err != nil {
		ctx.Logger.Debug("Failed to validate request", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	db := ctx.DBManager.GetConnection()

	trafficRows := make([]metrics.TrafficStat, 0, len(params.Traffic))
	for _, p := range params.Traffic {
		trafficRows = append(trafficRows, metrics.TrafficStat{
			Page:         p.Page,
			PageCategory: categoryFor(p.Page, p.PageCategory),
			DeviceType:   p.DeviceType,
			Referrer:     p.Referrer,
			Region:       p.Region,
			ViewCount:    p.ViewCount,
			Hour:         p.Hour,
		})
	}

	actionRows := make([]metrics.UserActionStat, 0, len(params.UserActions))
	for _, p := range params.UserActions {
		actionRows = append(actionRows, metrics.UserActionStat{
			Page:               p.Page,
			PageCategory:       categoryFor(p.Page, p.PageCategory),
			DeviceType:         p.DeviceType,
			Referrer:           p.Referrer,
			Region:             p.Region,
			AvgSessionDuration: p.AvgSessionDuration,
			BounceRate:         p.BounceRate,
			ConversionRate:     p.ConversionRate,
			ConversionCount:    p.ConversionCount,
			Hour:               p.Hour,
		})
	}

	perfRows := make([]metrics.PerformanceStat, 0, len(params.Performance))
	for _, p := range params.Performance {
		perfRows = append(perfRows, metrics.PerformanceStat{
			Page:         p.Page,
			PageCategory: categoryFor(p.Page, p.PageCategory),
			DeviceType:   p.DeviceType,
			Region:       p.Region,
			AvgLoadTime:  p.AvgLoadTime,
			ErrorRate:    p.ErrorRate,
			Hour:         p.Hour,
		})
	}

	if err := metrics.InsertTraffic(db, trafficRows); err != nil {
		return storeError(ctx, "traffic", err)
	}
	if err := metrics.InsertUserActions(db, actionRows); err != nil {
		return storeError(ctx, "user_actions", err)
	}
	if err := metrics.InsertPerformance(db, perfRows); err != nil {
		return storeError(ctx, "performance", err)
	}

	accepted := len(trafficRows) + len(actionRows) + len(perfRows)
	ctx.Logger.Info("Stored metrics batch", slog.Int("rows", accepted))
	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message":  msgMetricsAccepted,
		"accepted": accepted,
		"status":   http.StatusAccepted,
	})
}

func storeError(ctx *cartridge.Context, family string, err error) error {
	ctx.Logger.Error("Failed to store metrics", slog.String("family", family), slog.Any("error", err))
	if isBusyError(err) {
		return ctx.Status(599).JSON(fiber.Map{}) // custom status code
	}
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to store metrics",
		"code":  "STORAGE_ERROR",
	})
}

// isBusyError reports whether the write failed on SQLite lock contention.
// Senders retry these; everything else is a hard storage error.
func isBusyError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func validateAndParseRequest(c *fiber.Ctx) (*CreateMetricsParams, error) {
	var params CreateMetricsParams
	if err := c.BodyParser(&params); err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, errInvalidRequest)
	}

	if len(params.Traffic)+len(params.UserActions)+len(params.Performance) == 0 {
		return nil, fiber.NewError(http.StatusBadRequest, "Batch is empty")
	}

	for _, p := range params.Traffic {
		if err := validateRow(p.Page, p.Hour); err != nil {
			return nil, err
		}
		if p.ViewCount < 0 {
			return nil, fiber.NewError(http.StatusBadRequest, "viewCount must not be negative")
		}
	}
	for _, p := range params.UserActions {
		if err := validateRow(p.Page, p.Hour); err != nil {
			return nil, err
		}
		if p.AvgSessionDuration < 0 {
			return nil, fiber.NewError(http.StatusBadRequest, "avgSessionDuration must not be negative")
		}
		if p.ConversionCount < 0 {
			return nil, fiber.NewError(http.StatusBadRequest, "conversionCount must not be negative")
		}
		if err := validateRate(p.BounceRate, "bounceRate"); err != nil {
			return nil, err
		}
		if err := validateRate(p.ConversionRate, "conversionRate"); err != nil {
			return nil, err
		}
	}
	for _, p := range params.Performance {
		if err := validateRow(p.Page, p.Hour); err != nil {
			return nil, err
		}
		if p.AvgLoadTime < 0 {
			return nil, fiber.NewError(http.StatusBadRequest, "avgLoadTime must not be negative")
		}
		if err := validateRate(p.ErrorRate, "errorRate"); err != nil {
			return nil, err
		}
	}

	return &params, nil
}

func validateRow(page string, hour time.Time) error {
	if page == "" {
		return fiber.NewError(http.StatusBadRequest, "Page is required")
	}
	if !strings.HasPrefix(page, "/") {
		return fiber.NewError(http.StatusBadRequest, "Page must be a path starting with /")
	}
	if hour.IsZero() {
		return fiber.NewError(http.StatusBadRequest, "Hour is required")
	}
	return nil
}

// validateRate rejects percentage fields outside 0-100. Out-of-range rates
// would poison the detection baselines for the whole page.
func validateRate(value float64, field string) error {
	if value < 0 || value > 100 {
		return fiber.NewError(http.StatusBadRequest, field+" must be between 0 and 100")
	}
	return nil
}

// categoryFor falls back to path-based classification when the sender did not
// tag the row with a category.
func categoryFor(page, provided string) string {
	if provided != "" {
		return provided
	}
	return pages.Classify(page)
}

func handleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": errInvalidRequest,
	})
}
