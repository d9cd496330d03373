// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagepulse/internal/metrics"
	"pagepulse/internal/pkg/pages"
	"pagepulse/internal/testsupport"
)

func postMetrics(t *testing.T, app *fiber.App, payload map[string]interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/x/api/v1/metrics", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func TestCreateMetricsPublicAPIHandler(t *testing.T) {
	hour := time.Now().UTC().Truncate(time.Hour).Add(-time.Hour)

	t.Run("accepts a valid batch across all families", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "deviceType": "Mobile", "referrer": "google.com", "region": "US", "viewCount": 120},
			},
			"userActions": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "avgSessionDuration": 95.0, "bounceRate": 40.0, "conversionRate": 3.2, "conversionCount": 4},
			},
			"performance": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "avgLoadTime": 820.0, "errorRate": 0.5},
			},
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var respBody map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &respBody))
		assert.Equal(t, "Metrics accepted", respBody["message"])
		assert.Equal(t, float64(3), respBody["accepted"])

		var trafficCount, actionCount, perfCount int64
		require.NoError(t, db.Model(&metrics.TrafficStat{}).Count(&trafficCount).Error)
		require.NoError(t, db.Model(&metrics.UserActionStat{}).Count(&actionCount).Error)
		require.NoError(t, db.Model(&metrics.PerformanceStat{}).Count(&perfCount).Error)
		assert.Equal(t, int64(1), trafficCount)
		assert.Equal(t, int64(1), actionCount)
		assert.Equal(t, int64(1), perfCount)
	})

	t.Run("classifies the page when no category is sent", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"hour": hour, "page": "/checkout", "viewCount": 10},
			},
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var stored metrics.TrafficStat
		require.NoError(t, db.Where("page = ?", "/checkout").First(&stored).Error)
		assert.Equal(t, pages.CategoryCheckout, stored.PageCategory)
	})

	t.Run("rejects an empty batch", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects a page that is not a path", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"hour": hour, "page": "example.com/pricing", "viewCount": 10},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&metrics.TrafficStat{}).Count(&count).Error)
		assert.Equal(t, int64(0), count, "Expected no rows stored from a rejected batch")
	})

	t.Run("rejects a row without an hour", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"page": "/pricing", "viewCount": 10},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("rejects a negative view count", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "viewCount": -5},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var respBody map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &respBody))
		assert.Equal(t, "viewCount must not be negative", respBody["error"])
	})

	t.Run("rejects rate fields outside 0-100", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := postMetrics(t, app, map[string]interface{}{
			"userActions": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "bounceRate": 130.0, "conversionRate": 2.0},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var respBody map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &respBody))
		assert.Equal(t, "bounceRate must be between 0 and 100", respBody["error"])

		resp = postMetrics(t, app, map[string]interface{}{
			"performance": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "avgLoadTime": 800.0, "errorRate": -1.0},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&metrics.PerformanceStat{}).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})

	t.Run("skips rows colliding with stored aggregates", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		payload := map[string]interface{}{
			"traffic": []map[string]interface{}{
				{"hour": hour, "page": "/pricing", "viewCount": 120},
			},
		}
		resp := postMetrics(t, app, payload)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		// Same (page, dimensions, hour): the stored aggregate is immutable.
		payload["traffic"].([]map[string]interface{})[0]["viewCount"] = 999
		resp = postMetrics(t, app, payload)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var stored metrics.TrafficStat
		require.NoError(t, db.Where("page = ?", "/pricing").First(&stored).Error)
		assert.Equal(t, 120, stored.ViewCount)

		var count int64
		require.NoError(t, db.Model(&metrics.TrafficStat{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}
