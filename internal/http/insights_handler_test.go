package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pphttp "pagepulse/internal/http"
	"pagepulse/internal/metrics"
	"pagepulse/internal/settings"
	"pagepulse/internal/testsupport"
	"pagepulse/internal/window"
)

func getInsights(t *testing.T, app *fiber.App, apiKey string) *http.Response {
	t.Helper()

	req := httptest.NewRequest("GET", "/api/v1/insights", nil)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func TestInsightsIndexAction(t *testing.T) {
	t.Run("returns success with empty insights on an empty repository", func(t *testing.T) {
		pphttp.ResetInsightsCache()
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		apiKey, err := settings.GenerateAPIKey(db)
		require.NoError(t, err)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := getInsights(t, app, apiKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))

		// No data is a valid state: the success flag stays true and the
		// insights key is an empty array, never null.
		assert.Equal(t, true, payload["success"])
		insightsRaw, ok := payload["insights"].([]interface{})
		require.True(t, ok, "insights should be a JSON array, got %T", payload["insights"])
		assert.Len(t, insightsRaw, 0)
	})

	t.Run("returns ranked insights when the data holds an anomaly", func(t *testing.T) {
		pphttp.ResetInsightsCache()
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		now := time.Now().UTC()
		baseline := window.Baseline(now)
		for hour := baseline.Start; hour.Before(baseline.End); hour = hour.Add(time.Hour) {
			testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
				Page: "/pricing", ViewCount: 100, Hour: hour,
			})
		}
		testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
			Page: "/pricing", ViewCount: 500, Hour: now.Add(-time.Hour),
		})

		apiKey, err := settings.GenerateAPIKey(db)
		require.NoError(t, err)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := getInsights(t, app, apiKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, true, payload["success"])

		insightsRaw, ok := payload["insights"].([]interface{})
		require.True(t, ok)
		require.NotEmpty(t, insightsRaw)

		first := insightsRaw[0].(map[string]interface{})
		assert.Equal(t, "/pricing", first["page"])
		assert.NotEmpty(t, first["type"])
		assert.NotEmpty(t, first["businessInsight"])
		score := first["impactScore"].(float64)
		assert.GreaterOrEqual(t, score, float64(0))
		assert.LessOrEqual(t, score, float64(100))
	})

	t.Run("rejects requests without an API key", func(t *testing.T) {
		pphttp.ResetInsightsCache()
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		_, err := settings.GenerateAPIKey(db)
		require.NoError(t, err)

		app := testsupport.CreateMinimalTestApp(t, db)

		resp := getInsights(t, app, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHealthIndexAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	hour := time.Now().UTC().Truncate(time.Hour).Add(-2 * time.Hour)
	testsupport.CreateTrafficStat(t, db, metrics.TrafficStat{
		Page: "/", ViewCount: 50, Hour: hour,
	})

	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/_health", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "ok", payload["db_status"])

	latest, ok := payload["latest_metric_at"].(string)
	require.True(t, ok, "latest_metric_at should be present once metrics exist")
	parsed, err := time.Parse(time.RFC3339, latest)
	require.NoError(t, err)
	assert.WithinDuration(t, hour, parsed, time.Second)

	// No detection run has persisted anything
	_, hasDetection := payload["last_detection_at"]
	assert.False(t, hasDetection)
}
