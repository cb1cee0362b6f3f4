package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedApp(t *testing.T, maxPerMinute int) *fiber.App {
	t.Helper()

	rl := New(Config{
		MaxRequestsPerMinute: maxPerMinute,
		WindowDuration:       time.Minute,
	})
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	return app
}

func get(t *testing.T, app *fiber.App, sessionID string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	app := limitedApp(t, 5)

	for i := 0; i < 5; i++ {
		resp := get(t, app, "sess-1")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}

func TestRateLimiterRejectsOverBudget(t *testing.T) {
	app := limitedApp(t, 2)

	get(t, app, "sess-1")
	get(t, app, "sess-1")

	resp := get(t, app, "sess-1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimiterKeysBySession(t *testing.T) {
	app := limitedApp(t, 1)

	resp := get(t, app, "sess-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A different session has its own bucket.
	resp = get(t, app, "sess-2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, app, "sess-1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRateLimiterRefills(t *testing.T) {
	rl := New(Config{
		MaxRequestsPerMinute: 2,
		WindowDuration:       100 * time.Millisecond,
	})
	t.Cleanup(rl.Stop)

	require.True(t, rl.allow("k"))
	require.True(t, rl.allow("k"))
	require.False(t, rl.allow("k"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, rl.allow("k"))
}
