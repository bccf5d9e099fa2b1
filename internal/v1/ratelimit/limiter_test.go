package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xqlive/xiangqi-server/internal/v1/config"
)

func testContext(remoteAddr string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = remoteAddr
	return c, w
}

func TestNewRateLimiter_MemoryStore(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "60-M"}

	rl, err := NewRateLimiter(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, rl)
}

func TestNewRateLimiter_InvalidRate(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "not-a-rate"}

	rl, err := NewRateLimiter(cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, rl)
}

func TestCheckWebSocket_AllowsUnderLimit(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "60-M"}
	rl, err := NewRateLimiter(cfg, nil)
	require.NoError(t, err)

	c, w := testContext("10.1.2.3:1234")
	assert.True(t, rl.CheckWebSocket(c))
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestCheckWebSocket_BlocksOverLimit(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "2-M"}
	rl, err := NewRateLimiter(cfg, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		c, _ := testContext("10.1.2.3:1234")
		require.True(t, rl.CheckWebSocket(c))
	}

	c, w := testContext("10.1.2.3:1234")
	assert.False(t, rl.CheckWebSocket(c))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Retry-After"))
}

func TestCheckWebSocket_PerIPIsolation(t *testing.T) {
	cfg := &config.Config{RateLimitWsIP: "1-M"}
	rl, err := NewRateLimiter(cfg, nil)
	require.NoError(t, err)

	c, _ := testContext("10.0.0.1:1111")
	require.True(t, rl.CheckWebSocket(c))
	c, _ = testContext("10.0.0.1:2222")
	require.False(t, rl.CheckWebSocket(c))

	// A different address still has budget.
	c, _ = testContext("10.0.0.2:1111")
	assert.True(t, rl.CheckWebSocket(c))
}
