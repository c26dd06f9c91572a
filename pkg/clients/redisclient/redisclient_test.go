package redisclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/clinic-planner/internal/config"
)

func TestLockKey(t *testing.T) {
	assert.Equal(t, "planner:lock:week:2025-01-06", LockKey("2025-01-06"))
}

func TestNewWeekLock_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultLockTTL, NewWeekLock(nil, 0).ttl)
	assert.Equal(t, time.Minute, NewWeekLock(nil, time.Minute).ttl)
}

func TestEncodeEvent(t *testing.T) {
	publishedAt := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

	data, err := encodeEvent(SlotsUpdatedEvent{
		Week:        "2025-01-06",
		Dates:       []string{"2025-01-07"},
		Updates:     6,
		PublishedAt: publishedAt,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"week":"2025-01-06","dates":["2025-01-07"],"updates":6,"published_at":"2025-01-06T12:00:00Z"}`, string(data))

	data, err = encodeEvent(SlotsUpdatedEvent{Week: "2025-01-06"})
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []interface{}{}, decoded["dates"])
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := config.Default()
	cfg.RedisAddr = "127.0.0.1:1"

	_, err := NewClient(ctx, cfg)
	assert.Error(t, err)
}
