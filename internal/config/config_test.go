package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tongjisync/internal/channel"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PAGE_SIZE", "")
	t.Setenv("APP_SITE_IDS", "")
	t.Setenv("APP_GEO_RATE", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "postgres", cfg.Sink)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 5*time.Second, cfg.GeoTimeout)
	assert.Equal(t, 5.0, cfg.GeoRate)
	assert.Equal(t, 24*time.Hour, cfg.CorrectionInterval)
	assert.Empty(t, cfg.SiteIDs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_SITE_IDS", "123, 456,,")
	t.Setenv("APP_PAGE_SIZE", "500")
	t.Setenv("APP_SYNC_INTERVAL", "5m")
	t.Setenv("APP_TONGJI_DEBUG", "true")
	t.Setenv("APP_GEO_RATE", "0.5")
	t.Setenv("APP_REPOLL_LIMIT", "nope")
	t.Setenv("APP_TIME_ZONE", "Asia/Shanghai")

	cfg := Load()

	assert.Equal(t, []string{"123", "456"}, cfg.SiteIDs)
	assert.Equal(t, 500, cfg.PageSize)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.True(t, cfg.TongjiDebug)
	assert.Equal(t, 0.5, cfg.GeoRate)
	assert.Equal(t, 10, cfg.RepollLimit)
	assert.Equal(t, "Asia/Shanghai", cfg.TimeZone)
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	cfg := &Config{TimeZone: "Mars/Olympus"}
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoadDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimensions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
custom_tracking_params:
  - bd_vid
  - ch
onsite_search_params:
  - q
traffic_channel_group:
  - direct
  - organic_search
`), 0o600))

	d, err := LoadDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"bd_vid", "ch"}, d.CustomTrackingParams)
	assert.Equal(t, []string{"q"}, d.OnsiteSearchParams)
	assert.Equal(t, []string{"direct", "organic_search"}, d.TrafficChannelGroups)
}

func TestLoadDimensions_Missing(t *testing.T) {
	d, err := LoadDimensions(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, channel.DefaultGroups, d.TrafficChannelGroups)
	assert.Empty(t, d.CustomTrackingParams)
}

func TestLoadDimensions_RejectsBadIdentifier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dimensions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("custom_tracking_params: [\"x; drop table\"]\n"), 0o600))

	_, err := LoadDimensions(path)
	assert.Error(t, err)
}
