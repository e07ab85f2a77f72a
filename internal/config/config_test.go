package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Тесты загрузки конфигурации:
//  - явный путь к YAML имеет приоритет и читается полностью;
//  - отсутствующий файл деградирует до ENV/значений по умолчанию;
//  - normalize() подменяет невалидные значения дефолтами;
//  - пороги риска валидируются на строгое возрастание.

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ExplicitPath(t *testing.T) {
	path := writeConfig(t, `
env: prod
db:
  url: postgres://u:p@db:5432/ticks
parsing:
  auto_update_interval_minutes: 45
  retry_count: 5
  retry_delay: 3s
  timeout: 20s
  sources:
    web:
      enabled: true
      base_url: https://example.org
      max_items: 10
    rss:
      enabled: true
      rss_url: https://example.org/rss/
risk_levels:
  low:
    threshold: 40
  moderate:
    threshold: 80
  high:
    threshold: 120
  very_high:
    threshold: 999999
graph:
  weeks_to_show: 12
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "prod", cfg.Env)
	require.Equal(t, "postgres://u:p@db:5432/ticks", cfg.DB.URL)
	require.Equal(t, 45*time.Minute, cfg.Parsing.Interval())
	require.Equal(t, 5, cfg.Parsing.RetryCount)
	require.Equal(t, 3*time.Second, cfg.Parsing.RetryDelay)
	require.Equal(t, 20*time.Second, cfg.Parsing.Timeout)
	require.True(t, cfg.Parsing.Sources.Web.Enabled)
	require.Equal(t, "https://example.org", cfg.Parsing.Sources.Web.BaseURL)
	require.Equal(t, 10, cfg.Parsing.Sources.Web.MaxItems)
	require.False(t, cfg.Parsing.Sources.VK.Enabled)
	require.Equal(t, 12, cfg.Graph.WeeksToShow)

	th := cfg.Thresholds()
	require.Equal(t, 40, th.Low)
	require.Equal(t, 80, th.Moderate)
	require.Equal(t, 120, th.High)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	// Все дефолты на месте.
	require.Equal(t, 20*time.Minute, cfg.Parsing.Interval())
	require.Equal(t, 3, cfg.Parsing.RetryCount)
	require.Equal(t, 2*time.Second, cfg.Parsing.RetryDelay)
	require.Equal(t, 15*time.Second, cfg.Parsing.Timeout)
	require.Equal(t, 8, cfg.Graph.WeeksToShow)
	require.Equal(t, 100, cfg.Graph.FilteredMaxItems)
	require.Equal(t, 50, cfg.Risk.Low.Threshold)
	require.Equal(t, 100, cfg.Risk.Moderate.Threshold)
	require.Equal(t, 150, cfg.Risk.High.Threshold)
}

func TestLoad_MalformedFileFallsBackToDefaults(t *testing.T) {
	path := writeConfig(t, "{{{ это не yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 20*time.Minute, cfg.Parsing.Interval())
}

func TestNormalize_BadValuesReplaced(t *testing.T) {
	path := writeConfig(t, `
parsing:
  auto_update_interval_minutes: -5
  retry_count: 0
  sources:
    telegram:
      enabled: true
      url: https://t.me/s/ch
      max_items: -1
graph:
  weeks_to_show: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 20, cfg.Parsing.AutoUpdateIntervalMinutes)
	require.Equal(t, 3, cfg.Parsing.RetryCount)
	require.Equal(t, 50, cfg.Parsing.Sources.Telegram.MaxItems)
	require.Equal(t, 8, cfg.Graph.WeeksToShow)
}

func TestNormalize_NonIncreasingThresholdsReset(t *testing.T) {
	path := writeConfig(t, `
risk_levels:
  low:
    threshold: 100
  moderate:
    threshold: 50
  high:
    threshold: 150
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 50, cfg.Risk.Low.Threshold)
	require.Equal(t, 100, cfg.Risk.Moderate.Threshold)
	require.Equal(t, 150, cfg.Risk.High.Threshold)
}

func TestMustLoad_DoesNotPanicOnMissingFile(t *testing.T) {
	require.NotPanics(t, func() {
		cfg := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NotNil(t, cfg)
	})
}
