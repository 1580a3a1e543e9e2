package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPricingReadsTiers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yml")
	content := `pricing:
  tiers:
    - start_price: 0
      end_price: 100
      fixed_fee: 1.5
      variable_fee_percent: 0.07
    - start_price: 100
      end_price: 0
      fixed_fee: 3
      variable_fee_percent: 0.05
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadPricing(path)
	require.NoError(t, err)
	require.Len(t, cfg.Tiers, 2)

	assert.Equal(t, TierConfig{StartPrice: 0, EndPrice: 100, FixedFee: 1.5, VariableFeePercent: 0.07}, cfg.Tiers[0])
	assert.Equal(t, TierConfig{StartPrice: 100, EndPrice: 0, FixedFee: 3, VariableFeePercent: 0.05}, cfg.Tiers[1])
}

func TestLoadPricingMissingExplicitPathFails(t *testing.T) {
	_, err := LoadPricing(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_SERVICE", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("EVENT_BUFFER_SIZE", "not-a-number")
	t.Setenv("REDIS_ENABLED", "yes")

	cfg := Load()
	assert.Equal(t, "gavel", cfg.AppName)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 1024, cfg.EventBufferSize)
	assert.True(t, cfg.Redis.Enabled)
}
