package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "0.01", s.MinPrice.String())
	assert.Equal(t, "1000000", s.MaxPrice.String())
	assert.Equal(t, "0.01", s.AlertThreshold.String())
	assert.Equal(t, "0.02", s.DeviationThreshold.String())
	assert.Equal(t, 6*time.Hour, s.RebalanceLockTTL)
	assert.Equal(t, 100*time.Millisecond, s.BrokerMinDelay)
	assert.Equal(t, 300*time.Millisecond, s.BrokerMaxDelay)
	assert.Equal(t, 3, s.RollbackMaxAttempts)

	require.NoError(t, s.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEVIATION_THRESHOLD", "0.05")
	t.Setenv("REBALANCE_LOCK_TTL", "30m")
	t.Setenv("ORDER_BURST", "5")
	t.Setenv("SIMULATOR_DISABLED", "true")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "0.05", s.DeviationThreshold.String())
	assert.Equal(t, 30*time.Minute, s.RebalanceLockTTL)
	assert.Equal(t, 5, s.OrderBurst)
	assert.True(t, s.SimulatorDisabled)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("MIN_INVESTMENT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_INVESTMENT")
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebalancer.yaml")
	content := []byte(`
log_level: warn
alert_threshold: "0.005"
broker_min_delay: 10ms
broker_max_delay: 20ms
order_rate: 50
simulator_spec: "*/2 * * * * *"
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	t.Setenv("REBALANCER_CONFIG_FILE", path)

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "0.005", s.AlertThreshold.String())
	assert.Equal(t, 10*time.Millisecond, s.BrokerMinDelay)
	assert.Equal(t, 20*time.Millisecond, s.BrokerMaxDelay)
	assert.Equal(t, float64(50), s.OrderRate)
	assert.Equal(t, "*/2 * * * * *", s.SimulatorSpec)
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rebalancer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\n"), 0o644))
	t.Setenv("REBALANCER_CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "trace")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "trace", s.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"min price above max", func(s *Settings) { s.MinPrice = s.MaxPrice.Add(s.MinPrice) }},
		{"zero alert threshold", func(s *Settings) { s.AlertThreshold = s.AlertThreshold.Sub(s.AlertThreshold) }},
		{"min delay above max", func(s *Settings) { s.BrokerMinDelay = s.BrokerMaxDelay + time.Millisecond }},
		{"zero lock ttl", func(s *Settings) { s.RebalanceLockTTL = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSettingsMappings(t *testing.T) {
	s := Default()

	stockLimits := s.StockLimits()
	assert.True(t, stockLimits.MinPrice.Equal(s.MinPrice))
	assert.True(t, stockLimits.AlertThreshold.Equal(s.AlertThreshold))

	portfolioLimits := s.PortfolioLimits()
	assert.True(t, portfolioLimits.DeviationThreshold.Equal(s.DeviationThreshold))
	assert.Equal(t, s.RebalanceLockTTL, portfolioLimits.LockTTL)

	brokerCfg := s.BrokerConfig()
	assert.Equal(t, s.BrokerMinDelay, brokerCfg.MinDelay)
	assert.Equal(t, s.RollbackMaxAttempts, brokerCfg.RollbackMaxAttempts)
	assert.True(t, brokerCfg.MaxOrderAmount.Equal(s.MaxOrderAmount))
}
