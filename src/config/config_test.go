package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeexecutor/src/model"
)

func validConfig() *Config {
	return &Config{
		PrimaryWallet:          "margin",
		TradeLongFunds:         "none",
		WalletBuffer:           0.02,
		StrategyLimitThreshold: 0.5,
		TakerFeePercent:        0.1,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	bad := validConfig()
	bad.PrimaryWallet = "futures"
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.TradeLongFunds = "sell-everything"
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.WalletBuffer = 1
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.StrategyLimitThreshold = 1.5
	require.Error(t, bad.Validate())

	bad = validConfig()
	bad.MaxLongTrades = -1
	require.Error(t, bad.Validate())
}

func TestTakerFee(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.001", cfg.TakerFee().String())
}

func TestExcludedCoins(t *testing.T) {
	cfg := validConfig()
	cfg.ExcludeCoins = " doge , SHIB,,pepe "
	assert.Equal(t, []string{"DOGE", "SHIB", "PEPE"}, cfg.ExcludedCoins())

	assert.True(t, cfg.IsExcluded("DOGE", "BTC"))
	assert.True(t, cfg.IsExcluded("ETH", "SHIB"))
	assert.False(t, cfg.IsExcluded("ETH", "BTC"))

	cfg.ExcludeCoins = ""
	assert.Nil(t, cfg.ExcludedCoins())
}

func TestPrimaryWalletType(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, model.WalletMargin, cfg.PrimaryWalletType())
}
