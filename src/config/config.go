package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"tradeexecutor/src/model"
)

// Config carries every environment setting of the executor. Processed once at
// startup and passed down explicitly.
type Config struct {
	// credentials
	ExchangeAPIKey    string `envconfig:"EXCHANGE_API_KEY"`
	ExchangeAPISecret string `envconfig:"EXCHANGE_API_SECRET"`
	HubAPIKey         string `envconfig:"HUB_API_KEY"`
	HubBaseURL        string `envconfig:"HUB_BASE_URL" default:"https://nbt-hub.herokuapp.com"`

	// trading behaviour
	PrimaryWallet        string  `envconfig:"PRIMARY_WALLET" default:"margin"`
	TradeLongFunds       string  `envconfig:"TRADE_LONG_FUNDS" default:"none"`
	IsFundsNoLoss        bool    `envconfig:"IS_FUNDS_NO_LOSS" default:"false"`
	IsTradeMarginEnabled bool    `envconfig:"IS_TRADE_MARGIN_ENABLED" default:"true"`
	IsTradeShortEnabled  bool    `envconfig:"IS_TRADE_SHORT_ENABLED" default:"true"`
	IsBuyQtyFraction     bool    `envconfig:"IS_BUY_QTY_FRACTION" default:"false"`
	IsPayInterestEnabled bool    `envconfig:"IS_PAY_INTEREST_ENABLED" default:"false"`
	IsAutoCloseEnabled   bool    `envconfig:"IS_AUTO_CLOSE_ENABLED" default:"false"`
	WalletBuffer         float64 `envconfig:"WALLET_BUFFER" default:"0"`
	MaxLongTrades        int     `envconfig:"MAX_LONG_TRADES" default:"0"`
	MaxShortTrades       int     `envconfig:"MAX_SHORT_TRADES" default:"0"`
	ExcludeCoins         string  `envconfig:"EXCLUDE_COINS"`

	// strategy loss limit
	StrategyLossLimit      int     `envconfig:"STRATEGY_LOSS_LIMIT" default:"0"`
	StrategyLimitThreshold float64 `envconfig:"STRATEGY_LIMIT_THRESHOLD" default:"1"`

	// fees and sizing
	TakerFeePercent    float64 `envconfig:"TAKER_FEE_PERCENT" default:"0.1"`
	MinCostBuffer      float64 `envconfig:"MIN_COST_BUFFER" default:"0.02"`
	VirtualWalletFunds float64 `envconfig:"VIRTUAL_WALLET_FUNDS" default:"0.1"`
	ReferenceSymbol    string  `envconfig:"REFERENCE_SYMBOL" default:"BNBBTC"`

	// fee token reserve
	BNBFreeThreshold float64 `envconfig:"BNB_FREE_THRESHOLD" default:"0.02"`
	BNBFreeFloat     float64 `envconfig:"BNB_FREE_FLOAT" default:"0.03"`
	BNBAutoTopUp     string  `envconfig:"BNB_AUTO_TOP_UP"`

	// timing
	BalanceSyncDelay   time.Duration `envconfig:"BALANCE_SYNC_DELAY" default:"3000ms"`
	BackgroundInterval time.Duration `envconfig:"BACKGROUND_INTERVAL" default:"5m"`

	// persistence
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"trader.db"`
	MaxDatabaseRows int    `envconfig:"MAX_DATABASE_ROWS" default:"10000"`

	// operator surface
	ServerPort     string `envconfig:"PORT" default:"8003"`
	ServerPassword string `envconfig:"SERVER_PASSWORD"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch model.WalletType(c.PrimaryWallet) {
	case model.WalletSpot, model.WalletMargin:
	default:
		return fmt.Errorf("PRIMARY_WALLET must be spot or margin, got %q", c.PrimaryWallet)
	}
	switch c.TradeLongFunds {
	case "none", "borrow-min", "borrow-all", "sell-all", "sell-largest", "sell-largest-pnl":
	default:
		return fmt.Errorf("TRADE_LONG_FUNDS %q is not a known funding model", c.TradeLongFunds)
	}
	if c.WalletBuffer < 0 || c.WalletBuffer >= 1 {
		return fmt.Errorf("WALLET_BUFFER must be in [0, 1), got %v", c.WalletBuffer)
	}
	if c.StrategyLimitThreshold < 0 || c.StrategyLimitThreshold > 1 {
		return fmt.Errorf("STRATEGY_LIMIT_THRESHOLD must be in [0, 1], got %v", c.StrategyLimitThreshold)
	}
	if c.MaxLongTrades < 0 || c.MaxShortTrades < 0 {
		return fmt.Errorf("trade count limits must not be negative")
	}
	return nil
}

// PrimaryWalletType returns the configured primary wallet as a typed value.
func (c *Config) PrimaryWalletType() model.WalletType {
	return model.WalletType(c.PrimaryWallet)
}

// TakerFee returns the taker fee as a fraction, e.g. 0.001 for 0.1 percent.
func (c *Config) TakerFee() decimal.Decimal {
	return decimal.NewFromFloat(c.TakerFeePercent).Div(decimal.NewFromInt(100))
}

// WalletBufferDec returns the wallet buffer as a decimal fraction.
func (c *Config) WalletBufferDec() decimal.Decimal {
	return decimal.NewFromFloat(c.WalletBuffer)
}

// MinCostBufferDec returns the minimum cost buffer as a decimal fraction.
func (c *Config) MinCostBufferDec() decimal.Decimal {
	return decimal.NewFromFloat(c.MinCostBuffer)
}

// ExcludedCoins parses EXCLUDE_COINS into upper-cased asset names.
func (c *Config) ExcludedCoins() []string {
	if strings.TrimSpace(c.ExcludeCoins) == "" {
		return nil
	}
	parts := strings.Split(c.ExcludeCoins, ",")
	coins := make([]string, 0, len(parts))
	for _, p := range parts {
		if coin := strings.ToUpper(strings.TrimSpace(p)); coin != "" {
			coins = append(coins, coin)
		}
	}
	return coins
}

// IsExcluded reports whether either leg of the symbol is on the exclude list.
func (c *Config) IsExcluded(base, quote string) bool {
	for _, coin := range c.ExcludedCoins() {
		if coin == base || coin == quote {
			return true
		}
	}
	return false
}
