package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
)

const (
	marketsTTL  = 24 * time.Hour
	pricesTTL   = 60 * time.Second
	balancesTTL = 24 * time.Hour
)

// BinanceGateway implements Gateway against Binance spot and cross margin.
type BinanceGateway struct {
	client           *binance.Client
	balanceSyncDelay time.Duration

	mu           sync.Mutex
	markets      map[string]*model.Market
	marketsAt    time.Time
	prices       map[string]decimal.Decimal
	pricesAt     time.Time
	balances     map[model.WalletType]map[string]Balance
	balancesAt   map[model.WalletType]time.Time
	lastMutation time.Time
}

func NewBinanceGateway(apiKey, apiSecret string, balanceSyncDelay time.Duration) *BinanceGateway {
	return &BinanceGateway{
		client:           binance.NewClient(apiKey, apiSecret),
		balanceSyncDelay: balanceSyncDelay,
		balances:         make(map[model.WalletType]map[string]Balance),
		balancesAt:       make(map[model.WalletType]time.Time),
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// LoadMarkets returns the symbol map, refreshed when stale or forced. Every
// market is enriched with the cross margin flag from the margin pairs
// endpoint.
func (g *BinanceGateway) LoadMarkets(ctx context.Context, force bool) (map[string]*model.Market, error) {
	g.mu.Lock()
	if !force && g.markets != nil && time.Since(g.marketsAt) < marketsTTL {
		markets := g.markets
		g.mu.Unlock()
		return markets, nil
	}
	g.mu.Unlock()

	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchange info: %w", err)
	}

	marginPairs := make(map[string]bool)
	pairs, err := g.client.NewGetMarginAllPairsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load margin pairs: %w", err)
	}
	for _, p := range pairs {
		if p.IsMarginTrade && p.IsBuyAllowed && p.IsSellAllowed {
			marginPairs[p.Symbol] = true
		}
	}

	markets := make(map[string]*model.Market, len(info.Symbols))
	for _, s := range info.Symbols {
		market := &model.Market{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Active: s.Status == "TRADING",
			Spot:   s.IsSpotTradingAllowed,
			Margin: s.IsMarginTradingAllowed && marginPairs[s.Symbol],
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "LOT_SIZE":
				market.StepSize = dec(str(f["stepSize"]))
				market.MinAmount = dec(str(f["minQty"]))
				market.MaxAmount = dec(str(f["maxQty"]))
			case "MARKET_LOT_SIZE":
				market.MaxMarketAmount = dec(str(f["maxQty"]))
			case "MIN_NOTIONAL":
				market.MinCost = dec(str(f["minNotional"]))
			case "NOTIONAL":
				market.MinCost = dec(str(f["minNotional"]))
				market.MaxCost = dec(str(f["maxNotional"]))
			}
		}
		markets[s.Symbol] = market
	}

	g.mu.Lock()
	g.markets = markets
	g.marketsAt = time.Now()
	g.mu.Unlock()

	logger.WithField("markets", len(markets)).Info("markets loaded")
	return markets, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// LoadPrices returns last prices for every symbol, cached for a minute.
func (g *BinanceGateway) LoadPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	g.mu.Lock()
	if g.prices != nil && time.Since(g.pricesAt) < pricesTTL {
		prices := g.prices
		g.mu.Unlock()
		return prices, nil
	}
	g.mu.Unlock()

	listed, err := g.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}
	prices := make(map[string]decimal.Decimal, len(listed))
	for _, p := range listed {
		prices[p.Symbol] = dec(p.Price)
	}

	g.mu.Lock()
	g.prices = prices
	g.pricesAt = time.Now()
	g.mu.Unlock()
	return prices, nil
}

// FetchTicker returns the current bid and ask for one symbol.
func (g *BinanceGateway) FetchTicker(ctx context.Context, symbol string) (*Ticker, error) {
	books, err := g.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", symbol, err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no book ticker for %s", symbol)
	}
	return &Ticker{Bid: dec(books[0].BidPrice), Ask: dec(books[0].AskPrice)}, nil
}

// FetchBalance returns the per-asset balances of a wallet. Cached per wallet,
// and after a mutating call the fetch waits out the settle delay so the
// exchange has caught up with its own fill.
func (g *BinanceGateway) FetchBalance(ctx context.Context, wallet model.WalletType) (map[string]Balance, error) {
	g.mu.Lock()
	if cached, ok := g.balances[wallet]; ok && time.Since(g.balancesAt[wallet]) < balancesTTL {
		g.mu.Unlock()
		return cached, nil
	}
	wait := g.balanceSyncDelay - time.Since(g.lastMutation)
	g.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	balances := make(map[string]Balance)
	if wallet == model.WalletMargin {
		account, err := g.client.NewGetMarginAccountService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch margin balance: %w", err)
		}
		for _, a := range account.UserAssets {
			balances[a.Asset] = Balance{
				Free:     dec(a.Free),
				Borrowed: dec(a.Borrowed),
				Interest: dec(a.Interest),
			}
		}
	} else {
		account, err := g.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch spot balance: %w", err)
		}
		for _, b := range account.Balances {
			balances[b.Asset] = Balance{Free: dec(b.Free)}
		}
	}

	g.mu.Lock()
	g.balances[wallet] = balances
	g.balancesAt[wallet] = time.Now()
	g.mu.Unlock()
	return balances, nil
}

// invalidateBalances drops the cache and stamps the mutation time.
func (g *BinanceGateway) invalidateBalances() {
	g.mu.Lock()
	g.balances = make(map[model.WalletType]map[string]Balance)
	g.balancesAt = make(map[model.WalletType]time.Time)
	g.lastMutation = time.Now()
	g.mu.Unlock()
}

// CreateMarketOrder places a market order on the requested wallet and maps
// the exchange status onto the gateway's closed/other contract.
func (g *BinanceGateway) CreateMarketOrder(ctx context.Context, symbol string, side model.ActionType, amount decimal.Decimal, wallet model.WalletType) (*OrderResult, error) {
	g.invalidateBalances()
	defer g.invalidateBalances()

	var (
		status   string
		executed string
		quote    string
	)
	if wallet == model.WalletMargin {
		resp, err := g.client.NewCreateMarginOrderService().
			Symbol(symbol).
			Side(binance.SideType(side)).
			Type(binance.OrderTypeMarket).
			Quantity(amount.String()).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("margin market order %s %s failed: %w", side, symbol, err)
		}
		status, executed, quote = string(resp.Status), resp.ExecutedQuantity, resp.CummulativeQuoteQuantity
	} else {
		resp, err := g.client.NewCreateOrderService().
			Symbol(symbol).
			Side(binance.SideType(side)).
			Type(binance.OrderTypeMarket).
			Quantity(amount.String()).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("spot market order %s %s failed: %w", side, symbol, err)
		}
		status, executed, quote = string(resp.Status), resp.ExecutedQuantity, resp.CummulativeQuoteQuantity
	}

	result := &OrderResult{
		Quantity: dec(executed),
		Cost:     dec(quote),
	}
	if status == string(binance.OrderStatusTypeFilled) {
		result.Status = OrderStatusClosed
	} else {
		result.Status = status
	}
	if result.Quantity.IsPositive() {
		result.Price = result.Cost.Div(result.Quantity)
	}
	return result, nil
}

// MarginBorrow takes a cross margin loan. The returned transaction id is the
// success marker.
func (g *BinanceGateway) MarginBorrow(ctx context.Context, asset string, amount decimal.Decimal) (string, error) {
	g.invalidateBalances()
	defer g.invalidateBalances()

	resp, err := g.client.NewMarginLoanService().Asset(asset).Amount(amount.String()).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("margin borrow %s %s failed: %w", amount, asset, err)
	}
	if resp.TranID == 0 {
		return "", fmt.Errorf("margin borrow %s %s returned no transaction id", amount, asset)
	}
	return strconv.FormatInt(resp.TranID, 10), nil
}

// MarginRepay repays a cross margin loan.
func (g *BinanceGateway) MarginRepay(ctx context.Context, asset string, amount decimal.Decimal) (string, error) {
	g.invalidateBalances()
	defer g.invalidateBalances()

	resp, err := g.client.NewMarginRepayService().Asset(asset).Amount(amount.String()).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("margin repay %s %s failed: %w", amount, asset, err)
	}
	if resp.TranID == 0 {
		return "", fmt.Errorf("margin repay %s %s returned no transaction id", amount, asset)
	}
	return strconv.FormatInt(resp.TranID, 10), nil
}
