// Package binance adapts the Binance spot API to the exchange interfaces.
// All REST reads go through a circuit breaker so a flapping API cannot be
// hammered in a tight loop.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"kestrel/internal/exchange"
	"kestrel/internal/pkg/circuit"

	libbinance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// Client implements exchange.Query against Binance spot.
type Client struct {
	cfg     Config
	client  *libbinance.Client
	breaker *circuit.Breaker
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	client := libbinance.NewClient(final.APIKey, final.APISecret)
	if base := strings.TrimSpace(final.RESTBaseURL); base != "" {
		client.BaseURL = base
	}
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	if final.ProxyEnabled {
		wsProxy := final.WSProxyURL
		if wsProxy == "" {
			wsProxy = final.RESTProxyURL
		}
		if wsProxy != "" {
			libbinance.SetWsProxyUrl(wsProxy)
		}
	}
	return &Client{
		cfg:     final,
		client:  client,
		breaker: circuit.NewBreaker("binance-rest", final.BreakerThreshold, final.BreakerTimeout),
	}, nil
}

// Breaker exposes the REST circuit breaker for alert wiring.
func (c *Client) Breaker() *circuit.Breaker { return c.breaker }

func (c *Client) GetBalance(ctx context.Context, asset string) (float64, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return 0, fmt.Errorf("asset is required")
	}
	var free float64
	err := c.breaker.Execute(func() error {
		account, err := c.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		for _, bal := range account.Balances {
			if strings.EqualFold(bal.Asset, asset) {
				free = parseAmount(bal.Free)
				return nil
			}
		}
		// An asset the account never touched is a zero balance, not an error.
		free = 0
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("binance: balance %s: %w", asset, err)
	}
	return free, nil
}

func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	var out []exchange.OpenOrder
	err := c.breaker.Execute(func() error {
		orders, err := c.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		out = make([]exchange.OpenOrder, 0, len(orders))
		for _, ord := range orders {
			if ord == nil {
				continue
			}
			out = append(out, exchange.OpenOrder{
				OrderID:     ord.OrderID,
				OrderListID: ord.OrderListId,
				Symbol:      ord.Symbol,
				Status:      string(ord.Status),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("binance: open orders %s: %w", symbol, err)
	}
	return out, nil
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	var price float64
	err := c.breaker.Execute(func() error {
		prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 || prices[0] == nil {
			return fmt.Errorf("empty price response")
		}
		price = parseAmount(prices[0].Price)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("binance: price %s: %w", symbol, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("binance: price %s: non-positive price %v", symbol, price)
	}
	return price, nil
}

// parseAmount decodes Binance's string-encoded numbers. Exchange amounts are
// decimal strings, so go through decimal instead of ParseFloat directly.
func parseAmount(v string) float64 {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}
