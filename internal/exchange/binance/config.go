package binance

import "time"

// Config for the Binance adapter. API credentials are only needed for
// account-scoped reads; public market data works without them.
type Config struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
	WSProxyURL   string

	// REST circuit breaker.
	BreakerThreshold int
	BreakerTimeout   time.Duration

	// Buffer of the outbound kline channel.
	StreamBuffer int
}

func (c Config) withDefaults() Config {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = 512
	}
	return c
}
