package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"kestrel/internal/conn"
	"kestrel/internal/exchange"
	"kestrel/internal/logger"

	libbinance "github.com/adshao/go-binance/v2"
)

// klineHandle wraps one live combined-kline websocket as a conn.Handle.
type klineHandle struct {
	lost     chan error
	restored chan time.Duration
	stopOnce sync.Once
	stop     func()
}

func (h *klineHandle) Lost() <-chan error             { return h.lost }
func (h *klineHandle) Restored() <-chan time.Duration { return h.restored }

func (h *klineHandle) Close() error {
	h.stopOnce.Do(h.stop)
	return nil
}

// KlineConnector returns a connect function that opens a combined kline
// subscription and forwards updates to out. The returned handle reports loss
// exactly once when the socket dies; reconnection is the caller's concern.
func (c *Client) KlineConnector(symbols []string, interval string, out chan<- exchange.Kline) conn.ConnectFunc {
	return func(ctx context.Context) (conn.Handle, error) {
		pairs := make(map[string]string, len(symbols))
		for _, sym := range symbols {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym != "" {
				pairs[sym] = strings.ToLower(strings.TrimSpace(interval))
			}
		}
		if len(pairs) == 0 {
			return nil, fmt.Errorf("binance: no symbols to subscribe")
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var errMu sync.Mutex
		var lastErr error
		handler := func(event *libbinance.WsKlineEvent) {
			kl, ok := convertKlineEvent(event)
			if !ok {
				return
			}
			select {
			case out <- kl:
			default:
				logger.Warnf("binance: kline channel full, drop %s %s", kl.Symbol, kl.Interval)
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}

		doneC, stopC, err := libbinance.WsCombinedKlineServe(pairs, handler, errHandler)
		if err != nil {
			return nil, fmt.Errorf("binance: kline subscribe: %w", err)
		}

		handle := &klineHandle{
			lost:     make(chan error, 1),
			restored: make(chan time.Duration),
			stop:     func() { close(stopC) },
		}
		go func() {
			<-doneC
			errMu.Lock()
			err := lastErr
			errMu.Unlock()
			if err == nil {
				err = fmt.Errorf("binance: kline stream closed")
			}
			select {
			case handle.lost <- err:
			default:
			}
		}()
		return handle, nil
	}
}

func convertKlineEvent(ev *libbinance.WsKlineEvent) (exchange.Kline, bool) {
	if ev == nil {
		return exchange.Kline{}, false
	}
	symbol := strings.ToUpper(strings.TrimSpace(ev.Symbol))
	interval := strings.ToLower(strings.TrimSpace(ev.Kline.Interval))
	if symbol == "" || interval == "" {
		return exchange.Kline{}, false
	}
	return exchange.Kline{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  ev.Kline.StartTime,
		CloseTime: ev.Kline.EndTime,
		Open:      parseAmount(ev.Kline.Open),
		High:      parseAmount(ev.Kline.High),
		Low:       parseAmount(ev.Kline.Low),
		Close:     parseAmount(ev.Kline.Close),
		Volume:    parseAmount(ev.Kline.Volume),
		Final:     ev.Kline.IsFinal,
	}, true
}
