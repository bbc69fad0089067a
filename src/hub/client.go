// Hub client. One long-lived websocket for signals plus two REST calls for
// open-trade listings.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

const (
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	reconnectDelay = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Handler receives the decoded hub events. Calls arrive from the read loop
// one at a time.
type Handler interface {
	OnStrategyList(list []StrategyPayload)
	OnBuySignal(signal SignalPayload)
	OnSellSignal(signal SignalPayload)
	OnCloseSignal(signal SignalPayload)
	OnStopSignal(signal SignalPayload)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client maintains the hub connection and the REST surface.
type Client struct {
	baseURL string
	apiKey  string
	http    *resty.Client
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
	wg   sync.WaitGroup
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	code := r.StatusCode()
	return (code >= 500 && code <= 599) || code == 429 || code == 408
}

func NewClient(baseURL, apiKey string, handler Handler) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
		handler: handler,
		stop:    make(chan struct{}),
	}
}

func (c *Client) wsURL() string {
	url := strings.Replace(c.baseURL, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return fmt.Sprintf("%s/ws?key=%s", url, c.apiKey)
}

// Start runs the connect/read loop until Stop is called. Reconnects with a
// fixed delay on any read error.
func (c *Client) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.stop:
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
			if err != nil {
				logger.WithError(err).Warn("hub connection failed, retrying")
				select {
				case <-c.stop:
					return
				case <-time.After(reconnectDelay):
				}
				continue
			}

			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			logger.Info("hub connected")

			if err := c.readLoop(conn); err != nil {
				logger.WithError(err).Warn("hub connection lost, reconnecting")
			}
			conn.Close()

			select {
			case <-c.stop:
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-c.stop:
				return
			}
		}
	}()

	for {
		select {
		case <-c.stop:
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("hub read failed: %w", err)
		}
		c.dispatch(message)
	}
}

func (c *Client) dispatch(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		logger.WithError(err).Debug("unparseable hub message dropped")
		return
	}

	switch env.Event {
	case ChannelStrategies:
		var list []StrategyPayload
		if err := json.Unmarshal(env.Data, &list); err != nil {
			logger.WithError(err).Error("bad strategy list payload")
			return
		}
		c.handler.OnStrategyList(list)
	case ChannelBuy, ChannelSell, ChannelClose, ChannelStop:
		var signal SignalPayload
		if err := json.Unmarshal(env.Data, &signal); err != nil {
			logger.WithError(err).WithField("event", env.Event).Error("bad signal payload")
			return
		}
		switch env.Event {
		case ChannelBuy:
			c.handler.OnBuySignal(signal)
		case ChannelSell:
			c.handler.OnSellSignal(signal)
		case ChannelClose:
			c.handler.OnCloseSignal(signal)
		case ChannelStop:
			c.handler.OnStopSignal(signal)
		}
	default:
		logger.WithField("event", env.Event).Debug("unhandled hub event")
	}
}

// Emit sends an acknowledgement back to the hub. An empty channel name means
// the caller wants no hub notification, e.g. for rebalance children.
func (c *Client) Emit(channel string, payload TradedPayload) error {
	if channel == "" {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("hub not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", channel, err)
	}
	msg, err := json.Marshal(envelope{Event: channel, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", channel, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to emit %s: %w", channel, err)
	}
	return nil
}

// UserTrades lists the user's open trades as known to the hub.
func (c *Client) UserTrades(ctx context.Context) ([]OpenTradePayload, error) {
	var trades []OpenTradePayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetResult(&trades).
		Get("/trades")
	if err != nil {
		return nil, fmt.Errorf("failed to list hub trades: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("hub trades returned HTTP %d", resp.StatusCode())
	}
	return trades, nil
}

// StrategyTrades lists one strategy's open trades as known to the hub.
func (c *Client) StrategyTrades(ctx context.Context, strategyID string) ([]OpenTradePayload, error) {
	var trades []OpenTradePayload
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetResult(&trades).
		Get(fmt.Sprintf("/strategies/%s/trades", strategyID))
	if err != nil {
		return nil, fmt.Errorf("failed to list trades for strategy %s: %w", strategyID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("hub strategy trades returned HTTP %d", resp.StatusCode())
	}
	return trades, nil
}

// Stop closes the connection and ends the loop.
func (c *Client) Stop() {
	close(c.stop)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}
