package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"insiderflow/config"
	"insiderflow/logger"
)

const reconnectWait = 5 * time.Second

// TradeUpdateStream listens on the broker's trade_updates websocket and
// logs order lifecycle events as they happen. It is purely observational;
// position state is driven by the polling cycle, not by stream events.
type TradeUpdateStream struct {
	url       string
	keyID     string
	secretKey string

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewTradeUpdateStream(cfg config.BrokerConfig) *TradeUpdateStream {
	return &TradeUpdateStream{
		url:       cfg.Stream.URL,
		keyID:     cfg.KeyID,
		secretKey: cfg.SecretKey,
		log:       logger.GetLogger(),
	}
}

func (s *TradeUpdateStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("trade update stream is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.run()

	s.log.WithComponent("stream").WithFields(logger.Fields{"url": s.url}).Info("Trade update stream started")
	return nil
}

func (s *TradeUpdateStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.WithComponent("stream").Info("Trade update stream stopped")
}

func (s *TradeUpdateStream) run() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		if err := s.listen(); err != nil && s.ctx.Err() == nil {
			s.log.WithComponent("stream").WithError(err).Warn("Stream disconnected, reconnecting")
		}

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradeUpdate struct {
	Event string `json:"event"`
	Order struct {
		ID             string `json:"id"`
		Symbol         string `json:"symbol"`
		Side           string `json:"side"`
		FilledQty      string `json:"filled_qty"`
		FilledAvgPrice string `json:"filled_avg_price"`
	} `json:"order"`
}

func (s *TradeUpdateStream) listen() error {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial stream: %w", err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	auth := map[string]interface{}{
		"action": "authenticate",
		"data": map[string]string{
			"key_id":     s.keyID,
			"secret_key": s.secretKey,
		},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("failed to authenticate stream: %w", err)
	}

	subscribe := map[string]interface{}{
		"action": "listen",
		"data": map[string][]string{
			"streams": {"trade_updates"},
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("failed to subscribe to trade updates: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("stream read failed: %w", err)
		}
		s.handleMessage(raw)
	}
}

func (s *TradeUpdateStream) handleMessage(raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.WithComponent("stream").WithError(err).Debug("Unparseable stream message")
		return
	}
	if msg.Stream != "trade_updates" {
		return
	}

	var update tradeUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		s.log.WithComponent("stream").WithError(err).Debug("Unparseable trade update")
		return
	}

	entry := s.log.WithComponent("stream").WithFields(logger.Fields{
		"event":    update.Event,
		"order_id": update.Order.ID,
		"symbol":   update.Order.Symbol,
		"side":     update.Order.Side,
	})
	switch update.Event {
	case "fill", "partial_fill":
		entry.WithFields(logger.Fields{
			"filled_qty":       update.Order.FilledQty,
			"filled_avg_price": update.Order.FilledAvgPrice,
		}).Info("Order fill")
	case "rejected", "canceled", "expired":
		entry.Warn("Order did not complete")
	default:
		entry.Debug("Trade update")
	}
}
