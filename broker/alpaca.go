package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"insiderflow/config"
	"insiderflow/logger"
	"insiderflow/models"
)

// Alpaca is a REST client for the Alpaca trading and market-data APIs.
// Orders go to the trading host (paper by default), quotes and bars to the
// data host. Every submission carries a fresh client order id so a retried
// HTTP request cannot fill twice.
type Alpaca struct {
	baseURL   string
	dataURL   string
	keyID     string
	secretKey string
	client    *http.Client
	log       *logger.Log
}

func NewAlpaca(cfg config.BrokerConfig) *Alpaca {
	return &Alpaca{
		baseURL:   cfg.BaseURL,
		dataURL:   cfg.DataURL,
		keyID:     cfg.KeyID,
		secretKey: cfg.SecretKey,
		client:    &http.Client{Timeout: cfg.RequestTimeout.Std()},
		log:       logger.GetLogger(),
	}
}

type accountResponse struct {
	Equity string `json:"equity"`
}

// AccountEquity returns the account's current equity in dollars.
func (a *Alpaca) AccountEquity(ctx context.Context) (float64, error) {
	var resp accountResponse
	if err := a.get(ctx, a.baseURL+"/v2/account", nil, &resp); err != nil {
		return 0, err
	}
	equity, err := strconv.ParseFloat(resp.Equity, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable account equity %q: %w", resp.Equity, err)
	}
	return equity, nil
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	ID  string `json:"id"`
	Qty string `json:"qty"`
}

// SubmitMarketBuy submits a day market buy order.
func (a *Alpaca) SubmitMarketBuy(ctx context.Context, symbol string, qty int) (models.OrderRef, error) {
	return a.submitOrder(ctx, symbol, qty, "buy")
}

// SubmitMarketSell submits a day market sell order.
func (a *Alpaca) SubmitMarketSell(ctx context.Context, symbol string, qty int) (models.OrderRef, error) {
	return a.submitOrder(ctx, symbol, qty, "sell")
}

func (a *Alpaca) submitOrder(ctx context.Context, symbol string, qty int, side string) (models.OrderRef, error) {
	payload := orderRequest{
		Symbol:        symbol,
		Qty:           strconv.Itoa(qty),
		Side:          side,
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: uuid.NewString(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return models.OrderRef{}, fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return models.OrderRef{}, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authenticate(req)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return models.OrderRef{}, fmt.Errorf("order request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return models.OrderRef{}, fmt.Errorf("order rejected with status %d: %s", httpResp.StatusCode, msg)
	}

	var resp orderResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return models.OrderRef{}, fmt.Errorf("failed to decode order response: %w", err)
	}

	filledQty := qty
	if parsed, err := strconv.Atoi(resp.Qty); err == nil {
		filledQty = parsed
	}

	a.log.WithComponent("broker").WithFields(logger.Fields{
		"symbol":   symbol,
		"side":     side,
		"qty":      qty,
		"order_id": resp.ID,
	}).Info("order accepted")

	return models.OrderRef{ID: resp.ID, Qty: filledQty}, nil
}

type latestTradeResponse struct {
	Trade struct {
		Price float64 `json:"p"`
	} `json:"trade"`
}

// CurrentPrice returns the last trade price for symbol.
func (a *Alpaca) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var resp latestTradeResponse
	path := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", a.dataURL, url.PathEscape(symbol))
	if err := a.get(ctx, path, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Trade.Price <= 0 {
		return 0, fmt.Errorf("no trade price for %s", symbol)
	}
	return resp.Trade.Price, nil
}

type latestQuoteResponse struct {
	Quote struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
	} `json:"quote"`
}

// LatestQuote returns the current bid and ask for symbol.
func (a *Alpaca) LatestQuote(ctx context.Context, symbol string) (bid, ask float64, err error) {
	var resp latestQuoteResponse
	path := fmt.Sprintf("%s/v2/stocks/%s/quotes/latest", a.dataURL, url.PathEscape(symbol))
	if err := a.get(ctx, path, nil, &resp); err != nil {
		return 0, 0, err
	}
	return resp.Quote.BidPrice, resp.Quote.AskPrice, nil
}

// Bar is a single OHLCV aggregate.
type Bar struct {
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

type barsResponse struct {
	Bars []Bar `json:"bars"`
}

// DayBars returns up to limit trailing daily bars, oldest first.
func (a *Alpaca) DayBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	return a.bars(ctx, symbol, "1Day", limit)
}

// MinuteBars returns up to limit trailing one-minute bars, oldest first.
func (a *Alpaca) MinuteBars(ctx context.Context, symbol string, limit int) ([]Bar, error) {
	return a.bars(ctx, symbol, "1Min", limit)
}

func (a *Alpaca) bars(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error) {
	query := url.Values{
		"timeframe": {timeframe},
		"limit":     {strconv.Itoa(limit)},
	}
	var resp barsResponse
	path := fmt.Sprintf("%s/v2/stocks/%s/bars", a.dataURL, url.PathEscape(symbol))
	if err := a.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}
	return resp.Bars, nil
}

func (a *Alpaca) get(ctx context.Context, rawURL string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	a.authenticate(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request returned status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (a *Alpaca) authenticate(req *http.Request) {
	req.Header.Set("APCA-API-KEY-ID", a.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", a.secretKey)
}
