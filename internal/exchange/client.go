package exchange

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/Plasticdev67/Kalshi-market-maker/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	categoryOrders     = "orders"
	categoryMarketData = "market_data"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL           string
	AccessKeyID       string
	PrivateKeyPEM     string // decrypted PEM, held only in memory
	OrderRatePerSec   float64
	OrderBurst        float64
	MarketDataPerSec  float64
	MarketDataBurst   float64
}

// Client is the signed REST client implementing Exchange against the
// venue's four operations. Connection pooling mirrors the teacher's
// HTTPClient: a shared transport with explicit dial/TLS/idle timeouts
// rather than the bare http.DefaultClient.
type Client struct {
	baseURL    string
	accessKey  string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
}

// NewClient parses privateKeyPEM (already decrypted by the caller via
// internal/cryptostore) and builds a Client ready to sign requests.
func NewClient(cfg ClientConfig) (*Client, error) {
	block, _ := pem.Decode([]byte(cfg.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("exchange: no PEM block found in private key")
	}
	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("exchange: parse private key: %w", err)
	}

	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}

	limiter := ratelimit.NewMultiLimiter()
	limiter.Add(categoryOrders, orDefault(cfg.OrderRatePerSec, 5), orDefault(cfg.OrderBurst, 10))
	limiter.Add(categoryMarketData, orDefault(cfg.MarketDataPerSec, 10), orDefault(cfg.MarketDataBurst, 20))

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		accessKey:  cfg.AccessKeyID,
		privateKey: key,
		httpClient: &http.Client{Transport: transport, Timeout: 30 * time.Second},
		limiter:    limiter,
	}, nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

// sign computes base64(RSA-PSS-SHA256(timestampMs || method || path)) with
// salt length equal to the digest length, per the venue's signing scheme.
func (c *Client) sign(timestampMs, method, path string) (string, error) {
	message := timestampMs + method + path
	digest := sha256.Sum256([]byte(message))

	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any, category string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, category); err != nil {
		return nil, err
	}

	fullPath := path
	if len(query) > 0 {
		fullPath = path + "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	timestampMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, err := c.sign(timestampMs, method, fullPath)
	if err != nil {
		return nil, err
	}
	req.Header.Set("ACCESS-KEY", c.accessKey)
	req.Header.Set("ACCESS-TIMESTAMP", timestampMs)
	req.Header.Set("ACCESS-SIGNATURE", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &ErrNotFound{}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("exchange: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (c *Client) ListMarkets(ctx context.Context, seriesTicker string, status MarketStatus, limit int) ([]Market, error) {
	q := url.Values{}
	if seriesTicker != "" {
		q.Set("series_ticker", seriesTicker)
	}
	if status != "" {
		q.Set("status", string(status))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	raw, err := c.doRequest(ctx, http.MethodGet, "/markets", q, nil, categoryMarketData)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Markets []struct {
			Ticker         string `json:"ticker"`
			EventTicker    string `json:"event_ticker"`
			Title          string `json:"title"`
			YesBid         int    `json:"yes_bid"`
			YesAsk         int    `json:"yes_ask"`
			NoBid          int    `json:"no_bid"`
			NoAsk          int    `json:"no_ask"`
			LastPrice      int    `json:"last_price"`
			Volume         int64  `json:"volume"`
			OpenInterest   int64  `json:"open_interest"`
			Status         string `json:"status"`
			CloseTime      time.Time `json:"close_time"`
			ExpirationTime time.Time `json:"expiration_time"`
			Result         string `json:"result"`
		} `json:"markets"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("exchange: decode list_markets: %w", err)
	}

	out := make([]Market, 0, len(parsed.Markets))
	for _, m := range parsed.Markets {
		out = append(out, Market{
			Ticker:         m.Ticker,
			EventTicker:    m.EventTicker,
			Title:          m.Title,
			YesBid:         m.YesBid,
			YesAsk:         m.YesAsk,
			NoBid:          m.NoBid,
			NoAsk:          m.NoAsk,
			LastPrice:      m.LastPrice,
			Volume:         m.Volume,
			OpenInterest:   m.OpenInterest,
			Status:         m.Status,
			CloseTime:      m.CloseTime,
			ExpirationTime: m.ExpirationTime,
			Result:         m.Result,
		})
	}
	return out, nil
}

func (c *Client) GetOrderbook(ctx context.Context, ticker string) (OrderBook, error) {
	raw, err := c.doRequest(ctx, http.MethodGet, "/markets/"+ticker+"/orderbook", nil, nil, categoryMarketData)
	if err != nil {
		return OrderBook{}, err
	}

	var parsed struct {
		Orderbook struct {
			Yes [][2]int `json:"yes"`
			No  [][2]int `json:"no"`
		} `json:"orderbook"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return OrderBook{}, fmt.Errorf("exchange: decode get_orderbook: %w", err)
	}

	book := OrderBook{Ticker: ticker}
	for _, level := range parsed.Orderbook.Yes {
		book.Yes = append(book.Yes, PriceSize{Price: level[0], Size: level[1]})
	}
	for _, level := range parsed.Orderbook.No {
		book.No = append(book.No, PriceSize{Price: level[0], Size: level[1]})
	}
	return book, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error) {
	body := map[string]any{
		"ticker":          req.Ticker,
		"action":          "buy",
		"side":            string(req.Side),
		"type":            "limit",
		"count":           req.Count,
		"time_in_force":   "gtc",
		"post_only":       true,
	}
	if req.Side == SideYes {
		body["yes_price"] = req.PriceCents
	} else {
		body["no_price"] = req.PriceCents
	}

	raw, err := c.doRequest(ctx, http.MethodPost, "/orders", nil, body, categoryOrders)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	var parsed struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("exchange: decode place_order: %w", err)
	}
	return PlaceOrderResult{OrderID: parsed.OrderID}, nil
}

func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/orders/"+exchangeOrderID, nil, nil, categoryOrders)
	return err
}
