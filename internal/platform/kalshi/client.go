// Package kalshi implements the REST client for the Kalshi exchange API.
// Market data endpoints are public; portfolio endpoints (orders, balance)
// require RSA-signed authentication.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/kalshibot/internal/domain"
)

// pageLimit is the per-request market page size used when paginating.
const pageLimit = 1000

// Client is the REST client for the Kalshi exchange API. It implements
// domain.MarketSource, domain.OrderPlacer, and domain.BalanceSource.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

// NewClient creates a new Kalshi REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
// apiKeyID may be empty for read-only market data access.
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// ListMarkets fetches every market matching the filter, following the
// pagination cursor until the API stops returning one.
func (c *Client) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	var all []domain.Market
	cursor := ""

	for {
		markets, next, err := c.getMarketsPage(ctx, f, cursor)
		if err != nil {
			return nil, err
		}
		if len(markets) == 0 {
			break
		}

		for _, m := range markets {
			all = append(all, m.ToDomain())
		}

		if next == "" {
			break
		}
		cursor = next
	}

	return all, nil
}

// getMarketsPage fetches a single page of markets.
func (c *Client) getMarketsPage(ctx context.Context, f domain.MarketFilter, cursor string) ([]KalshiMarket, string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(pageLimit))
	if !f.MinCloseTime.IsZero() {
		params.Set("min_close_ts", strconv.FormatInt(f.MinCloseTime.Unix(), 10))
	}
	if !f.MaxCloseTime.IsZero() {
		params.Set("max_close_ts", strconv.FormatInt(f.MaxCloseTime.Unix(), 10))
	}
	if f.SeriesTicker != "" {
		params.Set("series_ticker", f.SeriesTicker)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/markets?"+params.Encode(), nil, false)
	if err != nil {
		return nil, "", fmt.Errorf("kalshi: get markets: %w", err)
	}

	var resp struct {
		Markets []KalshiMarket `json:"markets"`
		Cursor  string         `json:"cursor"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi: decode markets: %w", err)
	}

	return resp.Markets, resp.Cursor, nil
}

// GetMarket returns the current state of a single market by its ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	path := fmt.Sprintf("/markets/%s", url.PathEscape(ticker))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: get market %s: %w", ticker, err)
	}

	var resp struct {
		Market KalshiMarket `json:"market"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi: decode market: %w", err)
	}

	return resp.Market.ToDomain(), nil
}

// GetSeries returns the series entity carrying settlement sources.
func (c *Client) GetSeries(ctx context.Context, seriesTicker string) (domain.Series, error) {
	path := fmt.Sprintf("/series/%s", url.PathEscape(seriesTicker))

	body, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return domain.Series{}, fmt.Errorf("kalshi: get series %s: %w", seriesTicker, err)
	}

	var resp struct {
		Series KalshiSeries `json:"series"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Series{}, fmt.Errorf("kalshi: decode series: %w", err)
	}

	return resp.Series.ToDomain(), nil
}

// PlaceOrder submits a limit buy order for count contracts of side at the
// given decimal-dollar price.
func (c *Client) PlaceOrder(ctx context.Context, ticker string, side domain.BetSide, count int64, price float64) (domain.OrderResult, error) {
	cents := int64(math.Round(price * 100))
	if cents < 1 || cents > 99 {
		return domain.OrderResult{}, fmt.Errorf("kalshi: price %.2f outside valid cent range", price)
	}

	order := KalshiOrder{
		Ticker:        ticker,
		ClientOrderID: uuid.New().String(),
		Action:        "buy",
		Side:          strings.ToLower(string(side)),
		Type:          "limit",
		Count:         count,
	}
	switch side {
	case domain.BetSideYes:
		order.YesPrice = &cents
	case domain.BetSideNo:
		order.NoPrice = &cents
	default:
		return domain.OrderResult{}, fmt.Errorf("kalshi: invalid side %q", side)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/portfolio/orders", order, true)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp KalshiOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}

	if resp.Order.Status == "canceled" {
		return domain.OrderResult{}, fmt.Errorf("kalshi: order was immediately cancelled")
	}

	return domain.OrderResult{
		OrderID:   resp.Order.OrderID,
		Status:    resp.Order.Status,
		TakerFees: dollarsOrZero(resp.Order.TakerFeesDollars),
		MakerFees: dollarsOrZero(resp.Order.MakerFeesDollars),
	}, nil
}

// GetBalance returns the account's cash and open position value, converted
// from the API's integer cents to decimal dollars.
func (c *Client) GetBalance(ctx context.Context) (domain.Balance, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/portfolio/balance", nil, true)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: get balance: %w", err)
	}

	var resp KalshiBalance
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Balance{}, fmt.Errorf("kalshi: decode balance: %w", err)
	}

	return domain.Balance{
		Cash:      float64(resp.Balance) / 100.0,
		Positions: float64(resp.PortfolioValue) / 100.0,
	}, nil
}

func dollarsOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, optionally signs, sends, and reads an HTTP request
// against the Kalshi API.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody any, signed bool) ([]byte, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if signed {
		if err := c.signRequest(req, method, path); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request. Kalshi
// uses RSA-PSS-SHA256 signatures over the timestamp + method + path message
// string (path without the query string).
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr KalshiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (%s)", domain.ErrUnauthorized, apiErr.Message, apiErr.Code)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

// Compile-time interface checks.
var (
	_ domain.MarketSource  = (*Client)(nil)
	_ domain.OrderPlacer   = (*Client)(nil)
	_ domain.BalanceSource = (*Client)(nil)
)
