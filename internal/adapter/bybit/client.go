package bybit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
)

const (
	pathTickers     = "/v5/market/tickers"
	pathOrderCreate = "/v5/order/create"
	pathOrderCancel = "/v5/order/cancel"
	pathClosedPnL   = "/v5/position/closed-pnl"

	// closed-pnl accepts at most 7 days between startTime and endTime
	maxClosedPnLSpan = 7 * 24 * time.Hour
	closedPnLLimit   = 100
	maxPagesPerSlice = 200
)

// Config holds the client settings
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int // milliseconds
	Category   string
	Timeout    time.Duration
}

// Client implements domain.ExchangeClient for the Bybit v5 API
type Client struct {
	http       *resty.Client
	apiKey     string
	apiSecret  string
	recvWindow int
	category   string
	now        func() time.Time
	log        *logrus.Entry
}

// NewClient creates a new Bybit client. Every call is bounded by cfg.Timeout
// and never retried.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	category := cfg.Category
	if category == "" {
		category = "linear"
	}

	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
			SetTimeout(timeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		recvWindow: recvWindow,
		category:   category,
		now:        time.Now,
		log:        logger.WithComponent("bybit"),
	}
}

// GetTicker returns the last traded price for a symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (float64, error) {
	query := "category=" + c.category + "&symbol=" + strings.ToUpper(symbol)

	var result tickerResult
	if err := c.get(ctx, pathTickers, query, false, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, fmt.Errorf("%w: no ticker for %s", domain.ErrExchangeUnavailable, symbol)
	}

	price := parseNumber(result.List[0].LastPrice)
	if price <= 0 {
		return 0, fmt.Errorf("%w: invalid last price %q for %s", domain.ErrExchangeUnavailable, result.List[0].LastPrice, symbol)
	}
	return price, nil
}

// ClosePosition submits a reduce-only market order of size on side
func (c *Client) ClosePosition(ctx context.Context, symbol string, size float64, side string) (*domain.CloseOrderAck, error) {
	req := createOrderRequest{
		Category:   c.category,
		Symbol:     strings.ToUpper(symbol),
		Side:       orderSide(side),
		OrderType:  "Market",
		Qty:        decimal.NewFromFloat(size).String(),
		ReduceOnly: true,
	}

	var result orderResult
	if err := c.post(ctx, pathOrderCreate, req, &result); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"qty":      req.Qty,
		"order_id": result.OrderID,
	}).Info("close order accepted")

	return &domain.CloseOrderAck{OrderID: result.OrderID, OrderLinkID: result.OrderLinkID}, nil
}

// CancelConditionalOrder cancels a stop/take-profit order
func (c *Client) CancelConditionalOrder(ctx context.Context, symbol, orderID string) error {
	req := cancelOrderRequest{
		Category:    c.category,
		Symbol:      strings.ToUpper(symbol),
		OrderID:     orderID,
		OrderFilter: "StopOrder",
	}
	return c.post(ctx, pathOrderCancel, req, nil)
}

// FetchClosedPnL returns every closed-PnL record inside window.
// The window is split into 7-day slices and each slice is paged through with the cursor.
func (c *Client) FetchClosedPnL(ctx context.Context, window domain.TimeWindow) ([]domain.ExchangeTrade, error) {
	var trades []domain.ExchangeTrade

	for start := window.Start; start.Before(window.End); start = start.Add(maxClosedPnLSpan) {
		end := start.Add(maxClosedPnLSpan)
		if end.After(window.End) {
			end = window.End
		}

		cursor := ""
		for page := 0; ; page++ {
			if page >= maxPagesPerSlice {
				return nil, fmt.Errorf("%w: closed-pnl pagination did not terminate", domain.ErrExchangeUnavailable)
			}

			var result closedPnLResult
			query := closedPnLQuery(c.category, start, end, closedPnLLimit, cursor)
			if err := c.get(ctx, pathClosedPnL, query, true, &result); err != nil {
				return nil, err
			}
			for _, item := range result.List {
				trades = append(trades, item.toDomain())
			}

			if result.NextPageCursor == "" || len(result.List) == 0 {
				break
			}
			cursor = result.NextPageCursor
		}
	}

	c.log.WithFields(logrus.Fields{
		"start":  window.Start.Format(time.RFC3339),
		"end":    window.End.Format(time.RFC3339),
		"trades": len(trades),
	}).Info("closed pnl fetched")

	return trades, nil
}

// closedPnLQuery builds the canonical query string. The same string is signed
// and sent, so parameter order and encoding must not change between the two.
// The cursor comes back from the exchange already escaped and is passed through untouched.
func closedPnLQuery(category string, start, end time.Time, limit int, cursor string) string {
	var b strings.Builder
	b.WriteString("category=")
	b.WriteString(category)
	b.WriteString("&startTime=")
	b.WriteString(strconv.FormatInt(start.UnixMilli(), 10))
	b.WriteString("&endTime=")
	b.WriteString(strconv.FormatInt(end.UnixMilli(), 10))
	b.WriteString("&limit=")
	b.WriteString(strconv.Itoa(limit))
	if cursor != "" {
		b.WriteString("&cursor=")
		b.WriteString(cursor)
	}
	return b.String()
}

func (c *Client) get(ctx context.Context, path, query string, signed bool, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if signed {
		req.SetHeaders(AuthHeaders(c.apiKey, c.apiSecret, c.recvWindow, c.now().UnixMilli(), query))
	}

	url := path
	if query != "" {
		url += "?" + query
	}

	resp, err := req.Get(url)
	return c.decode(path, resp, err, out)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", path, err)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(AuthHeaders(c.apiKey, c.apiSecret, c.recvWindow, c.now().UnixMilli(), string(payload))).
		SetBody(payload).
		Post(path)
	return c.decode(path, resp, err, out)
}

// decode maps transport, HTTP and retCode failures onto the domain error taxonomy
func (c *Client) decode(path string, resp *resty.Response, err error, out interface{}) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", path, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrExchangeUnavailable, path, err)
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status=%d, body=%s", domain.ErrExchangeAuthFailed, path, status, truncate(resp.Body()))
	case status != http.StatusOK:
		return fmt.Errorf("%w: %s: status=%d, body=%s", domain.ErrExchangeUnavailable, path, status, truncate(resp.Body()))
	}

	var envelope apiResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("%w: %s: failed to decode response: %v", domain.ErrExchangeUnavailable, path, err)
	}

	if envelope.RetCode != 0 {
		kind := domain.ErrExchangeRejected
		if authRetCodes[envelope.RetCode] {
			kind = domain.ErrExchangeAuthFailed
		}
		return fmt.Errorf("%w: %s: retCode=%d, retMsg=%s", kind, path, envelope.RetCode, envelope.RetMsg)
	}

	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("%w: %s: failed to decode result: %v", domain.ErrExchangeUnavailable, path, err)
	}
	return nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ domain.ExchangeClient = (*Client)(nil)
