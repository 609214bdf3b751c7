package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

const (
	testKey    = "test-key"
	testSecret = "test-secret"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:    srv.URL,
		APIKey:     testKey,
		APISecret:  testSecret,
		RecvWindow: 5000,
		Category:   "linear",
		Timeout:    2 * time.Second,
	})
	c.now = func() time.Time { return testNow }
	return c
}

// verifySignature checks the request was signed over exactly the bytes that were sent
func verifySignature(t *testing.T, r *http.Request, payload string) {
	t.Helper()
	assert.Equal(t, testKey, r.Header.Get(HeaderAPIKey))
	assert.Equal(t, "5000", r.Header.Get(HeaderRecvWindow))
	assert.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 10), r.Header.Get(HeaderTimestamp))
	assert.Equal(t, Sign(testSecret, testNow.UnixMilli(), testKey, 5000, payload), r.Header.Get(HeaderSign))
}

func writeResult(w http.ResponseWriter, result interface{}) {
	raw, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(apiResponse{RetCode: 0, RetMsg: "OK", Result: raw})
}

func TestGetTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathTickers, r.URL.Path)
		assert.Equal(t, "category=linear&symbol=BTCUSDT", r.URL.RawQuery)
		assert.Empty(t, r.Header.Get(HeaderSign))
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[{"symbol":"BTCUSDT","lastPrice":"64250.5"}]}}`)
	})

	price, err := c.GetTicker(context.Background(), "btcusdt")
	require.NoError(t, err)
	assert.Equal(t, 64250.5, price)
}

func TestGetTickerEmptyList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	})

	_, err := c.GetTicker(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrExchangeUnavailable)
}

func TestClosePosition(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathOrderCreate, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		verifySignature(t, r, string(body))

		var req createOrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "linear", req.Category)
		assert.Equal(t, "ETHUSDT", req.Symbol)
		assert.Equal(t, "Sell", req.Side)
		assert.Equal(t, "Market", req.OrderType)
		assert.Equal(t, "0.35", req.Qty)
		assert.True(t, req.ReduceOnly)

		writeResult(w, orderResult{OrderID: "ord-1", OrderLinkID: "link-1"})
	})

	ack, err := c.ClosePosition(context.Background(), "ETHUSDT", 0.35, domain.SideSell)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", ack.OrderID)
	assert.Equal(t, "link-1", ack.OrderLinkID)
}

func TestCancelConditionalOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathOrderCancel, r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		verifySignature(t, r, string(body))

		var req cancelOrderRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "sl-1", req.OrderID)
		assert.Equal(t, "StopOrder", req.OrderFilter)

		writeResult(w, orderResult{OrderID: "sl-1"})
	})

	require.NoError(t, c.CancelConditionalOrder(context.Background(), "BTCUSDT", "sl-1"))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"signature rejected", http.StatusOK, `{"retCode":10004,"retMsg":"error sign!"}`, domain.ErrExchangeAuthFailed},
		{"timestamp outside window", http.StatusOK, `{"retCode":10002,"retMsg":"invalid request"}`, domain.ErrExchangeAuthFailed},
		{"order rejected", http.StatusOK, `{"retCode":110017,"retMsg":"reduce-only rule not satisfied"}`, domain.ErrExchangeRejected},
		{"http unauthorized", http.StatusUnauthorized, `unauthorized`, domain.ErrExchangeAuthFailed},
		{"http server error", http.StatusBadGateway, `bad gateway`, domain.ErrExchangeUnavailable},
		{"malformed body", http.StatusOK, `<html>`, domain.ErrExchangeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := c.ClosePosition(context.Background(), "BTCUSDT", 1, domain.SideSell)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: testKey, APISecret: testSecret, Timeout: 50 * time.Millisecond})

	_, err := c.GetTicker(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrExchangeUnavailable)
}

func TestFetchClosedPnLPaginates(t *testing.T) {
	window := domain.TimeWindow{Start: testNow.Add(-72 * time.Hour), End: testNow}
	baseQuery := fmt.Sprintf("category=linear&startTime=%d&endTime=%d&limit=100", window.Start.UnixMilli(), window.End.UnixMilli())

	var (
		mu      sync.Mutex
		queries []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathClosedPnL, r.URL.Path)
		verifySignature(t, r, r.URL.RawQuery)

		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		page := len(queries)
		mu.Unlock()

		switch page {
		case 1:
			writeResult(w, closedPnLResult{
				List: []closedPnLItem{
					{Symbol: "BTCUSDT", Side: "Sell", AvgEntryPrice: "60000", AvgExitPrice: "61000", Qty: "0.1", ClosedPnl: "100", UpdatedTime: "1780000000000"},
					{Symbol: "ETHUSDT", Side: "Buy", AvgEntryPrice: "3000", AvgExitPrice: "2900", Qty: "1", ClosedPnl: "100", UpdatedTime: "1780000001000"},
				},
				NextPageCursor: "page%3D2%2Cid%3D9",
			})
		default:
			writeResult(w, closedPnLResult{
				List: []closedPnLItem{
					{Symbol: "SOLUSDT", Side: "Sell", AvgEntryPrice: "150", AvgExitPrice: "140", Qty: "3", ClosedPnl: "-30", FillCount: "2", UpdatedTime: "1780000002000"},
				},
			})
		}
	})

	trades, err := c.FetchClosedPnL(context.Background(), window)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	require.Len(t, queries, 2)
	assert.Equal(t, baseQuery, queries[0])
	// the cursor is sent exactly as the exchange returned it
	assert.Equal(t, baseQuery+"&cursor=page%3D2%2Cid%3D9", queries[1])

	assert.Equal(t, "SOLUSDT", trades[2].Symbol)
	assert.Equal(t, -30.0, trades[2].ClosedPnL)
	assert.Equal(t, 2, trades[2].FillCount)
	assert.Equal(t, 60000.0, trades[0].AvgEntryPrice)
}

func TestFetchClosedPnLSplitsWindow(t *testing.T) {
	window := domain.TimeWindow{Start: testNow.AddDate(0, 0, -20), End: testNow}

	type span struct{ start, end int64 }
	var (
		mu    sync.Mutex
		spans []span
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)

		mu.Lock()
		spans = append(spans, span{start, end})
		mu.Unlock()

		writeResult(w, closedPnLResult{})
	})

	_, err := c.FetchClosedPnL(context.Background(), window)
	require.NoError(t, err)

	require.Len(t, spans, 3)
	assert.Equal(t, window.Start.UnixMilli(), spans[0].start)
	assert.Equal(t, window.End.UnixMilli(), spans[2].end)
	for i, s := range spans {
		assert.LessOrEqual(t, s.end-s.start, maxClosedPnLSpan.Milliseconds())
		if i > 0 {
			assert.Equal(t, spans[i-1].end, s.start)
		}
	}
}

func TestFetchClosedPnLFailsWhole(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeResult(w, closedPnLResult{List: []closedPnLItem{{Symbol: "BTCUSDT"}}, NextPageCursor: "next"})
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	trades, err := c.FetchClosedPnL(context.Background(), domain.LastDays(testNow, 1))
	assert.ErrorIs(t, err, domain.ErrExchangeUnavailable)
	assert.Nil(t, trades)
}
