package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/logger"
	custommiddleware "tradeledger/internal/middleware"
	"tradeledger/internal/usecase"
)

const testSecret = "handler-secret"

type stubCloser struct {
	result *usecase.CloseResult
	err    error
	reason string
}

func (s *stubCloser) Close(ctx context.Context, id uuid.UUID, reason string) (*usecase.CloseResult, error) {
	s.reason = reason
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	r.PositionID = id
	return &r, nil
}

type stubImporter struct {
	result *usecase.ImportResult
	err    error
	days   int
	at     time.Time
}

func (s *stubImporter) Import(ctx context.Context, days int) (*usecase.ImportResult, error) {
	s.days = days
	return s.result, s.err
}

func (s *stubImporter) LastRun(ctx context.Context) (time.Time, *usecase.ImportResult, error) {
	return s.at, s.result, nil
}

type stubMetrics struct {
	rows     []*domain.PerformanceMetrics
	from, to time.Time
	symbol   string
}

func (s *stubMetrics) Daily(ctx context.Context, from, to time.Time, symbol string) ([]*domain.PerformanceMetrics, error) {
	s.from, s.to, s.symbol = from, to, symbol
	return s.rows, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(closer *stubCloser, importer *stubImporter, metrics *stubMetrics) *echo.Echo {
	e := echo.New()
	SetupRoutes(e, &RouterConfig{
		JWTSecret:       testSecret,
		DB:              stubPinger{},
		PositionHandler: NewPositionHandler(closer),
		HistoryHandler:  NewHistoryHandler(importer),
		MetricsHandler:  NewMetricsHandler(metrics),
	})
	return e
}

func doRequest(t *testing.T, e *echo.Echo, method, path, body string, auth bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if auth {
		token, err := custommiddleware.GenerateJWT(testSecret, "operator", "ADMIN", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestClosePositionEndpoint(t *testing.T) {
	closer := &stubCloser{result: &usecase.CloseResult{
		RealizedPnL: 100,
		ClosePrice:  110,
		Cancellations: []domain.CancellationOutcome{
			{Kind: domain.OrderKindStopLoss, OrderID: "sl-1", OK: true},
		},
	}}
	e := newTestServer(closer, &stubImporter{}, &stubMetrics{})
	id := uuid.New()

	rec, body := doRequest(t, e, http.MethodPost, "/api/positions/"+id.String()+"/close", `{"reason":"tp"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 100.0, body["realized_pnl"])
	assert.Equal(t, 110.0, body["close_price"])
	assert.Equal(t, id.String(), body["position_id"])
	assert.Equal(t, domain.CloseReasonTP, closer.reason)

	// empty body means a manual close
	rec, _ = doRequest(t, e, http.MethodPost, "/api/positions/"+id.String()+"/close", "", true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", closer.reason)
}

func TestClosePositionErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", domain.ErrNotFound, http.StatusInternalServerError, CodeNotFound},
		{"already closed", fmt.Errorf("%w: position is CLOSED", domain.ErrInvalidState), http.StatusInternalServerError, CodeInvalidState},
		{"already closing", domain.ErrAlreadyClosing, http.StatusServiceUnavailable, CodeAlreadyClosing},
		{"settlement failed", fmt.Errorf("%w: %w", domain.ErrSettlementFailed, domain.ErrExchangeRejected), http.StatusBadGateway, CodeSettlementFailed},
		{"database", errors.New("connection refused"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(&stubCloser{err: tt.err}, &stubImporter{}, &stubMetrics{})
			rec, body := doRequest(t, e, http.MethodPost, "/api/positions/"+uuid.NewString()+"/close", "", true)
			assert.Equal(t, tt.status, rec.Code)
			assert.GreaterOrEqual(t, rec.Code, 500)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestClosePositionValidation(t *testing.T) {
	e := newTestServer(&stubCloser{result: &usecase.CloseResult{}}, &stubImporter{}, &stubMetrics{})

	rec, _ := doRequest(t, e, http.MethodPost, "/api/positions/not-a-uuid/close", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, e, http.MethodPost, "/api/positions/"+uuid.NewString()+"/close", `{"reason":"LIQUIDATED"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, e, http.MethodPost, "/api/positions/"+uuid.NewString()+"/close", "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestImportHistoryEndpoint(t *testing.T) {
	importer := &stubImporter{result: &usecase.ImportResult{Imported: 3, Skipped: 2, Total: 5}}
	e := newTestServer(&stubCloser{}, importer, &stubMetrics{})

	rec, body := doRequest(t, e, http.MethodPost, "/api/history/import", `{"days":14}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 3.0, body["imported"])
	assert.Equal(t, 2.0, body["skipped"])
	assert.Equal(t, 5.0, body["total"])
	assert.Equal(t, 14, importer.days)

	rec, _ = doRequest(t, e, http.MethodPost, "/api/history/import", `{"days":-1}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportHistoryErrors(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		code    string
		details bool
	}{
		{domain.ErrImportInProgress, http.StatusServiceUnavailable, CodeImportInProgress, false},
		{fmt.Errorf("failed to fetch closed pnl: %w", domain.ErrExchangeAuthFailed), http.StatusBadGateway, CodeExchangeAuthFailed, true},
		{fmt.Errorf("failed to fetch closed pnl: %w", domain.ErrExchangeUnavailable), http.StatusBadGateway, CodeExchangeUnavailable, true},
		{errors.New("disk full"), http.StatusInternalServerError, CodeInternal, false},
	}

	for _, tt := range tests {
		e := newTestServer(&stubCloser{}, &stubImporter{err: tt.err}, &stubMetrics{})
		rec, body := doRequest(t, e, http.MethodPost, "/api/history/import", "", true)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, false, body["success"])
		assert.Equal(t, tt.code, body["code"], tt.err.Error())
		_, hasDetails := body["details"]
		assert.Equal(t, tt.details, hasDetails, tt.err.Error())
	}
}

func TestImportStatusEndpoint(t *testing.T) {
	at := time.Date(2026, 5, 4, 0, 10, 0, 0, time.UTC)
	importer := &stubImporter{at: at, result: &usecase.ImportResult{Imported: 1, Total: 4, Skipped: 3}}
	e := newTestServer(&stubCloser{}, importer, &stubMetrics{})

	rec, body := doRequest(t, e, http.MethodGet, "/api/history/import/status", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-05-04T00:10:00Z", body["last_run"])
	assert.Equal(t, 4.0, body["total"])
}

func TestDailyMetricsEndpoint(t *testing.T) {
	metrics := &stubMetrics{rows: []*domain.PerformanceMetrics{
		{Date: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), Symbol: "BTCUSDT", TotalTrades: 4, WinningTrades: 3, LosingTrades: 1, TotalPnL: 42},
	}}
	e := newTestServer(&stubCloser{}, &stubImporter{}, metrics)

	rec, body := doRequest(t, e, http.MethodGet, "/api/metrics/daily?from=2026-05-01&to=2026-05-03&symbol=BTCUSDT", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-05-01", body["from"])
	assert.Equal(t, "2026-05-03", body["to"])
	assert.Equal(t, "BTCUSDT", metrics.symbol)
	assert.Equal(t, "2026-05-01", metrics.from.Format(time.DateOnly))

	rows, ok := body["metrics"].([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, 75.0, row["win_rate"])
	assert.Equal(t, "2026-05-01", row["date"])

	rec, _ = doRequest(t, e, http.MethodGet, "/api/metrics/daily?from=May+1", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	e := echo.New()
	SetupRoutes(e, &RouterConfig{
		JWTSecret:       testSecret,
		DB:              stubPinger{err: errors.New("down")},
		PositionHandler: NewPositionHandler(&stubCloser{}),
		HistoryHandler:  NewHistoryHandler(&stubImporter{}),
		MetricsHandler:  NewMetricsHandler(&stubMetrics{}),
	})

	rec, body := doRequest(t, e, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["database"])
}

func TestCloseLogsRequestingUser(t *testing.T) {
	hook := logtest.NewLocal(logger.Logger)
	defer hook.Reset()

	e := newTestServer(&stubCloser{result: &usecase.CloseResult{}}, &stubImporter{}, &stubMetrics{})
	rec, _ := doRequest(t, e, http.MethodPost, "/api/positions/"+uuid.New().String()+"/close", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "close position requested" {
			found = true
			assert.Equal(t, "operator", entry.Data["user_id"])
		}
	}
	assert.True(t, found)
}
