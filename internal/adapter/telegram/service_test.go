package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
)

func TestDisabledServiceIsNoop(t *testing.T) {
	s := NewNotificationService("", "")
	assert.NoError(t, s.SendImportSummary(context.Background(), 1, 2, 3))
	assert.NoError(t, s.SendSettlement(context.Background(), &domain.Position{}))
}

func TestSendSettlement(t *testing.T) {
	var got telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := newNotificationService("TOKEN", "42", srv.URL)

	closePrice, pnl, reason := 110.0, 20.0, domain.CloseReasonManual
	closedAt := time.Now()
	p := &domain.Position{
		ID:          uuid.New(),
		Symbol:      "BTCUSDT",
		Side:        domain.SideBuy,
		EntryPrice:  100,
		ClosePrice:  &closePrice,
		RealizedPnL: &pnl,
		CloseReason: &reason,
		ClosedAt:    &closedAt,
	}

	require.NoError(t, s.SendSettlement(context.Background(), p))
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "Markdown", got.ParseMode)
	assert.Contains(t, got.Text, "BTCUSDT")
	assert.Contains(t, got.Text, "+20.0000")
}

func TestSendMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	s := newNotificationService("TOKEN", "42", srv.URL)
	err := s.SendImportSummary(context.Background(), 3, 1, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendMessageHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := newNotificationService("TOKEN", "42", srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.SendImportSummary(ctx, 1, 0, 1)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
