package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"tradeledger/internal/domain"
	"tradeledger/internal/utils"
)

const defaultAPIURL = "https://api.telegram.org"

// NotificationService sends settlement and import reports to a Telegram chat.
// It is a no-op when the bot token or chat id is missing.
type NotificationService struct {
	botToken string
	chatID   string
	enabled  bool
	client   *resty.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func NewNotificationService(botToken, chatID string) *NotificationService {
	return newNotificationService(botToken, chatID, defaultAPIURL)
}

func newNotificationService(botToken, chatID, apiURL string) *NotificationService {
	return &NotificationService{
		botToken: botToken,
		chatID:   chatID,
		enabled:  botToken != "" && chatID != "",
		client: resty.New().
			SetBaseURL(apiURL).
			SetTimeout(10 * time.Second),
	}
}

// SendSettlement reports a closed position
func (s *NotificationService) SendSettlement(ctx context.Context, p *domain.Position) error {
	if !s.enabled || p == nil {
		return nil
	}

	pnl, closePrice, reason := 0.0, 0.0, ""
	if p.RealizedPnL != nil {
		pnl = *p.RealizedPnL
	}
	if p.ClosePrice != nil {
		closePrice = *p.ClosePrice
	}
	if p.CloseReason != nil {
		reason = *p.CloseReason
	}

	statusEmoji := "✅"
	if !domain.IsWinningPnL(pnl) {
		statusEmoji = "❌"
	}

	closedAt := time.Now()
	if p.ClosedAt != nil {
		closedAt = *p.ClosedAt
	}

	message := fmt.Sprintf(
		"%s *POSITION CLOSED: %s*\n\n"+
			"📊 Symbol: `%s`\n"+
			"📈 Side: `%s`\n"+
			"━━━━━━━━━━━━━━━━━\n"+
			"🔵 Entry: `$%.4f`\n"+
			"🏁 Exit: `$%.4f`\n"+
			"💰 PnL: `%+.4f USDT`\n"+
			"🕒 Closed: `%s`",
		statusEmoji,
		reason,
		p.Symbol,
		p.Side,
		p.EntryPrice,
		closePrice,
		pnl,
		closedAt.In(utils.GetLocation()).Format("2006-01-02 15:04:05"),
	)

	if p.Metadata.ManualClose != nil && p.Metadata.ManualClose.DegradedPrice {
		message += "\n⚠️ Close price fell back to entry price"
	}

	return s.sendMessage(ctx, message)
}

// SendImportSummary reports the outcome of a history import
func (s *NotificationService) SendImportSummary(ctx context.Context, imported, skipped, total int) error {
	if !s.enabled {
		return nil
	}

	message := fmt.Sprintf(
		"📥 *HISTORY IMPORT*\n\n"+
			"🆕 Imported: `%d`\n"+
			"♻️ Skipped: `%d`\n"+
			"📦 Fetched: `%d`",
		imported, skipped, total,
	)

	return s.sendMessage(ctx, message)
}

// sendMessage sends a message using the Bot API, bounded by ctx and the client timeout
func (s *NotificationService) sendMessage(ctx context.Context, text string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(telegramMessage{
			ChatID:    s.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}).
		Post("/bot" + s.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	return nil
}

var _ domain.Notifier = (*NotificationService)(nil)
