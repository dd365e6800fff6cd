// Package telegram provides a client for delivering value alerts via Telegram Bot API.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mcqweb/goosealerts/internal/models"
)

// Client handles Telegram notifications. Alert messages go to the chat
// configured on each destination; operational messages go to the ops chat.
type Client struct {
	bot            *tgbotapi.BotAPI
	opsChatID      int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, opsChatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	opsChatIDInt, err := strconv.ParseInt(opsChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ops chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		opsChatID:      opsChatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) sendToDestination(dest models.Destination, text string) error {
	chatID, err := strconv.ParseInt(dest.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("destination %q has invalid chat ID: %w", dest.ID, err)
	}
	return c.sendMarkdownV2(chatID, text)
}

// SendError sends an operational error notification.
// Call this only on the first occurrence of a consecutive error sequence.
func (c *Client) SendError(cycleErr error) error {
	text := fmt.Sprintf("⚠️ *Cycle error*\n`%s`", escapeMarkdownV2(cycleErr.Error()))
	return c.sendMarkdownV2(c.opsChatID, text)
}

// SendRecovery sends a recovery notification after consecutive failures.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Cycles recovered* after %d consecutive failure\\(s\\)", failureCount)
	return c.sendMarkdownV2(c.opsChatID, text)
}

// Notify delivers a single alert to its destination's chat. A nil error
// is the delivery ack the alert engine waits for before recording.
func (c *Client) Notify(req models.NotificationRequest) error {
	return c.sendToDestination(req.Destination, formatAlert(req))
}

// NotifySummary delivers a digest of queued alerts to a summary-mode
// destination, best rating first.
func (c *Client) NotifySummary(dest models.Destination, reqs []models.NotificationRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	return c.sendToDestination(dest, formatSummary(reqs))
}

// formatAlert formats one opportunity into a Telegram MarkdownV2 message.
func formatAlert(req models.NotificationRequest) string {
	opp := req.Opportunity

	var b strings.Builder
	if req.IsReAlert {
		b.WriteString(fmt.Sprintf("📈 *Improved Value Alert* \\(\\+%s\\)\n\n", escapeMarkdownV2(fmt.Sprintf("%.1f", req.Delta))))
	} else {
		b.WriteString("🚨 *Value Alert*\n\n")
	}

	b.WriteString(fmt.Sprintf("🎯 *%s* — %s\n",
		escapeMarkdownV2(opp.Entity.DisplayName), escapeMarkdownV2(string(opp.Market))))
	if opp.Fixture.HomeTeam != "" || opp.Fixture.AwayTeam != "" {
		b.WriteString(fmt.Sprintf("⚽ %s vs %s",
			escapeMarkdownV2(opp.Fixture.HomeTeam), escapeMarkdownV2(opp.Fixture.AwayTeam)))
		b.WriteString(fmt.Sprintf(" \\(%dm to start\\)\n", opp.MinutesToStart))
	}

	b.WriteString(fmt.Sprintf("\n*Rating: %s*\n", escapeMarkdownV2(fmt.Sprintf("%.1f", opp.Rating))))
	b.WriteString(fmt.Sprintf("Back %s @ %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f", opp.BestBack.Price)), escapeMarkdownV2(opp.BestBack.SourceID)))
	lay := fmt.Sprintf("Lay %s @ %s",
		escapeMarkdownV2(fmt.Sprintf("%.2f", opp.BestLay.Price)), escapeMarkdownV2(opp.BestLay.SourceID))
	if opp.BestLay.HasLiquidity {
		lay += fmt.Sprintf(" \\(£%s available\\)", escapeMarkdownV2(fmt.Sprintf("%.0f", opp.BestLay.Liquidity)))
	}
	b.WriteString(lay + "\n")

	if len(opp.Quotes) > 2 {
		b.WriteString("\nAll prices:\n")
		for _, q := range opp.Quotes {
			b.WriteString(fmt.Sprintf("  %s %s @ %s\n",
				escapeMarkdownV2(q.Side.String()),
				escapeMarkdownV2(fmt.Sprintf("%.2f", q.Price)),
				escapeMarkdownV2(q.SourceID)))
		}
	}

	return b.String()
}

// formatSummary formats a flushed batch into a single digest message.
func formatSummary(reqs []models.NotificationRequest) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 *Value Summary* \\(%d\\)\n\n", len(reqs)))
	for i, req := range reqs {
		opp := req.Opportunity
		b.WriteString(fmt.Sprintf("%d\\. *%s* — %s\n", i+1,
			escapeMarkdownV2(opp.Entity.DisplayName), escapeMarkdownV2(string(opp.Market))))
		b.WriteString(fmt.Sprintf("   Rating %s \\(back %s @ %s, lay %s @ %s\\)\n",
			escapeMarkdownV2(fmt.Sprintf("%.1f", opp.Rating)),
			escapeMarkdownV2(fmt.Sprintf("%.2f", opp.BestBack.Price)),
			escapeMarkdownV2(opp.BestBack.SourceID),
			escapeMarkdownV2(fmt.Sprintf("%.2f", opp.BestLay.Price)),
			escapeMarkdownV2(opp.BestLay.SourceID)))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
